package xert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/tmhinkle/fitgateway/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrNoLoginCSRF - the landing page had no CSRF token to submit the login with
	ErrNoLoginCSRF = errors.New("failed to get CSRF from main page")
	// ErrNoImportCSRF - the import page had no CSRF token, the session is not usable
	ErrNoImportCSRF = errors.New("failed to get CSRF from import page")
	// ErrLoginBlocked - the import page came back as a login redirect, meaning the
	// login silently failed; the site responds 200 either way
	ErrLoginBlocked = errors.New("login verification failed (import page blocked)")

	csrfTokenRegex      = regexp.MustCompile(`(?i)name="_token"\s+value="([^"]+)"`)
	loginRedirectSignal = regexp.MustCompile(`(?i)redirect=1`)
)

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// cookieJar accumulates session cookies over the login sequence.
// Later values for the same name overwrite earlier ones.
type cookieJar map[string]string

// mergeSetCookies folds every Set-Cookie value of a response into the jar.
// Must run after each step of the sequence, before the next request goes
// out: a cookie set in step N may authenticate step N+1.
func (jar cookieJar) mergeSetCookies(headers http.Header) {
	for _, setCookie := range headers.Values("Set-Cookie") {
		pair, _, _ := strings.Cut(setCookie, ";")
		name, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(name) == "" {
			continue
		}
		jar[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
}

// cookieHeader serializes the jar into a Cookie request header value.
func (jar cookieJar) cookieHeader() string {
	names := make([]string, 0, len(jar))
	for name := range jar {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+jar[name])
	}
	return strings.Join(pairs, "; ")
}

func extractCSRF(html []byte) string {
	m := csrfTokenRegex.FindSubmatch(html)
	if m == nil {
		return ""
	}
	return string(m[1])
}

// importContext is the outcome of a completed login sequence: the CSRF
// token of the import page plus the headers an upload must carry.
type importContext struct {
	csrf          string
	uploadHeaders http.Header
	jar           cookieJar
}

// login walks the interactive site login from scratch: landing page, login
// form submission, optional redirect, import page. Cookies from every
// response are merged into the jar before the next request. The sequence is
// strictly ordered and never retried; every request that needs a session
// runs it in full.
func (c *Client) login(ctx context.Context) (*importContext, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "xert.client.login")
	defer span.End()

	jar := cookieJar{}

	// 1) landing page: first cookies + login CSRF
	landingBody, _, err := c.doSessionStep(ctx, c.httpClient, jar, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch landing page: %w", err)
	}
	loginCSRF := extractCSRF(landingBody)
	if loginCSRF == "" {
		span.SetStatus(codes.Error, "no login csrf")
		return nil, ErrNoLoginCSRF
	}

	// 2) login form, redirects handled manually to not lose Set-Cookie
	// headers of the redirect response itself
	form := url.Values{}
	form.Set("_token", loginCSRF)
	form.Set("username", c.username)
	form.Set("password", c.password)
	form.Set("timezone", "")
	form.Set("redirect", "1")

	_, loginHeaders, err := c.doSessionStep(
		ctx, c.noRedirectClient, jar,
		http.MethodPost, c.baseURL+"/auth/login",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("submit login: %w", err)
	}

	// 3) follow the redirect, if any, to collect the remaining cookies
	if location := loginHeaders.Get("Location"); location != "" {
		nextURL, err := c.resolveURL(location)
		if err != nil {
			return nil, fmt.Errorf("resolve login redirect: %w", err)
		}
		if _, _, err := c.doSessionStep(ctx, c.httpClient, jar, http.MethodGet, nextURL, nil); err != nil {
			return nil, fmt.Errorf("follow login redirect: %w", err)
		}
	}

	// 4) import page: second CSRF + the proof the login actually worked
	importBody, _, err := c.doSessionStep(ctx, c.httpClient, jar, http.MethodGet, c.baseURL+"/workouts/import", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch import page: %w", err)
	}

	// a blocked session comes back as a login page pointing at ?redirect=1,
	// check for that before complaining about the missing token
	if loginRedirectSignal.Match(importBody) {
		span.SetStatus(codes.Error, "login blocked")
		return nil, ErrLoginBlocked
	}
	importCSRF := extractCSRF(importBody)
	if importCSRF == "" {
		span.SetStatus(codes.Error, "no import csrf")
		return nil, ErrNoImportCSRF
	}

	uploadHeaders := http.Header{}
	uploadHeaders.Set("Cookie", jar.cookieHeader())
	uploadHeaders.Set("Referer", c.baseURL+"/workouts/import")
	uploadHeaders.Set("Origin", c.baseURL)
	if xsrf, ok := jar["XSRF-TOKEN"]; ok && xsrf != "" {
		uploadHeaders.Set("X-XSRF-TOKEN", xsrf)
	}

	log.Debugf("login sequence done, %d cookies in the jar", len(jar))

	return &importContext{
		csrf:          importCSRF,
		uploadHeaders: uploadHeaders,
		jar:           jar,
	}, nil
}

// doSessionStep performs one request of the login sequence with the jar
// serialized as the Cookie header, and merges the response cookies back in.
func (c *Client) doSessionStep(
	ctx context.Context,
	client *http.Client,
	jar cookieJar,
	method, requestURL string,
	body io.Reader,
) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Accept", acceptHTML)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if len(jar) > 0 {
		req.Header.Set("Cookie", jar.cookieHeader())
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Referer", c.baseURL+"/")
		req.Header.Set("Origin", c.baseURL)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	jar.mergeSetCookies(resp.Header)

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}

	return respBytes, resp.Header, nil
}

func (c *Client) resolveURL(location string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(loc).String(), nil
}
