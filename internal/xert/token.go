package xert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tmhinkle/fitgateway/internal/telemetry/metrics"
	"github.com/tmhinkle/fitgateway/internal/telemetry/tracing"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	tokenCacheKey = "xert-access-token"
	// the upstream does not tell us when the token expires, 10 minutes is
	// short enough to be safe
	tokenTTL = 600 * time.Second
)

// ErrNoAccessToken - the password grant came back without an access token,
// which means the credentials were rejected.
var ErrNoAccessToken = errors.New("failed to obtain token")

// TokenSource hands out a bearer token for the upstream API, caching it in
// redis with a fixed TTL. The cache is externally owned: concurrent writers
// are the cache's problem, not ours, and the worst case is an extra grant.
type TokenSource struct {
	tokenURL    string
	username    string
	password    string
	httpClient  *http.Client
	redisClient *redis.Client
	metrics     *metrics.Manager
}

func NewTokenSource(
	baseURL, username, password string,
	httpClient *http.Client,
	redisClient *redis.Client,
	metricsManager *metrics.Manager,
) *TokenSource {
	return &TokenSource{
		tokenURL:    baseURL + "/oauth/token",
		username:    username,
		password:    password,
		httpClient:  httpClient,
		redisClient: redisClient,
		metrics:     metricsManager,
	}
}

// Token returns the cached bearer token, or acquires a fresh one via the
// password grant when the cache is cold or expired.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "xert.tokenSource.token")
	defer span.End()

	cmd := ts.redisClient.Get(ctx, tokenCacheKey)
	if err := cmd.Err(); err == nil {
		if token := cmd.Val(); token != "" {
			span.SetAttributes(attribute.Bool("token.from-cache", true))
			ts.metrics.CounterTokenCacheHits.Inc()
			log.Tracef("bearer token served from cache")
			return token, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Errorf("failed to get cached bearer token: %s", err)
	}

	span.SetAttributes(attribute.Bool("token.from-cache", false))
	ts.metrics.CounterTokenGrants.Inc()
	log.Debugf("no cached bearer token, doing a password grant")

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", ts.username)
	form.Set("password", ts.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(oauthClientID, oauthClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, fmt.Sprintf("token grant: %s", err))
		return "", fmt.Errorf("token grant: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token grant response: %w", err)
	}

	var tokenData struct {
		AccessToken string `json:"access_token"`
	}
	// the upstream responds 200 with no access_token on bad credentials,
	// so the body decides, not the status
	if err := json.Unmarshal(respBytes, &tokenData); err != nil || tokenData.AccessToken == "" {
		span.SetStatus(codes.Error, "no access token in grant response")
		return "", ErrNoAccessToken
	}

	if err := ts.redisClient.Set(ctx, tokenCacheKey, tokenData.AccessToken, tokenTTL).Err(); err != nil {
		log.Errorf("failed to cache bearer token: %s", err)
	} else {
		log.Debugf("bearer token cached for %s", tokenTTL)
	}

	return tokenData.AccessToken, nil
}
