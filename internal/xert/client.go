package xert

import (
	"net/http"

	"github.com/tmhinkle/fitgateway/internal/telemetry/metrics"

	"github.com/coocood/freecache"
)

const (
	// fixed public client credentials of the upstream password grant
	oauthClientID     = "xert_public"
	oauthClientSecret = "xert_public"

	activityCacheSizeBytes = 2 * 1024 * 1024
	activityCacheExpire    = 60 // seconds
)

// Client talks to the Xert site both ways it knows how: through the
// bearer-token OAuth API, and through a scraped browser session (cookies +
// CSRF) for the endpoints the API does not expose, like workout import.
type Client struct {
	baseURL  string
	username string
	password string
	// optional calendar alias enforced on scheduled workouts
	forUser string

	tokens *TokenSource

	httpClient *http.Client
	// same transport, but redirects are not followed; the login sequence
	// must see the redirect response itself to harvest its cookies
	noRedirectClient *http.Client

	activityCache *freecache.Cache
	metrics       *metrics.Manager
}

type NewClientParams struct {
	BaseURL    string
	Username   string
	Password   string
	ForUser    string
	Tokens     *TokenSource
	HTTPClient *http.Client
	Metrics    *metrics.Manager
}

func NewClient(params NewClientParams) *Client {
	noRedirectClient := &http.Client{
		Transport: params.HTTPClient.Transport,
		Timeout:   params.HTTPClient.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Client{
		baseURL:          params.BaseURL,
		username:         params.Username,
		password:         params.Password,
		forUser:          params.ForUser,
		tokens:           params.Tokens,
		httpClient:       params.HTTPClient,
		noRedirectClient: noRedirectClient,
		activityCache:    freecache.NewCache(activityCacheSizeBytes),
		metrics:          params.Metrics,
	}
}

// UpstreamResponse carries an upstream status, body and content type for
// verbatim relaying to the original caller.
type UpstreamResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}
