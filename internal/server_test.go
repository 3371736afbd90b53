package internal

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tmhinkle/fitgateway/internal/config"
	"github.com/tmhinkle/fitgateway/internal/telemetry/metrics"
	"github.com/tmhinkle/fitgateway/internal/xert"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream that must never be reached without an api key
type fakeUpstream struct {
	server *httptest.Server
	calls  int
}

func newRouterWithFakeUpstream(t *testing.T) (*mux.Router, *fakeUpstream) {
	t.Helper()

	upstream := &fakeUpstream{}
	upstream.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstream.calls++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"secret": "data"}`)
	}))
	t.Cleanup(upstream.server.Close)

	metricsManager := metrics.NewTestManager()
	tokens := xert.NewTokenSource(
		upstream.server.URL, "athlete", "secret",
		upstream.server.Client(),
		redis.NewClient(&redis.Options{Addr: "localhost:1"}),
		metricsManager,
	)
	xertClient := xert.NewClient(xert.NewClientParams{
		BaseURL:    upstream.server.URL,
		Username:   "athlete",
		Password:   "secret",
		Tokens:     tokens,
		HTTPClient: upstream.server.Client(),
		Metrics:    metricsManager,
	})

	s := &Server{
		config: &config.Config{
			ImportRateLimitAllowedPerMin: 10,
		},
		xertClient:     xertClient,
		versionInfo:    "test-version",
		apiKey:         "sssh",
		redisClient:    redis.NewClient(&redis.Options{Addr: "localhost:1"}),
		metricsManager: metricsManager,
	}

	router, err := s.routerSetup()
	require.NoError(t, err)
	return router, upstream
}

func TestRouter_RootNeverReachesProxy(t *testing.T) {
	router, upstream := newRouterWithFakeUpstream(t)

	for _, method := range []string{"GET", "POST", "PUT", "DELETE"} {
		req := httptest.NewRequest(method, "/", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, method)
		assert.Contains(t, rec.Body.String(), "fitgateway up and running", method)
	}

	assert.Equal(t, 0, upstream.calls)
}

func TestRouter_ProxyRequiresAPIKey(t *testing.T) {
	router, upstream := newRouterWithFakeUpstream(t)

	req := httptest.NewRequest("GET", "/user", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, upstream.calls)
}

func TestRouter_VersionNeedsNoKey(t *testing.T) {
	router, upstream := newRouterWithFakeUpstream(t)

	req := httptest.NewRequest("GET", "/version", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test-version", rec.Body.String())
	assert.Equal(t, 0, upstream.calls)
}
