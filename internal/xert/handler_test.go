package xert

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/tmhinkle/fitgateway/internal/telemetry/metrics"

	"github.com/go-redis/redismock/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeXertAPI simulates the bearer-token OAuth API side of the upstream.
type fakeXertAPI struct {
	server *httptest.Server

	activityCalls int
	lastAuth      string
	lastQuery     url.Values
	lastPath      string
}

func newFakeXertAPI(t *testing.T) *fakeXertAPI {
	api := &fakeXertAPI{}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.lastAuth = r.Header.Get("Authorization")
		api.lastPath = r.URL.Path
		api.lastQuery = r.URL.Query()

		switch r.URL.Path {
		case "/oauth/activity":
			api.activityCalls++
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"activities": [{"name": "Morning Ride"}]}`)
		case "/oauth/user":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"name": "athlete"}`)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error": "not found"}`)
		}
	}))
	t.Cleanup(api.server.Close)
	return api
}

func (api *fakeXertAPI) newClientAndMock() (*Client, redismock.ClientMock) {
	redisClient, redisMock := redismock.NewClientMock()
	m := metrics.NewTestManager()
	tokens := NewTokenSource(api.server.URL, "athlete", "secret", api.server.Client(), redisClient, m)
	client := NewClient(NewClientParams{
		BaseURL:    api.server.URL,
		Username:   "athlete",
		Password:   "secret",
		Tokens:     tokens,
		HTTPClient: api.server.Client(),
		Metrics:    m,
	})
	return client, redisMock
}

func newTestRouter(client *Client) *mux.Router {
	router := mux.NewRouter()
	NewHandler(client, metrics.NewTestManager()).SetupRoutes(router, nil, 0)
	return router
}

func TestHandler_RecentRides(t *testing.T) {
	api := newFakeXertAPI(t)
	client, redisMock := api.newClientAndMock()
	redisMock.ExpectGet(tokenCacheKey).SetVal("tok-abc")
	router := newTestRouter(client)

	req := httptest.NewRequest("GET", "/recentRides?days=3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Morning Ride")
	assert.Equal(t, "Bearer tok-abc", api.lastAuth)
	assert.Equal(t, "/oauth/activity", api.lastPath)

	// the window covers the requested days, unix seconds on both ends
	require.NotEmpty(t, api.lastQuery.Get("from"))
	require.NotEmpty(t, api.lastQuery.Get("to"))
}

func TestHandler_RecentRides_Cached(t *testing.T) {
	api := newFakeXertAPI(t)
	client, redisMock := api.newClientAndMock()
	redisMock.ExpectGet(tokenCacheKey).SetVal("tok-abc")
	router := newTestRouter(client)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/recentRides?days=2", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// only the first request reaches the upstream
	assert.Equal(t, 1, api.activityCalls)
}

func TestHandler_RecentRides_InvalidDays(t *testing.T) {
	api := newFakeXertAPI(t)
	client, _ := api.newClientAndMock()
	router := newTestRouter(client)

	for _, days := range []string{"abc", "0", "-2"} {
		req := httptest.NewRequest("GET", "/recentRides?days="+days, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, days)
	}
	assert.Equal(t, 0, api.activityCalls)
}

func TestHandler_Proxy(t *testing.T) {
	api := newFakeXertAPI(t)
	client, redisMock := api.newClientAndMock()
	redisMock.ExpectGet(tokenCacheKey).SetVal("tok-abc")
	router := newTestRouter(client)

	req := httptest.NewRequest("GET", "/user?detail=full", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/oauth/user", api.lastPath)
	assert.Equal(t, "full", api.lastQuery.Get("detail"))
	assert.Equal(t, "Bearer tok-abc", api.lastAuth)
	assert.JSONEq(t, `{"name": "athlete"}`, rec.Body.String())
}

func TestHandler_Proxy_UpstreamErrorRelayedVerbatim(t *testing.T) {
	api := newFakeXertAPI(t)
	client, redisMock := api.newClientAndMock()
	redisMock.ExpectGet(tokenCacheKey).SetVal("tok-abc")
	router := newTestRouter(client)

	req := httptest.NewRequest("GET", "/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error": "not found"}`, rec.Body.String())
}

func TestHandler_Proxy_TokenFailure(t *testing.T) {
	// upstream that rejects the grant
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": "invalid_credentials"}`)
	}))
	defer upstream.Close()

	redisClient, redisMock := redismock.NewClientMock()
	redisMock.ExpectGet(tokenCacheKey).RedisNil()

	m := metrics.NewTestManager()
	tokens := NewTokenSource(upstream.URL, "athlete", "wrong", upstream.Client(), redisClient, m)
	client := NewClient(NewClientParams{
		BaseURL:    upstream.URL,
		Username:   "athlete",
		Password:   "wrong",
		Tokens:     tokens,
		HTTPClient: upstream.Client(),
		Metrics:    m,
	})
	router := newTestRouter(client)

	req := httptest.NewRequest("GET", "/user", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error": "Failed to obtain token"}`, rec.Body.String())
}

func TestHandler_ImportWorkoutJSON(t *testing.T) {
	site := newFakeXertSite(t)
	client := site.newClient()
	router := newTestRouter(client)

	workoutJSON := `{
		"name": "Sweet Spot 2x20",
		"steps": [
			{"type": "warmup", "duration": 600, "start": 0.4, "end": 0.7},
			{"type": "steady", "duration": 1200, "target": 0.9}
		]
	}`

	req := httptest.NewRequest("POST", "/import-workout-json", strings.NewReader(workoutJSON))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, site.uploadCalls)

	compiled, ok := site.lastUploadFiles["Sweet Spot 2x20.zwo"]
	require.True(t, ok, "compiled file must be named after the workout")
	assert.Contains(t, compiled, `<SteadyState Duration="1200" Power="0.9" />`)
	assert.Contains(t, compiled, `<Warmup Duration="600" PowerLow="0.4" PowerHigh="0.7" />`)
	assert.Equal(t, "mmp", site.lastUploadForm["convert_above_ftp"])
	assert.Equal(t, "xssr", site.lastUploadForm["convert_below_ftp"])
}

func TestHandler_ImportWorkoutJSON_InvalidBody(t *testing.T) {
	site := newFakeXertSite(t)
	client := site.newClient()
	router := newTestRouter(client)

	req := httptest.NewRequest("POST", "/import-workout-json", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, site.uploadCalls)
}

func TestHandler_ImportWorkoutFile(t *testing.T) {
	site := newFakeXertSite(t)
	client := site.newClient()
	router := newTestRouter(client)

	var body bytes.Buffer
	mw := newMultipartBody(t, &body, map[string]string{
		"convert_above_ftp": "ftp",
	}, map[string]string{
		"ride.zwo": "<workout_file>x</workout_file>",
	})

	req := httptest.NewRequest("POST", "/import-workout-file", &body)
	req.Header.Set("Content-Type", mw)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ftp", site.lastUploadForm["convert_above_ftp"])
	assert.Equal(t, "xssr", site.lastUploadForm["convert_below_ftp"])
	assert.Equal(t, "<workout_file>x</workout_file>", site.lastUploadFiles["ride.zwo"])
}

func TestHandler_ImportWorkoutFile_SingleFileField(t *testing.T) {
	site := newFakeXertSite(t)
	client := site.newClient()
	router := newTestRouter(client)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "single.zwo")
	require.NoError(t, err)
	_, err = part.Write([]byte("<workout_file>y</workout_file>"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/import-workout-file", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, site.uploadCalls)
	assert.Equal(t, "<workout_file>y</workout_file>", site.lastUploadFiles["single.zwo"])
}

func TestHandler_ImportWorkoutFile_NoFiles(t *testing.T) {
	site := newFakeXertSite(t)
	client := site.newClient()
	router := newTestRouter(client)

	var body bytes.Buffer
	mw := newMultipartBody(t, &body, map[string]string{"convert_above_ftp": "ftp"}, nil)

	req := httptest.NewRequest("POST", "/import-workout-file", &body)
	req.Header.Set("Content-Type", mw)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "no files provided"}`, rec.Body.String())
	assert.Equal(t, 0, site.uploadCalls)
	// rejected before any login traffic
	assert.Equal(t, 0, site.landingCalls)
}

func TestHandler_ScheduleWorkout(t *testing.T) {
	site := newFakeXertSite(t)
	client := site.newClient()
	router := newTestRouter(client)

	req := httptest.NewRequest("POST", "/schedule-workout", strings.NewReader(`{"name": "VO2 Max"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"success": true, "eventId": 42, "data": {"id": 42, "status": "scheduled"}}`,
		rec.Body.String(),
	)
}

func TestHandler_ScheduleWorkout_InvalidBody(t *testing.T) {
	site := newFakeXertSite(t)
	client := site.newClient()
	router := newTestRouter(client)

	req := httptest.NewRequest("POST", "/schedule-workout", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, site.calendarCalls)
}

func TestHandler_LoginFailureMapsToUnauthorized(t *testing.T) {
	site := newFakeXertSite(t)
	site.blockImportPage = true
	client := site.newClient()
	router := newTestRouter(client)

	req := httptest.NewRequest("POST", "/schedule-workout", strings.NewReader(`{"name": "x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "login verification failed")
}
