package xert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tmhinkle/fitgateway/internal/telemetry/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadWorkoutFiles_NoFiles(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called when there is nothing to upload")
	}))
	defer upstream.Close()

	client := NewClient(NewClientParams{
		BaseURL:    upstream.URL,
		Username:   "athlete",
		Password:   "secret",
		HTTPClient: upstream.Client(),
		Metrics:    metrics.NewTestManager(),
	})

	_, err := client.UploadWorkoutFiles(context.Background(), nil, UploadOptions{})
	require.ErrorIs(t, err, ErrNoFiles)
}

func TestUploadWorkoutFiles_DefaultsAndHeaders(t *testing.T) {
	site := newFakeXertSite(t)
	client := site.newClient()

	files := []WorkoutFile{
		{Name: "one.zwo", Content: []byte("<workout_file>1</workout_file>")},
		{Name: "two.zwo", Content: []byte("<workout_file>2</workout_file>")},
	}

	resp, err := client.UploadWorkoutFiles(context.Background(), files, UploadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, site.uploadCalls)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"success": true}`, string(resp.Body))

	// import page CSRF plus the conversion defaults
	assert.Equal(t, "import-csrf", site.lastUploadForm["_token"])
	assert.Equal(t, "mmp", site.lastUploadForm["convert_above_ftp"])
	assert.Equal(t, "xssr", site.lastUploadForm["convert_below_ftp"])

	assert.Equal(t, "<workout_file>1</workout_file>", site.lastUploadFiles["one.zwo"])
	assert.Equal(t, "<workout_file>2</workout_file>", site.lastUploadFiles["two.zwo"])

	// the upload rides on the harvested session
	assert.Equal(t, "xsrf-cookie", site.lastUploadHeaders.Get("X-XSRF-TOKEN"))
	assert.Equal(t, site.server.URL+"/workouts/import", site.lastUploadHeaders.Get("Referer"))
	assert.Equal(t, site.server.URL, site.lastUploadHeaders.Get("Origin"))
	assert.Contains(t, site.lastUploadHeaders.Get("Cookie"), "site_session=authed")
}

func TestUploadWorkoutFiles_ExplicitConversionModes(t *testing.T) {
	site := newFakeXertSite(t)
	client := site.newClient()

	_, err := client.UploadWorkoutFiles(
		context.Background(),
		[]WorkoutFile{{Name: "w.zwo", Content: []byte("x")}},
		UploadOptions{ConvertAboveFTP: "ftp", ConvertBelowFTP: "ftp"},
	)
	require.NoError(t, err)

	assert.Equal(t, "ftp", site.lastUploadForm["convert_above_ftp"])
	assert.Equal(t, "ftp", site.lastUploadForm["convert_below_ftp"])
}

func TestUploadWorkoutFiles_LoginFailurePropagates(t *testing.T) {
	site := newFakeXertSite(t)
	site.blockImportPage = true
	client := site.newClient()

	_, err := client.UploadWorkoutFiles(
		context.Background(),
		[]WorkoutFile{{Name: "w.zwo", Content: []byte("x")}},
		UploadOptions{},
	)
	require.ErrorIs(t, err, ErrLoginBlocked)
	assert.Equal(t, 0, site.uploadCalls)
}
