package integration_testing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"testing"

	"github.com/tmhinkle/fitgateway/internal/nutrition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

func doRequest(t *testing.T, method, path string, body []byte) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, serverEndpoint+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-API-KEY", testAPIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, respBytes
}

func TestServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !dockerAvailable() {
		t.Skip("docker not available, skipping integration test")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	suite := newSuite(ctx)
	defer suite.cleanup()

	t.Run("version endpoint needs no api key", func(t *testing.T) {
		resp, err := http.Get(serverEndpoint + "/version")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("nutrition routes reject missing api key", func(t *testing.T) {
		resp, err := http.Get(serverEndpoint + "/nutrition/logs")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	var entryID string
	t.Run("add and list log entries", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, "/nutrition/logs", []byte(`{
			"date": "2026-08-30T08:00:00Z",
			"meal": "breakfast",
			"food": "oatmeal",
			"kcal": 300, "protein": 10, "carbs": 50, "fiber": 8
		}`))
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

		var added nutrition.LogEntry
		require.NoError(t, json.Unmarshal(body, &added))
		entryID = added.ID.String()
		require.NotEmpty(t, entryID)

		resp, body = doRequest(t, http.MethodGet, "/nutrition/logs?from=2026-08-30&to=2026-08-30", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var entries []nutrition.LogEntry
		require.NoError(t, json.Unmarshal(body, &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "oatmeal", entries[0].Food)
	})

	t.Run("batch add and summaries", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, "/nutrition/logs", []byte(`{"items": [
			{"date": "2026-08-30T12:00:00Z", "meal": "lunch", "food": "salad", "kcal": 250, "protein": 8},
			{"date": "2026-08-30T19:00:00Z", "meal": "dinner", "food": "pasta", "kcal": 700, "protein": 25}
		]}`))
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

		resp, body = doRequest(t, http.MethodGet, "/nutrition/summaries?from=2026-08-30&to=2026-08-30", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var summaries []nutrition.DailySummary
		require.NoError(t, json.Unmarshal(body, &summaries))
		require.Len(t, summaries, 1)
		assert.Equal(t, 3, summaries[0].Entries)
		assert.Equal(t, 1250.0, summaries[0].Kcal)
		assert.Equal(t, 43.0, summaries[0].Protein)
	})

	t.Run("update and delete log entry", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPut, "/nutrition/logs/"+entryID, []byte(`{
			"date": "2026-08-30T08:00:00Z",
			"meal": "breakfast",
			"food": "oatmeal with berries",
			"kcal": 350
		}`))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := doRequest(t, http.MethodGet, "/nutrition/logs/"+entryID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "oatmeal with berries")

		resp, _ = doRequest(t, http.MethodDelete, "/nutrition/logs/"+entryID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = doRequest(t, http.MethodGet, "/nutrition/logs/"+entryID, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("goals", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, "/nutrition/goals", []byte(`{
			"effectiveFrom": "2026-01-01T00:00:00Z",
			"kcal": 2400, "protein": 140
		}`))
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp, body := doRequest(t, http.MethodGet, "/nutrition/goals/current", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var current nutrition.Goal
		require.NoError(t, json.Unmarshal(body, &current))
		assert.Equal(t, 2400.0, current.Kcal)
	})

	t.Run("body metrics", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, "/nutrition/metrics/body", []byte(`{
			"date": "2026-08-30T07:00:00Z",
			"weightKg": 74.5
		}`))
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp, body := doRequest(t, http.MethodGet, "/nutrition/metrics/body?from=2026-08-01&to=2026-08-31", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var listed []nutrition.BodyMetric
		require.NoError(t, json.Unmarshal(body, &listed))
		require.Len(t, listed, 1)
		assert.Equal(t, 74.5, listed[0].WeightKg)
	})

	t.Run("direct db row count", func(t *testing.T) {
		var count int
		require.NoError(t, suite.DB.QueryRow(`SELECT count(*) FROM nutrition_log;`).Scan(&count))
		assert.Equal(t, 2, count)
	})

	fmt.Println("integration suite done")
}
