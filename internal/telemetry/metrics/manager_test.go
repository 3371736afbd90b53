package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, reg interface {
	Gather() ([]*dto.MetricFamily, error)
}) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		byName[family.GetName()] = family
	}
	return byName
}

func TestManager_CountersRegistered(t *testing.T) {
	m, reg := NewTestManagerAndRegistry()

	m.CounterTokenGrants.Inc()
	m.CounterTokenCacheHits.Inc()
	m.CounterTokenCacheHits.Inc()
	m.CounterWorkoutUploads.Inc()
	m.GaugeLifeSignal.Set(1)

	families := gathered(t, reg)

	grants := families["backend_test_server_token_grants"]
	require.NotNil(t, grants)
	assert.Equal(t, 1.0, grants.GetMetric()[0].GetCounter().GetValue())

	hits := families["backend_test_server_token_cache_hits"]
	require.NotNil(t, hits)
	assert.Equal(t, 2.0, hits.GetMetric()[0].GetCounter().GetValue())

	life := families["backend_test_server_life_signal"]
	require.NotNil(t, life)
	assert.Equal(t, 1.0, life.GetMetric()[0].GetGauge().GetValue())
}

func TestManager_RequestVecLabels(t *testing.T) {
	m, reg := NewTestManagerAndRegistry()

	m.CounterRequests.WithLabelValues("GET", "200").Inc()
	m.CounterRequests.WithLabelValues("GET", "200").Inc()
	m.CounterRequests.WithLabelValues("POST", "400").Inc()

	families := gathered(t, reg)
	requests := families["backend_test_server_request"]
	require.NotNil(t, requests)
	require.Len(t, requests.GetMetric(), 2)

	total := 0.0
	for _, metric := range requests.GetMetric() {
		total += metric.GetCounter().GetValue()
		require.Len(t, metric.GetLabel(), 2)
	}
	assert.Equal(t, 3.0, total)
}
