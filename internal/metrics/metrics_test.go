package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePass(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObservePass("linear", 10, 7, 4, 3, 0.002)
	c.ObservePass("linear", 10, 6, 5, 1, 0.002)

	assert.Equal(t, 20.0, testutil.ToFloat64(c.FeaturesIngested))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.FeaturesVisible))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.Clusters))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.MergedFeatures))
	assert.Equal(t, 1, testutil.CollectAndCount(c.PassDuration))
}

func TestObserveDiscards(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveDiscards(map[string]int{"no_id": 2, "not_point": 1})
	c.ObserveDiscards(map[string]int{"no_id": 1})

	assert.Equal(t, 3.0, testutil.ToFloat64(c.FeaturesDiscarded.WithLabelValues("no_id")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FeaturesDiscarded.WithLabelValues("not_point")))
}

func TestNewCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.FeaturesIngested.Add(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.FeaturesIngested))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObservePass("grid", 1, 1, 1, 0, 0.1)
	c.ObserveDiscards(map[string]int{"no_id": 1})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.ObservePass("rtree", 3, 3, 2, 1, 0.001)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "markercluster_clusters 2"))
}
