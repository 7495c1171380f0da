package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/geo-marker-cluster/pkg/models"
)

func defaults() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(defaults())
	require.NoError(t, err)

	assert.Equal(t, models.Location{Lat: 51.0904, Lon: -0.27603}, cfg.Viewport.LowerLeft)
	assert.Equal(t, models.Location{Lat: 51.6836, Lon: 0.05081}, cfg.Viewport.TopRight)
	assert.Equal(t, 500, cfg.Viewport.Width)
	assert.Equal(t, 400, cfg.Viewport.Height)
	assert.Equal(t, 40.0, cfg.Viewport.MarkerDiameter)
	assert.Equal(t, "linear", cfg.Cluster.Strategy)
	assert.Equal(t, DefaultDatasetURL, cfg.Source.URL)
	assert.Equal(t, int64(64<<20), cfg.Source.MaxBytes)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Tracing.Enabled)

	vc := cfg.ViewportConfig()
	assert.Equal(t, cfg.Viewport.LowerLeft, vc.LowerLeft)
	assert.Equal(t, 40.0, vc.MarkerDiameter)
}

func TestLoadOverrides(t *testing.T) {
	v := defaults()
	v.Set("cluster.strategy", "grid")
	v.Set("viewport.width", 800)
	v.Set("server.port", 9090)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "grid", cfg.Cluster.Strategy)
	assert.Equal(t, 800, cfg.Viewport.Width)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "markercluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
viewport:
  lower_left: {lat: 48.80, lon: 2.25}
  top_right: {lat: 48.90, lon: 2.42}
  marker_diameter: 24
cluster:
  strategy: rtree
`), 0o644))

	v := defaults()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, models.Location{Lat: 48.80, Lon: 2.25}, cfg.Viewport.LowerLeft)
	assert.Equal(t, 24.0, cfg.Viewport.MarkerDiameter)
	assert.Equal(t, "rtree", cfg.Cluster.Strategy)
	assert.Equal(t, 500, cfg.Viewport.Width)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	v := defaults()
	v.Set("viewport.marker_diameter", 0)
	v.Set("cluster.strategy", "kmeans")
	v.Set("server.port", 0)
	v.Set("log.format", "xml")
	v.Set("tracing.sample_ratio", 2)
	v.Set("source.max_bytes", 0)

	_, err := Load(v)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "viewport: marker diameter must be positive")
	assert.Contains(t, msg, "cluster.strategy")
	assert.Contains(t, msg, "server.port must be 1-65535")
	assert.Contains(t, msg, "source.max_bytes must be positive")
	assert.Contains(t, msg, "log.format must be json or text")
	assert.Contains(t, msg, "tracing.sample_ratio")
}

func TestConnString(t *testing.T) {
	p := PostGISConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "geo", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=geo sslmode=disable", p.ConnString())
}

func TestTracingConfig(t *testing.T) {
	v := defaults()
	v.Set("tracing.enabled", true)
	cfg, err := Load(v)
	require.NoError(t, err)

	tc := cfg.TracingConfig()
	assert.True(t, tc.Enabled)
	assert.Equal(t, "stdout", tc.Exporter)
	assert.Equal(t, "markercluster", tc.ServiceName)
	assert.Equal(t, 1.0, tc.SampleRatio)
}
