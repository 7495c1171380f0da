package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/1F47E/geo-marker-cluster/internal/logging"
	"github.com/1F47E/geo-marker-cluster/pkg/features"
	"github.com/1F47E/geo-marker-cluster/pkg/models"
)

func execute(t *testing.T, args ...string) (string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	require.NoError(t, rootCmd.Execute())
	return stdout.String(), stderr.String()
}

func TestViewBoxJSON(t *testing.T) {
	out, _ := execute(t, "viewbox", "--format", "json")

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.InDelta(t, 2.640477508303207e-4, got["minimal_distance"], 1e-12)
	assert.InDelta(t, 8.243057337249166, got["zoom_level"], 1e-9)
	assert.Equal(t, "vertical", got["constraining_axis"])
	assert.Contains(t, got, "lower_left")
}

func TestViewBoxYAML(t *testing.T) {
	out, _ := execute(t, "viewbox", "--format", "yaml")

	var got struct {
		LowerLeft struct {
			Lat float64 `yaml:"lat"`
		} `yaml:"lower_left"`
		ZoomLevel    float64 `yaml:"zoom_level"`
		Constraining string  `yaml:"constraining_axis"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, 51.0904, got.LowerLeft.Lat)
	assert.InDelta(t, 8.243057337249166, got.ZoomLevel, 1e-9)
	assert.Equal(t, "vertical", got.Constraining)
}

func TestViewBoxText(t *testing.T) {
	out, _ := execute(t, "viewbox", "--format", "text")
	assert.Contains(t, out, "View box")
	assert.Contains(t, out, "vertical")
}

func TestClusterFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "points.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"type":"FeatureCollection","features":[
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[-0.10,51.5]},"properties":{"id":"a"}},
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[-0.05,51.5]},"properties":{"id":"b"}},
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[0.30,51.2]},"properties":{"id":"c"}}
	]}`), 0o644))
	out := filepath.Join(dir, "markers.json")

	_, stderr := execute(t, "cluster", "--file", in, "--out", out, "--strategy", "grid")
	assert.Contains(t, stderr, "[grid]")

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var fc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "a", fc.Features[0].Properties["id"])
	assert.Len(t, fc.Features[0].Properties["overlapping"], 1)
}

type stubStore struct {
	got models.BoundingBox
	res features.DecodeResult
	err error
}

func (s *stubStore) QueryBox(ctx context.Context, box models.BoundingBox) (features.DecodeResult, error) {
	s.got = box
	return s.res, s.err
}

func (s *stubStore) String() string { return "postgis:stub" }

func TestLoadWindowQueriesViewBox(t *testing.T) {
	logger = logging.Discard()
	box := models.ViewBox{BoundingBox: models.BoundingBox{
		BottomLeft: models.Location{Lat: 51.0904, Lon: -0.27603},
		TopRight:   models.Location{Lat: 51.6836, Lon: 0.05081},
	}}
	want := features.DecodeResult{Features: []*models.Feature{{ID: "a"}}}
	store := &stubStore{res: want}

	got, err := loadWindow(context.Background(), store, box)
	require.NoError(t, err)
	assert.Equal(t, box.BoundingBox, store.got)
	assert.Equal(t, want, got)
}

func TestLoadWindowError(t *testing.T) {
	logger = logging.Discard()
	boom := errors.New("connection refused")

	_, err := loadWindow(context.Background(), &stubStore{err: boom}, models.ViewBox{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "postgis:stub")
}

func TestPrintStoreStats(t *testing.T) {
	var buf bytes.Buffer
	printStoreStats(&buf, "points", map[string]any{
		"row_count":  int64(3),
		"table_size": "48 kB",
		"index_size": "16 kB",
	})
	out := buf.String()
	for _, want := range []string{"loaded", "3", "points", "48 kB", "16 kB"} {
		assert.Contains(t, out, want)
	}
}
