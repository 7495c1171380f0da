package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/1F47E/geo-marker-cluster/internal/metrics"
	"github.com/1F47E/geo-marker-cluster/internal/server"
	"github.com/1F47E/geo-marker-cluster/internal/tui"
	"github.com/1F47E/geo-marker-cluster/pkg/cluster"
	"github.com/1F47E/geo-marker-cluster/pkg/features"
	"github.com/1F47E/geo-marker-cluster/pkg/models"
	"github.com/1F47E/geo-marker-cluster/pkg/pipeline"
	"github.com/1F47E/geo-marker-cluster/pkg/postgis"
	"github.com/1F47E/geo-marker-cluster/pkg/source"
	"github.com/1F47E/geo-marker-cluster/pkg/viewport"
)

var (
	viewboxFormat string
	inputFile     string
	inputURL      string
	fromPostGIS   bool
	outFile       string
)

var viewboxCmd = &cobra.Command{
	Use:   "viewbox",
	Short: "Print the view box for the configured window",
	RunE:  runViewBox,
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster a GeoJSON dataset and print the markers",
	Long: `Loads point features from a file, a URL or PostGIS, keeps the ones inside
the view box and writes the clustered markers as a GeoJSON FeatureCollection.`,
	RunE: runCluster,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve markers over HTTP",
	RunE:  runServe,
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Browse the clustered markers in the terminal",
	RunE:  runView,
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Seed PostGIS from a GeoJSON file",
	RunE:  runLoad,
}

func init() {
	viewboxCmd.Flags().StringVar(&viewboxFormat, "format", "text", "Output format: text, json or yaml")

	for _, cmd := range []*cobra.Command{clusterCmd, serveCmd, viewCmd} {
		cmd.Flags().StringVarP(&inputFile, "file", "f", "", "GeoJSON file to cluster")
		cmd.Flags().StringVarP(&inputURL, "url", "u", "", "GeoJSON URL to cluster (default: sample dataset)")
		cmd.Flags().BoolVar(&fromPostGIS, "postgis", false, "Read features from PostGIS instead")
		cmd.MarkFlagsMutuallyExclusive("file", "url", "postgis")
	}
	clusterCmd.Flags().StringVarP(&outFile, "out", "o", "", "Write GeoJSON here instead of stdout")

	serveCmd.Flags().Int("port", 8080, "HTTP listen port")
	bind(v, map[string]string{"server.port": "port"}, serveCmd)

	loadCmd.Flags().StringVarP(&inputFile, "file", "f", "", "GeoJSON file to load")
	_ = loadCmd.MarkFlagRequired("file")
}

type viewBoxOutput struct {
	models.ViewBox `yaml:",inline"`
	Constraining   viewport.Axis `json:"constraining_axis" yaml:"constraining_axis"`
}

func runViewBox(cmd *cobra.Command, args []string) error {
	res, err := viewport.Compute(cfg.ViewportConfig())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch viewboxFormat {
	case "text", "":
		printViewBox(out, res)
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(viewBoxOutput{ViewBox: res.ViewBox, Constraining: res.Constraining})
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(viewBoxOutput{ViewBox: res.ViewBox, Constraining: res.Constraining})
	default:
		return fmt.Errorf("unknown format %q", viewboxFormat)
	}
}

// boxLoader is a store that can narrow a read to a bounding box
type boxLoader interface {
	QueryBox(ctx context.Context, box models.BoundingBox) (features.DecodeResult, error)
	String() string
}

// loadWindow reads only the stored features inside the view box. The store
// test is inclusive, so the pipeline still applies the strict edge rule.
func loadWindow(ctx context.Context, store boxLoader, box models.ViewBox) (features.DecodeResult, error) {
	decoded, err := store.QueryBox(ctx, box.BoundingBox)
	if err != nil {
		return features.DecodeResult{}, fmt.Errorf("load %s: %w", store, err)
	}
	logger.Info("loaded features in view box",
		"source", store.String(),
		"features", len(decoded.Features),
		"discarded", decoded.DiscardedTotal(),
	)
	return decoded, nil
}

// loadFeatures reads the dataset named by the flags, falling back to config
func loadFeatures(ctx context.Context, box models.ViewBox) (features.DecodeResult, error) {
	if fromPostGIS {
		store, err := postgis.Open(ctx, cfg.PostGIS.ConnString(), cfg.PostGIS.Table, logger)
		if err != nil {
			return features.DecodeResult{}, err
		}
		defer store.Close()
		return loadWindow(ctx, store, box)
	}

	location := inputFile
	if location == "" {
		location = inputURL
	}
	if location == "" {
		location = cfg.Source.File
	}
	if location == "" {
		location = cfg.Source.URL
	}

	client := &http.Client{Timeout: time.Duration(cfg.Source.Timeout) * time.Second}
	src, err := source.Open(location, client, cfg.Source.MaxBytes)
	if err != nil {
		return features.DecodeResult{}, err
	}

	logger.Debug("loading features", "source", src.String())
	decoded, err := src.Load(ctx)
	if err != nil {
		return features.DecodeResult{}, fmt.Errorf("load %s: %w", src, err)
	}
	logger.Info("loaded features",
		"source", src.String(),
		"features", len(decoded.Features),
		"discarded", decoded.DiscardedTotal(),
	)
	return decoded, nil
}

func newPipeline(m *metrics.Collector) (*pipeline.Pipeline, error) {
	res, err := viewport.Compute(cfg.ViewportConfig())
	if err != nil {
		return nil, err
	}
	strategy, err := cluster.ParseStrategy(cfg.Cluster.Strategy)
	if err != nil {
		return nil, err
	}
	logger.Debug("view box computed",
		"minimal_distance", res.MinimalDistance,
		"zoom_level", res.ZoomLevel,
		"constraining_axis", res.Constraining,
	)
	return pipeline.New(res.ViewBox,
		pipeline.WithStrategy(strategy),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
	)
}

func runCluster(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := newPipeline(nil)
	if err != nil {
		return err
	}
	decoded, err := loadFeatures(ctx, p.ViewBox())
	if err != nil {
		return err
	}
	res, err := p.RunDecoded(ctx, decoded)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("create %s: %w", outFile, err)
		}
		defer f.Close()
		out = f
	}
	if err := features.Encode(out, res.Collection); err != nil {
		return err
	}
	if outFile == "" {
		fmt.Fprintln(out)
	}

	printSummary(cmd.ErrOrStderr(), string(p.Strategy()), res.Stats)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	p, err := newPipeline(m)
	if err != nil {
		return err
	}
	decoded, err := loadFeatures(ctx, p.ViewBox())
	if err != nil {
		return err
	}

	byReason := make(map[string]int, len(decoded.Discarded))
	for reason, n := range decoded.Discarded {
		byReason[string(reason)] = n
	}
	m.ObserveDiscards(byReason)

	app := server.New(server.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}, &server.Dependencies{
		Pipeline:  p,
		Features:  decoded.Features,
		Discarded: decoded.DiscardedTotal(),
		Metrics:   m,
		Logger:    logger,
	})
	return server.Serve(ctx, app, cfg.Server.Port, logger)
}

func runView(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := newPipeline(nil)
	if err != nil {
		return err
	}
	decoded, err := loadFeatures(ctx, p.ViewBox())
	if err != nil {
		return err
	}
	res, err := p.RunDecoded(ctx, decoded)
	if err != nil {
		return err
	}

	r := tui.New(
		tui.WithHeader(fmt.Sprintf("%d features · %d visible · %d markers · zoom %.2f",
			res.Stats.Input, res.Stats.Visible, res.Stats.Clusters, p.ViewBox().ZoomLevel)),
		tui.WithLogger(logger),
	)
	if err := r.Ingest(res.Collection); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for in := range r.Interactions() {
			logger.Debug("point interaction", "feature_id", in.FeatureID, "count", in.Count)
		}
	}()

	err = r.Run(ctx)
	<-done
	return err
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	decoded, err := source.File{Path: inputFile}.Load(ctx)
	if err != nil {
		return err
	}
	for reason, n := range decoded.Discarded {
		logger.Warn("skipped malformed features", "reason", reason, "count", n)
	}

	store, err := postgis.Open(ctx, cfg.PostGIS.ConnString(), cfg.PostGIS.Table, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	start := time.Now()
	if err := store.InitSchema(ctx); err != nil {
		return err
	}
	if err := store.BulkInsert(ctx, decoded.Features); err != nil {
		return err
	}
	if err := store.CreateSpatialIndex(ctx); err != nil {
		return err
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	logger.Info("features loaded into PostGIS",
		"table", cfg.PostGIS.Table,
		"rows", stats["row_count"],
		"elapsed", time.Since(start),
	)
	printStoreStats(cmd.ErrOrStderr(), cfg.PostGIS.Table, stats)
	return nil
}
