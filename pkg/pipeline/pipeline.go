// Package pipeline runs one render pass: filter the features to the view box,
// cluster the survivors and encode the markers as GeoJSON.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/1F47E/geo-marker-cluster/internal/metrics"
	"github.com/1F47E/geo-marker-cluster/internal/observability"
	"github.com/1F47E/geo-marker-cluster/pkg/cluster"
	"github.com/1F47E/geo-marker-cluster/pkg/features"
	"github.com/1F47E/geo-marker-cluster/pkg/filter"
	"github.com/1F47E/geo-marker-cluster/pkg/models"
)

// Pipeline holds the immutable inputs of a render pass. It is safe for
// concurrent use; every Run works on its own copies.
type Pipeline struct {
	box      models.ViewBox
	strategy cluster.Strategy
	builder  cluster.Builder
	logger   *slog.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithStrategy selects the cluster strategy, linear by default
func WithStrategy(s cluster.Strategy) Option {
	return func(p *Pipeline) { p.strategy = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// New builds a pipeline for box
func New(box models.ViewBox, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		box:      box,
		strategy: cluster.StrategyLinear,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.tracer == nil {
		p.tracer = observability.Tracer()
	}

	builder, err := cluster.NewBuilder(p.strategy)
	if err != nil {
		return nil, err
	}
	p.builder = builder
	return p, nil
}

// ViewBox returns the box every pass filters and clusters against
func (p *Pipeline) ViewBox() models.ViewBox {
	return p.box
}

func (p *Pipeline) Strategy() cluster.Strategy {
	return p.strategy
}

// Stats summarises one pass
type Stats struct {
	Input     int           `json:"input"`
	Discarded int           `json:"discarded"`
	Visible   int           `json:"visible"`
	Clusters  int           `json:"clusters"`
	Merged    int           `json:"merged"`
	Duration  time.Duration `json:"duration"`
}

// Result is the output of one pass
type Result struct {
	Clusters   []*models.Feature
	Collection *geojson.FeatureCollection
	Stats      Stats
}

// Run filters, clusters and encodes input. input is never modified.
func (p *Pipeline) Run(ctx context.Context, input []*models.Feature) (Result, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("cluster.strategy", string(p.strategy)),
		attribute.Int("features.input", len(input)),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	_, filterSpan := p.tracer.Start(ctx, "pipeline.filter")
	visible := filter.Visible(input, p.box)
	filterSpan.SetAttributes(attribute.Int("features.visible", len(visible)))
	filterSpan.End()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	_, clusterSpan := p.tracer.Start(ctx, "pipeline.cluster", trace.WithAttributes(
		attribute.Float64("viewbox.minimal_distance", p.box.MinimalDistance),
	))
	clusters := p.builder.Build(visible, p.box.MinimalDistance)
	clusterSpan.SetAttributes(attribute.Int("clusters", len(clusters)))
	clusterSpan.End()

	_, encodeSpan := p.tracer.Start(ctx, "pipeline.encode")
	fc := features.ToCollection(clusters)
	encodeSpan.End()

	stats := Stats{
		Input:    len(input),
		Visible:  len(visible),
		Clusters: len(clusters),
		Merged:   cluster.Merged(clusters),
		Duration: time.Since(start),
	}
	span.SetAttributes(
		attribute.Int("features.visible", stats.Visible),
		attribute.Int("clusters", stats.Clusters),
	)

	p.metrics.ObservePass(string(p.strategy), stats.Input, stats.Visible, stats.Clusters, stats.Merged, stats.Duration.Seconds())
	p.logger.Debug("render pass complete",
		"strategy", p.strategy,
		"input", stats.Input,
		"visible", stats.Visible,
		"clusters", stats.Clusters,
		"merged", stats.Merged,
		"duration", stats.Duration,
	)

	return Result{Clusters: clusters, Collection: fc, Stats: stats}, nil
}

// RunDecoded runs a pass over a decode result, recording its discards
func (p *Pipeline) RunDecoded(ctx context.Context, decoded features.DecodeResult) (Result, error) {
	if n := decoded.DiscardedTotal(); n > 0 {
		byReason := make(map[string]int, len(decoded.Discarded))
		for reason, count := range decoded.Discarded {
			byReason[string(reason)] = count
			p.logger.Debug("discarded malformed features", "reason", reason, "count", count)
		}
		p.metrics.ObserveDiscards(byReason)
	}

	res, err := p.Run(ctx, decoded.Features)
	if err != nil {
		return Result{}, err
	}
	res.Stats.Discarded = decoded.DiscardedTotal()
	return res, nil
}
