// Package cluster merges nearby point features into single markers.
//
// Merging is greedy and order-sensitive: features are taken in input order and
// each one joins the first existing cluster whose anchor lies strictly closer
// than the merge threshold, or starts a new cluster otherwise. The anchor of a
// cluster is the feature that created it and never moves. Every Builder in this
// package produces exactly the same clusters for the same input; they differ
// only in how candidate clusters are found.
package cluster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/1F47E/geo-marker-cluster/pkg/models"
	"github.com/1F47E/geo-marker-cluster/pkg/projection"
)

// ErrUnknownStrategy is returned for an unrecognised strategy name
var ErrUnknownStrategy = errors.New("unknown cluster strategy")

// Strategy selects how candidate clusters are searched
type Strategy string

const (
	StrategyLinear Strategy = "linear"
	StrategyRTree  Strategy = "rtree"
	StrategyGrid   Strategy = "grid"
)

// Builder clusters an ordered sequence of projected features
type Builder interface {
	Build(features []*models.Feature, minimalDistance float64) []*models.Feature
}

// BuilderFunc adapts a function to the Builder interface
type BuilderFunc func(features []*models.Feature, minimalDistance float64) []*models.Feature

func (f BuilderFunc) Build(features []*models.Feature, minimalDistance float64) []*models.Feature {
	return f(features, minimalDistance)
}

// ParseStrategy maps a config value to a Strategy
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case StrategyLinear, StrategyRTree, StrategyGrid:
		return s, nil
	case "":
		return StrategyLinear, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// NewBuilder returns the Builder for a strategy
func NewBuilder(s Strategy) (Builder, error) {
	switch s {
	case StrategyLinear, "":
		return BuilderFunc(Build), nil
	case StrategyRTree:
		return BuilderFunc(BuildRTree), nil
	case StrategyGrid:
		return BuilderFunc(BuildGrid), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Build scans every cluster formed so far for each feature, O(n·c)
func Build(features []*models.Feature, minimalDistance float64) []*models.Feature {
	clusters := make([]*models.Feature, 0, len(features))
	for _, f := range features {
		if f == nil {
			continue
		}
		idx := -1
		for i, c := range clusters {
			if projection.Distance(c.Planar, f.Planar) < minimalDistance {
				idx = i
				break
			}
		}
		if idx < 0 {
			clusters = append(clusters, newCluster(f))
			continue
		}
		absorb(clusters[idx], f)
	}
	return clusters
}

// newCluster copies f into a fresh anchor so the input stays untouched
func newCluster(f *models.Feature) *models.Feature {
	c := *f
	c.Overlapping = []models.Overlap{}
	return &c
}

func absorb(c, f *models.Feature) {
	c.Overlapping = append(c.Overlapping, models.Overlap{
		ID:          f.ID,
		Coordinates: f.Location.Coordinates(),
	})
}

// Merged returns how many input features were absorbed into other markers
func Merged(clusters []*models.Feature) int {
	n := 0
	for _, c := range clusters {
		n += len(c.Overlapping)
	}
	return n
}
