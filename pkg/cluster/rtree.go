package cluster

import (
	"github.com/dhconnelly/rtreego"

	"github.com/1F47E/geo-marker-cluster/pkg/models"
	"github.com/1F47E/geo-marker-cluster/pkg/projection"
)

const (
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// anchorItem wraps a cluster anchor to implement rtreego.Spatial
type anchorItem struct {
	slot int
	rect rtreego.Rect
}

func (a *anchorItem) Bounds() rtreego.Rect {
	return a.rect
}

// anchorIndex is an R-Tree over cluster anchors in planar space
type anchorIndex struct {
	tree     *rtreego.Rtree
	clusters []*models.Feature
	radius   float64
	// anchors are stored as tiny boxes; rtreego rejects zero-size rects
	tolerance float64
}

func newAnchorIndex(capacity int, radius float64) *anchorIndex {
	return &anchorIndex{
		tree:      rtreego.NewTree(dimensions, minChildren, maxChildren),
		clusters:  make([]*models.Feature, 0, capacity),
		radius:    radius,
		tolerance: radius * 1e-6,
	}
}

// firstWithin returns the lowest slot whose anchor is strictly closer than the
// radius, or -1
func (idx *anchorIndex) firstWithin(p models.PlanarPoint) int {
	bounds, err := rtreego.NewRect(
		rtreego.Point{p.X - idx.radius, p.Y - idx.radius},
		[]float64{2 * idx.radius, 2 * idx.radius},
	)
	if err != nil {
		return -1
	}

	best := -1
	for _, result := range idx.tree.SearchIntersect(bounds) {
		item, ok := result.(*anchorItem)
		if !ok {
			continue
		}
		if best >= 0 && item.slot >= best {
			continue
		}
		if projection.Distance(idx.clusters[item.slot].Planar, p) < idx.radius {
			best = item.slot
		}
	}
	return best
}

func (idx *anchorIndex) insert(c *models.Feature) {
	slot := len(idx.clusters)
	idx.clusters = append(idx.clusters, c)
	rect := rtreego.Point{c.Planar.X, c.Planar.Y}.ToRect(idx.tolerance)
	idx.tree.Insert(&anchorItem{slot: slot, rect: rect})
}

// BuildRTree produces the same clusters as Build, using an R-Tree over anchors
// to narrow the search to a window around each feature.
func BuildRTree(features []*models.Feature, minimalDistance float64) []*models.Feature {
	if !(minimalDistance > 0) {
		return Build(features, minimalDistance)
	}

	idx := newAnchorIndex(len(features), minimalDistance)
	for _, f := range features {
		if f == nil {
			continue
		}
		if slot := idx.firstWithin(f.Planar); slot >= 0 {
			absorb(idx.clusters[slot], f)
			continue
		}
		idx.insert(newCluster(f))
	}
	return idx.clusters
}
