package cluster

import (
	"math"

	"github.com/1F47E/geo-marker-cluster/pkg/models"
	"github.com/1F47E/geo-marker-cluster/pkg/projection"
)

type cell struct {
	x, y int64
}

// cellOf buckets a planar point into a grid whose cells are minimalDistance wide
func cellOf(p models.PlanarPoint, size float64) cell {
	return cell{
		x: int64(math.Floor(p.X / size)),
		y: int64(math.Floor(p.Y / size)),
	}
}

// BuildGrid produces the same clusters as Build. Anchors are bucketed by
// floor(planar / minimalDistance), so every anchor within the threshold sits
// in the 3x3 block of cells around the feature.
func BuildGrid(features []*models.Feature, minimalDistance float64) []*models.Feature {
	if !(minimalDistance > 0) {
		return Build(features, minimalDistance)
	}

	clusters := make([]*models.Feature, 0, len(features))
	buckets := make(map[cell][]int)

	for _, f := range features {
		if f == nil {
			continue
		}
		home := cellOf(f.Planar, minimalDistance)

		best := -1
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				// slots within a bucket are ascending
				for _, slot := range buckets[cell{home.x + dx, home.y + dy}] {
					if best >= 0 && slot >= best {
						break
					}
					if projection.Distance(clusters[slot].Planar, f.Planar) < minimalDistance {
						best = slot
						break
					}
				}
			}
		}

		if best >= 0 {
			absorb(clusters[best], f)
			continue
		}
		slot := len(clusters)
		clusters = append(clusters, newCluster(f))
		buckets[home] = append(buckets[home], slot)
	}
	return clusters
}
