package cluster

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/1F47E/geo-marker-cluster/pkg/models"
	"github.com/1F47E/geo-marker-cluster/pkg/projection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planarFeature(id string, x, y float64) *models.Feature {
	p := models.PlanarPoint{X: x, Y: y}
	return &models.Feature{
		ID:         id,
		Location:   projection.ToGeo(p),
		Planar:     p,
		Properties: map[string]any{"id": id},
	}
}

func anchorIDs(clusters []*models.Feature) []string {
	ids := make([]string, len(clusters))
	for i, c := range clusters {
		ids[i] = c.ID
	}
	return ids
}

func memberIDs(c *models.Feature) []string {
	ids := make([]string, len(c.Overlapping))
	for i, o := range c.Overlapping {
		ids[i] = o.ID
	}
	return ids
}

var strategies = []Strategy{StrategyLinear, StrategyRTree, StrategyGrid}

func forEachStrategy(t *testing.T, fn func(t *testing.T, b Builder)) {
	for _, s := range strategies {
		t.Run(string(s), func(t *testing.T) {
			b, err := NewBuilder(s)
			require.NoError(t, err)
			fn(t, b)
		})
	}
}

func TestBuildMergesWithinThreshold(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, b Builder) {
		features := []*models.Feature{
			planarFeature("a", 0.5, 0.5),
			planarFeature("b", 0.5005, 0.5),
			planarFeature("c", 0.6, 0.5),
		}

		clusters := b.Build(features, 0.001)
		require.Len(t, clusters, 2)

		assert.Equal(t, []string{"a", "c"}, anchorIDs(clusters))
		assert.Equal(t, []string{"b"}, memberIDs(clusters[0]))
		assert.Equal(t, features[1].Location.Coordinates(), clusters[0].Overlapping[0].Coordinates)
		assert.Empty(t, clusters[1].Overlapping)
		assert.NotNil(t, clusters[1].Overlapping)
		assert.Equal(t, 2, clusters[0].MemberCount())
		assert.Equal(t, 1, Merged(clusters))
	})
}

func TestBuildThresholdIsStrict(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, b Builder) {
		features := []*models.Feature{
			planarFeature("a", 0.25, 0.5),
			planarFeature("b", 0.5, 0.5),
		}
		clusters := b.Build(features, 0.25)
		assert.Len(t, clusters, 2)
	})
}

func TestBuildAnchorNeverMoves(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, b Builder) {
		// each point is within the threshold of its predecessor but the chain
		// drifts away from the first anchor
		features := []*models.Feature{
			planarFeature("0", 0.100, 0.5),
			planarFeature("1", 0.106, 0.5),
			planarFeature("2", 0.112, 0.5),
			planarFeature("3", 0.118, 0.5),
		}

		clusters := b.Build(features, 0.01)
		require.Len(t, clusters, 2)
		assert.Equal(t, []string{"0", "2"}, anchorIDs(clusters))
		assert.Equal(t, features[0].Planar, clusters[0].Planar)
		assert.Equal(t, features[0].Location, clusters[0].Location)
		assert.Equal(t, []string{"1"}, memberIDs(clusters[0]))
		assert.Equal(t, []string{"3"}, memberIDs(clusters[1]))
	})
}

func TestBuildJoinsFirstMatchingSlot(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, b Builder) {
		// "far" and "near" are both within range of "p"; "far" was created first
		features := []*models.Feature{
			planarFeature("far", 0.5, 0.5),
			planarFeature("near", 0.5018, 0.5),
			planarFeature("p", 0.5009, 0.5),
		}

		clusters := b.Build(features, 0.001)
		require.Len(t, clusters, 2)
		assert.Equal(t, []string{"p"}, memberIDs(clusters[0]))
		assert.Empty(t, clusters[1].Overlapping)
	})
}

func TestBuildIsOrderSensitive(t *testing.T) {
	const d = 0.01
	a := planarFeature("A", 0.500, 0.5)
	b := planarFeature("B", 0.507, 0.5)
	c := planarFeature("C", 0.514, 0.5)

	require.Less(t, projection.Distance(a.Planar, b.Planar), d)
	require.GreaterOrEqual(t, projection.Distance(a.Planar, c.Planar), d)
	require.Less(t, projection.Distance(b.Planar, c.Planar), d)

	forEachStrategy(t, func(t *testing.T, builder Builder) {
		t.Run("A first", func(t *testing.T) {
			clusters := builder.Build([]*models.Feature{a, b, c}, d)
			require.Len(t, clusters, 2)
			assert.Equal(t, []string{"A", "C"}, anchorIDs(clusters))
			assert.Equal(t, []string{"B"}, memberIDs(clusters[0]))
			assert.Empty(t, clusters[1].Overlapping)
		})

		t.Run("B first", func(t *testing.T) {
			clusters := builder.Build([]*models.Feature{b, a, c}, d)
			require.Len(t, clusters, 1)
			assert.Equal(t, "B", clusters[0].ID)
			assert.Equal(t, []string{"A", "C"}, memberIDs(clusters[0]))
		})
	})
}

func TestBuildIsIdempotentAndPure(t *testing.T) {
	features := randomFeatures(rand.New(rand.NewSource(1)), 2000, 0.45, 0.55)
	snapshot := make([]models.Feature, len(features))
	for i, f := range features {
		snapshot[i] = *f
	}

	forEachStrategy(t, func(t *testing.T, b Builder) {
		first := b.Build(features, 0.002)
		second := b.Build(features, 0.002)
		assert.Equal(t, first, second)

		for i, f := range features {
			assert.Equal(t, snapshot[i], *f)
		}
	})
}

func TestStrategiesAgree(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	for _, d := range []float64{1e-5, 0.0005, 0.003, 0.02} {
		features := randomFeatures(r, 3000, 0.4, 0.6)
		want := Build(features, d)

		for _, s := range []Strategy{StrategyRTree, StrategyGrid} {
			t.Run(fmt.Sprintf("%s/%g", s, d), func(t *testing.T) {
				b, err := NewBuilder(s)
				require.NoError(t, err)
				assert.Equal(t, want, b.Build(features, d))
			})
		}
	}
}

func TestClusterCountNonIncreasingOnEvenlySpacedLine(t *testing.T) {
	var features []*models.Feature
	for i := 0; i < 200; i++ {
		features = append(features, planarFeature(fmt.Sprintf("p%d", i), 0.3+float64(i)*0.0001, 0.4))
	}

	prev := len(features) + 1
	for d := 0.00005; d < 0.01; d += 0.00005 {
		n := len(Build(features, d))
		assert.LessOrEqual(t, n, prev, "threshold %g", d)
		prev = n
	}
}

func TestLargerThresholdCanYieldMoreClusters(t *testing.T) {
	// With a larger threshold B is absorbed by A, so C and X become anchors of
	// their own instead of both joining B.
	features := []*models.Feature{
		planarFeature("A", 0.0+0.5, 0.5),
		planarFeature("B", 0.010+0.5, 0.5),
		planarFeature("C", 0.018+0.5, 0.5),
		planarFeature("X", 0.010+0.5, 0.5085),
	}

	assert.Len(t, Build(features, 0.009), 2)
	assert.Len(t, Build(features, 0.011), 3)
}

func TestBuildZeroThresholdKeepsEveryFeature(t *testing.T) {
	features := []*models.Feature{
		planarFeature("a", 0.5, 0.5),
		planarFeature("b", 0.5, 0.5),
	}
	forEachStrategy(t, func(t *testing.T, b Builder) {
		assert.Len(t, b.Build(features, 0), 2)
	})
}

func TestBuildEmpty(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, b Builder) {
		clusters := b.Build(nil, 0.01)
		assert.NotNil(t, clusters)
		assert.Empty(t, clusters)
	})
}

func TestParseStrategy(t *testing.T) {
	testCases := []struct {
		in   string
		want Strategy
	}{
		{"linear", StrategyLinear},
		{"RTree", StrategyRTree},
		{" grid ", StrategyGrid},
		{"", StrategyLinear},
	}
	for _, tc := range testCases {
		got, err := ParseStrategy(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseStrategy("kdtree")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = NewBuilder(Strategy("kdtree"))
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func randomFeatures(r *rand.Rand, n int, lo, hi float64) []*models.Feature {
	features := make([]*models.Feature, n)
	for i := range features {
		features[i] = planarFeature(
			fmt.Sprintf("f%d", i),
			lo+r.Float64()*(hi-lo),
			lo+r.Float64()*(hi-lo),
		)
	}
	return features
}
