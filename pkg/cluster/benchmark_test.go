package cluster

import (
	"math/rand"
	"testing"
)

func benchmarkStrategy(b *testing.B, s Strategy, numPoints int) {
	builder, err := NewBuilder(s)
	if err != nil {
		b.Fatal(err)
	}
	features := randomFeatures(rand.New(rand.NewSource(1)), numPoints, 0.49, 0.51)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = builder.Build(features, 0.0002)
	}
}

func BenchmarkLinear10k(b *testing.B) { benchmarkStrategy(b, StrategyLinear, 10000) }
func BenchmarkRTree10k(b *testing.B)  { benchmarkStrategy(b, StrategyRTree, 10000) }
func BenchmarkGrid10k(b *testing.B)   { benchmarkStrategy(b, StrategyGrid, 10000) }

func BenchmarkRTree100k(b *testing.B) { benchmarkStrategy(b, StrategyRTree, 100000) }
func BenchmarkGrid100k(b *testing.B)  { benchmarkStrategy(b, StrategyGrid, 100000) }
