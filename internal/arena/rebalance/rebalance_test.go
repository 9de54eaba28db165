package rebalance

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/rng"
)

func library(t *testing.T, weights ...float64) *chunks.Library {
	t.Helper()
	schemas := make([]chunks.Schema, len(weights))
	for i, w := range weights {
		schemas[i] = chunks.Schema{
			Name:          fmt.Sprintf("c%d", i),
			Height:        100,
			Weight:        w,
			Pacing:        chunks.AllPacings[i%3],
			TopProfile:    chunks.OpenProfile(2),
			BottomProfile: chunks.OpenProfile(2),
		}
	}
	lib, err := chunks.NewLibrary(schemas)
	require.NoError(t, err)
	return lib
}

func total(m map[string]float64) float64 {
	var s float64
	for _, v := range m {
		s += v
	}
	return s
}

func TestPropose_OvershootGetsLowerWeight(t *testing.T) {
	lib := library(t, 1, 1, 1, 1)
	observed := map[string]int{"c0": 700, "c1": 100, "c2": 100, "c3": 100}
	res := Propose(lib, observed, Options{MinWeight: 0.05, MaxWeight: 0.6})

	require.True(t, res.Converged)
	require.False(t, res.BoundsCollapsed)
	require.InDelta(t, 1.0, total(res.Weights), 1e-4)
	require.Less(t, res.Weights["c0"], res.Weights["c1"])
	require.InDelta(t, res.Weights["c1"], res.Weights["c2"], 1e-12)
	for _, w := range res.Weights {
		require.GreaterOrEqual(t, w, 0.05-1e-6)
		require.LessOrEqual(t, w, 0.6+1e-6)
	}
}

func TestPropose_MatchingDistributionKeepsShares(t *testing.T) {
	lib := library(t, 2, 1, 1)
	res := Propose(lib, map[string]int{"c0": 200, "c1": 100, "c2": 100}, Options{MinWeight: 0, MaxWeight: 1})
	require.InDelta(t, 0.5, res.Weights["c0"], 1e-9)
	require.InDelta(t, 0.25, res.Weights["c1"], 1e-9)
}

func TestPropose_InfeasibleBoundsCollapse(t *testing.T) {
	lib := library(t, 1, 5, 9)
	for _, b := range [][2]float64{{0.5, 0.9}, {0.01, 0.2}} {
		res := Propose(lib, map[string]int{"c0": 10}, Options{MinWeight: b[0], MaxWeight: b[1]})
		require.True(t, res.BoundsCollapsed, "bounds %v", b)
		for _, w := range res.Weights {
			require.InDelta(t, 1.0/3, w, 1e-9)
		}
	}
}

func TestPropose_DegenerateInputs(t *testing.T) {
	res := Propose(nil, nil, DefaultOptions())
	require.Empty(t, res.Weights)

	empty, err := chunks.NewLibrary(nil)
	require.NoError(t, err)
	require.Empty(t, Propose(empty, map[string]int{"x": 4}, DefaultOptions()).Weights)

	zero := library(t, 0, 0, math.NaN(), math.Inf(1))
	res = Propose(zero, nil, Options{MinWeight: 0.1, MaxWeight: 0.4})
	require.InDelta(t, 1.0, total(res.Weights), 1e-4)
	for _, w := range res.Weights {
		require.InDelta(t, 0.25, w, 1e-9)
	}
}

func TestPropose_BoundsClampedToUnitInterval(t *testing.T) {
	lib := library(t, 1, 1, 1, 1)
	res := Propose(lib, map[string]int{"c0": 1000}, Options{MinWeight: -1, MaxWeight: 3})

	require.False(t, res.BoundsCollapsed)
	require.Equal(t, 0.0, res.MinWeight)
	require.Equal(t, 1.0, res.MaxWeight)
	require.InDelta(t, 1.0, total(res.Weights), 1e-4)
	for name, w := range res.Weights {
		require.GreaterOrEqual(t, w, 0.0, name)
	}
	require.InDelta(t, 0.0, res.Weights["c0"], 1e-9)
	require.InDelta(t, 1.0/3, res.Weights["c1"], 1e-9)
}

func TestPropose_IneligibleWeightUsesBaseline(t *testing.T) {
	lib := library(t, 1, 0, 1)
	res := Propose(lib, nil, Options{MinWeight: 0, MaxWeight: 1})
	for _, e := range res.Entries {
		require.Equal(t, 1.0, e.Authored, e.Name)
	}
	for name, w := range res.Weights {
		require.InDelta(t, 1.0/3, w, 1e-9, name)
	}
}

func TestPropose_Invariants(t *testing.T) {
	src := rng.NewSeeded(99)
	for trial := 0; trial < 200; trial++ {
		n := 1 + int(src.Uniform(12))
		weights := make([]float64, n)
		observed := map[string]int{}
		for i := range weights {
			weights[i] = 0.1 + src.Uniform(10)
			observed[fmt.Sprintf("c%d", i)] = int(src.Uniform(1000))
		}
		lo := src.Uniform(1.0 / float64(n))
		hi := 1.0/float64(n) + src.Uniform(1)
		lib := library(t, weights...)
		res := Propose(lib, observed, Options{MinWeight: lo, MaxWeight: hi, Damping: 0.5})

		require.Len(t, res.Weights, n)
		require.InDelta(t, 1.0, total(res.Weights), 1e-4, "trial %d", trial)
		for name, w := range res.Weights {
			require.GreaterOrEqual(t, w, lo-1e-6, "trial %d %s", trial, name)
			require.LessOrEqual(t, w, hi+1e-6, "trial %d %s", trial, name)
		}
	}
}

func TestApplyAndWrite(t *testing.T) {
	lib := library(t, 1, 1, 2)
	res := Propose(lib, map[string]int{"c0": 50, "c1": 10, "c2": 40}, Options{MinWeight: 0.1, MaxWeight: 0.8})
	nl, err := Apply(lib, res.Weights)
	require.NoError(t, err)
	require.Equal(t, lib.Len(), nl.Len())
	for _, s := range nl.Schemas {
		require.InDelta(t, res.Weights[s.Name], s.Weight, 1e-12)
	}
	require.NotEqual(t, lib.Digest, nl.Digest)
	// Source library is untouched.
	require.Equal(t, 1.0, lib.Schemas[0].Weight)

	path := filepath.Join(t.TempDir(), "out", "weights.json")
	require.NoError(t, WriteResult(path, res))
	require.FileExists(t, path)

	_, err = Apply(nil, res.Weights)
	require.Error(t, err)
}
