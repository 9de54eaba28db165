package soak

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bouncearena.dev/internal/arena/catalogs"
	"bouncearena.dev/internal/arena/chunks"
)

func tierLibrary(t *testing.T) *chunks.Library {
	t.Helper()
	var schemas []chunks.Schema
	for _, p := range chunks.AllPacings {
		schemas = append(schemas, chunks.Schema{
			Name:          "only_" + p.String(),
			Height:        600,
			Weight:        1,
			Pacing:        p,
			TopProfile:    chunks.OpenProfile(10),
			BottomProfile: chunks.OpenProfile(10),
		})
	}
	lib, err := chunks.NewLibrary(schemas)
	require.NoError(t, err)
	return lib
}

func shippedLibrary(t *testing.T) *chunks.Library {
	t.Helper()
	lib, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	require.NoError(t, err)
	return lib
}

func TestSimulate_FixedScenario(t *testing.T) {
	sum := Simulate(tierLibrary(t), Config{Seed: 11, Steps: 9})

	o, tr, d := chunks.PacingOpen, chunks.PacingTransition, chunks.PacingDense
	require.Equal(t, []chunks.Pacing{o, o, tr, d, tr, o, o, tr, d}, sum.PacingSequence)
	require.Equal(t, 2, sum.LongestSamePacingStreak)
	require.Equal(t, 0, sum.PacingFallbackCount)
	require.Equal(t, 9, sum.StepsCompleted)
	require.False(t, sum.StoppedEarly)
	require.Equal(t, map[string]int{"Open": 4, "Transition": 3, "Dense": 2}, sum.PacingCounts)
	require.Equal(t, 4, sum.ChunkCounts["only_Open"])
}

func TestSimulate_Deterministic(t *testing.T) {
	lib := shippedLibrary(t)
	cfg := Config{Seed: 424242, Steps: 500}
	a := Simulate(lib, cfg)
	b := Simulate(lib, cfg)
	require.Equal(t, a.ChunkSequence, b.ChunkSequence)
	require.Equal(t, a.PacingSequence, b.PacingSequence)
	require.Equal(t, a.RejectionCounts, b.RejectionCounts)
	require.Equal(t, a, b)
}

func TestSimulate_SeedsDiverge(t *testing.T) {
	lib := shippedLibrary(t)
	a := Simulate(lib, Config{Seed: 7, Steps: 48})
	b := Simulate(lib, Config{Seed: 987654, Steps: 48})
	require.Len(t, a.ChunkSequence, 48)
	require.Len(t, b.ChunkSequence, 48)
	require.NotEqual(t, a.ChunkSequence, b.ChunkSequence)
}

func TestSimulate_StopsEarlyWithoutCandidates(t *testing.T) {
	lib, err := chunks.NewLibrary([]chunks.Schema{{
		Name:          "dead_end",
		Height:        100,
		Weight:        1,
		Pacing:        chunks.PacingOpen,
		TopProfile:    chunks.OpenProfile(4),
		BottomProfile: chunks.EdgeProfile{true, true, true, true},
	}})
	require.NoError(t, err)

	sum := Simulate(lib, Config{Seed: 1, Steps: 10})
	require.True(t, sum.StoppedEarly)
	require.Equal(t, 1, sum.StepsCompleted)
	require.Equal(t, 1, sum.RejectionCounts["NO_CANDIDATE"])
	require.Equal(t, 1, sum.RejectionCounts["PROFILE_MISMATCH"])
	require.Equal(t, chunks.EdgeProfile{true, true, true, true}, sum.FinalProfile)
}

func TestSimulate_EmptyAndNilLibrary(t *testing.T) {
	empty, err := chunks.NewLibrary(nil)
	require.NoError(t, err)
	for _, lib := range []*chunks.Library{nil, empty} {
		sum := Simulate(lib, Config{Seed: 3, Steps: 5})
		require.Equal(t, 0, sum.StepsCompleted)
		require.True(t, sum.StoppedEarly)
		require.Equal(t, 1, sum.RejectionCounts["NO_CANDIDATE"])
	}
	sum := Simulate(empty, Config{Seed: 3, Steps: -4})
	require.Equal(t, 0, sum.StepsRequested)
	require.False(t, sum.StoppedEarly)
}

func TestSimulate_SparseLibraryFallsBack(t *testing.T) {
	lib, err := chunks.NewLibrary([]chunks.Schema{{
		Name:          "lonely",
		Height:        100,
		Weight:        1,
		Pacing:        chunks.PacingOpen,
		TopProfile:    chunks.OpenProfile(4),
		BottomProfile: chunks.OpenProfile(4),
	}})
	require.NoError(t, err)
	sum := Simulate(lib, Config{Seed: 5, Steps: 6})
	require.Equal(t, 6, sum.StepsCompleted)
	require.Equal(t, 6, sum.LongestSamePacingStreak)
	// Steps 3.. target Transition and fall back to the only chunk.
	require.Equal(t, 4, sum.PacingFallbackCount)
}

func TestSimulateObserved_StreamsSteps(t *testing.T) {
	var steps []Step
	sum := SimulateObserved(tierLibrary(t), Config{Seed: 2, Steps: 4}, func(s Step) {
		steps = append(steps, s)
	})
	require.Len(t, steps, 4)
	for i, s := range steps {
		require.Equal(t, i, s.Index)
		require.Equal(t, sum.ChunkSequence[i], s.Chunk)
		require.Equal(t, float64(600*i), s.SpawnY)
	}
}

func TestSimulate_InitialState(t *testing.T) {
	sum := Simulate(tierLibrary(t), Config{
		Seed:                  1,
		Steps:                 3,
		InitialPacing:         chunks.PacingTransition,
		InitialPreviousPacing: chunks.PacingOpen,
		InitialRunLength:      1,
	})
	require.Equal(t, []chunks.Pacing{chunks.PacingDense, chunks.PacingTransition, chunks.PacingOpen}, sum.PacingSequence)
}

func TestConfigAndSummaryFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "soak.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"seed":11,"steps":9,"initial_pacing":"Open","policy":{"concave_trap_max_distance":80}}`), 0o644))

	cfg, err := LoadConfig(cfgPath)
	require.NoError(t, err)
	require.Equal(t, int64(11), cfg.Seed)
	require.Equal(t, 9, cfg.Steps)
	require.NotNil(t, cfg.Policy)
	require.Equal(t, 80.0, cfg.Policy.ConcaveTrapMaxDistance)
	require.Equal(t, 150.0, cfg.Policy.ExitAngleCheckDistance)

	sum := Simulate(tierLibrary(t), cfg)
	out := filepath.Join(dir, "reports", "soak", "summary.json")
	require.NoError(t, WriteSummary(out, sum))
	back, err := ReadSummary(out)
	require.NoError(t, err)
	require.Equal(t, sum.ChunkSequence, back.ChunkSequence)
	require.Equal(t, sum.PacingSequence, back.PacingSequence)
	require.Equal(t, sum.RejectionCounts, back.RejectionCounts)

	var raw map[string]json.RawMessage
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, key := range []string{"pacing_pick_counts", "chunk_pick_counts", "rejection_counts", "longest_same_pacing_streak", "pacing_fallback_count", "pacing_sequence", "chunk_sequence"} {
		require.Contains(t, raw, key)
	}
	require.JSONEq(t, `{"Open":4,"Transition":3,"Dense":2}`, string(raw["pacing_pick_counts"]))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"steps":"many"}`), 0o644))
	_, err = LoadConfig(bad)
	require.Error(t, err)
}
