package soak

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/cursor"
	"bouncearena.dev/internal/arena/pacing"
	"bouncearena.dev/internal/arena/policy"
	"bouncearena.dev/internal/arena/rng"
	"bouncearena.dev/internal/arena/schemas"
	"bouncearena.dev/internal/arena/telemetry"
	"bouncearena.dev/internal/arena/validate"
)

type Config struct {
	Seed                  int64              `json:"seed"`
	Steps                 int                `json:"steps"`
	InitialProfile        chunks.EdgeProfile `json:"initial_profile,omitempty"`
	InitialPacing         chunks.Pacing      `json:"initial_pacing"`
	InitialPreviousPacing chunks.Pacing      `json:"initial_previous_pacing"`
	InitialRunLength      int                `json:"initial_run_length"`

	// Policy overrides the default thresholds when set.
	Policy *policy.Policy `json:"policy,omitempty"`
}

func DefaultConfig() Config {
	return Config{Seed: 1337, Steps: 1000}
}

// LoadConfig reads a soak config file, validating it against the soak
// config schema. Fields absent from the file keep DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := schemas.Validate(schemas.SoakConfigURL, raw); err != nil {
		return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if cfg.Policy != nil {
		merged := policy.Defaults()
		if err := json.Unmarshal(raw, &struct {
			Policy *policy.Policy `json:"policy"`
		}{Policy: &merged}); err != nil {
			return cfg, err
		}
		if err := merged.Validate(); err != nil {
			return cfg, fmt.Errorf("%s: policy: %w", filepath.Base(path), err)
		}
		cfg.Policy = &merged
	}
	return cfg, nil
}

// Step is one soak iteration, reported to observers as it happens.
type Step struct {
	Index    int           `json:"index"`
	Target   chunks.Pacing `json:"target"`
	Chunk    string        `json:"chunk"`
	Pacing   chunks.Pacing `json:"pacing"`
	Fallback bool          `json:"fallback"`
	SpawnY   float64       `json:"spawn_y"`
	RunLen   int           `json:"run_length"`
}

type Summary struct {
	Seed           int64  `json:"seed"`
	StepsRequested int    `json:"steps_requested"`
	StepsCompleted int    `json:"steps_completed"`
	LibraryDigest  string `json:"library_digest"`

	PacingCounts    map[string]int `json:"pacing_pick_counts"`
	ChunkCounts     map[string]int `json:"chunk_pick_counts"`
	RejectionCounts map[string]int `json:"rejection_counts"`

	LongestSamePacingStreak int `json:"longest_same_pacing_streak"`
	PacingFallbackCount     int `json:"pacing_fallback_count"`

	PacingSequence []chunks.Pacing `json:"pacing_sequence"`
	ChunkSequence  []string        `json:"chunk_sequence"`

	StoppedEarly bool               `json:"stopped_early"`
	FinalProfile chunks.EdgeProfile `json:"final_profile"`
}

// Simulate runs the selector and pacing machine for cfg.Steps iterations
// from a seeded source. Output is a pure function of (lib, cfg).
func Simulate(lib *chunks.Library, cfg Config) Summary {
	return SimulateObserved(lib, cfg, nil)
}

// SimulateObserved is Simulate with a per-step callback.
func SimulateObserved(lib *chunks.Library, cfg Config, observe func(Step)) Summary {
	pol := policy.Defaults()
	if cfg.Policy != nil {
		pol = *cfg.Policy
	}
	res := chunks.DefaultProfileResolution
	digest := ""
	if lib != nil {
		res = lib.ProfileResolution
		digest = lib.Digest
	}

	cur := cursor.New(res, 0, cfg.Seed)
	if len(cfg.InitialProfile) > 0 {
		cur.LastBottom = cfg.InitialProfile.Clone()
	}
	cur.Pacing = pacing.State{
		Current:   cfg.InitialPacing,
		Previous:  cfg.InitialPreviousPacing,
		RunLength: cfg.InitialRunLength,
	}

	src := rng.NewSeeded(cfg.Seed)
	counters := telemetry.New()

	steps := cfg.Steps
	if steps < 0 {
		steps = 0
	}
	sum := Summary{
		Seed:           cfg.Seed,
		StepsRequested: steps,
		LibraryDigest:  digest,
		PacingCounts:   map[string]int{},
		ChunkCounts:    map[string]int{},
		PacingSequence: make([]chunks.Pacing, 0, steps),
		ChunkSequence:  make([]string, 0, steps),
	}
	for _, p := range chunks.AllPacings {
		sum.PacingCounts[p.String()] = 0
	}

	streak := 0
	for i := 0; i < steps; i++ {
		pl, ok := cursor.Step(cur, lib, pol, src, counters)
		if !ok {
			sum.StoppedEarly = true
			break
		}
		p := pl.Schema.Pacing
		if n := len(sum.PacingSequence); n > 0 && sum.PacingSequence[n-1] == p {
			streak++
		} else {
			streak = 1
		}
		if streak > sum.LongestSamePacingStreak {
			sum.LongestSamePacingStreak = streak
		}
		sum.PacingSequence = append(sum.PacingSequence, p)
		sum.ChunkSequence = append(sum.ChunkSequence, pl.Schema.Name)
		sum.PacingCounts[p.String()]++
		sum.ChunkCounts[pl.Schema.Name]++
		if pl.Fallback {
			sum.PacingFallbackCount++
		}
		if observe != nil {
			observe(Step{
				Index:    i,
				Target:   pl.Target,
				Chunk:    pl.Schema.Name,
				Pacing:   p,
				Fallback: pl.Fallback,
				SpawnY:   pl.SpawnY,
				RunLen:   cur.Pacing.RunLength,
			})
		}
	}
	sum.StepsCompleted = len(sum.ChunkSequence)
	sum.RejectionCounts = rejectionCounts(counters)
	sum.FinalProfile = cur.LastBottom.Clone()
	return sum
}

func rejectionCounts(c *telemetry.Counters) map[string]int {
	out := make(map[string]int, len(validate.Reasons))
	for r, n := range c.Rejections() {
		out[r.String()] = n
	}
	return out
}

// WriteSummary persists a summary as indented JSON, creating parent dirs.
func WriteSummary(path string, s Summary) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func ReadSummary(path string) (Summary, error) {
	var s Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}
