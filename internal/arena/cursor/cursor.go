package cursor

import (
	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/pacing"
	"bouncearena.dev/internal/arena/policy"
	"bouncearena.dev/internal/arena/rng"
	"bouncearena.dev/internal/arena/selector"
	"bouncearena.dev/internal/arena/telemetry"
)

// Cursor is the per-run generation state. It is owned by the caller and
// changes only on a successful Step.
type Cursor struct {
	NextSpawnY    float64            `json:"next_spawn_y"`
	LastBottom    chunks.EdgeProfile `json:"last_bottom"`
	Pacing        pacing.State       `json:"pacing"`
	ChunksSpawned uint64             `json:"chunks_spawned"`
	Seed          int64              `json:"seed"`
}

// New starts a run with an open edge of the given resolution. Chunks stack
// toward positive Y: each chunk starts at NextSpawnY and the cursor advances
// by its height.
func New(resolution int, startY float64, seed int64) *Cursor {
	if resolution <= 0 {
		resolution = chunks.DefaultProfileResolution
	}
	return &Cursor{
		NextSpawnY: startY,
		LastBottom: chunks.OpenProfile(resolution),
		Pacing:     pacing.Initial(),
		Seed:       seed,
	}
}

// Placement describes where the host should instantiate a selected chunk.
// SpawnY is the chunk's leading edge; CenterY is SpawnY + Height/2.
type Placement struct {
	Schema   *chunks.Schema
	Index    int
	SpawnY   float64
	CenterY  float64
	Target   chunks.Pacing
	Fallback bool
	Sequence uint64
}

// Step runs one "need more world" request: it computes the target pacing,
// selects a chunk for the cursor's open edge and advances the cursor. The
// cursor is left untouched when nothing fits.
func Step(c *Cursor, lib *chunks.Library, pol policy.Policy, src rng.Source, counters *telemetry.Counters) (Placement, bool) {
	target := c.Pacing.Target()
	sel := selector.Select(selector.Request{
		Library:  lib,
		Required: c.LastBottom,
		Target:   target,
		Policy:   pol,
		Source:   src,
	}, counters)
	if !sel.OK {
		return Placement{Target: target, Index: -1}, false
	}
	p := Placement{
		Schema:   sel.Schema,
		Index:    sel.Index,
		SpawnY:   c.NextSpawnY,
		CenterY:  c.NextSpawnY + sel.Schema.Height/2,
		Target:   target,
		Fallback: sel.Fallback,
		Sequence: c.ChunksSpawned,
	}
	c.Apply(sel.Schema)
	return p, true
}

// Apply records that s was placed at the cursor.
func (c *Cursor) Apply(s *chunks.Schema) {
	c.NextSpawnY += s.Height
	c.LastBottom = s.BottomProfile.Clone()
	c.Pacing = c.Pacing.Advance(s.Pacing)
	c.ChunksSpawned++
}

// Generator bundles the collaborators a host loop keeps for one run.
type Generator struct {
	Library  *chunks.Library
	Policy   policy.Policy
	Source   rng.Source
	Cursor   *Cursor
	Counters *telemetry.Counters
}

// NewGenerator wires a live (non-deterministic) run.
func NewGenerator(lib *chunks.Library, pol policy.Policy, startY float64) *Generator {
	return &Generator{
		Library:  lib,
		Policy:   pol,
		Source:   rng.NewLive(),
		Cursor:   New(lib.ProfileResolution, startY, 0),
		Counters: telemetry.New(),
	}
}

// NewSeededGenerator wires a reproducible run.
func NewSeededGenerator(lib *chunks.Library, pol policy.Policy, startY float64, seed int64) *Generator {
	return &Generator{
		Library:  lib,
		Policy:   pol,
		Source:   rng.NewSeeded(seed),
		Cursor:   New(lib.ProfileResolution, startY, seed),
		Counters: telemetry.New(),
	}
}

func (g *Generator) Next() (Placement, bool) {
	return Step(g.Cursor, g.Library, g.Policy, g.Source, g.Counters)
}

// FillTo places chunks until the cursor reaches maxY or selection fails.
// It returns the placements made.
func (g *Generator) FillTo(maxY float64) []Placement {
	var out []Placement
	for g.Cursor.NextSpawnY < maxY {
		p, ok := g.Next()
		if !ok {
			break
		}
		out = append(out, p)
		if p.Schema.Height <= 0 {
			break
		}
	}
	return out
}
