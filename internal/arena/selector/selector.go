package selector

import (
	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/policy"
	"bouncearena.dev/internal/arena/rng"
	"bouncearena.dev/internal/arena/telemetry"
	"bouncearena.dev/internal/arena/validate"
)

// Selection is the outcome of one pick. OK=false means nothing in the
// library fits the required profile; that is an expected result.
type Selection struct {
	OK       bool
	Schema   *chunks.Schema
	Index    int
	Fallback bool
}

type Request struct {
	Library  *chunks.Library
	Required chunks.EdgeProfile
	Target   chunks.Pacing
	Policy   policy.Policy
	Source   rng.Source
}

// Select filters the library to chunks that fit the required profile, pass
// softlock checks and carry a usable weight, then picks by weight among those
// matching the target pacing. With no pacing match it picks among every fit
// chunk and flags the pick as a fallback.
func Select(req Request, counters *telemetry.Counters) Selection {
	if req.Library == nil {
		counters.Reject(validate.ReasonNoCandidate)
		return Selection{Index: -1}
	}

	valid := make([]int, 0, len(req.Library.Schemas))
	preferred := make([]int, 0, len(req.Library.Schemas))
	for i := range req.Library.Schemas {
		s := &req.Library.Schemas[i]
		if r := validate.Chunk(s, req.Required, req.Policy); !r.OK {
			counters.Reject(r.Reason)
			continue
		}
		valid = append(valid, i)
		if s.Pacing == req.Target {
			preferred = append(preferred, i)
		}
	}

	pool := preferred
	fallback := false
	if len(pool) == 0 {
		pool = valid
		fallback = true
	}
	if len(pool) == 0 {
		counters.Reject(validate.ReasonNoCandidate)
		return Selection{Index: -1}
	}

	weights := make([]float64, len(pool))
	for k, i := range pool {
		weights[k] = req.Library.Schemas[i].Weight
	}
	k := WeightedPick(weights, req.Source)
	idx := pool[k]
	s := &req.Library.Schemas[idx]
	counters.RecordSelection(s.Name, fallback)
	return Selection{OK: true, Schema: s, Index: idx, Fallback: fallback}
}

// WeightedPick is roulette selection over max(w,0). It returns the first
// index whose cumulative weight reaches the draw; float drift falls through
// to the last index. weights must be non-empty.
func WeightedPick(weights []float64, src rng.Source) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	draw := src.Uniform(total)
	var acc float64
	for i, w := range weights {
		if w > 0 {
			acc += w
		}
		if acc >= draw && w > 0 {
			return i
		}
	}
	return len(weights) - 1
}
