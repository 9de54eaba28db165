package rebalance

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"bouncearena.dev/internal/arena/chunks"
)

const (
	DefaultDamping       = 0.5
	DefaultEpsilon       = 1e-9
	DefaultMaxIterations = 100
)

type Options struct {
	MinWeight float64
	MaxWeight float64

	// Damping scales the correction; values >= 1 overshoot and oscillate
	// across runs.
	Damping       float64
	Epsilon       float64
	MaxIterations int
}

func DefaultOptions() Options {
	return Options{
		MinWeight:     0.01,
		MaxWeight:     0.5,
		Damping:       DefaultDamping,
		Epsilon:       DefaultEpsilon,
		MaxIterations: DefaultMaxIterations,
	}
}

type Entry struct {
	Name     string  `json:"name"`
	Authored float64 `json:"authored_weight"`
	Expected float64 `json:"expected_share"`
	Observed float64 `json:"observed_share"`
	Picks    int     `json:"picks"`
	Proposed float64 `json:"proposed_weight"`
}

type Result struct {
	Weights         map[string]float64 `json:"weights"`
	Entries         []Entry            `json:"entries"`
	MinWeight       float64            `json:"min_weight"`
	MaxWeight       float64            `json:"max_weight"`
	BoundsCollapsed bool               `json:"bounds_collapsed"`
	Converged       bool               `json:"converged"`
	Iterations      int                `json:"iterations"`
}

// baselineWeight stands in for an authored weight that is not finite and
// positive, so such chunks still get a share.
const baselineWeight = 1.0

func authoredWeight(w float64) float64 {
	if !chunks.ValidWeight(w) {
		return baselineWeight
	}
	return w
}

// Propose computes corrected weight shares from observed pick counts. The
// result sums to 1 and every weight lies in [MinWeight, MaxWeight], after the
// bounds are clamped into [0,1] and [MinWeight,1] (collapsed to 1/N when they
// cannot hold N chunks). Chunks sharing a name are
// treated as one entry.
func Propose(lib *chunks.Library, observed map[string]int, opts Options) Result {
	if opts.Damping <= 0 || opts.Damping >= 1 || math.IsNaN(opts.Damping) {
		opts.Damping = DefaultDamping
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	var entries []Entry
	byName := map[string]int{}
	if lib != nil {
		for i := range lib.Schemas {
			s := &lib.Schemas[i]
			if k, ok := byName[s.Name]; ok {
				entries[k].Authored += authoredWeight(s.Weight)
				continue
			}
			byName[s.Name] = len(entries)
			entries = append(entries, Entry{Name: s.Name, Authored: authoredWeight(s.Weight)})
		}
	}

	res := Result{Weights: map[string]float64{}, Entries: entries, MinWeight: opts.MinWeight, MaxWeight: opts.MaxWeight}
	n := len(entries)
	if n == 0 {
		res.Converged = true
		return res
	}
	equal := 1.0 / float64(n)
	lo, hi := opts.MinWeight, opts.MaxWeight
	if math.IsNaN(lo) {
		lo = 0
	}
	if math.IsNaN(hi) {
		hi = 1
	}
	lo = clamp(lo, 0, 1)
	hi = clamp(hi, lo, 1)
	if lo*float64(n) > 1 || hi*float64(n) < 1 {
		lo, hi = equal, equal
		res.BoundsCollapsed = true
	}
	res.MinWeight, res.MaxWeight = lo, hi

	var totalAuthored float64
	var totalPicks int
	for i := range entries {
		totalAuthored += entries[i].Authored
		if c := observed[entries[i].Name]; c > 0 {
			entries[i].Picks = c
			totalPicks += c
		}
	}

	w := make([]float64, n)
	for i := range entries {
		e := &entries[i]
		if totalAuthored > 0 {
			e.Expected = e.Authored / totalAuthored
		} else {
			e.Expected = equal
		}
		if totalPicks > 0 {
			e.Observed = float64(e.Picks) / float64(totalPicks)
		} else {
			e.Observed = e.Expected
		}
		w[i] = clamp(e.Expected+opts.Damping*(e.Expected-e.Observed), lo, hi)
	}

	converged := false
	iter := 0
	for ; iter < opts.MaxIterations; iter++ {
		rem := 1 - sum(w)
		if math.Abs(rem) <= opts.Epsilon {
			converged = true
			break
		}
		var free []int
		for i := range w {
			if (rem > 0 && w[i] < hi) || (rem < 0 && w[i] > lo) {
				free = append(free, i)
			}
		}
		if len(free) == 0 {
			break
		}
		share := rem / float64(len(free))
		for _, i := range free {
			w[i] = clamp(w[i]+share, lo, hi)
		}
	}
	if !converged && math.Abs(1-sum(w)) <= opts.Epsilon {
		converged = true
	}
	res.Iterations = iter
	if !converged {
		for i := range w {
			w[i] = equal
		}
	}
	res.Converged = converged

	for i := range entries {
		entries[i].Proposed = w[i]
		res.Weights[entries[i].Name] = w[i]
	}
	return res
}

// Apply returns a copy of lib with each chunk's weight replaced by its
// proposed share. Chunks sharing a name split the share by authored weight.
func Apply(lib *chunks.Library, weights map[string]float64) (*chunks.Library, error) {
	if lib == nil {
		return nil, fmt.Errorf("nil library")
	}
	groupTotal := map[string]float64{}
	groupCount := map[string]int{}
	for i := range lib.Schemas {
		groupTotal[lib.Schemas[i].Name] += authoredWeight(lib.Schemas[i].Weight)
		groupCount[lib.Schemas[i].Name]++
	}
	out := make([]chunks.Schema, len(lib.Schemas))
	copy(out, lib.Schemas)
	for i := range out {
		share, ok := weights[out[i].Name]
		if !ok {
			continue
		}
		name := out[i].Name
		switch {
		case groupCount[name] == 1:
			out[i].Weight = share
		case groupTotal[name] > 0:
			out[i].Weight = share * authoredWeight(out[i].Weight) / groupTotal[name]
		default:
			out[i].Weight = share / float64(groupCount[name])
		}
	}
	nl, err := chunks.NewLibrary(out)
	if err != nil {
		return nil, err
	}
	nl.ProfileResolution = lib.ProfileResolution
	return nl, nil
}

func WriteResult(path string, r Result) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sum(w []float64) float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}
