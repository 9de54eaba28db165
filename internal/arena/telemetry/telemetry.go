package telemetry

import (
	"sort"

	"bouncearena.dev/internal/arena/validate"
)

// Counters aggregates selection outcomes. The zero value is ready to use.
// Callers own it; live and soak runs each keep their own.
type Counters struct {
	ProfileMismatch int
	ConcaveTrap     int
	ExitAngleFail   int
	InvalidWeight   int
	NoCandidate     int

	Selections int
	Fallbacks  int
	Picks      map[string]int
}

func New() *Counters {
	return &Counters{Picks: map[string]int{}}
}

func (c *Counters) Reject(r validate.Reason) {
	if c == nil {
		return
	}
	switch r {
	case validate.ReasonProfileMismatch:
		c.ProfileMismatch++
	case validate.ReasonConcaveTrap:
		c.ConcaveTrap++
	case validate.ReasonExitAngleFail:
		c.ExitAngleFail++
	case validate.ReasonInvalidWeight:
		c.InvalidWeight++
	case validate.ReasonNoCandidate:
		c.NoCandidate++
	}
}

func (c *Counters) RecordSelection(name string, fallback bool) {
	if c == nil {
		return
	}
	c.Selections++
	if fallback {
		c.Fallbacks++
	}
	if c.Picks == nil {
		c.Picks = map[string]int{}
	}
	c.Picks[name]++
}

func (c *Counters) Count(r validate.Reason) int {
	if c == nil {
		return 0
	}
	switch r {
	case validate.ReasonProfileMismatch:
		return c.ProfileMismatch
	case validate.ReasonConcaveTrap:
		return c.ConcaveTrap
	case validate.ReasonExitAngleFail:
		return c.ExitAngleFail
	case validate.ReasonInvalidWeight:
		return c.InvalidWeight
	case validate.ReasonNoCandidate:
		return c.NoCandidate
	default:
		return 0
	}
}

// Rejections returns reason -> count for every reason, zeros included, so
// serialized output has a fixed key set.
func (c *Counters) Rejections() map[validate.Reason]int {
	out := make(map[validate.Reason]int, len(validate.Reasons))
	for _, r := range validate.Reasons {
		out[r] = c.Count(r)
	}
	return out
}

func (c *Counters) TotalRejections() int {
	n := 0
	for _, r := range validate.Reasons {
		n += c.Count(r)
	}
	return n
}

func (c *Counters) Reset() {
	if c == nil {
		return
	}
	*c = Counters{Picks: map[string]int{}}
}

// Merge adds o into c; used to accumulate per-run counters into a session.
func (c *Counters) Merge(o *Counters) {
	if c == nil || o == nil {
		return
	}
	c.ProfileMismatch += o.ProfileMismatch
	c.ConcaveTrap += o.ConcaveTrap
	c.ExitAngleFail += o.ExitAngleFail
	c.InvalidWeight += o.InvalidWeight
	c.NoCandidate += o.NoCandidate
	c.Selections += o.Selections
	c.Fallbacks += o.Fallbacks
	if len(o.Picks) > 0 && c.Picks == nil {
		c.Picks = map[string]int{}
	}
	for k, v := range o.Picks {
		c.Picks[k] += v
	}
}

type PickCount struct {
	Name  string
	Count int
}

// TopPicks returns picks sorted by count desc, then name.
func (c *Counters) TopPicks() []PickCount {
	if c == nil {
		return nil
	}
	out := make([]PickCount, 0, len(c.Picks))
	for k, v := range c.Picks {
		out = append(out, PickCount{Name: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
