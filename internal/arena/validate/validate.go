package validate

import (
	"fmt"
	"math"

	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/policy"
)

type Reason int

const (
	ReasonNone Reason = iota
	ReasonProfileMismatch
	ReasonConcaveTrap
	ReasonExitAngleFail
	ReasonInvalidWeight
	ReasonNoCandidate
)

// Reasons lists every rejection reason in report order.
var Reasons = []Reason{
	ReasonProfileMismatch,
	ReasonConcaveTrap,
	ReasonExitAngleFail,
	ReasonInvalidWeight,
	ReasonNoCandidate,
}

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "NONE"
	case ReasonProfileMismatch:
		return "PROFILE_MISMATCH"
	case ReasonConcaveTrap:
		return "CONCAVE_TRAP"
	case ReasonExitAngleFail:
		return "EXIT_ANGLE_FAIL"
	case ReasonInvalidWeight:
		return "INVALID_WEIGHT"
	case ReasonNoCandidate:
		return "NO_CANDIDATE"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Reason) UnmarshalText(b []byte) error {
	s := string(b)
	for _, v := range append([]Reason{ReasonNone}, Reasons...) {
		if v.String() == s {
			*r = v
			return nil
		}
	}
	return fmt.Errorf("unknown reason %q", s)
}

// Result is the outcome of a single check. Index is the first mismatching
// profile slot; WallA/WallB are the offending wall pair. Unused fields are -1.
type Result struct {
	OK     bool
	Reason Reason
	Detail string

	Index    int
	Expected bool
	Actual   bool

	WallA int
	WallB int
}

func Pass() Result {
	return Result{OK: true, Index: -1, WallA: -1, WallB: -1}
}

// EdgeMatch checks that a chunk's top profile equals the required profile
// slot for slot.
func EdgeMatch(required, top chunks.EdgeProfile) Result {
	if len(required) != len(top) {
		return Result{
			Reason: ReasonProfileMismatch,
			Detail: fmt.Sprintf("profile length %d != %d", len(top), len(required)),
			Index:  min(len(required), len(top)),
			WallA:  -1,
			WallB:  -1,
		}
	}
	for i := range required {
		if required[i] != top[i] {
			return Result{
				Reason:   ReasonProfileMismatch,
				Detail:   fmt.Sprintf("slot %d: required=%t top=%t", i, required[i], top[i]),
				Index:    i,
				Expected: required[i],
				Actual:   top[i],
				WallA:    -1,
				WallB:    -1,
			}
		}
	}
	return Pass()
}

// Softlock checks every wall pair (i<j) for concave traps first, then narrow
// exit angles. The first violation wins.
func Softlock(walls []chunks.Wall, p policy.Policy) Result {
	for i := 0; i < len(walls); i++ {
		for j := i + 1; j < len(walls); j++ {
			a, b := walls[i], walls[j]
			dist := math.Hypot(b.Pos.X-a.Pos.X, b.Pos.Y-a.Pos.Y)
			rel := RelativeRotation(a.Rotation, b.Rotation)

			if dist <= p.ConcaveTrapMaxDistance && math.Abs(rel-math.Pi/2) <= p.ConcaveRightAngleTolerance {
				return Result{
					Reason: ReasonConcaveTrap,
					Detail: fmt.Sprintf("walls %d,%d: dist=%.2f rel=%.3f", i, j, dist, rel),
					Index:  -1,
					WallA:  i,
					WallB:  j,
				}
			}
			if dist <= p.ExitAngleCheckDistance && rel > 0 && rel < p.MinExitAngle {
				return Result{
					Reason: ReasonExitAngleFail,
					Detail: fmt.Sprintf("walls %d,%d: dist=%.2f rel=%.3f < %.3f", i, j, dist, rel, p.MinExitAngle),
					Index:  -1,
					WallA:  i,
					WallB:  j,
				}
			}
		}
	}
	return Pass()
}

// RelativeRotation returns the absolute angle between two rotations folded
// into [0, pi].
func RelativeRotation(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}

func Weight(s *chunks.Schema) Result {
	if s.Eligible() {
		return Pass()
	}
	return Result{
		Reason: ReasonInvalidWeight,
		Detail: fmt.Sprintf("weight=%v", s.Weight),
		Index:  -1,
		WallA:  -1,
		WallB:  -1,
	}
}

// Chunk runs profile, softlock and weight checks in that order.
func Chunk(s *chunks.Schema, required chunks.EdgeProfile, p policy.Policy) Result {
	if r := EdgeMatch(required, s.TopProfile); !r.OK {
		return r
	}
	if r := Softlock(s.Walls, p); !r.OK {
		return r
	}
	return Weight(s)
}
