package chunks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// DefaultProfileResolution is the number of horizontal slots sampled along a
// chunk edge.
const DefaultProfileResolution = 10

type Pacing int

const (
	PacingOpen Pacing = iota
	PacingTransition
	PacingDense
)

var AllPacings = []Pacing{PacingOpen, PacingTransition, PacingDense}

func (p Pacing) String() string {
	switch p {
	case PacingOpen:
		return "Open"
	case PacingTransition:
		return "Transition"
	case PacingDense:
		return "Dense"
	default:
		return fmt.Sprintf("Pacing(%d)", int(p))
	}
}

func ParsePacing(s string) (Pacing, error) {
	switch s {
	case "Open", "OPEN", "open":
		return PacingOpen, nil
	case "Transition", "TRANSITION", "transition":
		return PacingTransition, nil
	case "Dense", "DENSE", "dense":
		return PacingDense, nil
	default:
		return 0, fmt.Errorf("unknown pacing %q", s)
	}
}

func (p Pacing) MarshalText() ([]byte, error) {
	switch p {
	case PacingOpen, PacingTransition, PacingDense:
		return []byte(p.String()), nil
	default:
		return nil, fmt.Errorf("invalid pacing %d", int(p))
	}
}

func (p *Pacing) UnmarshalText(b []byte) error {
	v, err := ParsePacing(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Wall struct {
	Pos      Vec2    `json:"pos"`
	Size     Vec2    `json:"size"`
	Rotation float64 `json:"rotation"`
}

// EdgeProfile marks wall presence per slot along a chunk edge.
type EdgeProfile []bool

func (p EdgeProfile) Clone() EdgeProfile {
	if p == nil {
		return nil
	}
	out := make(EdgeProfile, len(p))
	copy(out, p)
	return out
}

// OpenProfile returns a profile of n empty slots.
func OpenProfile(n int) EdgeProfile {
	return make(EdgeProfile, n)
}

type Schema struct {
	Name          string      `json:"name"`
	Height        float64     `json:"height"`
	Walls         []Wall      `json:"walls,omitempty"`
	Spawns        []Spawn     `json:"spawns,omitempty"`
	Weight        float64     `json:"weight"`
	Pacing        Pacing      `json:"pacing"`
	TopProfile    EdgeProfile `json:"top_profile"`
	BottomProfile EdgeProfile `json:"bottom_profile"`
}

// Eligible reports whether the weight can take part in a weighted pick.
func (s *Schema) Eligible() bool {
	return ValidWeight(s.Weight)
}

func ValidWeight(w float64) bool {
	return w > 0 && !math.IsInf(w, 0) && !math.IsNaN(w)
}

// Library is an ordered, read-only set of schemas. Order is significant:
// selection and soak output depend on it.
type Library struct {
	Schemas           []Schema
	ProfileResolution int
	Digest            string
}

// NewLibrary checks that every schema shares one profile length and carries
// finite geometry (height, walls, spawn positions, hazard damage), then
// computes the digest. Weight is exempt: a non-finite or non-positive weight
// only makes the chunk ineligible at selection time.
func NewLibrary(schemas []Schema) (*Library, error) {
	lib := &Library{Schemas: schemas}
	res := 0
	for i := range schemas {
		s := &schemas[i]
		if err := checkGeometry(s); err != nil {
			return nil, fmt.Errorf("chunk %q: %w", s.Name, err)
		}
		for _, p := range []EdgeProfile{s.TopProfile, s.BottomProfile} {
			if res == 0 {
				res = len(p)
			}
			if len(p) != res {
				return nil, fmt.Errorf("chunk %q: profile length %d, want %d", s.Name, len(p), res)
			}
		}
	}
	if res == 0 {
		res = DefaultProfileResolution
	}
	lib.ProfileResolution = res
	digest, err := digestSchemas(schemas)
	if err != nil {
		return nil, err
	}
	lib.Digest = digest
	return lib, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func checkGeometry(s *Schema) error {
	if !finite(s.Height) {
		return fmt.Errorf("height %v is not finite", s.Height)
	}
	for i, w := range s.Walls {
		if !finite(w.Pos.X) || !finite(w.Pos.Y) || !finite(w.Size.X) || !finite(w.Size.Y) || !finite(w.Rotation) {
			return fmt.Errorf("wall %d has non-finite geometry", i)
		}
	}
	for i, sp := range s.Spawns {
		if !finite(sp.Pos.X) || !finite(sp.Pos.Y) {
			return fmt.Errorf("spawn %d has a non-finite position", i)
		}
		if h, ok := sp.Kind.(HazardSpawn); ok && !finite(h.Damage) {
			return fmt.Errorf("spawn %d has non-finite damage", i)
		}
	}
	return nil
}

// digestSchemas hashes the canonical JSON of each schema. Weights are written
// separately since ineligible weights may be NaN or Inf.
func digestSchemas(schemas []Schema) (string, error) {
	h := sha256.New()
	for i := range schemas {
		s := schemas[i]
		w := s.Weight
		s.Weight = 0
		b, err := json.Marshal(s)
		if err != nil {
			return "", fmt.Errorf("chunk %q: %w", s.Name, err)
		}
		h.Write(b)
		h.Write([]byte(strconv.FormatFloat(w, 'g', -1, 64)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (l *Library) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Schemas)
}

// ByName returns the first schema with the given name.
func (l *Library) ByName(name string) (*Schema, bool) {
	if l == nil {
		return nil, false
	}
	for i := range l.Schemas {
		if l.Schemas[i].Name == name {
			return &l.Schemas[i], true
		}
	}
	return nil, false
}

func (l *Library) TotalWeight() float64 {
	if l == nil {
		return 0
	}
	var total float64
	for i := range l.Schemas {
		if l.Schemas[i].Eligible() {
			total += l.Schemas[i].Weight
		}
	}
	return total
}
