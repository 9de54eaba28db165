package validate

import (
	"math"
	"testing"

	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/policy"
)

func profile(bits ...bool) chunks.EdgeProfile { return chunks.EdgeProfile(bits) }

func TestEdgeMatch_FirstMismatch(t *testing.T) {
	top := profile(true, false, false, false, false, false, false, false, false, false)
	bottom := chunks.OpenProfile(10)
	r := EdgeMatch(bottom, top)
	if r.OK || r.Reason != ReasonProfileMismatch {
		t.Fatalf("result=%+v, want PROFILE_MISMATCH", r)
	}
	if r.Index != 0 || r.Expected != false || r.Actual != true {
		t.Fatalf("index=%d expected=%t actual=%t", r.Index, r.Expected, r.Actual)
	}

	top2 := profile(false, false, true, true)
	req2 := profile(false, false, false, true)
	if r := EdgeMatch(req2, top2); r.Index != 2 {
		t.Fatalf("index=%d, want 2", r.Index)
	}
}

func TestEdgeMatch_Exhaustive4(t *testing.T) {
	const n = 4
	for a := 0; a < 1<<n; a++ {
		for b := 0; b < 1<<n; b++ {
			pa := make(chunks.EdgeProfile, n)
			pb := make(chunks.EdgeProfile, n)
			first := -1
			for i := 0; i < n; i++ {
				pa[i] = a&(1<<i) != 0
				pb[i] = b&(1<<i) != 0
				if first < 0 && pa[i] != pb[i] {
					first = i
				}
			}
			r := EdgeMatch(pa, pb)
			if r.OK != (a == b) {
				t.Fatalf("a=%04b b=%04b ok=%t", a, b, r.OK)
			}
			if !r.OK && r.Index != first {
				t.Fatalf("a=%04b b=%04b index=%d, want %d", a, b, r.Index, first)
			}
		}
	}
}

func TestEdgeMatch_LengthMismatch(t *testing.T) {
	r := EdgeMatch(chunks.OpenProfile(3), chunks.OpenProfile(4))
	if r.OK || r.Reason != ReasonProfileMismatch {
		t.Fatalf("result=%+v", r)
	}
}

func TestSoftlock_ConcaveTrap(t *testing.T) {
	walls := []chunks.Wall{
		{Pos: chunks.Vec2{X: 0, Y: 0}, Size: chunks.Vec2{X: 100, Y: 10}, Rotation: 0},
		{Pos: chunks.Vec2{X: 60, Y: 45}, Size: chunks.Vec2{X: 100, Y: 10}, Rotation: math.Pi / 2},
	}
	r := Softlock(walls, policy.Defaults())
	if r.OK || r.Reason != ReasonConcaveTrap {
		t.Fatalf("result=%+v, want CONCAVE_TRAP", r)
	}
	if r.WallA != 0 || r.WallB != 1 {
		t.Fatalf("pair=(%d,%d)", r.WallA, r.WallB)
	}
}

func TestSoftlock_ExitAngle(t *testing.T) {
	walls := []chunks.Wall{
		{Pos: chunks.Vec2{X: 0, Y: 0}, Rotation: 0},
		{Pos: chunks.Vec2{X: 90, Y: 10}, Rotation: 0.3},
	}
	r := Softlock(walls, policy.Defaults())
	if r.OK || r.Reason != ReasonExitAngleFail {
		t.Fatalf("result=%+v, want EXIT_ANGLE_FAIL", r)
	}
}

func TestSoftlock_PassCases(t *testing.T) {
	p := policy.Defaults()
	cases := map[string][]chunks.Wall{
		"parallel": {
			{Pos: chunks.Vec2{X: 0, Y: 0}, Rotation: 0},
			{Pos: chunks.Vec2{X: 50, Y: 0}, Rotation: 0},
		},
		"far right angle": {
			{Pos: chunks.Vec2{X: 0, Y: 0}, Rotation: 0},
			{Pos: chunks.Vec2{X: 300, Y: 0}, Rotation: math.Pi / 2},
		},
		"wide exit": {
			{Pos: chunks.Vec2{X: 0, Y: 0}, Rotation: 0},
			{Pos: chunks.Vec2{X: 90, Y: 10}, Rotation: 0.9},
		},
		"single": {
			{Pos: chunks.Vec2{X: 0, Y: 0}, Rotation: 1},
		},
	}
	for name, walls := range cases {
		if r := Softlock(walls, p); !r.OK {
			t.Fatalf("%s: result=%+v", name, r)
		}
	}
}

func TestSoftlock_FirstPairWins(t *testing.T) {
	walls := []chunks.Wall{
		{Pos: chunks.Vec2{X: 0, Y: 0}, Rotation: 0},
		{Pos: chunks.Vec2{X: 1000, Y: 0}, Rotation: 0},
		{Pos: chunks.Vec2{X: 1000, Y: 50}, Rotation: 0.2},
		{Pos: chunks.Vec2{X: 30, Y: 30}, Rotation: math.Pi / 2},
	}
	r := Softlock(walls, policy.Defaults())
	if r.Reason != ReasonConcaveTrap || r.WallA != 0 || r.WallB != 3 {
		t.Fatalf("result=%+v, want CONCAVE_TRAP on (0,3)", r)
	}
}

func TestRelativeRotation(t *testing.T) {
	cases := []struct{ a, b, want float64 }{
		{0, math.Pi / 2, math.Pi / 2},
		{0, 3 * math.Pi / 2, math.Pi / 2},
		{-0.3, 0.3, 0.6},
		{0, 2 * math.Pi, 0},
	}
	for _, c := range cases {
		if got := RelativeRotation(c.a, c.b); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("RelativeRotation(%v,%v)=%v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestChunk_Precedence(t *testing.T) {
	s := &chunks.Schema{
		Name:       "bad",
		Weight:     0,
		TopProfile: chunks.OpenProfile(2),
		Walls: []chunks.Wall{
			{Pos: chunks.Vec2{X: 0, Y: 0}, Rotation: 0},
			{Pos: chunks.Vec2{X: 10, Y: 10}, Rotation: math.Pi / 2},
		},
	}
	if r := Chunk(s, profile(true, false), policy.Defaults()); r.Reason != ReasonProfileMismatch {
		t.Fatalf("reason=%v, want PROFILE_MISMATCH", r.Reason)
	}
	if r := Chunk(s, chunks.OpenProfile(2), policy.Defaults()); r.Reason != ReasonConcaveTrap {
		t.Fatalf("reason=%v, want CONCAVE_TRAP", r.Reason)
	}
	s.Walls = nil
	if r := Chunk(s, chunks.OpenProfile(2), policy.Defaults()); r.Reason != ReasonInvalidWeight {
		t.Fatalf("reason=%v, want INVALID_WEIGHT", r.Reason)
	}
	s.Weight = 1
	if r := Chunk(s, chunks.OpenProfile(2), policy.Defaults()); !r.OK {
		t.Fatalf("result=%+v, want pass", r)
	}
}
