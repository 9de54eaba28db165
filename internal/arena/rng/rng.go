package rng

import (
	"math/rand/v2"
)

// Source draws a uniform value in [0, total). Selection is written against
// this alone so seeded and live sources are interchangeable.
type Source interface {
	Uniform(total float64) float64
}

// Seeded is a splitmix64 stream. Output depends only on the seed and the
// number of draws, so soak runs reproduce bit-for-bit across platforms.
type Seeded struct {
	seed  int64
	state uint64
	draws uint64
}

func NewSeeded(seed int64) *Seeded {
	return &Seeded{seed: seed, state: uint64(seed)}
}

func (s *Seeded) next() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a value in [0, 1) built from the top 53 bits.
func (s *Seeded) Float64() float64 {
	s.draws++
	return float64(s.next()>>11) / (1 << 53)
}

func (s *Seeded) Uniform(total float64) float64 {
	if !(total > 0) {
		return 0
	}
	return s.Float64() * total
}

func (s *Seeded) Seed() int64   { return s.seed }
func (s *Seeded) Draws() uint64 { return s.draws }

// Restore rebuilds a seeded source advanced by draws.
func Restore(seed int64, draws uint64) *Seeded {
	s := NewSeeded(seed)
	for i := uint64(0); i < draws; i++ {
		s.Float64()
	}
	return s
}

// Live is the gameplay source; it is never reproducible.
type Live struct {
	r *rand.Rand
}

func NewLive() *Live {
	return &Live{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

func (l *Live) Uniform(total float64) float64 {
	if !(total > 0) {
		return 0
	}
	return l.r.Float64() * total
}

// Fixed replays a list of unit draws; used to pin selection in tests.
type Fixed struct {
	Units []float64
	i     int
}

func (f *Fixed) Uniform(total float64) float64 {
	if len(f.Units) == 0 {
		return 0
	}
	u := f.Units[f.i%len(f.Units)]
	f.i++
	return u * total
}
