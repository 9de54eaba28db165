package pacing

import "bouncearena.dev/internal/arena/chunks"

// NextTarget picks the pacing tier the next chunk should come from.
// Open holds for two chunks, Transition and Dense for one, and Transition
// heads to Dense only when entered from Open.
func NextTarget(current, previous chunks.Pacing, runLength int) chunks.Pacing {
	switch current {
	case chunks.PacingOpen:
		if runLength >= 2 {
			return chunks.PacingTransition
		}
		return chunks.PacingOpen
	case chunks.PacingTransition:
		if runLength < 1 {
			return chunks.PacingTransition
		}
		if previous == chunks.PacingOpen {
			return chunks.PacingDense
		}
		return chunks.PacingOpen
	case chunks.PacingDense:
		if runLength >= 1 {
			return chunks.PacingTransition
		}
		return chunks.PacingDense
	default:
		return chunks.PacingOpen
	}
}

type State struct {
	Current   chunks.Pacing `json:"current"`
	Previous  chunks.Pacing `json:"previous"`
	RunLength int           `json:"run_length"`
}

func Initial() State {
	return State{Current: chunks.PacingOpen, Previous: chunks.PacingOpen}
}

func (s State) Target() chunks.Pacing {
	return NextTarget(s.Current, s.Previous, s.RunLength)
}

// Advance returns the state after a chunk with the given pacing was placed.
func (s State) Advance(selected chunks.Pacing) State {
	if selected != s.Current {
		return State{Current: selected, Previous: s.Current, RunLength: 1}
	}
	s.RunLength++
	return s
}
