package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/policy"
	"bouncearena.dev/internal/arena/validate"
)

const DefaultReportPath = "reports/chunk_preflight.txt"

type Counters struct {
	ProfileMismatch int `json:"profile_mismatch"`
	ConcaveTrap     int `json:"concave_trap"`
	ExitAngleFail   int `json:"exit_angle_fail"`
}

type Issue struct {
	Index  int             `json:"index"`
	Name   string          `json:"name"`
	Reason validate.Reason `json:"reason"`
	Detail string          `json:"detail"`
}

type Summary struct {
	TotalChunks   int      `json:"total_chunks"`
	ValidChunks   int      `json:"valid_chunks"`
	InvalidChunks int      `json:"invalid_chunks"`
	Counters      Counters `json:"counters"`

	Invalid []Issue `json:"invalid,omitempty"`
	// Ineligible lists chunks whose weight keeps them out of selection.
	// They are not counted as invalid.
	Ineligible []Issue `json:"ineligible,omitempty"`
}

// Run checks each chunk against its own top profile plus softlock rules.
// Runtime selection instead checks against the previous chunk's bottom.
func Run(lib *chunks.Library, pol policy.Policy) Summary {
	var s Summary
	if lib == nil {
		return s
	}
	for i := range lib.Schemas {
		c := &lib.Schemas[i]
		s.TotalChunks++

		r := validate.EdgeMatch(c.TopProfile, c.TopProfile)
		if r.OK {
			r = validate.Softlock(c.Walls, pol)
		}
		if !r.OK {
			s.InvalidChunks++
			switch r.Reason {
			case validate.ReasonProfileMismatch:
				s.Counters.ProfileMismatch++
			case validate.ReasonConcaveTrap:
				s.Counters.ConcaveTrap++
			case validate.ReasonExitAngleFail:
				s.Counters.ExitAngleFail++
			}
			s.Invalid = append(s.Invalid, Issue{Index: i, Name: c.Name, Reason: r.Reason, Detail: r.Detail})
			continue
		}
		s.ValidChunks++
		if w := validate.Weight(c); !w.OK {
			s.Ineligible = append(s.Ineligible, Issue{Index: i, Name: c.Name, Reason: w.Reason, Detail: w.Detail})
		}
	}
	return s
}

func (s Summary) OK() bool { return s.InvalidChunks == 0 }

// Render formats the summary as a fixed plain-text block.
func (s Summary) Render() string {
	var b strings.Builder
	b.WriteString("CHUNK PREFLIGHT\n")
	fmt.Fprintf(&b, "total_chunks: %d\n", s.TotalChunks)
	fmt.Fprintf(&b, "valid_chunks: %d\n", s.ValidChunks)
	fmt.Fprintf(&b, "invalid_chunks: %d\n", s.InvalidChunks)
	b.WriteString("rejections:\n")
	fmt.Fprintf(&b, "  profile_mismatch: %d\n", s.Counters.ProfileMismatch)
	fmt.Fprintf(&b, "  concave_trap: %d\n", s.Counters.ConcaveTrap)
	fmt.Fprintf(&b, "  exit_angle_fail: %d\n", s.Counters.ExitAngleFail)
	if len(s.Invalid) > 0 {
		b.WriteString("invalid:\n")
		for _, is := range s.Invalid {
			fmt.Fprintf(&b, "  - [%d] %s %s: %s\n", is.Index, is.Name, is.Reason, is.Detail)
		}
	}
	if len(s.Ineligible) > 0 {
		b.WriteString("ineligible:\n")
		for _, is := range s.Ineligible {
			fmt.Fprintf(&b, "  - [%d] %s %s: %s\n", is.Index, is.Name, is.Reason, is.Detail)
		}
	}
	return b.String()
}

// WriteReport writes Render() to path, creating parent directories.
func WriteReport(path string, s Summary) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultReportPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(s.Render()), 0o644)
}
