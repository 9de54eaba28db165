package arenaproto

import (
	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/policy"
	"bouncearena.dev/internal/arena/preflight"
	"bouncearena.dev/internal/arena/soak"
)

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeStep      = "STEP"
	TypeSummary   = "SUMMARY"
	TypeError     = "ERROR"
)

// Client -> Server. First message on the observer WS connection; each further
// SUBSCRIBE starts a new soak run on the same connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seed            int64  `json:"seed"`
	Steps           int    `json:"steps"`

	InitialProfile        []bool `json:"initial_profile,omitempty"`
	InitialPacing         string `json:"initial_pacing,omitempty"`
	InitialPreviousPacing string `json:"initial_previous_pacing,omitempty"`
	InitialRunLength      int    `json:"initial_run_length,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion   string            `json:"protocol_version"`
	LibraryDigest     string            `json:"library_digest"`
	ProfileResolution int               `json:"profile_resolution"`
	Policy            policy.Policy     `json:"policy"`
	Chunks            []ChunkInfo       `json:"chunks"`
	Preflight         preflight.Summary `json:"preflight"`
}

type ChunkInfo struct {
	Name          string         `json:"name"`
	Pacing        chunks.Pacing  `json:"pacing"`
	Weight        float64        `json:"weight"`
	Height        float64        `json:"height"`
	Walls         int            `json:"walls"`
	Spawns        map[string]int `json:"spawns,omitempty"`
	TopProfile    []bool         `json:"top_profile"`
	BottomProfile []bool         `json:"bottom_profile"`
}

// Server -> Client. One per soak step.
type StepMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	soak.Step
}

// Server -> Client. Sent after the last step of a run.
type SummaryMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	RunID           string       `json:"run_id"`
	Summary         soak.Summary `json:"summary"`
}

// Server -> Client. Sent for a rejected SUBSCRIBE after the handshake; the
// connection stays open.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
