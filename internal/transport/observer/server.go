package observer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/policy"
	"bouncearena.dev/internal/arena/preflight"
	"bouncearena.dev/internal/arena/soak"
	"bouncearena.dev/internal/arenaproto"
)

const (
	defaultSteps = 200
	maxSteps     = 100_000
)

// RunRecorder receives finished runs (e.g. the sqlite index). Optional.
type RunRecorder interface {
	RecordSoak(runID string, sum soak.Summary)
}

// Server streams soak runs over a library to designer tools. Each connection
// gets its own cursor, counters and seeded source; the library is shared
// read-only.
type Server struct {
	lib      *chunks.Library
	pol      policy.Policy
	log      *log.Logger
	recorder RunRecorder

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(lib *chunks.Library, pol policy.Policy, logger *log.Logger) *Server {
	return &Server{
		lib: lib,
		pol: pol,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) SetRecorder(r RunRecorder) { s.recorder = r }

func (s *Server) Bootstrap() arenaproto.BootstrapResponse {
	resp := arenaproto.BootstrapResponse{
		ProtocolVersion:   arenaproto.Version,
		LibraryDigest:     s.lib.Digest,
		ProfileResolution: s.lib.ProfileResolution,
		Policy:            s.pol,
		Chunks:            make([]arenaproto.ChunkInfo, 0, s.lib.Len()),
		Preflight:         preflight.Run(s.lib, s.pol),
	}
	for _, c := range s.lib.Schemas {
		w := c.Weight
		if math.IsNaN(w) || math.IsInf(w, 0) {
			w = 0
		}
		resp.Chunks = append(resp.Chunks, arenaproto.ChunkInfo{
			Name:          c.Name,
			Pacing:        c.Pacing,
			Weight:        w,
			Height:        c.Height,
			Walls:         len(c.Walls),
			Spawns:        chunks.CountByKind(c.Spawns),
			TopProfile:    c.TopProfile,
			BottomProfile: c.BottomProfile,
		})
	}
	return resp
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.Bootstrap())
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cfg, err := parseSubscribe(msg, s.lib.ProfileResolution)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), time.Now().Add(time.Second))
			return
		}

		for {
			if err := s.stream(conn, cfg); err != nil {
				return
			}
			next, ok := s.awaitSubscribe(conn)
			if !ok {
				break
			}
			cfg = next
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	}
}

// awaitSubscribe reads until a valid SUBSCRIBE arrives, answering invalid
// ones with ERROR. ok is false once the client goes away.
func (s *Server) awaitSubscribe(conn *websocket.Conn) (soak.Config, bool) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return soak.Config{}, false
		}
		cfg, err := parseSubscribe(msg, s.lib.ProfileResolution)
		if err == nil {
			return cfg, true
		}
		if werr := writeJSON(conn, arenaproto.ErrorMsg{
			Type:            arenaproto.TypeError,
			ProtocolVersion: arenaproto.Version,
			Code:            errorCode(err),
			Message:         err.Error(),
		}); werr != nil {
			return soak.Config{}, false
		}
	}
}

// stream runs one soak and writes a STEP per pick followed by a SUMMARY.
func (s *Server) stream(conn *websocket.Conn, cfg soak.Config) error {
	runID := fmt.Sprintf("O%d", s.nextID.Add(1))
	if cfg.Policy == nil {
		pol := s.pol
		cfg.Policy = &pol
	}
	var writeErr error
	sum := soak.SimulateObserved(s.lib, cfg, func(st soak.Step) {
		if writeErr != nil {
			return
		}
		writeErr = writeJSON(conn, arenaproto.StepMsg{
			Type:            arenaproto.TypeStep,
			ProtocolVersion: arenaproto.Version,
			RunID:           runID,
			Step:            st,
		})
	})
	if writeErr != nil {
		return writeErr
	}
	if s.log != nil {
		s.log.Printf("run %s seed=%d steps=%d/%d fallbacks=%d", runID, sum.Seed, sum.StepsCompleted, sum.StepsRequested, sum.PacingFallbackCount)
	}
	if s.recorder != nil {
		s.recorder.RecordSoak(runID, sum)
	}
	return writeJSON(conn, arenaproto.SummaryMsg{
		Type:            arenaproto.TypeSummary,
		ProtocolVersion: arenaproto.Version,
		RunID:           runID,
		Summary:         sum,
	})
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// subscribeError carries an arenaproto error code for the client.
type subscribeError struct {
	code string
	msg  string
}

func (e *subscribeError) Error() string { return e.msg }

func parseSubscribe(msg []byte, resolution int) (soak.Config, error) {
	var sub arenaproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return soak.Config{}, &subscribeError{arenaproto.ErrProtoBadRequest, "bad subscribe"}
	}
	if sub.Type != arenaproto.TypeSubscribe || sub.ProtocolVersion != arenaproto.Version {
		return soak.Config{}, &subscribeError{arenaproto.ErrProtoBadRequest, "expected SUBSCRIBE"}
	}
	if sub.Steps < 0 || sub.InitialRunLength < 0 {
		return soak.Config{}, &subscribeError{arenaproto.ErrBadRequest, fmt.Sprintf("steps=%d initial_run_length=%d must not be negative", sub.Steps, sub.InitialRunLength)}
	}
	normalizeSubscribe(&sub)
	if len(sub.InitialProfile) > 0 && len(sub.InitialProfile) != resolution {
		return soak.Config{}, &subscribeError{arenaproto.ErrBadProfile, fmt.Sprintf("initial_profile has %d cells, want %d", len(sub.InitialProfile), resolution)}
	}

	cfg := soak.Config{
		Seed:             sub.Seed,
		Steps:            sub.Steps,
		InitialProfile:   chunks.EdgeProfile(sub.InitialProfile),
		InitialRunLength: sub.InitialRunLength,
	}
	if sub.InitialPacing != "" {
		p, err := chunks.ParsePacing(sub.InitialPacing)
		if err != nil {
			return soak.Config{}, &subscribeError{arenaproto.ErrBadPacing, err.Error()}
		}
		cfg.InitialPacing = p
	}
	if sub.InitialPreviousPacing != "" {
		p, err := chunks.ParsePacing(sub.InitialPreviousPacing)
		if err != nil {
			return soak.Config{}, &subscribeError{arenaproto.ErrBadPacing, err.Error()}
		}
		cfg.InitialPreviousPacing = p
	}
	return cfg, nil
}

func errorCode(err error) string {
	var se *subscribeError
	if errors.As(err, &se) {
		return se.code
	}
	return arenaproto.ErrInternal
}

func normalizeSubscribe(sub *arenaproto.SubscribeMsg) {
	if sub.Steps == 0 {
		sub.Steps = defaultSteps
	}
	if sub.Steps > maxSteps {
		sub.Steps = maxSteps
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
