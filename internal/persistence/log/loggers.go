package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"bouncearena.dev/internal/arena/soak"
)

// JSONLZstdWriter appends one JSON document per line to a zstd stream. The
// file is opened on first write.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (w *JSONLZstdWriter) Path() string { return w.path }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		err1 = w.w.Flush()
	}
	if w.enc != nil {
		if err := w.enc.Close(); err1 == nil {
			err1 = err
		}
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// StepEntry is one line of a soak step log.
type StepEntry struct {
	RunID string `json:"run_id"`
	Seed  int64  `json:"seed"`
	soak.Step
}

// StepLogger writes soak steps to <dir>/steps-<runID>.jsonl.zst.
type StepLogger struct {
	runID string
	seed  int64
	w     *JSONLZstdWriter
}

func NewStepLogger(dir, runID string, seed int64) *StepLogger {
	return &StepLogger{
		runID: runID,
		seed:  seed,
		w:     NewJSONLZstdWriter(StepLogPath(dir, runID)),
	}
}

func StepLogPath(dir, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("steps-%s.jsonl.zst", runID))
}

func (l *StepLogger) Path() string { return l.w.Path() }

func (l *StepLogger) WriteStep(s soak.Step) error {
	return l.w.Write(StepEntry{RunID: l.runID, Seed: l.seed, Step: s})
}

func (l *StepLogger) Close() error { return l.w.Close() }

// ReadSteps decodes a step log written by StepLogger.
func ReadSteps(path string) ([]StepEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var out []StepEntry
	for sc.Scan() {
		var e StepEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
