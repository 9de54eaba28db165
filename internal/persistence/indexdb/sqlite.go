package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/preflight"
	"bouncearena.dev/internal/arena/soak"
)

// SQLiteIndex is a queryable history of soak runs and preflight reports.
// Summary JSON files stay the source of truth; the index is for browsing.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqSoak reqKind = iota + 1
	reqPreflight
)

type req struct {
	kind reqKind

	soak      soakRow
	preflight preflightRow
}

type soakRow struct {
	RunID      string
	Summary    soak.Summary
	RecordedAt string
}

type preflightRow struct {
	LibraryDigest string
	Summary       preflight.Summary
	RecordedAt    string
}

// RunRow is one indexed soak run.
type RunRow struct {
	RunID          string
	Seed           int64
	StepsRequested int
	StepsCompleted int
	LibraryDigest  string
	LongestStreak  int
	Fallbacks      int
	StoppedEarly   bool
	RecordedAt     string
}

func NewRunID() string { return uuid.NewString() }

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 1024),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS libraries (
			digest TEXT PRIMARY KEY,
			chunks INTEGER NOT NULL,
			profile_resolution INTEGER NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS soak_runs (
			run_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			steps_requested INTEGER NOT NULL,
			steps_completed INTEGER NOT NULL,
			library_digest TEXT NOT NULL,
			longest_streak INTEGER NOT NULL,
			fallbacks INTEGER NOT NULL,
			stopped_early INTEGER NOT NULL,
			summary_json TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_soak_runs_digest ON soak_runs(library_digest, recorded_at);`,
		`CREATE TABLE IF NOT EXISTS soak_picks (
			run_id TEXT NOT NULL,
			chunk TEXT NOT NULL,
			picks INTEGER NOT NULL,
			PRIMARY KEY (run_id, chunk)
		);`,
		`CREATE TABLE IF NOT EXISTS soak_rejections (
			run_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (run_id, reason)
		);`,
		`CREATE TABLE IF NOT EXISTS preflight_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			library_digest TEXT NOT NULL,
			total_chunks INTEGER NOT NULL,
			valid_chunks INTEGER NOT NULL,
			invalid_chunks INTEGER NOT NULL,
			profile_mismatch INTEGER NOT NULL,
			concave_trap INTEGER NOT NULL,
			exit_angle_fail INTEGER NOT NULL,
			report TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many records were discarded because the writer fell
// behind.
func (s *SQLiteIndex) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

func (s *SQLiteIndex) enqueue(r req) {
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) RecordSoak(runID string, sum soak.Summary) {
	if s == nil || s.closed.Load() || runID == "" {
		return
	}
	s.enqueue(req{kind: reqSoak, soak: soakRow{
		RunID:      runID,
		Summary:    sum,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (s *SQLiteIndex) RecordPreflight(libraryDigest string, sum preflight.Summary) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqPreflight, preflight: preflightRow{
		LibraryDigest: libraryDigest,
		Summary:       sum,
		RecordedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

// UpsertLibrary stores the canonical library JSON keyed by digest.
func (s *SQLiteIndex) UpsertLibrary(lib *chunks.Library) error {
	if s == nil || lib == nil {
		return nil
	}
	b, err := json.Marshal(lib.Schemas)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO libraries(digest,chunks,profile_resolution,json,updated_at) VALUES(?,?,?,?,?)`,
		lib.Digest, lib.Len(), lib.ProfileResolution, string(b), now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// LatestRuns returns up to limit runs, newest first.
func (s *SQLiteIndex) LatestRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id,seed,steps_requested,steps_completed,library_digest,longest_streak,fallbacks,stopped_early,recorded_at
		FROM soak_runs ORDER BY recorded_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var stopped int
		if err := rows.Scan(&r.RunID, &r.Seed, &r.StepsRequested, &r.StepsCompleted, &r.LibraryDigest, &r.LongestStreak, &r.Fallbacks, &stopped, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.StoppedEarly = stopped != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	for r := range s.ch {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		switch r.kind {
		case reqSoak:
			err = writeSoak(tx, r.soak)
		case reqPreflight:
			err = writePreflight(tx, r.preflight)
		}
		if err != nil {
			_ = tx.Rollback()
			continue
		}
		_ = tx.Commit()
	}
}

func writeSoak(tx *sql.Tx, r soakRow) error {
	sum := r.Summary
	raw, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	stopped := 0
	if sum.StoppedEarly {
		stopped = 1
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO soak_runs(run_id,seed,steps_requested,steps_completed,library_digest,longest_streak,fallbacks,stopped_early,summary_json,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.RunID, sum.Seed, sum.StepsRequested, sum.StepsCompleted, sum.LibraryDigest,
		sum.LongestSamePacingStreak, sum.PacingFallbackCount, stopped, string(raw), r.RecordedAt,
	); err != nil {
		return err
	}

	names := make([]string, 0, len(sum.ChunkCounts))
	for name := range sum.ChunkCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO soak_picks(run_id,chunk,picks) VALUES(?,?,?)`, r.RunID, name, sum.ChunkCounts[name]); err != nil {
			return err
		}
	}
	for reason, n := range sum.RejectionCounts {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO soak_rejections(run_id,reason,count) VALUES(?,?,?)`, r.RunID, reason, n); err != nil {
			return err
		}
	}
	return nil
}

func writePreflight(tx *sql.Tx, r preflightRow) error {
	sum := r.Summary
	_, err := tx.Exec(
		`INSERT INTO preflight_reports(library_digest,total_chunks,valid_chunks,invalid_chunks,profile_mismatch,concave_trap,exit_angle_fail,report,recorded_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		r.LibraryDigest, sum.TotalChunks, sum.ValidChunks, sum.InvalidChunks,
		sum.Counters.ProfileMismatch, sum.Counters.ConcaveTrap, sum.Counters.ExitAngleFail,
		sum.Render(), r.RecordedAt,
	)
	return err
}
