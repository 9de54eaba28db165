package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"bouncearena.dev/internal/arena/catalogs"
	"bouncearena.dev/internal/arena/chunks"
	"bouncearena.dev/internal/arena/policy"
	"bouncearena.dev/internal/arena/soak"
	"bouncearena.dev/internal/envcfg"
	"bouncearena.dev/internal/persistence/indexdb"
	persistlog "bouncearena.dev/internal/persistence/log"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code: 2 for usage errors, 1 for runtime
// failures or a run that stopped early.
func run(args []string, stdout, stderr io.Writer) int {
	env, err := envcfg.Load()
	if err != nil {
		fmt.Fprintln(stderr, "load .env:", err)
		return 2
	}

	fs := flag.NewFlagSet("soak", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configDir  = fs.String("configs", env.ConfigDir, "config directory (chunks.json and chunks/*.json)")
		policyPath = fs.String("policy", "", "path to policy.yaml (default: <configs>/policy.yaml; overrides a policy block in soak.json when set)")
		cfgPath    = fs.String("config", "", "path to soak.json (default: <configs>/soak.json if present)")
		seed       = fs.Int64("seed", 0, "override the config seed")
		steps      = fs.Int("steps", 0, "override the config step count")
		outPath    = fs.String("out", "", "summary output path (default: <data>/soak/summary-<seed>.json)")
		stepLogDir = fs.String("steplog", "", "write per-step jsonl.zst logs to this dir (optional)")
		dbPath     = fs.String("db", "", "sqlite index path (empty to disable)")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *steps < 0 {
		fmt.Fprintln(stderr, "-steps must be >= 0")
		return 2
	}

	logger := log.New(stdout, "[soak] ", log.LstdFlags|log.Lmicroseconds)

	lib, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(stderr, "load chunks:", err)
		return 1
	}

	cfg := soak.DefaultConfig()
	cp := *cfgPath
	if cp == "" {
		if _, err := os.Stat(filepath.Join(*configDir, "soak.json")); err == nil {
			cp = filepath.Join(*configDir, "soak.json")
		}
	}
	if cp != "" {
		cfg, err = soak.LoadConfig(cp)
		if err != nil {
			fmt.Fprintln(stderr, "load soak config:", err)
			return 1
		}
	}
	if set["seed"] {
		cfg.Seed = *seed
	}
	if set["steps"] {
		cfg.Steps = *steps
	}

	switch {
	case set["policy"] || cfg.Policy == nil:
		pp := *policyPath
		if pp == "" {
			pp = filepath.Join(*configDir, "policy.yaml")
		}
		pol, err := policy.Load(pp)
		if err != nil {
			fmt.Fprintln(stderr, "load policy:", err)
			return 1
		}
		cfg.Policy = &pol
		logger.Printf("policy from %s", pp)
	default:
		logger.Printf("policy from %s (policy block)", cp)
	}

	runID := indexdb.NewRunID()

	var stepLog *persistlog.StepLogger
	if *stepLogDir != "" {
		stepLog = persistlog.NewStepLogger(*stepLogDir, runID, cfg.Seed)
		defer func() {
			if err := stepLog.Close(); err != nil {
				logger.Printf("close step log: %v", err)
			}
		}()
	}

	logger.Printf("run=%s chunks=%d digest=%s seed=%d steps=%d", runID, lib.Len(), lib.Digest, cfg.Seed, cfg.Steps)
	stepLogFailed := false
	sum := soak.SimulateObserved(lib, cfg, func(st soak.Step) {
		if stepLog == nil || stepLogFailed {
			return
		}
		if err := stepLog.WriteStep(st); err != nil {
			logger.Printf("step log: %v", err)
			stepLogFailed = true
		}
	})

	out := *outPath
	if out == "" {
		out = filepath.Join(env.DataDir, "soak", fmt.Sprintf("summary-%d.json", cfg.Seed))
	}
	if err := soak.WriteSummary(out, sum); err != nil {
		fmt.Fprintln(stderr, "write summary:", err)
		return 1
	}

	if *dbPath != "" {
		idx, err := indexdb.OpenSQLite(*dbPath)
		if err != nil {
			fmt.Fprintln(stderr, "open index:", err)
			return 1
		}
		if err := idx.UpsertLibrary(lib); err != nil {
			logger.Printf("index library: %v", err)
		}
		idx.RecordSoak(runID, sum)
		if err := idx.Close(); err != nil {
			logger.Printf("close index: %v", err)
		}
	}

	logger.Printf("completed=%d/%d longest_streak=%d fallbacks=%d stopped_early=%v", sum.StepsCompleted, sum.StepsRequested, sum.LongestSamePacingStreak, sum.PacingFallbackCount, sum.StoppedEarly)
	for _, p := range chunks.AllPacings {
		logger.Printf("pacing %-10s %d", p, sum.PacingCounts[p.String()])
	}
	logger.Printf("summary written to %s", out)
	if sum.StoppedEarly {
		return 1
	}
	return 0
}
