package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"bouncearena.dev/internal/arena/catalogs"
	"bouncearena.dev/internal/arena/rebalance"
	"bouncearena.dev/internal/arena/soak"
	"bouncearena.dev/internal/envcfg"
)

func main() {
	env, err := envcfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(2)
	}

	def := rebalance.DefaultOptions()
	var (
		configDir   = flag.String("configs", env.ConfigDir, "config directory")
		summaryPath = flag.String("summary", "", "soak summary json (required)")
		minW        = flag.Float64("min", def.MinWeight, "minimum proposed weight")
		maxW        = flag.Float64("max", def.MaxWeight, "maximum proposed weight")
		damping     = flag.Float64("damping", def.Damping, "correction damping factor")
		outPath     = flag.String("out", "", "proposal output path (default: <data>/rebalance/proposal.json)")
		writeLib    = flag.String("write_library", "", "also write a rebalanced chunk library to this path (optional)")
	)
	flag.Parse()

	if *summaryPath == "" {
		fmt.Fprintln(os.Stderr, "missing -summary")
		os.Exit(2)
	}
	if *minW < 0 || *maxW < *minW || *damping <= 0 || *damping >= 1 {
		fmt.Fprintln(os.Stderr, "need 0 <= -min <= -max and 0 < -damping < 1")
		os.Exit(2)
	}

	logger := log.New(os.Stdout, "[rebalance] ", log.LstdFlags|log.Lmicroseconds)

	lib, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load chunks:", err)
		os.Exit(1)
	}
	sum, err := soak.ReadSummary(*summaryPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read summary:", err)
		os.Exit(1)
	}
	if sum.LibraryDigest != "" && sum.LibraryDigest != lib.Digest {
		logger.Printf("warning: summary digest %s does not match library %s", sum.LibraryDigest, lib.Digest)
	}

	opts := def
	opts.MinWeight = *minW
	opts.MaxWeight = *maxW
	opts.Damping = *damping
	res := rebalance.Propose(lib, sum.ChunkCounts, opts)

	out := *outPath
	if out == "" {
		out = filepath.Join(env.DataDir, "rebalance", "proposal.json")
	}
	if err := rebalance.WriteResult(out, res); err != nil {
		fmt.Fprintln(os.Stderr, "write proposal:", err)
		os.Exit(1)
	}

	for _, e := range res.Entries {
		logger.Printf("%-24s expected=%.4f observed=%.4f proposed=%.4f", e.Name, e.Expected, e.Observed, e.Proposed)
	}
	if res.BoundsCollapsed {
		logger.Printf("bounds infeasible for %d entries; collapsed to [%.4f, %.4f]", len(res.Entries), res.MinWeight, res.MaxWeight)
	}
	if !res.Converged {
		logger.Printf("redistribution did not converge after %d iterations; using equal weights", res.Iterations)
	}

	if *writeLib != "" {
		nl, err := rebalance.Apply(lib, res.Weights)
		if err != nil {
			fmt.Fprintln(os.Stderr, "apply:", err)
			os.Exit(1)
		}
		if err := catalogs.Write(*writeLib, nl); err != nil {
			fmt.Fprintln(os.Stderr, "write library:", err)
			os.Exit(1)
		}
		logger.Printf("rebalanced library digest=%s written to %s", nl.Digest, *writeLib)
	}
	logger.Printf("proposal written to %s", out)
}
