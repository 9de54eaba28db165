package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"bouncearena.dev/internal/arena/catalogs"
	"bouncearena.dev/internal/arena/policy"
	"bouncearena.dev/internal/arena/preflight"
	"bouncearena.dev/internal/envcfg"
	"bouncearena.dev/internal/persistence/indexdb"
)

func main() {
	env, err := envcfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(2)
	}

	var (
		configDir  = flag.String("configs", env.ConfigDir, "config directory")
		policyPath = flag.String("policy", "", "path to policy.yaml (default: <configs>/policy.yaml)")
		outPath    = flag.String("out", preflight.DefaultReportPath, "report output path")
		strict     = flag.Bool("strict", false, "exit 1 when any chunk is invalid")
		dbPath     = flag.String("db", "", "sqlite index path (empty to disable)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[preflight] ", log.LstdFlags|log.Lmicroseconds)

	lib, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load chunks:", err)
		os.Exit(1)
	}
	pp := *policyPath
	if pp == "" {
		pp = filepath.Join(*configDir, "policy.yaml")
	}
	pol, err := policy.Load(pp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load policy:", err)
		os.Exit(1)
	}

	sum := preflight.Run(lib, pol)
	if err := preflight.WriteReport(*outPath, sum); err != nil {
		fmt.Fprintln(os.Stderr, "write report:", err)
		os.Exit(1)
	}
	fmt.Print(sum.Render())

	if *dbPath != "" {
		idx, err := indexdb.OpenSQLite(*dbPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open index:", err)
			os.Exit(1)
		}
		if err := idx.UpsertLibrary(lib); err != nil {
			logger.Printf("index library: %v", err)
		}
		idx.RecordPreflight(lib.Digest, sum)
		if err := idx.Close(); err != nil {
			logger.Printf("close index: %v", err)
		}
	}

	logger.Printf("digest=%s valid=%d/%d report=%s", lib.Digest, sum.ValidChunks, sum.TotalChunks, *outPath)
	if *strict && !sum.OK() {
		os.Exit(1)
	}
}
