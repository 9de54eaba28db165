package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bouncearena.dev/internal/arena/catalogs"
	"bouncearena.dev/internal/arena/policy"
	"bouncearena.dev/internal/envcfg"
	"bouncearena.dev/internal/persistence/indexdb"
	"bouncearena.dev/internal/transport/observer"
)

func main() {
	env, err := envcfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(2)
	}

	var (
		addr       = flag.String("addr", "127.0.0.1:8080", "http listen address")
		configDir  = flag.String("configs", env.ConfigDir, "config directory")
		policyPath = flag.String("policy", "", "path to policy.yaml (default: <configs>/policy.yaml)")
		dbPath     = flag.String("db", filepath.Join(env.DataDir, "index", "arena.db"), "sqlite index path (empty to disable)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds)

	lib, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load chunks: %v", err)
	}
	pp := *policyPath
	if pp == "" {
		pp = filepath.Join(*configDir, "policy.yaml")
	}
	pol, err := policy.Load(pp)
	if err != nil {
		logger.Fatalf("load policy: %v", err)
	}

	srv := observer.NewServer(lib, pol, logger)
	if *dbPath != "" {
		idx, err := indexdb.OpenSQLite(*dbPath)
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertLibrary(lib); err != nil {
			logger.Printf("index library: %v", err)
		}
		srv.SetRecorder(idx)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", srv.WSHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("listening on %s chunks=%d digest=%s", *addr, lib.Len(), lib.Digest)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("http: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	logger.Printf("shutdown")
}
