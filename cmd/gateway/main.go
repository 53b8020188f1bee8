// Package main is the gateway HTTP entry point: load configuration, apply
// the checkpoint-store migrations, wire the Core, and serve until a
// shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nlsql/gateway/internal/app"
	"github.com/nlsql/gateway/internal/platform/config"
	"github.com/nlsql/gateway/internal/platform/migrations"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional .env file")
	yamlFile := flag.String("config", "config.yaml", "optional YAML config overlay")
	flag.Parse()

	cfg, err := config.Load(*envFile, *yamlFile)
	if err != nil {
		log.Fatalf("gateway: loading config: %v", err)
	}

	if cfg.CheckpointDSN != "" {
		if err := migrations.Apply(cfg.CheckpointDSN); err != nil {
			log.Fatalf("gateway: applying checkpoint migrations: %v", err)
		}
	}

	core, err := app.New(cfg)
	if err != nil {
		log.Fatalf("gateway: wiring core: %v", err)
	}
	defer core.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, svc := range core.Services {
		if err := svc.Start(ctx); err != nil {
			log.Fatalf("gateway: starting %s: %v", svc.Name(), err)
		}
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           core.Server().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		core.Log.Infof("gateway listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("gateway: serve: %v", err)
		}
	}()

	<-ctx.Done()
	core.Log.Info("gateway: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		core.Log.WithError(err).Warn("gateway: http shutdown error")
	}

	for _, svc := range core.Services {
		if err := svc.Stop(shutdownCtx); err != nil {
			core.Log.WithError(err).Warnf("gateway: stopping %s", svc.Name())
		}
	}
}
