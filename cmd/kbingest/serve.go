package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/kbingest"
	"github.com/poiesic/kbingest/api"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

func (a *app) serveCommand(c *cli.Context) error {
	cfg := a.cfg
	if listen := c.String("listen"); listen != "" {
		cfg.ListenAddr = listen
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := ingestion.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	opts := append([]kbingest.DatabaseOption{
		kbingest.WithAIConfig(cfg.AIConfig()),
		kbingest.WithLogger(logger),
	}, a.dbOpts...)
	db, err := kbingest.NewDatabase(cfg.DataDir, opts...)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	service, err := db.NewService(
		ingestion.WithConfig(cfg.IngestionConfig()),
		ingestion.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	defer service.Close()

	searcher, err := db.NewSearcher(search.WithMinScore(cfg.Search.MinScore))
	if err != nil {
		return err
	}

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start ingestion: %w", err)
	}

	serverOpts := []api.Option{
		api.WithLogger(logger),
		api.WithGatherer(registry),
	}
	if len(cfg.AllowedOrigins) > 0 {
		serverOpts = append(serverOpts, api.WithAllowedOrigins(cfg.AllowedOrigins...))
	}
	server := api.NewServer(cfg.ListenAddr, service, searcher, serverOpts...)

	logger.Info("kbingest serving",
		"addr", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
		"embedding_model", cfg.Embedding.Model,
		"pool_size", cfg.Ingestion.PoolSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("kbingest stopped")
	return nil
}
