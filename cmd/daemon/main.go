// Command daemon runs the courtreel video-processing service: queue
// workers for every pipeline stage plus the operational HTTP listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hooplab/courtreel/internal/blob"
	"github.com/hooplab/courtreel/internal/config"
	"github.com/hooplab/courtreel/internal/execx"
	"github.com/hooplab/courtreel/internal/extract"
	"github.com/hooplab/courtreel/internal/log"
	"github.com/hooplab/courtreel/internal/media"
	"github.com/hooplab/courtreel/internal/ops"
	"github.com/hooplab/courtreel/internal/optimize"
	"github.com/hooplab/courtreel/internal/persistence/sqlite"
	"github.com/hooplab/courtreel/internal/pipeline"
	"github.com/hooplab/courtreel/internal/probe"
	"github.com/hooplab/courtreel/internal/queue"
	"github.com/hooplab/courtreel/internal/stage"
	"github.com/hooplab/courtreel/internal/thumbs"
	"github.com/hooplab/courtreel/internal/version"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("courtreel %s (%s, %s)\n", version.Version, version.Commit, version.Date)
		return
	}

	if err := run(*configPath); err != nil {
		logger := log.Base()
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "courtreel"})
	logger := log.WithComponent("daemon")
	logger.Info().Str("version", version.Version).Str("data_dir", cfg.DataDir).Msg("starting")

	if err := os.MkdirAll(cfg.BlobRoot, 0o755); err != nil {
		return fmt.Errorf("create blob root: %w", err)
	}

	if _, err := os.Stat(cfg.SQLitePath); err == nil {
		if problems, err := sqlite.VerifyIntegrity(cfg.SQLitePath, false); err != nil {
			return fmt.Errorf("database integrity: %w", err)
		} else if len(problems) > 0 {
			return fmt.Errorf("database integrity: %v", problems)
		}
	}

	store, err := media.NewSqliteStore(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	blobs, err := blob.NewLocalStore(cfg.BlobRoot)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("redis %s unreachable: %w", cfg.RedisAddr, err)
	}

	runner := &execx.ProcessRunner{KillGrace: 5 * time.Second, StderrLines: 40}

	thumbnailer := thumbs.New(store, blobs, runner)
	thumbnailer.FFmpegPath = cfg.FFmpegPath
	optimizer := optimize.New(store, blobs, runner)
	optimizer.FFmpegPath = cfg.FFmpegPath

	q := queue.New(rdb)
	orchestrator := pipeline.NewOrchestrator(store, blobs, q)
	orchestrator.MetadataWait = cfg.MetadataWait
	orchestrator.PollInterval = cfg.PollInterval

	pipeline.Register(q, store, pipeline.Stages{
		Extractor:    extract.New(store, blobs, probe.NewProber(runner, cfg.FFprobePath)),
		Thumbs:       thumbnailer,
		Optimizer:    optimizer,
		Orchestrator: orchestrator,
	})

	worker := &queue.Worker{
		Queue: q,
		Conf: queue.WorkerConfig{
			Concurrency: map[string]int{
				stage.QueueMetadata:     cfg.Workers.Metadata,
				stage.QueueThumbnails:   cfg.Workers.Thumbnails,
				stage.QueueOptimization: cfg.Workers.Optimization,
				stage.QueuePriority:     cfg.Workers.Priority,
			},
			PromoteEvery: time.Second,
		},
	}

	opsSrv := &ops.Server{
		Redis:    rdb,
		Store:    store,
		BlobRoot: cfg.BlobRoot,
		Version:  version.Version,
	}
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           opsSrv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("ops listener started")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info().Msg("queue workers started")
		return worker.Run(ctx)
	})

	err = g.Wait()
	logger.Info().Msg("daemon stopped")
	return err
}
