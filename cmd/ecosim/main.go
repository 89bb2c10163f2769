package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecosim/internal/config"
	"ecosim/internal/database"
	"ecosim/internal/economy"
	"ecosim/internal/futures"
	"ecosim/internal/notify"
	"ecosim/internal/random"
	"ecosim/internal/scheduler"
	"ecosim/internal/seed"
	"ecosim/internal/simulation"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		log.Fatalf("invalid log level %q: %v", cfg.Log.Level, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to open repository", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	if cfg.World.File != "" {
		world, err := seed.Load(cfg.World.File, seed.DefaultsFrom(cfg.Economy))
		if err != nil {
			logger.Error("Failed to load world", "file", cfg.World.File, "error", err)
			os.Exit(1)
		}
		if err := world.Apply(ctx, repo); err != nil {
			logger.Error("Failed to seed world", "file", cfg.World.File, "error", err)
			os.Exit(1)
		}
		logger.Info("World seeded", "file", cfg.World.File,
			"resources", len(world.Resources), "markets", len(world.Markets), "routes", len(world.TradeRoutes))
	}

	var rng random.Source = random.NewEntropy()
	if cfg.Economy.RandomSeed != 0 {
		rng = random.New(cfg.Economy.RandomSeed)
	}

	engine := economy.NewEngine(logger, repo, &cfg, rng, economy.NewCache())
	book := futures.NewBook(logger, engine)

	hub := notify.NewHub(logger, cfg.Events.ClientRate, cfg.Events.ClientBurst)
	defer hub.Close()
	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	srv := &http.Server{Addr: cfg.Events.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Event hub listening", "addr", cfg.Events.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Event hub stopped", "error", err)
			stop()
		}
	}()

	sink := notify.MultiSink{notify.NewLogSink(logger), hub}
	orchestrator := simulation.NewOrchestrator(logger, engine, &cfg, book, sink)
	sched := scheduler.New(logger, orchestrator, cfg.Scheduler)

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Scheduler failed", "error", err)
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		logger.Warn("Event hub shutdown", "error", err)
	}
	logger.Info("Simulation stopped", "nextTick", sched.Next())
}

func openRepository(ctx context.Context, cfg config.DatabaseConfig) (database.Repository, func(), error) {
	if cfg.Driver != "postgres" {
		return database.NewMemoryRepository(), func() {}, nil
	}
	repo, err := database.NewPostgresRepository(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
