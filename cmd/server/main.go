package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"space-arena/internal/api"
	"space-arena/internal/arena"
	"space-arena/internal/config"
	"space-arena/internal/generator"
	"space-arena/internal/journal"
	"space-arena/internal/logging"
	"space-arena/internal/preview"
	"space-arena/internal/recorder"
	"space-arena/internal/rules"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	flag.Parse()

	if err := run(*configDir); err != nil {
		log.Fatal().Err(err).Msg("Arena stopped with an error")
	}
}

func run(configDir string) error {
	// .env is optional; real environment variables take precedence
	envErr := godotenv.Load(".env")

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Pretty, os.Stdout)
	if envErr != nil {
		logger.Debug().Msg("No .env file found, using environment variables only")
	}

	logger.Info().
		Float64("width", cfg.World.Width).
		Float64("height", cfg.World.Height).
		Float64("cellSize", cfg.Grid.CellSize).
		Dur("tick", cfg.Sim.TickInterval).
		Int("maxBodies", cfg.Sim.MaxDynamicBodies).
		Str("boundary", cfg.Rules.Boundary).
		Msg("Space arena starting")

	// Simulation and policy
	sim, err := arena.NewSimulation(cfg.Arena(logger))
	if err != nil {
		return fmt.Errorf("creating simulation: %w", err)
	}
	policy, err := rules.New(cfg.RulesConfig(), sim, logger)
	if err != nil {
		return fmt.Errorf("creating rules: %w", err)
	}
	sim.SetPolicy(policy)
	sim.AddObserver(api.MetricsObserver{})

	// Journal
	var journalStats func() journal.Stats
	if cfg.Journal.Enabled {
		j := journal.New(cfg.JournalConfig(), logger)
		if err := j.Start(nil); err != nil {
			return err
		}
		defer j.Stop()
		sim.AddObserver(j)
		journalStats = j.Stats
		if err := api.RegisterJournalMetrics(prometheus.DefaultRegisterer, j.Stats); err != nil {
			logger.Warn().Err(err).Msg("Journal metrics unavailable")
		}
	}

	gen, err := generator.New(cfg.GeneratorConfig(), sim, logger)
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}
	renderer, err := preview.NewRenderer(cfg.Server.PreviewWidth)
	if err != nil {
		return fmt.Errorf("creating preview renderer: %w", err)
	}

	srv := api.NewServer(api.ServerConfig{
		Addr: cfg.Server.Addr,
		Router: api.RouterConfig{
			Arena:        sim,
			Players:      gen,
			Preview:      renderer,
			JournalStats: journalStats,
			RateLimitConfig: &api.RateLimitConfig{
				RequestsPerSecond: cfg.Server.RequestsPerSecond,
				Burst:             cfg.Server.Burst,
				CleanupInterval:   5 * time.Minute,
			},
			CORSOrigins: cfg.Server.AllowedOrigins,
			Logger:      logger,
		},
		Hub: api.HubConfig{
			BroadcastInterval: cfg.Server.BroadcastInterval,
			AllowedOrigins:    cfg.Server.AllowedOrigins,
		},
	})
	defer srv.Stop()
	sim.SetNotifier(srv.Hub())

	if err := sim.Activate(); err != nil {
		return fmt.Errorf("activating simulation: %w", err)
	}
	defer sim.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// background workers stop with ctx; closers run once they have exited
	var wg sync.WaitGroup
	var closers []func() error
	defer func() {
		stop()
		wg.Wait()
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn().Err(err).Msg("Cleanup failed")
			}
		}
	}()

	// Scene
	if cfg.Generator.Enabled {
		players, err := gen.Seed()
		if err != nil {
			return fmt.Errorf("seeding scene: %w", err)
		}
		logger.Info().Strs("players", players).Msg("Players ready")

		wg.Add(1)
		go func() {
			defer wg.Done()
			gen.Run(ctx)
		}()
	}

	// Diagnostics recorder
	if cfg.Recorder.Enabled {
		rec, err := recorder.Open(cfg.RecorderConfig(), sim, logger)
		if err != nil {
			return fmt.Errorf("opening recorder: %w", err)
		}
		closers = append(closers, rec.Close)

		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Run(ctx)
		}()
	}

	// Metrics and profiling
	debugSrv := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:    cfg.Debug.Enabled,
		ListenAddr: cfg.Debug.Addr,
	}, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		api.RunGaugeUpdater(ctx, sim, time.Second)
	}()

	logger.Info().Str("addr", cfg.Server.Addr).Msg("Server ready, press Ctrl+C to stop")
	serveErr := srv.Start(ctx)

	logger.Info().Msg("Shutting down")
	if debugSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		debugSrv.Shutdown(shutdownCtx)
		cancel()
	}
	return serveErr
}
