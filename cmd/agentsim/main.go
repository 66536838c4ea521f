/*
agentsim drives a deterministic, tick-based multi-agent simulation to
completion, optionally serving a live status dashboard while it runs. The
scheduler, event bus, and snapshot protocol are domain-agnostic; this binary
wires them to the graze demo embedder (a Schelling-style grid-occupancy
world).
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/arla-sim/agentsim/examples/graze"
	"github.com/arla-sim/agentsim/internal/config"
	"github.com/arla-sim/agentsim/internal/dashboard"
	"github.com/arla-sim/agentsim/internal/sim"
)

var (
	configPath *string
	dbg        *bool
	workers    *int
)

func init() {
	configPath = flag.String("config", "./config.yaml", "path to the run's YAML config file")
	dbg = flag.Bool("debug", false, "enable debug-level logging")
	workers = flag.Int("workers", 0, "run N independent episodes concurrently for offline analysis instead of one live simulation")
	flag.Parse()
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if *dbg {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runApp() error {
	logger := newLogger()

	cfg, err := config.FromYaml(*configPath)
	if err != nil {
		return fmt.Errorf("agentsim: load config: %w", err)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()
	runCtx, cancelDeadline, err := cfg.WithDeadline(appCtx)
	if err != nil {
		return fmt.Errorf("agentsim: %w", err)
	}
	defer cancelDeadline()

	scenario := graze.DefaultScenario()
	if seed := cfg.Simulation.RandomSeed; seed != nil {
		scenario.Seed = *seed
	}

	steps := cfg.Simulation.Steps
	if steps <= 0 {
		steps = 500
	}

	if *workers > 0 {
		results, err := graze.RunEpisodes(runCtx, scenario, *workers, steps)
		if err != nil {
			return fmt.Errorf("agentsim: run episodes: %w", err)
		}
		for _, r := range results {
			logger.Info("episode complete",
				"worker", r.Worker, "seed", r.Seed, "final_tick", r.FinalTick,
				"actions_executed", r.ActionsExecuted, "total_reward", r.TotalReward,
				"satisfied_count", r.SatisfiedCount)
		}
		return nil
	}

	world, err := graze.Build("run-1", scenario)
	if err != nil {
		return fmt.Errorf("agentsim: build world: %w", err)
	}

	manager := sim.NewManager(
		world.State,
		world.Generator,
		world.Selector,
		world.Reward,
		nil, // no CognitiveScaffold wired for this embedder
		sim.ManagerConfig{
			SnapshotDir:         cfg.Simulation.LogDirectory,
			SnapshotInterval:    cfg.Simulation.SnapshotInterval,
			ValidationInterval:  cfg.Simulation.ValidationInterval,
			ScaffoldConcurrency: cfg.Simulation.ScaffoldConcurrency,
		},
		logger,
	)
	if err := manager.RegisterSystem(world.Satisfy); err != nil {
		return fmt.Errorf("agentsim: register satisfaction system: %w", err)
	}
	if err := manager.RegisterSystem(world.Movement); err != nil {
		return fmt.Errorf("agentsim: register movement system: %w", err)
	}

	var wg sync.WaitGroup
	if cfg.Dashboard.Addr != "" {
		updates := make(chan dashboard.StatusUpdate)
		counters := newEventCounter(world.State, updates, manager)
		dashboardSrv := dashboard.NewServer(cfg.Dashboard.Addr, updates, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dashboardSrv.Serve(runCtx); err != nil {
				logger.Error("dashboard server exited", "error", err)
			}
		}()
		defer counters.stop()
	}

	err = manager.Run(runCtx, 0, steps)
	appCancel()
	wg.Wait()
	return err
}

func main() {
	if err := runApp(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
