package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxweave/voxweave/internal/assembler"
	"github.com/voxweave/voxweave/internal/bus"
	"github.com/voxweave/voxweave/internal/config"
	"github.com/voxweave/voxweave/internal/dsp"
	"github.com/voxweave/voxweave/internal/natsserver"
	"github.com/voxweave/voxweave/internal/progress"
	"github.com/voxweave/voxweave/internal/runstore"
	"github.com/voxweave/voxweave/internal/server"
	"github.com/voxweave/voxweave/internal/synth"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "voxweave.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedded, err := natsserver.Start(cfg.Bus, logger)
	if err != nil {
		logger.Error("failed to start embedded bus", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if embedded != nil {
		defer embedded.Shutdown()
	}

	var sinks []progress.Sink
	var busClient *bus.Client
	if cfg.Bus.Enabled {
		busClient, err = bus.Connect(cfg.Bus, logger)
		if err != nil {
			logger.Error("failed to connect to bus", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer busClient.Close()
		sinks = append(sinks, progress.NewBusPublisher(busClient, logger))
	}

	store, err := runstore.Open(ctx, cfg.RunStore, logger)
	if err != nil {
		logger.Error("failed to open run store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	engine, err := buildEngine(cfg.Engine)
	if err != nil {
		logger.Error("failed to build synthesis engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	adapter := synth.NewAdapter(engine, logger)
	generator := assembler.NewGenerator(adapter, dsp.DefaultChain(), logger)
	srv := server.New(cfg, generator, store, sinks, logger)

	if err := srv.Start(ctx); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func buildEngine(cfg config.EngineConfig) (synth.Synthesizer, error) {
	switch cfg.Mode {
	case "exec":
		return synth.NewExecSynth(cfg.Command, cfg.SampleRate)
	case "mock":
		return synth.NewMockSynth(cfg.SampleRate), nil
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}
