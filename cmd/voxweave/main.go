// Command voxweave renders a dialogue script into a single conversation
// WAV from the command line, without running the HTTP daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/voxweave/voxweave/internal/assembler"
	"github.com/voxweave/voxweave/internal/config"
	"github.com/voxweave/voxweave/internal/dialogue"
	"github.com/voxweave/voxweave/internal/dsp"
	"github.com/voxweave/voxweave/internal/progress"
	"github.com/voxweave/voxweave/internal/protocol"
	"github.com/voxweave/voxweave/internal/synth"
)

func main() {
	var (
		configPath   string
		output       string
		silenceMS    int
		language     string
		exaggeration float64
		cfgWeight    float64
		noIndividual bool
		noProcessing bool
		device       string
		verbose      bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&output, "o", "conversation", "Output file prefix")
	flag.StringVar(&output, "output", "conversation", "Output file prefix")
	flag.IntVar(&silenceMS, "s", 500, "Silence between lines in milliseconds")
	flag.IntVar(&silenceMS, "silence", 500, "Silence between lines in milliseconds")
	flag.StringVar(&language, "l", "en", "Language code")
	flag.StringVar(&language, "language", "en", "Language code")
	flag.Float64Var(&exaggeration, "e", 1.5, "Emotion exaggeration (1.0-3.0)")
	flag.Float64Var(&exaggeration, "exaggeration", 1.5, "Emotion exaggeration (1.0-3.0)")
	flag.Float64Var(&cfgWeight, "c", 0.5, "CFG weight (0.0-1.0)")
	flag.Float64Var(&cfgWeight, "cfg-weight", 0.5, "CFG weight (0.0-1.0)")
	flag.BoolVar(&noIndividual, "no-individual", false, "Skip saving individual line files")
	flag.BoolVar(&noProcessing, "no-processing", false, "Skip audio post-processing")
	flag.StringVar(&device, "d", "", "Synthesis device (cpu or cuda)")
	flag.StringVar(&device, "device", "", "Synthesis device (cpu or cuda)")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: voxweave [flags] <dialogue-file>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			logger.Error("failed to load config", slog.String("error", err.Error()))
			os.Exit(1)
		}
		cfg = loaded
	}
	if device != "" {
		cfg.Engine.Device = device
	}

	scriptPath := flag.Arg(0)
	raw, err := os.ReadFile(scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot read %s: %v\n", scriptPath, err)
		os.Exit(1)
	}

	doc, err := dialogue.Parse(string(raw), dialogue.Options{
		AllowDefaultVoice: cfg.Pipeline.AllowDefaultVoice,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	engine, err := buildEngine(cfg.Engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	adapter := synth.NewAdapter(engine, logger)
	generator := assembler.NewGenerator(adapter, dsp.DefaultChain(), logger)
	tracker := progress.NewTracker(uuid.NewString(), &consoleSink{out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := generator.Generate(ctx, doc, tracker, assembler.Options{
		SilenceMS:      silenceMS,
		Language:       language,
		Exaggeration:   exaggeration,
		CFGWeight:      cfgWeight,
		SaveIndividual: !noIndividual,
		ProcessAudio:   !noProcessing,
		OutputPrefix:   output,
		OutputDir:      cfg.Pipeline.OutputDir,
		VoicesDir:      cfg.Pipeline.VoicesDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %s (%.1fs, %d lines)\n", result.OutputFile, result.DurationSeconds, result.NumLines)
	if result.LinesDir != "" {
		fmt.Printf("Individual lines in %s\n", result.LinesDir)
	}
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

// consoleSink prints progress transitions for interactive runs.
type consoleSink struct {
	out *os.File
}

func (c *consoleSink) Publish(update protocol.ProgressUpdate) {
	switch update.Status {
	case protocol.StatusGeneratingLine:
		fmt.Fprintf(c.out, "[%d/%d] %s\n", update.CurrentLine, update.TotalLines, update.Message)
	case protocol.StatusMerging:
		fmt.Fprintln(c.out, "merging...")
	}
}
