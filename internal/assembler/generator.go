// Package assembler runs the generation state machine: it walks the
// dialogue turn by turn, synthesizes and post-processes each line, and
// stitches the results into one master waveform.
//
// A run moves idle -> generating_line(1..n) -> merging -> completed,
// or to error from any state. Turns are strictly sequential; the engine
// holds exclusive device state, so synthesis of turn i+1 never starts
// before turn i is fully processed.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxweave/voxweave/internal/audio"
	"github.com/voxweave/voxweave/internal/dialogue"
	"github.com/voxweave/voxweave/internal/dsp"
	"github.com/voxweave/voxweave/internal/progress"
	"github.com/voxweave/voxweave/internal/synth"
)

// Options parameterize one generation run.
type Options struct {
	SilenceMS      int
	Language       string
	Exaggeration   float64
	CFGWeight      float64
	SaveIndividual bool
	ProcessAudio   bool
	OutputPrefix   string
	OutputDir      string
	// VoicesDir is prepended to relative voice reference paths.
	VoicesDir string
}

// Result summarizes a completed run.
type Result struct {
	OutputFile      string
	LinesDir        string
	DurationSeconds float64
	NumLines        int
	Timestamp       time.Time
}

// Generator owns the assembly loop for one engine. Safe for sequential
// reuse across runs; concurrent runs need separate trackers and are the
// caller's responsibility to serialize.
type Generator struct {
	adapter *synth.Adapter
	chain   dsp.Chain
	logger  *slog.Logger

	runsStarted   metric.Int64Counter
	linesRendered metric.Int64Counter
	synthSeconds  metric.Float64Histogram
}

func NewGenerator(adapter *synth.Adapter, chain dsp.Chain, log *slog.Logger) *Generator {
	meter := otel.Meter("voxweave/assembler")
	runsStarted, _ := meter.Int64Counter("voxweave.runs.started",
		metric.WithDescription("Generation runs started"))
	linesRendered, _ := meter.Int64Counter("voxweave.lines.rendered",
		metric.WithDescription("Dialogue lines synthesized"))
	synthSeconds, _ := meter.Float64Histogram("voxweave.synthesis.duration",
		metric.WithDescription("Wall-clock seconds spent in engine synthesis per line"),
		metric.WithUnit("s"))

	return &Generator{
		adapter:       adapter,
		chain:         chain,
		logger:        log.With(slog.String("component", "assembler")),
		runsStarted:   runsStarted,
		linesRendered: linesRendered,
		synthSeconds:  synthSeconds,
	}
}

// Generate runs the full pipeline for doc and writes the master file
// plus optional per-line artifacts. Fail-fast: the first error aborts
// the run and no master file is produced. Per-line artifacts written
// before the failure are left on disk.
func (g *Generator) Generate(ctx context.Context, doc *dialogue.Document, tracker *progress.Tracker, opts Options) (*Result, error) {
	result, err := g.generate(ctx, doc, tracker, opts)
	if err != nil {
		tracker.Failed(err.Error())
		return nil, err
	}
	return result, nil
}

func (g *Generator) generate(ctx context.Context, doc *dialogue.Document, tracker *progress.Tracker, opts Options) (*Result, error) {
	if len(doc.Turns) == 0 {
		return nil, dialogue.ErrNoTurns
	}
	if opts.SilenceMS < 0 {
		return nil, fmt.Errorf("%w: silence_ms must be >= 0", synth.ErrInvalidParameter)
	}
	params := synth.Params{
		Language:     opts.Language,
		Exaggeration: opts.Exaggeration,
		CFGWeight:    opts.CFGWeight,
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := g.checkVoiceRefs(doc, opts.VoicesDir); err != nil {
		return nil, err
	}

	g.runsStarted.Add(ctx, 1)
	tracker.Reset(len(doc.Turns))

	linesDir := ""
	if opts.SaveIndividual {
		linesDir = filepath.Join(opts.OutputDir, opts.OutputPrefix+"_lines")
		if err := os.MkdirAll(linesDir, 0o755); err != nil {
			return nil, fmt.Errorf("create lines dir: %w", err)
		}
	}

	silence := time.Duration(opts.SilenceMS) * time.Millisecond
	segments := make([]audio.Clip, 0, len(doc.Turns)*2)

	for _, turn := range doc.Turns {
		// Cancellation is only honored between turns; a single engine
		// call is atomic.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tracker.GeneratingLine(turn.Index+1, fmt.Sprintf("%s: %s", turn.Voice, preview(turn.Text)))
		g.logger.Info("generating line",
			slog.Int("line", turn.Index+1),
			slog.Int("total", len(doc.Turns)),
			slog.String("voice", turn.Voice))

		start := time.Now()
		clip, err := g.adapter.SynthesizeTurn(ctx, turn, g.voicePath(doc, turn, opts.VoicesDir), params)
		if err != nil {
			return nil, err
		}
		g.synthSeconds.Record(ctx, time.Since(start).Seconds())

		if opts.ProcessAudio {
			clip = g.chain.Process(clip)
		}

		if opts.SaveIndividual {
			name := artifactName(turn.Index+1, turn.Voice, turn.Text)
			if err := audio.WriteWAVFile(filepath.Join(linesDir, name), clip); err != nil {
				return nil, &synth.TurnError{Line: turn.Index, Err: err}
			}
		}

		if len(segments) > 0 && silence > 0 {
			segments = append(segments, audio.Silence(silence, clip.SampleRate))
		}
		segments = append(segments, clip)
		g.linesRendered.Add(ctx, 1)
	}

	tracker.Merging()
	master := audio.Concat(segments...)
	outputFile := filepath.Join(opts.OutputDir, opts.OutputPrefix+".wav")
	if err := audio.WriteWAVFile(outputFile, master); err != nil {
		return nil, err
	}

	result := &Result{
		OutputFile:      outputFile,
		LinesDir:        linesDir,
		DurationSeconds: master.Seconds(),
		NumLines:        len(doc.Turns),
		Timestamp:       time.Now().UTC(),
	}
	tracker.Completed(fmt.Sprintf("Generated %d lines, %.2f seconds", result.NumLines, result.DurationSeconds))
	g.logger.Info("dialogue completed",
		slog.String("output", outputFile),
		slog.Float64("duration_seconds", result.DurationSeconds),
		slog.Int("lines", result.NumLines))
	return result, nil
}

// checkVoiceRefs stats every referenced voice sample before any
// synthesis starts so a missing file fails the run up front.
func (g *Generator) checkVoiceRefs(doc *dialogue.Document, voicesDir string) error {
	seen := map[string]bool{}
	for _, turn := range doc.Turns {
		path, ok := doc.Voices[turn.Voice]
		if !ok || seen[turn.Voice] {
			continue
		}
		seen[turn.Voice] = true
		full := resolveVoicePath(path, voicesDir)
		if _, err := os.Stat(full); err != nil {
			return fmt.Errorf("voice reference %q: %w", turn.Voice, err)
		}
	}
	return nil
}

func (g *Generator) voicePath(doc *dialogue.Document, turn dialogue.Turn, voicesDir string) string {
	path, ok := doc.Voices[turn.Voice]
	if !ok {
		// Undeclared voices only reach here with the default-voice
		// policy enabled; empty path selects the engine's own voice.
		return ""
	}
	return resolveVoicePath(path, voicesDir)
}

// resolveVoicePath joins bare file names with the configured voices
// directory; paths that already carry a directory are used as given.
func resolveVoicePath(path, voicesDir string) string {
	if voicesDir == "" || filepath.IsAbs(path) || filepath.Dir(path) != "." {
		return path
	}
	return filepath.Join(voicesDir, path)
}

func preview(text string) string {
	const max = 50
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
