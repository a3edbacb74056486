// Package synth wraps the external voice-cloning engine behind a narrow
// Synthesizer interface and validates every line before it reaches the
// engine.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/voxweave/voxweave/internal/audio"
	"github.com/voxweave/voxweave/internal/dialogue"
	"github.com/voxweave/voxweave/internal/textnorm"
)

// Params are the engine hyperparameters shared by every turn of a run.
type Params struct {
	Language     string
	Exaggeration float64
	CFGWeight    float64
}

// Validate checks the hyperparameters against their documented ranges.
func (p Params) Validate() error {
	if !SupportedLanguages[p.Language] {
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidParameter, p.Language)
	}
	if p.Exaggeration < MinExaggeration || p.Exaggeration > MaxExaggeration {
		return fmt.Errorf("%w: exaggeration %.2f outside [%.1f, %.1f]",
			ErrInvalidParameter, p.Exaggeration, MinExaggeration, MaxExaggeration)
	}
	if p.CFGWeight < MinCFGWeight || p.CFGWeight > MaxCFGWeight {
		return fmt.Errorf("%w: cfg_weight %.2f outside [%.1f, %.1f]",
			ErrInvalidParameter, p.CFGWeight, MinCFGWeight, MaxCFGWeight)
	}
	return nil
}

// Adapter normalizes text, validates parameters and buffers, and maps
// engine failures to the originating dialogue line. Single attempt per
// line: retry policy belongs to callers.
type Adapter struct {
	engine Synthesizer
	logger *slog.Logger
}

func NewAdapter(engine Synthesizer, log *slog.Logger) *Adapter {
	return &Adapter{
		engine: engine,
		logger: log.With(slog.String("component", "synth-adapter")),
	}
}

// SynthesizeTurn renders one dialogue turn. voicePath may be empty when
// the no-clone default voice is in use. All failures carry the turn's
// line index via TurnError.
func (a *Adapter) SynthesizeTurn(ctx context.Context, turn dialogue.Turn, voicePath string, params Params) (audio.Clip, error) {
	if err := params.Validate(); err != nil {
		return audio.Clip{}, &TurnError{Line: turn.Index, Err: err}
	}

	text := textnorm.Normalize(turn.Text)
	if text != turn.Text {
		a.logger.Debug("text normalized for pronunciation",
			slog.Int("line", turn.Index+1))
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < textnorm.MinLength {
		return audio.Clip{}, &TurnError{
			Line: turn.Index,
			Err:  fmt.Errorf("%w: %q", ErrTextTooShort, text),
		}
	}

	clip, err := a.engine.Synthesize(ctx, Request{
		Text:         text,
		VoicePath:    voicePath,
		Language:     params.Language,
		Exaggeration: params.Exaggeration,
		CFGWeight:    params.CFGWeight,
	})
	if err != nil {
		return audio.Clip{}, &TurnError{Line: turn.Index, Err: err}
	}
	if len(clip.Samples) == 0 {
		return audio.Clip{}, &TurnError{
			Line: turn.Index,
			Err:  fmt.Errorf("%w: engine returned empty buffer", ErrEngineFailure),
		}
	}
	if clip.SampleRate < 8000 || clip.SampleRate > 192000 {
		return audio.Clip{}, &TurnError{
			Line: turn.Index,
			Err:  fmt.Errorf("%w: unsupported sample rate %d", ErrEngineFailure, clip.SampleRate),
		}
	}
	return clip, nil
}
