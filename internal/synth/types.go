package synth

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxweave/voxweave/internal/audio"
)

// Request contains parameters for synthesizing one utterance.
type Request struct {
	Text string
	// VoicePath points at the reference sample to clone; empty means
	// the engine's built-in default voice.
	VoicePath    string
	Language     string
	Exaggeration float64
	CFGWeight    float64
}

// Synthesizer is the contract for the external voice-cloning engine.
// Implementations are expected to hold exclusive device state; callers
// must not overlap Synthesize calls.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (audio.Clip, error)
}

// Engine hyperparameter bounds, enforced before the engine is invoked.
const (
	MinExaggeration = 1.0
	MaxExaggeration = 3.0
	MinCFGWeight    = 0.0
	MaxCFGWeight    = 1.0
)

// Languages the engine accepts.
var SupportedLanguages = map[string]bool{
	"en": true, "it": true, "es": true, "fr": true,
	"de": true, "zh": true, "ja": true, "ko": true,
}

var (
	// ErrTextTooShort marks a line whose normalized text is below the
	// minimum the engine can voice.
	ErrTextTooShort = errors.New("text too short for synthesis")
	// ErrInvalidParameter marks an engine hyperparameter outside its
	// documented range.
	ErrInvalidParameter = errors.New("invalid synthesis parameter")
	// ErrEngineFailure wraps errors reported by the engine itself.
	ErrEngineFailure = errors.New("synthesis engine failure")
)

// TurnError attaches the originating dialogue line to a synthesis
// failure so callers can report which line broke the run.
type TurnError struct {
	Line int
	Err  error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line+1, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }
