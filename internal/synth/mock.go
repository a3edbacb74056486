package synth

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/voxweave/voxweave/internal/audio"
)

type mockSynth struct {
	sampleRate int
}

// NewMockSynth returns an engine that renders each request as a short
// deterministic tone whose pitch and length are derived from the text.
// Used in tests and for exercising the pipeline without a model.
func NewMockSynth(sampleRate int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (audio.Clip, error) {
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}

	h := fnv.New32a()
	h.Write([]byte(req.VoicePath))
	freq := 160 + float64(h.Sum32()%240)

	// Roughly 60 ms of audio per character, as a stand-in for speech.
	n := len(req.Text) * m.sampleRate * 60 / 1000
	if n < m.sampleRate/10 {
		n = m.sampleRate / 10
	}
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.3 * math.Sin(2*math.Pi*freq*float64(i)/float64(m.sampleRate))
	}
	return audio.Clip{Samples: samples, SampleRate: m.sampleRate}, nil
}
