// Package dsp implements the post-processing chain applied to each
// synthesized utterance: high-pass filtering, de-essing, RMS loudness
// normalization and edge fades. Every stage is a pure function over an
// immutable sample buffer; identical input always yields identical output.
package dsp

import (
	"math"
	"time"

	"github.com/voxweave/voxweave/internal/audio"
)

// Chain holds the fixed stage parameters. The zero value is not useful;
// use DefaultChain.
type Chain struct {
	HighpassHz     float64
	DeessCenterHz  float64
	DeessQ         float64
	DeessGainDB    float64
	TargetRMS      float64
	PeakCeiling    float64
	FadeIn         time.Duration
	FadeOut        time.Duration
	EnableHighpass bool
	EnableDeess    bool
	EnableRMS      bool
	EnableFade     bool
}

// DefaultChain returns the production parameters: 80 Hz rumble cut,
// -6 dB sibilant reduction around 6.5 kHz, RMS target 0.1, 10 ms / 50 ms
// fades.
func DefaultChain() Chain {
	return Chain{
		HighpassHz:     80,
		DeessCenterHz:  6500,
		DeessQ:         0.7,
		DeessGainDB:    -6,
		TargetRMS:      0.1,
		PeakCeiling:    0.99,
		FadeIn:         10 * time.Millisecond,
		FadeOut:        50 * time.Millisecond,
		EnableHighpass: true,
		EnableDeess:    true,
		EnableRMS:      true,
		EnableFade:     true,
	}
}

// Process runs the chain in its fixed order: high-pass, de-ess,
// normalize, fade. Order matters; each stage consumes the previous
// stage's output.
func (c Chain) Process(clip audio.Clip) audio.Clip {
	out := clip
	if c.EnableHighpass {
		out = Highpass(out, c.HighpassHz)
	}
	if c.EnableDeess {
		out = Deess(out, c.DeessCenterHz, c.DeessQ, c.DeessGainDB)
	}
	if c.EnableRMS {
		out = NormalizeRMS(out, c.TargetRMS, c.PeakCeiling)
	}
	if c.EnableFade {
		out = Fade(out, c.FadeIn, c.FadeOut)
	}
	return out
}

// biquad is a direct-form-I second-order IIR filter section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
}

func (f biquad) apply(in []float64) []float64 {
	out := make([]float64, len(in))
	var x1, x2, y1, y2 float64
	for i, x := range in {
		y := f.b0*x + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
		out[i] = y
		x2, x1 = x1, x
		y2, y1 = y1, y
	}
	return out
}

// highpassCoeffs computes RBJ audio-EQ-cookbook high-pass coefficients.
func highpassCoeffs(sampleRate, cutoff, q float64) biquad {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// bandpassCoeffs computes RBJ band-pass coefficients with 0 dB peak gain.
func bandpassCoeffs(sampleRate, center, q float64) biquad {
	w0 := 2 * math.Pi * center / sampleRate
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)
	a0 := 1 + alpha
	return biquad{
		b0: alpha / a0,
		b1: 0,
		b2: -alpha / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// Highpass removes energy below cutoff Hz (sub-audible rumble and
// breath noise) with a fixed-Q biquad.
func Highpass(clip audio.Clip, cutoff float64) audio.Clip {
	if len(clip.Samples) == 0 || clip.SampleRate <= 0 {
		return clip
	}
	f := highpassCoeffs(float64(clip.SampleRate), cutoff, math.Sqrt2/2)
	return audio.Clip{Samples: f.apply(clip.Samples), SampleRate: clip.SampleRate}
}

// Deess attenuates the sibilant band around center Hz by gainDB. The
// band is isolated with a band-pass biquad and only applied back
// attenuated when its RMS exceeds that of the residual signal, so
// clips without sibilant emphasis pass through untouched.
func Deess(clip audio.Clip, center, q, gainDB float64) audio.Clip {
	if len(clip.Samples) == 0 || clip.SampleRate <= 0 {
		return clip
	}
	// The band must sit below Nyquist for the filter to be stable.
	if center >= float64(clip.SampleRate)/2 {
		return clip
	}
	f := bandpassCoeffs(float64(clip.SampleRate), center, q)
	band := f.apply(clip.Samples)

	var bandEnergy, restEnergy float64
	for i, s := range clip.Samples {
		r := s - band[i]
		bandEnergy += band[i] * band[i]
		restEnergy += r * r
	}
	if bandEnergy <= restEnergy {
		return clip
	}

	gain := math.Pow(10, gainDB/20)
	out := make([]float64, len(clip.Samples))
	for i, s := range clip.Samples {
		out[i] = s - band[i] + band[i]*gain
	}
	return audio.Clip{Samples: out, SampleRate: clip.SampleRate}
}

// NormalizeRMS scales the clip so its RMS level hits target, capping the
// scale so the peak stays below ceiling. A silent clip is returned as is.
func NormalizeRMS(clip audio.Clip, target, ceiling float64) audio.Clip {
	rms := clip.RMS()
	if rms < 1e-8 {
		return clip
	}
	scale := target / rms
	if peak := clip.Peak(); peak*scale > ceiling {
		scale = ceiling / peak
	}
	out := make([]float64, len(clip.Samples))
	for i, s := range clip.Samples {
		out[i] = s * scale
	}
	return audio.Clip{Samples: out, SampleRate: clip.SampleRate}
}

// Fade applies a linear fade-in and fade-out. Fade lengths are clamped
// to half the clip so the two ramps never overlap.
func Fade(clip audio.Clip, in, out time.Duration) audio.Clip {
	n := len(clip.Samples)
	if n == 0 || clip.SampleRate <= 0 {
		return clip
	}
	inSamples := int(float64(clip.SampleRate) * in.Seconds())
	outSamples := int(float64(clip.SampleRate) * out.Seconds())
	if inSamples > n/2 {
		inSamples = n / 2
	}
	if outSamples > n/2 {
		outSamples = n / 2
	}

	samples := make([]float64, n)
	copy(samples, clip.Samples)
	for i := 0; i < inSamples; i++ {
		samples[i] *= float64(i) / float64(inSamples)
	}
	for i := 0; i < outSamples; i++ {
		samples[n-1-i] *= float64(i) / float64(outSamples)
	}
	return audio.Clip{Samples: samples, SampleRate: clip.SampleRate}
}
