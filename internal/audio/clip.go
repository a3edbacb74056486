package audio

import (
	"math"
	"time"
)

// Clip is an in-memory mono audio buffer. Samples are float64 in [-1, 1].
// Operations never mutate the receiver; they return new clips.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Seconds returns the playback length in seconds.
func (c Clip) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Peak returns the maximum absolute sample magnitude.
func (c Clip) Peak() float64 {
	peak := 0.0
	for _, s := range c.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS returns the root-mean-square level of the clip.
func (c Clip) RMS() float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range c.Samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(c.Samples)))
}

// Clone returns a deep copy of the clip.
func (c Clip) Clone() Clip {
	samples := make([]float64, len(c.Samples))
	copy(samples, c.Samples)
	return Clip{Samples: samples, SampleRate: c.SampleRate}
}

// Silence creates a clip of zeros with the given duration.
func Silence(d time.Duration, sampleRate int) Clip {
	n := int(float64(sampleRate) * d.Seconds())
	if n < 0 {
		n = 0
	}
	return Clip{Samples: make([]float64, n), SampleRate: sampleRate}
}

// Concat joins clips back to back. All clips must share a sample rate;
// the first clip's rate is used and empty input yields an empty clip.
func Concat(clips ...Clip) Clip {
	if len(clips) == 0 {
		return Clip{}
	}
	total := 0
	for _, c := range clips {
		total += len(c.Samples)
	}
	out := make([]float64, 0, total)
	for _, c := range clips {
		out = append(out, c.Samples...)
	}
	return Clip{Samples: out, SampleRate: clips[0].SampleRate}
}
