package audio

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	pcmBitDepth = 16
	// pcmFullScale is the symmetric conversion factor used on both the
	// encode and decode side so a round-trip stays within one LSB.
	pcmFullScale = 32767
)

// WriteWAV encodes the clip as 16-bit mono PCM.
func WriteWAV(w io.WriteSeeker, c Clip) error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		SourceBitDepth: pcmBitDepth,
		Data:           make([]int, len(c.Samples)),
	}
	for i, s := range c.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(math.Round(s * pcmFullScale))
	}
	enc := wav.NewEncoder(w, c.SampleRate, pcmBitDepth, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteWAVFile writes the clip to path, creating parent directories.
// The file is written to a temporary sibling first and renamed into
// place so a failed write never leaves a truncated artifact behind.
func WriteWAVFile(path string, c Clip) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, ".voxweave_*.wav")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	tmpName := tmp.Name()
	if err := WriteWAV(tmp, c); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// ReadWAVFile decodes a 16-bit PCM WAV file into a mono clip.
// Multi-channel input is downmixed by averaging.
func ReadWAVFile(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("wav %s: missing format", path)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	scale := 1.0 / float64(int(1)<<(dec.BitDepth-1)-1)
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch]) * scale
		}
		samples[i] = sum / float64(channels)
	}
	return Clip{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// DecodePCM16 converts little-endian 16-bit PCM bytes into a clip.
func DecodePCM16(pcm []byte, sampleRate int) (Clip, error) {
	if len(pcm)%2 != 0 {
		return Clip{}, fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]float64, len(pcm)/2)
	for i := range samples {
		v := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		samples[i] = float64(v) / pcmFullScale
	}
	return Clip{Samples: samples, SampleRate: sampleRate}, nil
}
