package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/voxweave/voxweave/internal/audio"
)

type execSynth struct {
	cmd        []string
	sampleRate int
	mu         sync.Mutex
}

type execRequest struct {
	Text         string  `json:"text"`
	VoicePath    string  `json:"voice_path,omitempty"`
	Language     string  `json:"language"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	SampleRate   int     `json:"sample_rate"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Error     string `json:"error,omitempty"`
}

// NewExecSynth wraps an external engine process. The engine reads one
// JSON request from stdin and writes one JSON response with base64
// little-endian 16-bit PCM to stdout. The process owns exclusive model
// and device state, so calls are serialized with a mutex.
func NewExecSynth(command string, sampleRate int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (audio.Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{
		Text:         req.Text,
		VoicePath:    req.VoicePath,
		Language:     req.Language,
		Exaggeration: req.Exaggeration,
		CFGWeight:    req.CFGWeight,
		SampleRate:   e.sampleRate,
	})
	if err != nil {
		return audio.Clip{}, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v: %s", ErrEngineFailure, err, stderr.String())
	}

	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return audio.Clip{}, fmt.Errorf("%w: decode engine response: %v", ErrEngineFailure, err)
	}
	if resp.Error != "" {
		return audio.Clip{}, fmt.Errorf("%w: %s", ErrEngineFailure, resp.Error)
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: decode engine pcm: %v", ErrEngineFailure, err)
	}
	clip, err := audio.DecodePCM16(pcm, e.sampleRate)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}
	return clip, nil
}
