// Package protocol defines the wire types shared by the HTTP API, the
// progress bus and the run store.
package protocol

import "time"

// Run status values, in lifecycle order. Error is reachable from any state.
const (
	StatusIdle           = "idle"
	StatusGeneratingLine = "generating_line"
	StatusMerging        = "merging"
	StatusCompleted      = "completed"
	StatusError          = "error"
)

// ProgressUpdate is the observable state of one generation run.
type ProgressUpdate struct {
	RunID       string `json:"run_id,omitempty"`
	CurrentLine int    `json:"current_line"`
	TotalLines  int    `json:"total_lines"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// GenerateRequest is the generation contract consumed by the HTTP
// layer. SilenceMS, SaveIndividual and ProcessAudio are pointers so an
// omitted field is distinguishable from an explicit zero and falls back
// to the configured pipeline default.
type GenerateRequest struct {
	DialogueText   string  `json:"dialogue_text"`
	OutputPrefix   string  `json:"output_prefix"`
	SilenceMS      *int    `json:"silence_ms,omitempty"`
	Language       string  `json:"language"`
	Exaggeration   float64 `json:"exaggeration"`
	CFGWeight      float64 `json:"cfg_weight"`
	SaveIndividual *bool   `json:"save_individual,omitempty"`
	ProcessAudio   *bool   `json:"process_audio,omitempty"`
	Device         string  `json:"device"`
}

// GenerateResponse reports a successful run.
type GenerateResponse struct {
	Status          string  `json:"status"`
	OutputFile      string  `json:"output_file"`
	LinesDir        *string `json:"lines_dir"`
	DurationSeconds float64 `json:"duration_seconds"`
	NumLines        int     `json:"num_lines"`
	Timestamp       string  `json:"timestamp"`
}

// ErrorResponse reports a failed run.
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// RunEvent is one recorded state transition of a run.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	Line      int       `json:"line,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NATS subjects.
const (
	SubjectProgress = "voxweave.progress"
	SubjectRunDone  = "voxweave.run.done"
)
