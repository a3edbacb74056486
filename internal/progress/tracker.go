// Package progress tracks the observable state of a generation run.
// One Tracker exists per run and is handed to the assembler explicitly;
// observers poll Snapshot or subscribe via the optional bus mirror.
package progress

import (
	"sync"

	"github.com/voxweave/voxweave/internal/protocol"
)

// Sink receives every state change, in order. Implementations must be
// fast; they run on the generation path.
type Sink interface {
	Publish(update protocol.ProgressUpdate)
}

// Tracker is the mutable progress record for one run. Writes happen
// only on the run's own goroutine; reads may come from anywhere.
type Tracker struct {
	mu    sync.Mutex
	state protocol.ProgressUpdate
	sinks []Sink
}

// NewTracker creates a tracker in the idle state.
func NewTracker(runID string, sinks ...Sink) *Tracker {
	return &Tracker{
		state: protocol.ProgressUpdate{RunID: runID, Status: protocol.StatusIdle},
		sinks: sinks,
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() protocol.ProgressUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reset returns the tracker to idle with a known line count.
func (t *Tracker) Reset(totalLines int) {
	t.set(func(s *protocol.ProgressUpdate) {
		s.CurrentLine = 0
		s.TotalLines = totalLines
		s.Status = protocol.StatusIdle
		s.Message = ""
	})
}

// GeneratingLine records that line is being synthesized (1-based).
func (t *Tracker) GeneratingLine(line int, message string) {
	t.set(func(s *protocol.ProgressUpdate) {
		s.CurrentLine = line
		s.Status = protocol.StatusGeneratingLine
		s.Message = message
	})
}

// Merging records the concatenation phase.
func (t *Tracker) Merging() {
	t.set(func(s *protocol.ProgressUpdate) {
		s.Status = protocol.StatusMerging
		s.Message = "Merging audio segments"
	})
}

// Completed records a successful run.
func (t *Tracker) Completed(message string) {
	t.set(func(s *protocol.ProgressUpdate) {
		s.Status = protocol.StatusCompleted
		s.Message = message
	})
}

// Failed records a terminal error.
func (t *Tracker) Failed(message string) {
	t.set(func(s *protocol.ProgressUpdate) {
		s.Status = protocol.StatusError
		s.Message = message
	})
}

func (t *Tracker) set(mutate func(*protocol.ProgressUpdate)) {
	t.mu.Lock()
	mutate(&t.state)
	update := t.state
	t.mu.Unlock()

	for _, sink := range t.sinks {
		sink.Publish(update)
	}
}
