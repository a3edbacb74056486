package progress

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/voxweave/voxweave/internal/bus"
	"github.com/voxweave/voxweave/internal/protocol"
)

// BusPublisher mirrors progress updates onto the NATS bus so external
// consumers can subscribe instead of polling the HTTP stream.
type BusPublisher struct {
	bus    *bus.Client
	logger *slog.Logger
}

func NewBusPublisher(busClient *bus.Client, log *slog.Logger) *BusPublisher {
	return &BusPublisher{
		bus:    busClient,
		logger: log.With(slog.String("component", "progress-publisher")),
	}
}

// Publish sends the update on the progress subject; once a run reaches
// a terminal state it is also announced on the run-done subject.
// Publish failures are logged, never propagated: progress mirroring
// must not break a run.
func (p *BusPublisher) Publish(update protocol.ProgressUpdate) {
	p.send(protocol.SubjectProgress, update)

	if update.Status == protocol.StatusCompleted || update.Status == protocol.StatusError {
		p.send(protocol.SubjectRunDone, protocol.RunEvent{
			RunID:     update.RunID,
			Type:      update.Status,
			Line:      update.CurrentLine,
			Detail:    update.Message,
			Timestamp: time.Now().UTC(),
		})
	}
}

func (p *BusPublisher) send(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("failed to marshal bus payload", slog.String("error", err.Error()))
		return
	}
	if err := p.bus.Conn().Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish on bus",
			slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
