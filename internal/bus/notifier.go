package bus

import (
	"log/slog"

	"github.com/tendant/simple-curator/pkg/schema"
)

// Publisher is the part of Client the notifier needs.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// EventNotifier publishes job lifecycle events on <prefix>.<status>.
type EventNotifier struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

func NewEventNotifier(pub Publisher, prefix string, logger *slog.Logger) *EventNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventNotifier{pub: pub, prefix: prefix, logger: logger}
}

// Notify never fails the caller; publish errors are logged.
func (n *EventNotifier) Notify(evt schema.JobEvent) {
	subject := n.prefix + "." + string(evt.Status)
	if err := n.pub.PublishJSON(subject, evt); err != nil {
		n.logger.Warn("publish job event failed", "job_id", evt.JobID, "subject", subject, "err", err)
	}
}
