package editor

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/pdfflow/pkg/eventbus"
	"github.com/dukex/pdfflow/pkg/events"
)

// RejectionNoticeTTL is how long a refused-connection notice stays visible.
const RejectionNoticeTTL = 3 * time.Second

// Notifier publishes editor notices on the event bus.
type Notifier struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewNotifier(publisher eventbus.EventPublisher, logger *slog.Logger, now func() time.Time) *Notifier {
	return &Notifier{publisher: publisher, logger: logger, now: now}
}

// Notify publishes a notice. A zero ttl keeps it until dismissed.
// Publish failures are logged; a lost notice never fails an editor action.
func (n *Notifier) Notify(ctx context.Context, workflowID string, level events.NoticeLevel, message string, ttl time.Duration) events.EditorNotice {
	notice := events.EditorNotice{
		BaseEvent: events.NewBaseEvent(events.EditorNoticeEvent, workflowID),
		Level:     level,
		Message:   message,
	}

	notice.Timestamp = n.now()
	if ttl > 0 {
		notice.ExpiresAt = notice.Timestamp.Add(ttl)
	}

	if err := n.publisher.Publish(ctx, workflowID, notice); err != nil {
		n.logger.WarnContext(ctx, "Failed to publish editor notice", "error", err, "message", message)
	}

	return notice
}
