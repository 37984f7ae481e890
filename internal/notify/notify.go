package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pmr_assist/backend/internal/metrics"
	"github.com/pmr_assist/backend/internal/models"
)

// Sender delivers one notification over a single channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, n models.Notification) error
}

// Service fans events out to every registered sender. Delivery failures are
// logged and never reported back to the caller.
type Service struct {
	senders []Sender
	logger  zerolog.Logger
}

func NewService(logger zerolog.Logger, senders ...Sender) *Service {
	return &Service{senders: senders, logger: logger}
}

func (s *Service) Dispatch(ctx context.Context, events []models.Notification) {
	if s == nil {
		return
	}
	for _, n := range events {
		for _, sender := range s.senders {
			if err := sender.Send(ctx, n); err != nil {
				metrics.NotificationsTotal.WithLabelValues(sender.Name(), "failed").Inc()
				s.logger.Warn().
					Err(err).
					Str("sender", sender.Name()).
					Str("notification_id", n.ID).
					Str("type", n.Type).
					Msg("notification send failed")
				continue
			}
			metrics.NotificationsTotal.WithLabelValues(sender.Name(), "sent").Inc()
		}
	}
}

func (s *Service) SenderCount() int {
	if s == nil {
		return 0
	}
	return len(s.senders)
}
