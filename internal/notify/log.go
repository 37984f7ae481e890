package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pmr_assist/backend/internal/models"
)

// LogSender writes notifications to the service log. It is the sender used
// when no broker is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (LogSender) Name() string { return "log" }

func (l LogSender) Send(ctx context.Context, n models.Notification) error {
	l.Logger.Info().
		Str("notification_id", n.ID).
		Str("audience", string(n.Audience)).
		Str("user_id", n.UserID).
		Str("type", n.Type).
		Str("priority", string(n.Priority)).
		Str("title", n.Title).
		Msg("notification")
	return nil
}
