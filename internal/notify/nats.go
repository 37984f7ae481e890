package notify

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/pmr_assist/backend/internal/models"
)

const (
	StreamName    = "PMR_NOTIFICATIONS"
	SubjectPrefix = "pmr.notifications"
)

// NATSSender publishes notifications to JetStream, one subject per
// audience and type, e.g. pmr.notifications.passenger.agent_assigned.
type NATSSender struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func ConnectNATS(ctx context.Context, url string, logger zerolog.Logger) (*NATSSender, error) {
	nc, err := nats.Connect(url, nats.Name("pmr-assist-backend"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	logger.Info().Str("url", url).Str("stream", StreamName).Msg("nats connected")
	return &NATSSender{nc: nc, js: js}, nil
}

func (s *NATSSender) Name() string { return "nats" }

func Subject(n models.Notification) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, n.Audience, n.Type)
}

func (s *NATSSender) Send(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}
	subject := Subject(n)
	if _, err := s.js.Publish(ctx, subject, data, jetstream.WithMsgID(n.ID)); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

func (s *NATSSender) Close() {
	s.nc.Close()
}
