package signals

import (
	"context"

	"github.com/pmr_assist/backend/internal/models"
)

type IncidentFeed interface {
	ActiveIncidentsForUser(ctx context.Context, userID string) ([]models.Incident, error)
}

// ConnectionTiming returns nil minutes when the mission has no upcoming
// connection.
type ConnectionTiming interface {
	MinutesUntilNextConnection(ctx context.Context, m models.Mission) (*int, error)
}

// DelaySignal returns 0 when no delay is known.
type DelaySignal interface {
	CurrentDelayMinutes(ctx context.Context, m models.Mission) (int, error)
}

type Source interface {
	IncidentFeed
	ConnectionTiming
	DelaySignal
}

// Composite assembles a Source from independent collaborators.
type Composite struct {
	Incidents   IncidentFeed
	Connections ConnectionTiming
	Delays      DelaySignal
}

func (c Composite) ActiveIncidentsForUser(ctx context.Context, userID string) ([]models.Incident, error) {
	return c.Incidents.ActiveIncidentsForUser(ctx, userID)
}

func (c Composite) MinutesUntilNextConnection(ctx context.Context, m models.Mission) (*int, error) {
	return c.Connections.MinutesUntilNextConnection(ctx, m)
}

func (c Composite) CurrentDelayMinutes(ctx context.Context, m models.Mission) (int, error) {
	return c.Delays.CurrentDelayMinutes(ctx, m)
}
