package signals

import (
	"context"
	"fmt"

	"github.com/pmr_assist/backend/internal/models"
	"github.com/pmr_assist/backend/internal/utils"
)

// MockAdapter derives stable pseudo-signals from ids so a local stack shows
// escalations and reassignments without an operations API.
type MockAdapter struct{}

func (MockAdapter) ActiveIncidentsForUser(ctx context.Context, userID string) ([]models.Incident, error) {
	key := "incident:" + userID
	if utils.HashIndex(key, 10) != 0 {
		return nil, nil
	}
	severities := []models.IncidentSeverity{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical}
	sev := severities[utils.HashIndex("severity:"+userID, len(severities))]
	return []models.Incident{{
		ID:       fmt.Sprintf("inc_%05d", utils.HashIndex(key, 100000)),
		UserID:   userID,
		Severity: sev,
		Title:    "Simulated incident",
	}}, nil
}

func (MockAdapter) MinutesUntilNextConnection(ctx context.Context, m models.Mission) (*int, error) {
	if !m.IsCriticalConnection {
		return nil, nil
	}
	minutes := 5 + utils.HashIndex("connection:"+m.ID, 115)
	return &minutes, nil
}

func (MockAdapter) CurrentDelayMinutes(ctx context.Context, m models.Mission) (int, error) {
	delays := []int{0, 0, 0, 0, 5, 15, 30, 75}
	return delays[utils.HashIndex("delay:"+m.ID, len(delays))], nil
}
