package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmr_assist/backend/internal/db"
	"github.com/pmr_assist/backend/internal/models"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// Gare de Lyon, Paris.
var meetingPoint = models.GeoPoint{Lat: 48.8443, Lon: 2.3743}

type fakeSignals struct {
	incidents   map[string][]models.Incident
	incidentErr error
	connection  map[string]int
	delay       map[string]int
	delayErr    error
}

func (f *fakeSignals) ActiveIncidentsForUser(ctx context.Context, userID string) ([]models.Incident, error) {
	if f.incidentErr != nil {
		return nil, f.incidentErr
	}
	return f.incidents[userID], nil
}

func (f *fakeSignals) MinutesUntilNextConnection(ctx context.Context, m models.Mission) (*int, error) {
	v, ok := f.connection[m.ID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (f *fakeSignals) CurrentDelayMinutes(ctx context.Context, m models.Mission) (int, error) {
	if f.delayErr != nil {
		return 0, f.delayErr
	}
	return f.delay[m.ID], nil
}

func newTestEngine(store Store, sig *fakeSignals) *Engine {
	e := &Engine{
		Store:  store,
		Policy: DefaultPolicy(),
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return testNow },
	}
	if sig != nil {
		e.Signals = sig
	}
	return e
}

func profile(id string, status models.AgentStatus, loc *models.GeoPoint, cats []models.DisabilityCategory, assigned int) models.AgentProfile {
	return models.AgentProfile{
		Agent: models.Agent{ID: id, Name: "Agent " + id},
		Availability: models.AgentAvailability{
			AgentID:            id,
			Status:             status,
			AssignedMissions:   assigned,
			TotalMissionsToday: assigned,
			MaxMissionsPerDay:  8,
			CurrentLocation:    loc,
		},
		Skills: models.AgentSkills{
			DisabilityTypes:    cats,
			MaxAssistanceLevel: models.AssistanceFull,
			TransportModes:     []models.TransportMode{models.TransportTrain},
			ExperienceLevel:    models.ExperienceExperienced,
			AverageRating:      4.2,
		},
	}
}

// offset returns a point roughly km kilometres north of the meeting point.
func offset(km float64) *models.GeoPoint {
	return &models.GeoPoint{Lat: meetingPoint.Lat + km/111.0, Lon: meetingPoint.Lon}
}

func wheelchair() []models.DisabilityCategory {
	return []models.DisabilityCategory{models.DisabilityWheelchair}
}

func seedStore(t *testing.T, agents []models.AgentProfile, missions []models.Mission, needs []models.PmrNeeds) *db.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := db.NewMemoryStore()
	for _, a := range agents {
		if err := s.PutAgent(ctx, a); err != nil {
			t.Fatalf("put agent: %v", err)
		}
	}
	for _, m := range missions {
		if err := s.PutMission(ctx, m); err != nil {
			t.Fatalf("put mission: %v", err)
		}
	}
	for _, n := range needs {
		if err := s.PutPmrNeeds(ctx, n); err != nil {
			t.Fatalf("put needs: %v", err)
		}
	}
	return s
}

func mission(id, userID string, agentID *string) models.Mission {
	loc := meetingPoint
	return models.Mission{
		ID:            id,
		ReservationID: "res_" + id,
		SegmentID:     "seg_" + id,
		UserID:        userID,
		AgentID:       agentID,
		PriorityLevel: models.PriorityNormal,
		Status:        models.MissionPending,
		TransportMode: models.TransportTrain,
		Location:      &loc,
		ScheduledAt:   testNow.Add(2 * time.Hour),
	}
}

func wheelchairNeeds(userID string) models.PmrNeeds {
	return models.PmrNeeds{UserID: userID, TypeHandicap: "fauteuil roulant", AssistanceLevel: models.AssistanceSignificant, MobilityAid: "wheelchair"}
}

func ptr[T any](v T) *T { return &v }

func mustAgent(t *testing.T, s Store, id string) models.AgentProfile {
	t.Helper()
	p, err := s.GetAgent(context.Background(), id)
	if err != nil {
		t.Fatalf("get agent %s: %v", id, err)
	}
	return p
}

func mustMission(t *testing.T, s Store, id string) models.Mission {
	t.Helper()
	m, err := s.GetMission(context.Background(), id)
	if err != nil {
		t.Fatalf("get mission %s: %v", id, err)
	}
	return m
}
