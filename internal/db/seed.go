package db

import (
	"context"
	"fmt"
	"time"

	"github.com/pmr_assist/backend/internal/models"
)

// Seeder is implemented by both stores.
type Seeder interface {
	PutAgent(ctx context.Context, p models.AgentProfile) error
	PutMission(ctx context.Context, m models.Mission) error
	PutPmrNeeds(ctx context.Context, n models.PmrNeeds) error
}

// SeedDemo loads a small Paris-area fixture: four agents, three passengers
// and three pending missions.
func SeedDemo(ctx context.Context, s Seeder, now time.Time) error {
	agents := []models.AgentProfile{
		demoAgent("agt_001", "Camille Martin", "SNCF Gares & Connexions", models.AgentAvailable,
			&models.GeoPoint{Lat: 48.8443, Lon: 2.3743},
			[]models.DisabilityCategory{models.DisabilityWheelchair, models.DisabilityVisual},
			models.AssistanceFull, []models.TransportMode{models.TransportTrain, models.TransportTaxi},
			models.ExperienceExpert, 4.8),
		demoAgent("agt_002", "Yanis Benali", "Groupe ADP", models.AgentAvailable,
			&models.GeoPoint{Lat: 49.0097, Lon: 2.5479},
			[]models.DisabilityCategory{models.DisabilityWheelchair, models.DisabilityCognitive},
			models.AssistanceMedical, []models.TransportMode{models.TransportFlight},
			models.ExperienceExperienced, 4.4),
		demoAgent("agt_003", "Lea Dubois", "SNCF Gares & Connexions", models.AgentBreak,
			&models.GeoPoint{Lat: 48.8809, Lon: 2.3553},
			[]models.DisabilityCategory{models.DisabilityHearing, models.DisabilityVisual},
			models.AssistancePartial, []models.TransportMode{models.TransportTrain},
			models.ExperienceIntermediate, 3.9),
		demoAgent("agt_004", "Hugo Lefevre", "Groupe ADP", models.AgentOffDuty,
			&models.GeoPoint{Lat: 48.7262, Lon: 2.3652},
			[]models.DisabilityCategory{models.DisabilityWheelchair},
			models.AssistanceSignificant, []models.TransportMode{models.TransportFlight, models.TransportTaxi},
			models.ExperienceBeginner, 4.1),
	}
	for _, a := range agents {
		if err := s.PutAgent(ctx, a); err != nil {
			return fmt.Errorf("seed agent %s: %w", a.Agent.ID, err)
		}
	}

	needs := []models.PmrNeeds{
		{UserID: "usr_001", TypeHandicap: "fauteuil roulant", AssistanceLevel: models.AssistanceFull, MobilityAid: "wheelchair"},
		{UserID: "usr_002", TypeHandicap: "malvoyant", AssistanceLevel: models.AssistancePartial, MobilityAid: "cane"},
		{UserID: "usr_003", TypeHandicap: "cognitive", AssistanceLevel: models.AssistanceSignificant},
	}
	for _, n := range needs {
		if err := s.PutPmrNeeds(ctx, n); err != nil {
			return fmt.Errorf("seed pmr needs %s: %w", n.UserID, err)
		}
	}

	missions := []models.Mission{
		{ID: "msn_001", ReservationID: "res_001", SegmentID: "seg_001", UserID: "usr_001",
			PriorityLevel: models.PriorityNormal, Status: models.MissionPending, TransportMode: models.TransportTrain,
			Location: &models.GeoPoint{Lat: 48.8443, Lon: 2.3743}, MeetingAddress: "Gare de Lyon, Paris",
			ScheduledAt: now.Add(90 * time.Minute)},
		{ID: "msn_002", ReservationID: "res_002", SegmentID: "seg_002", UserID: "usr_002",
			PriorityLevel: models.PriorityLow, Status: models.MissionValidated, TransportMode: models.TransportFlight,
			IsCriticalConnection: true, Location: &models.GeoPoint{Lat: 49.0097, Lon: 2.5479},
			MeetingAddress: "Aeroport Charles de Gaulle Terminal 2E", ScheduledAt: now.Add(3 * time.Hour)},
		{ID: "msn_003", ReservationID: "res_003", SegmentID: "seg_003", UserID: "usr_003",
			PriorityLevel: models.PriorityNormal, Status: models.MissionPending, TransportMode: models.TransportTaxi,
			MeetingAddress: "Gare du Nord, Paris", ScheduledAt: now.Add(5 * time.Hour)},
	}
	for _, m := range missions {
		if err := s.PutMission(ctx, m); err != nil {
			return fmt.Errorf("seed mission %s: %w", m.ID, err)
		}
	}
	return nil
}

func demoAgent(id, name, employer string, status models.AgentStatus, loc *models.GeoPoint,
	disabilities []models.DisabilityCategory, maxLevel models.AssistanceLevel,
	modes []models.TransportMode, exp models.ExperienceLevel, rating float64) models.AgentProfile {
	return models.AgentProfile{
		Agent: models.Agent{ID: id, Name: name, Employer: employer},
		Availability: models.AgentAvailability{
			AgentID:           id,
			Status:            status,
			MaxMissionsPerDay: 8,
			CurrentLocation:   loc,
		},
		Skills: models.AgentSkills{
			DisabilityTypes:    disabilities,
			MaxAssistanceLevel: maxLevel,
			TransportModes:     modes,
			ExperienceLevel:    exp,
			AverageRating:      rating,
		},
	}
}
