package service

import (
	"math"
	"time"

	"github.com/pmr_assist/backend/internal/models"
	"github.com/pmr_assist/backend/internal/utils"
)

const (
	WeightAvailability = 0.30
	WeightSkills       = 0.25
	WeightProximity    = 0.25
	WeightWorkload     = 0.15
	WeightPmrPriority  = 0.05
)

// MissionContext is everything the scoring engine needs to know about a mission.
type MissionContext struct {
	MissionID            string               `json:"mission_id"`
	UserID               string               `json:"user_id"`
	PmrNeeds             models.PmrNeeds      `json:"pmr_needs"`
	Location             *models.GeoPoint     `json:"location"`
	TransportMode        models.TransportMode `json:"transport_mode"`
	IsCriticalConnection bool                 `json:"is_critical_connection"`
}

type ScoreBreakdown struct {
	Availability float64 `json:"availability"`
	Skills       float64 `json:"skills"`
	Proximity    float64 `json:"proximity"`
	Workload     float64 `json:"workload"`
	PmrPriority  float64 `json:"pmr_priority"`
	Total        float64 `json:"total"`
}

// ScoreAgent computes the 0-100 fitness of an agent for a mission. It does
// not touch the profile.
func ScoreAgent(p models.AgentProfile, mc MissionContext, now time.Time) ScoreBreakdown {
	b := ScoreBreakdown{
		Availability: availabilityScore(p.Availability),
		Skills:       skillsScore(p.Skills, mc),
		Proximity:    proximityScore(p.Availability.CurrentLocation, mc.Location),
		Workload:     workloadScore(p.Availability, now),
		PmrPriority:  pmrPriorityScore(mc),
	}
	total := b.Availability*WeightAvailability +
		b.Skills*WeightSkills +
		b.Proximity*WeightProximity +
		b.Workload*WeightWorkload +
		b.PmrPriority*WeightPmrPriority
	b.Total = roundOne(clampScore(total))
	return b
}

func availabilityScore(a models.AgentAvailability) float64 {
	var score float64
	switch a.Status {
	case models.AgentAvailable:
		score = 40
	case models.AgentBreak:
		score = 25
	case models.AgentBusy:
		score = 10
	case models.AgentOnMission:
		score = 5
	}

	score += 30 * (1 - workloadIndex(a))

	switch {
	case a.AssignedMissions <= 0:
		score += 15
	case a.AssignedMissions == 1:
		score += 10
	case a.AssignedMissions == 2:
		score += 5
	}

	if a.MaxMissionsPerDay > 0 {
		remaining := a.MaxMissionsPerDay - a.TotalMissionsToday
		if remaining > 0 {
			score += 15 * math.Min(float64(remaining)/float64(a.MaxMissionsPerDay), 1)
		}
	}
	return clampScore(score)
}

// workloadIndex is 0 for an idle agent and 1 for a saturated one.
func workloadIndex(a models.AgentAvailability) float64 {
	concurrent := math.Min(float64(max(a.AssignedMissions, 0))/3, 1)
	daily := 1.0
	if a.MaxMissionsPerDay > 0 {
		daily = math.Min(float64(max(a.TotalMissionsToday, 0))/float64(a.MaxMissionsPerDay), 1)
	}
	return 0.6*concurrent + 0.4*daily
}

func skillsScore(s models.AgentSkills, mc MissionContext) float64 {
	var score float64

	category := models.MapDisability(mc.PmrNeeds.TypeHandicap)
	if containsCategory(s.DisabilityTypes, category) {
		score += 35
	} else {
		score += 10
	}

	score += 25 * assistanceMatch(s.MaxAssistanceLevel, mc.PmrNeeds.AssistanceLevel)

	if containsMode(s.TransportModes, mc.TransportMode) {
		score += 20
	} else {
		score += 5
	}

	switch s.ExperienceLevel {
	case models.ExperienceExpert:
		score += 15
	case models.ExperienceExperienced:
		score += 12
	case models.ExperienceIntermediate:
		score += 8
	case models.ExperienceBeginner:
		score += 5
	}

	switch {
	case s.AverageRating >= 4.5:
		score += 5
	case s.AverageRating >= 4.0:
		score += 4
	case s.AverageRating >= 3.5:
		score += 3
	}
	return clampScore(score)
}

func assistanceMatch(agentMax, required models.AssistanceLevel) float64 {
	req := required.Rank()
	if req < 0 {
		req = models.AssistanceMinimal.Rank()
	}
	have := agentMax.Rank()
	switch {
	case have >= req:
		return 1.0
	case have == req-1:
		return 0.7
	}
	return 0.3
}

func proximityScore(agent, mission *models.GeoPoint) float64 {
	d, ok := utils.DistanceKm(agent, mission)
	if !ok {
		return 50
	}
	switch {
	case d < 2:
		return 100
	case d < 5:
		return 85
	case d < 10:
		return 70
	case d < 20:
		return 50
	case d < 50:
		return 30
	}
	return 10
}

func workloadScore(a models.AgentAvailability, now time.Time) float64 {
	score := math.Max(0, 50-15*float64(a.AssignedMissions))
	score += math.Max(0, 30-4*float64(a.TotalMissionsToday))

	if a.LastMissionEnd == nil {
		score += 20
	} else {
		rest := now.Sub(*a.LastMissionEnd).Minutes()
		switch {
		case rest > 120:
			score += 20
		case rest > 60:
			score += 15
		case rest > 30:
			score += 10
		default:
			score += 5
		}
	}
	return clampScore(score)
}

func pmrPriorityScore(mc MissionContext) float64 {
	score := 50.0
	switch mc.PmrNeeds.AssistanceLevel {
	case models.AssistanceFull, models.AssistanceMedical:
		score += 30
	case models.AssistanceSignificant:
		score += 20
	case models.AssistancePartial:
		score += 10
	case models.AssistanceMinimal:
		score += 5
	}
	if mc.IsCriticalConnection {
		score += 20
	}
	return clampScore(score)
}

func containsCategory(set []models.DisabilityCategory, c models.DisabilityCategory) bool {
	for _, v := range set {
		if v == c {
			return true
		}
	}
	return false
}

func containsMode(set []models.TransportMode, m models.TransportMode) bool {
	for _, v := range set {
		if v == m {
			return true
		}
	}
	return false
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func roundOne(v float64) float64 {
	return math.Round(v*10) / 10
}
