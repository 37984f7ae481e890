package models

import (
	"fmt"
	"strings"
)

type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentBreak     AgentStatus = "break"
	AgentOnMission AgentStatus = "on_mission"
	AgentOffDuty   AgentStatus = "off_duty"
)

func ParseAgentStatus(value string) (AgentStatus, error) {
	s := AgentStatus(strings.ToLower(strings.TrimSpace(value)))
	switch s {
	case AgentAvailable, AgentBusy, AgentBreak, AgentOnMission, AgentOffDuty:
		return s, nil
	}
	return "", fmt.Errorf("unknown agent status %q", value)
}

// AssistanceLevel is ordered: minimal < partial < significant < full < medical.
type AssistanceLevel string

const (
	AssistanceMinimal     AssistanceLevel = "minimal"
	AssistancePartial     AssistanceLevel = "partial"
	AssistanceSignificant AssistanceLevel = "significant"
	AssistanceFull        AssistanceLevel = "full"
	AssistanceMedical     AssistanceLevel = "medical"
)

func ParseAssistanceLevel(value string) (AssistanceLevel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "minimal", "minimale", "low":
		return AssistanceMinimal, nil
	case "partial", "partielle", "moderate", "moderee":
		return AssistancePartial, nil
	case "significant", "importante", "high":
		return AssistanceSignificant, nil
	case "full", "complete", "totale":
		return AssistanceFull, nil
	case "medical", "medicale":
		return AssistanceMedical, nil
	}
	return "", fmt.Errorf("unknown assistance level %q", value)
}

// Rank returns the position on the ordered scale, or -1 for unknown values.
func (l AssistanceLevel) Rank() int {
	switch l {
	case AssistanceMinimal:
		return 0
	case AssistancePartial:
		return 1
	case AssistanceSignificant:
		return 2
	case AssistanceFull:
		return 3
	case AssistanceMedical:
		return 4
	}
	return -1
}

type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceExperienced  ExperienceLevel = "experienced"
	ExperienceExpert       ExperienceLevel = "expert"
)

func ParseExperienceLevel(value string) (ExperienceLevel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "beginner", "junior", "debutant":
		return ExperienceBeginner, nil
	case "intermediate", "intermediaire":
		return ExperienceIntermediate, nil
	case "experienced", "senior", "confirme":
		return ExperienceExperienced, nil
	case "expert":
		return ExperienceExpert, nil
	}
	return "", fmt.Errorf("unknown experience level %q", value)
}

// PriorityLevel is ordered: low < normal < high < urgent < critical.
type PriorityLevel string

const (
	PriorityLow      PriorityLevel = "low"
	PriorityNormal   PriorityLevel = "normal"
	PriorityHigh     PriorityLevel = "high"
	PriorityUrgent   PriorityLevel = "urgent"
	PriorityCritical PriorityLevel = "critical"
)

var priorityScale = []PriorityLevel{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityCritical}

func ParsePriorityLevel(value string) (PriorityLevel, error) {
	p := PriorityLevel(strings.ToLower(strings.TrimSpace(value)))
	if p.Rank() < 0 {
		return "", fmt.Errorf("unknown priority level %q", value)
	}
	return p, nil
}

func (p PriorityLevel) Rank() int {
	for i, level := range priorityScale {
		if level == p {
			return i
		}
	}
	return -1
}

// Escalate moves the level up by n steps, clamped at critical. Unknown
// levels are treated as normal.
func (p PriorityLevel) Escalate(n int) PriorityLevel {
	r := p.Rank()
	if r < 0 {
		r = PriorityNormal.Rank()
	}
	r += n
	if r >= len(priorityScale) {
		r = len(priorityScale) - 1
	}
	if r < 0 {
		r = 0
	}
	return priorityScale[r]
}

// AtLeast returns the higher of p and floor.
func (p PriorityLevel) AtLeast(floor PriorityLevel) PriorityLevel {
	if p.Rank() < floor.Rank() {
		return floor
	}
	return p
}

type TransportMode string

const (
	TransportFlight TransportMode = "flight"
	TransportTrain  TransportMode = "train"
	TransportTaxi   TransportMode = "taxi"
)

func ParseTransportMode(value string) (TransportMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "flight", "avion", "plane":
		return TransportFlight, nil
	case "train", "rail":
		return TransportTrain, nil
	case "taxi", "car":
		return TransportTaxi, nil
	}
	return "", fmt.Errorf("unknown transport mode %q", value)
}

type DisabilityCategory string

const (
	DisabilityWheelchair DisabilityCategory = "wheelchair"
	DisabilityVisual     DisabilityCategory = "visual"
	DisabilityHearing    DisabilityCategory = "hearing"
	DisabilityCognitive  DisabilityCategory = "cognitive"
	DisabilityOther      DisabilityCategory = "other"
)

// MapDisability maps a free-text handicap type from a PMR profile to the
// category used in agent skill sets.
func MapDisability(typeHandicap string) DisabilityCategory {
	v := strings.ToLower(strings.TrimSpace(typeHandicap))
	switch {
	case v == "":
		return DisabilityOther
	case strings.Contains(v, "wheelchair"), strings.Contains(v, "fauteuil"), strings.Contains(v, "moteur"), strings.Contains(v, "motor"), strings.Contains(v, "mobility"):
		return DisabilityWheelchair
	case strings.Contains(v, "visu"), strings.Contains(v, "voyant"), strings.Contains(v, "blind"), strings.Contains(v, "aveugle"):
		return DisabilityVisual
	case strings.Contains(v, "audit"), strings.Contains(v, "entend"), strings.Contains(v, "hear"), strings.Contains(v, "deaf"), strings.Contains(v, "sourd"):
		return DisabilityHearing
	case strings.Contains(v, "cogn"), strings.Contains(v, "mental"), strings.Contains(v, "psych"):
		return DisabilityCognitive
	}
	return DisabilityOther
}

type MissionStatus string

const (
	MissionPending   MissionStatus = "pending"
	MissionValidated MissionStatus = "validated"
	MissionCancelled MissionStatus = "cancelled"
	MissionCompleted MissionStatus = "completed"
)

func ParseMissionStatus(value string) (MissionStatus, error) {
	s := MissionStatus(strings.ToLower(strings.TrimSpace(value)))
	switch s {
	case MissionPending, MissionValidated, MissionCancelled, MissionCompleted:
		return s, nil
	}
	return "", fmt.Errorf("unknown mission status %q", value)
}

type IncidentSeverity string

const (
	SeverityCritical IncidentSeverity = "critique"
	SeverityHigh     IncidentSeverity = "eleve"
	SeverityMedium   IncidentSeverity = "moyen"
	SeverityLow      IncidentSeverity = "faible"
)

// ParseIncidentSeverity accepts the feed's French tags and their English
// equivalents. Accents are tolerated.
func ParseIncidentSeverity(value string) (IncidentSeverity, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "critique", "critical":
		return SeverityCritical, nil
	case "eleve", "élevé", "elevee", "élevée", "high":
		return SeverityHigh, nil
	case "moyen", "moyenne", "medium":
		return SeverityMedium, nil
	case "faible", "low":
		return SeverityLow, nil
	}
	return "", fmt.Errorf("unknown incident severity %q", value)
}

type ReassignmentReason string

const (
	ReasonAgentUnavailable   ReassignmentReason = "agent_unavailable"
	ReasonCriticalDelay      ReassignmentReason = "critical_delay"
	ReasonIncident           ReassignmentReason = "incident"
	ReasonConnectionRisk     ReassignmentReason = "connection_risk"
	ReasonEscalationRequired ReassignmentReason = "escalation_required"
)

func ParseReassignmentReason(value string) (ReassignmentReason, error) {
	r := ReassignmentReason(strings.ToLower(strings.TrimSpace(value)))
	switch r {
	case ReasonAgentUnavailable, ReasonCriticalDelay, ReasonIncident, ReasonConnectionRisk, ReasonEscalationRequired:
		return r, nil
	}
	return "", fmt.Errorf("unknown reassignment reason %q", value)
}
