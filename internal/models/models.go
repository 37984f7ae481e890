package models

import (
	"time"

	"github.com/goccy/go-json"
)

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Agent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Employer string `json:"employer"`
}

type AgentAvailability struct {
	AgentID            string      `json:"agent_id"`
	Status             AgentStatus `json:"status"`
	AssignedMissions   int         `json:"assigned_missions"`
	TotalMissionsToday int         `json:"total_missions_today"`
	MaxMissionsPerDay  int         `json:"max_missions_per_day"`
	LastMissionEnd     *time.Time  `json:"last_mission_end"`
	CurrentLocation    *GeoPoint   `json:"current_location"`
	Version            int64       `json:"version"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

type AgentSkills struct {
	DisabilityTypes    []DisabilityCategory `json:"disability_types"`
	MaxAssistanceLevel AssistanceLevel      `json:"max_assistance_level"`
	TransportModes     []TransportMode      `json:"transport_modes"`
	ExperienceLevel    ExperienceLevel      `json:"experience_level"`
	AverageRating      float64              `json:"average_rating"`
}

// AgentProfile is one row of the agent directory.
type AgentProfile struct {
	Agent        Agent             `json:"agent"`
	Availability AgentAvailability `json:"availability"`
	Skills       AgentSkills       `json:"skills"`
}

// AvailabilityPatch is an administrative change to an agent's availability.
// ExpectedVersion, when non-zero, makes the write conditional.
type AvailabilityPatch struct {
	Status            *AgentStatus `json:"status,omitempty"`
	MaxMissionsPerDay *int         `json:"max_missions_per_day,omitempty"`
	CurrentLocation   *GeoPoint    `json:"current_location,omitempty"`
	LastMissionEnd    *time.Time   `json:"last_mission_end,omitempty"`
	ExpectedVersion   int64        `json:"expected_version,omitempty"`
}

type Mission struct {
	ID                   string              `json:"id"`
	ReservationID        string              `json:"reservation_id"`
	SegmentID            string              `json:"segment_id"`
	UserID               string              `json:"user_id"`
	AgentID              *string             `json:"agent_id"`
	PriorityLevel        PriorityLevel       `json:"priority_level"`
	IsCriticalConnection bool                `json:"is_critical_connection"`
	ReassignmentCount    int                 `json:"reassignment_count"`
	ReassignmentReason   *ReassignmentReason `json:"reassignment_reason"`
	Status               MissionStatus       `json:"status"`
	TransportMode        TransportMode       `json:"transport_mode"`
	Location             *GeoPoint           `json:"location"`
	MeetingAddress       string              `json:"meeting_address,omitempty"`
	ScheduledAt          time.Time           `json:"scheduled_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

func (m Mission) IsActive() bool {
	return m.Status == MissionPending || m.Status == MissionValidated
}

func (m Mission) HasAgent() bool {
	return m.AgentID != nil && *m.AgentID != ""
}

// MissionPatch carries the only mission fields the engine writes outside an
// assignment commit.
type MissionPatch struct {
	PriorityLevel *PriorityLevel `json:"priority_level,omitempty"`
	Location      *GeoPoint      `json:"location,omitempty"`
}

type PmrNeeds struct {
	UserID          string          `json:"user_id"`
	TypeHandicap    string          `json:"type_handicap"`
	AssistanceLevel AssistanceLevel `json:"assistance_level"`
	MobilityAid     string          `json:"mobility_aid"`
}

type Incident struct {
	ID       string           `json:"id"`
	UserID   string           `json:"user_id"`
	Severity IncidentSeverity `json:"severity"`
	Title    string           `json:"title"`
}

// AssignmentCommit describes one atomic agent change on a mission. A nil
// PreviousAgentID means a first assignment; a non-nil Reason marks a
// reassignment and bumps the mission's reassignment counter.
type AssignmentCommit struct {
	MissionID       string
	PreviousAgentID *string
	AgentID         string
	Priority        PriorityLevel
	Reason          *ReassignmentReason
	At              time.Time
}

type Run struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
	Status     string          `json:"status"`
	Summary    json.RawMessage `json:"summary"`
}
