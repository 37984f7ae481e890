package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pmr_assist/backend/internal/geocode"
	"github.com/pmr_assist/backend/internal/models"
	"github.com/pmr_assist/backend/internal/signals"
)

type AgentDirectory interface {
	ListAgents(ctx context.Context) ([]models.AgentProfile, error)
	GetAgent(ctx context.Context, agentID string) (models.AgentProfile, error)
	UpdateAvailability(ctx context.Context, agentID string, patch models.AvailabilityPatch) (models.AgentAvailability, error)
}

type MissionStore interface {
	GetMission(ctx context.Context, missionID string) (models.Mission, error)
	UpdateMission(ctx context.Context, missionID string, patch models.MissionPatch) error
	ListActiveMissions(ctx context.Context) ([]models.Mission, error)
	GetPmrNeeds(ctx context.Context, userID string) (models.PmrNeeds, error)
}

// AssignmentCommitter applies an agent change to a mission atomically:
// release of the previous agent, capacity-checked reservation of the new
// one and the mission update either all happen or none do.
type AssignmentCommitter interface {
	CommitAssignment(ctx context.Context, c models.AssignmentCommit) error
}

type Store interface {
	AgentDirectory
	MissionStore
	AssignmentCommitter
}

type Policy struct {
	MinScore                    float64
	MaxAlternatives             int
	DelayEscalationMinutes      int
	CriticalDelayMinutes        int
	ConnectionEscalationMinutes int
	ConnectionRiskMinutes       int
	BetterAgentMargin           float64
	MonitorConcurrency          int
}

func DefaultPolicy() Policy {
	return Policy{
		MinScore:                    20,
		MaxAlternatives:             3,
		DelayEscalationMinutes:      60,
		CriticalDelayMinutes:        60,
		ConnectionEscalationMinutes: 30,
		ConnectionRiskMinutes:       15,
		BetterAgentMargin:           10,
		MonitorConcurrency:          4,
	}
}

// Engine decides which agent serves a mission and keeps that choice valid.
// Operations never deliver notifications themselves; they return the events
// to send once their state change is committed.
type Engine struct {
	Store    Store
	Signals  signals.Source
	Geocoder geocode.Geocoder
	Policy   Policy
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// BuildMissionContext loads the PMR profile of the mission's passenger and
// resolves the meeting point. A missing or malformed profile is fatal for the
// operation. A geocoded meeting point is written back to the mission.
func (e *Engine) BuildMissionContext(ctx context.Context, m models.Mission) (MissionContext, error) {
	return e.missionContext(ctx, m, true)
}

// PreviewMissionContext is BuildMissionContext without the write-back, for
// read-only paths.
func (e *Engine) PreviewMissionContext(ctx context.Context, m models.Mission) (MissionContext, error) {
	return e.missionContext(ctx, m, false)
}

func (e *Engine) missionContext(ctx context.Context, m models.Mission, persist bool) (MissionContext, error) {
	needs, err := e.Store.GetPmrNeeds(ctx, m.UserID)
	if err != nil {
		return MissionContext{}, fmt.Errorf("load pmr needs for user %s: %w", m.UserID, err)
	}
	if needs.AssistanceLevel.Rank() < 0 {
		return MissionContext{}, fmt.Errorf("user %s assistance level %q: %w", m.UserID, needs.AssistanceLevel, models.ErrInvalidProfile)
	}

	location := m.Location
	if location == nil && m.MeetingAddress != "" && e.Geocoder != nil {
		point, err := geocode.ResolveMeetingPoint(ctx, e.Geocoder, m.MeetingAddress)
		if err != nil {
			e.Logger.Warn().Err(err).Str("mission_id", m.ID).Msg("meeting point geocoding failed")
		} else {
			location = &point
			if persist {
				if err := e.Store.UpdateMission(ctx, m.ID, models.MissionPatch{Location: &point}); err != nil {
					e.Logger.Warn().Err(err).Str("mission_id", m.ID).Msg("failed to store geocoded meeting point")
				}
			}
		}
	}

	return MissionContext{
		MissionID:            m.ID,
		UserID:               m.UserID,
		PmrNeeds:             needs,
		Location:             location,
		TransportMode:        m.TransportMode,
		IsCriticalConnection: m.IsCriticalConnection,
	}, nil
}

func (e *Engine) loadActiveMission(ctx context.Context, missionID string) (models.Mission, error) {
	m, err := e.Store.GetMission(ctx, missionID)
	if err != nil {
		return models.Mission{}, fmt.Errorf("load mission %s: %w", missionID, err)
	}
	if !m.IsActive() {
		return models.Mission{}, fmt.Errorf("mission %s is %s: %w", m.ID, m.Status, models.ErrMissionInactive)
	}
	return m, nil
}

func (e *Engine) newEvent(audience models.Audience, userID, typ, title, message string, priority models.PriorityLevel, data map[string]any) models.Notification {
	return models.Notification{
		ID:        uuid.NewString(),
		Audience:  audience,
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Data:      data,
		Priority:  priority,
		CreatedAt: e.now(),
	}
}

func isCommitRejection(err error) bool {
	return errors.Is(err, models.ErrAgentUnavailable)
}
