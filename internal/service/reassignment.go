package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pmr_assist/backend/internal/metrics"
	"github.com/pmr_assist/backend/internal/models"
)

type ReassignmentDecision struct {
	ShouldReassign bool                       `json:"should_reassign"`
	Reason         *models.ReassignmentReason `json:"reason,omitempty"`
}

type ReassignmentResult struct {
	Success         bool                      `json:"success"`
	Reason          string                    `json:"reason,omitempty"`
	MissionID       string                    `json:"mission_id"`
	Trigger         models.ReassignmentReason `json:"trigger"`
	PreviousAgentID string                    `json:"previous_agent_id,omitempty"`
	Agent           *models.Agent             `json:"agent,omitempty"`
	Score           *ScoreBreakdown           `json:"score,omitempty"`
	Events          []models.Notification     `json:"events,omitempty"`
}

// ReevaluationResult is the outcome of running one mission through the
// evaluator and, when relevant, the decider and executor.
type ReevaluationResult struct {
	MissionID    string                `json:"mission_id"`
	Evaluation   PriorityEvaluation    `json:"evaluation"`
	Decision     *ReassignmentDecision `json:"decision,omitempty"`
	Reassignment *ReassignmentResult   `json:"reassignment,omitempty"`
	Assignment   *AssignmentResult     `json:"assignment,omitempty"`
	Events       []models.Notification `json:"events,omitempty"`
}

func reassignWith(reason models.ReassignmentReason) ReassignmentDecision {
	return ReassignmentDecision{ShouldReassign: true, Reason: &reason}
}

// CheckReassignmentNeed decides whether the mission's agent must be replaced.
// Triggers are checked in a fixed order and the first match wins.
func (e *Engine) CheckReassignmentNeed(ctx context.Context, m models.Mission, ev PriorityEvaluation) (ReassignmentDecision, error) {
	if !m.HasAgent() {
		return ReassignmentDecision{}, nil
	}

	current, err := e.Store.GetAgent(ctx, *m.AgentID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return reassignWith(models.ReasonAgentUnavailable), nil
	case err != nil:
		return ReassignmentDecision{}, fmt.Errorf("load agent %s: %w", *m.AgentID, err)
	}
	if current.Availability.Status == models.AgentOffDuty {
		return reassignWith(models.ReasonAgentUnavailable), nil
	}

	if ev.NewPriority == models.PriorityCritical {
		better, err := e.betterAgentExists(ctx, m, current)
		if err != nil {
			return ReassignmentDecision{}, err
		}
		if better {
			return reassignWith(models.ReasonEscalationRequired), nil
		}
	}

	sig := ev.Signals
	if sig.MinutesToConnection != nil && *sig.MinutesToConnection < e.Policy.ConnectionRiskMinutes {
		return reassignWith(models.ReasonConnectionRisk), nil
	}
	if sig.DelayMinutes > e.Policy.CriticalDelayMinutes {
		return reassignWith(models.ReasonCriticalDelay), nil
	}
	if sig.HasIncident(models.SeverityCritical) {
		return reassignWith(models.ReasonIncident), nil
	}
	return ReassignmentDecision{}, nil
}

// betterAgentExists reports whether another eligible agent outscores the
// current one by at least the policy margin.
func (e *Engine) betterAgentExists(ctx context.Context, m models.Mission, current models.AgentProfile) (bool, error) {
	mc, err := e.PreviewMissionContext(ctx, m)
	if err != nil {
		return false, err
	}
	ranked, err := e.FindEligibleAgentsWithScores(ctx, mc, current.Agent.ID)
	if err != nil {
		return false, err
	}
	if len(ranked) == 0 {
		return false, nil
	}
	currentScore := ScoreAgent(current, mc, e.now())
	return ranked[0].Score.Total >= currentScore.Total+e.Policy.BetterAgentMargin, nil
}

// ReassignAgent releases the mission's agent and commits the best other
// candidate in one atomic step. When nobody can take over, nothing changes
// and an operator alert is returned.
func (e *Engine) ReassignAgent(ctx context.Context, m models.Mission, reason models.ReassignmentReason) (ReassignmentResult, error) {
	result := ReassignmentResult{MissionID: m.ID, Trigger: reason}
	if !m.HasAgent() {
		result.Reason = ResultNoCurrentAgent
		return result, nil
	}
	previous := *m.AgentID
	result.PreviousAgentID = previous

	mc, err := e.BuildMissionContext(ctx, m)
	if err != nil {
		return ReassignmentResult{}, err
	}
	ranked, err := e.FindEligibleAgentsWithScores(ctx, mc, previous)
	if err != nil {
		return ReassignmentResult{}, err
	}

	idx, err := e.commitFirstAvailable(ctx, ranked, func(c RankedAgent) models.AssignmentCommit {
		return models.AssignmentCommit{
			MissionID:       m.ID,
			PreviousAgentID: &previous,
			AgentID:         c.Agent.ID,
			Priority:        m.PriorityLevel,
			Reason:          &reason,
			At:              e.now(),
		}
	})
	if err != nil {
		return ReassignmentResult{}, err
	}
	if idx < 0 {
		result.Reason = ResultNoReplacementFound
		result.Events = []models.Notification{
			e.newEvent(models.AudienceOperator, "", models.NotifyOperatorAlert,
				"Reassignment failed",
				fmt.Sprintf("No replacement found for mission %s (trigger %s); agent %s is still assigned.", m.ID, reason, previous),
				models.PriorityCritical,
				map[string]any{"mission_id": m.ID, "agent_id": previous, "trigger": reason, "reason": ResultNoReplacementFound}),
		}
		metrics.ReassignmentsTotal.WithLabelValues(string(reason), ResultNoReplacementFound).Inc()
		e.Logger.Warn().Str("mission_id", m.ID).Str("trigger", string(reason)).Msg("no replacement agent found")
		return result, nil
	}

	chosen := ranked[idx]
	result.Success = true
	result.Agent = &chosen.Agent
	result.Score = &chosen.Score
	data := map[string]any{"mission_id": m.ID, "previous_agent_id": previous, "agent_id": chosen.Agent.ID, "trigger": reason}
	result.Events = []models.Notification{
		e.newEvent(models.AudiencePassenger, m.UserID, models.NotifyAgentReassigned,
			"New agent assigned",
			fmt.Sprintf("%s will now accompany you on this journey.", chosen.Agent.Name),
			m.PriorityLevel, data),
		e.newEvent(models.AudienceAgent, previous, models.NotifyMissionReleased,
			"Mission released",
			fmt.Sprintf("You have been released from mission %s.", m.ID),
			m.PriorityLevel, data),
		e.newEvent(models.AudienceAgent, chosen.Agent.ID, models.NotifyMissionAssigned,
			"New mission",
			fmt.Sprintf("You have been assigned to mission %s.", m.ID),
			m.PriorityLevel, data),
	}
	metrics.ReassignmentsTotal.WithLabelValues(string(reason), "reassigned").Inc()
	e.Logger.Info().
		Str("mission_id", m.ID).
		Str("from", previous).
		Str("to", chosen.Agent.ID).
		Str("trigger", string(reason)).
		Msg("mission reassigned")
	return result, nil
}

// Reassign is the manual form of ReassignAgent.
func (e *Engine) Reassign(ctx context.Context, missionID string, reason models.ReassignmentReason) (ReassignmentResult, error) {
	m, err := e.loadActiveMission(ctx, missionID)
	if err != nil {
		return ReassignmentResult{}, err
	}
	return e.ReassignAgent(ctx, m, reason)
}

// Reevaluate runs one mission through the evaluator, then the decider, then
// the executor when a trigger fired.
func (e *Engine) Reevaluate(ctx context.Context, missionID string) (ReevaluationResult, error) {
	m, err := e.loadActiveMission(ctx, missionID)
	if err != nil {
		return ReevaluationResult{}, err
	}
	return e.processMission(ctx, m)
}

func (e *Engine) processMission(ctx context.Context, m models.Mission) (ReevaluationResult, error) {
	res := ReevaluationResult{MissionID: m.ID}

	ev, err := e.ReevaluateMissionPriority(ctx, m)
	if err != nil {
		return ReevaluationResult{}, err
	}
	res.Evaluation = ev
	res.Events = append(res.Events, ev.Events...)
	m.PriorityLevel = ev.NewPriority

	if !m.HasAgent() {
		if !ev.RequiresAction {
			return res, nil
		}
		mc, err := e.BuildMissionContext(ctx, m)
		if err != nil {
			return res, err
		}
		assigned, err := e.AssignBestAgent(ctx, m, mc, nil)
		if err != nil {
			return res, err
		}
		res.Assignment = &assigned
		res.Events = append(res.Events, assigned.Events...)
		return res, nil
	}

	decision, err := e.CheckReassignmentNeed(ctx, m, ev)
	if err != nil {
		return res, err
	}
	res.Decision = &decision
	if !decision.ShouldReassign {
		return res, nil
	}

	reassigned, err := e.ReassignAgent(ctx, m, *decision.Reason)
	if err != nil {
		return res, err
	}
	res.Reassignment = &reassigned
	res.Events = append(res.Events, reassigned.Events...)
	return res, nil
}
