package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pmr_assist/backend/internal/metrics"
	"github.com/pmr_assist/backend/internal/models"
)

const (
	ResultNoAvailableAgents      = "no_available_agents"
	ResultMissionAlreadyAssigned = "mission_already_assigned"
	ResultNoReplacementFound     = "no_replacement_found"
	ResultNoCurrentAgent         = "no_current_agent"
)

type RankedAgent struct {
	Agent            models.Agent       `json:"agent"`
	Status           models.AgentStatus `json:"status"`
	AssignedMissions int                `json:"assigned_missions"`
	Score            ScoreBreakdown     `json:"score"`
}

type EligibilityStage struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type EligibilityResult struct {
	Ranked []RankedAgent      `json:"ranked"`
	Stages []EligibilityStage `json:"stages"`
}

type AssignmentResult struct {
	Success      bool                  `json:"success"`
	Reason       string                `json:"reason,omitempty"`
	MissionID    string                `json:"mission_id"`
	Agent        *models.Agent         `json:"agent,omitempty"`
	Score        *ScoreBreakdown       `json:"score,omitempty"`
	Priority     models.PriorityLevel  `json:"priority_level,omitempty"`
	Alternatives []RankedAgent         `json:"alternatives,omitempty"`
	Events       []models.Notification `json:"events,omitempty"`
}

// FindEligibleAgentsWithScores ranks every directory agent for the mission,
// dropping off-duty agents, agents scoring below the viability floor and any
// excluded id. Equal scores keep directory order.
func (e *Engine) FindEligibleAgentsWithScores(ctx context.Context, mc MissionContext, exclude ...string) ([]RankedAgent, error) {
	res, err := e.Eligibility(ctx, mc, exclude...)
	if err != nil {
		return nil, err
	}
	return res.Ranked, nil
}

// Eligibility is FindEligibleAgentsWithScores with per-stage candidate counts.
func (e *Engine) Eligibility(ctx context.Context, mc MissionContext, exclude ...string) (EligibilityResult, error) {
	profiles, err := e.Store.ListAgents(ctx)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("list agents: %w", err)
	}
	return rankAgents(profiles, mc, e.now(), e.Policy.MinScore, exclude), nil
}

func rankAgents(profiles []models.AgentProfile, mc MissionContext, now time.Time, minScore float64, exclude []string) EligibilityResult {
	result := EligibilityResult{}
	result.Stages = append(result.Stages, EligibilityStage{Name: "directory", Count: len(profiles)})

	onDuty := filterProfiles(profiles, func(p models.AgentProfile) bool {
		return p.Availability.Status != models.AgentOffDuty && !containsID(exclude, p.Agent.ID)
	})
	result.Stages = append(result.Stages, EligibilityStage{Name: "on_duty", Count: len(onDuty)})

	ranked := make([]RankedAgent, 0, len(onDuty))
	for _, p := range onDuty {
		score := ScoreAgent(p, mc, now)
		if score.Total < minScore {
			continue
		}
		ranked = append(ranked, RankedAgent{
			Agent:            p.Agent,
			Status:           p.Availability.Status,
			AssignedMissions: p.Availability.AssignedMissions,
			Score:            score,
		})
	}
	result.Stages = append(result.Stages, EligibilityStage{Name: "min_score", Count: len(ranked)})

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.Total > ranked[j].Score.Total
	})
	result.Ranked = ranked
	return result
}

// AssignBestAgent commits the best-ranked agent that still has capacity at
// commit time. Candidates rejected at commit are skipped.
func (e *Engine) AssignBestAgent(ctx context.Context, m models.Mission, mc MissionContext, priority *models.PriorityLevel) (AssignmentResult, error) {
	result := AssignmentResult{MissionID: m.ID, Priority: m.PriorityLevel}
	if priority != nil {
		result.Priority = *priority
	}
	if m.HasAgent() {
		result.Reason = ResultMissionAlreadyAssigned
		metrics.AssignmentsTotal.WithLabelValues(ResultMissionAlreadyAssigned).Inc()
		return result, nil
	}

	ranked, err := e.FindEligibleAgentsWithScores(ctx, mc)
	if err != nil {
		return AssignmentResult{}, err
	}

	idx, err := e.commitFirstAvailable(ctx, ranked, func(c RankedAgent) models.AssignmentCommit {
		return models.AssignmentCommit{
			MissionID: m.ID,
			AgentID:   c.Agent.ID,
			Priority:  result.Priority,
			At:        e.now(),
		}
	})
	if err != nil {
		return AssignmentResult{}, err
	}
	if idx < 0 {
		result.Reason = ResultNoAvailableAgents
		result.Events = e.noAgentEvents(m, result.Priority, len(ranked))
		metrics.AssignmentsTotal.WithLabelValues(ResultNoAvailableAgents).Inc()
		e.Logger.Warn().Str("mission_id", m.ID).Int("candidates", len(ranked)).Msg("no agent available for mission")
		return result, nil
	}

	chosen := ranked[idx]
	result.Success = true
	result.Agent = &chosen.Agent
	result.Score = &chosen.Score
	result.Alternatives = runnerUps(ranked, idx, e.Policy.MaxAlternatives)
	result.Events = []models.Notification{
		e.newEvent(models.AudiencePassenger, m.UserID, models.NotifyAgentAssigned,
			"Agent assigned",
			fmt.Sprintf("%s will accompany you on this journey.", chosen.Agent.Name),
			result.Priority,
			map[string]any{"mission_id": m.ID, "agent_id": chosen.Agent.ID, "score": chosen.Score.Total}),
	}
	metrics.AssignmentsTotal.WithLabelValues("assigned").Inc()
	e.Logger.Info().
		Str("mission_id", m.ID).
		Str("agent_id", chosen.Agent.ID).
		Float64("score", chosen.Score.Total).
		Msg("agent assigned")
	return result, nil
}

// Assign loads a mission and assigns it.
func (e *Engine) Assign(ctx context.Context, missionID string, priority *models.PriorityLevel) (AssignmentResult, error) {
	m, err := e.loadActiveMission(ctx, missionID)
	if err != nil {
		return AssignmentResult{}, err
	}
	mc, err := e.BuildMissionContext(ctx, m)
	if err != nil {
		return AssignmentResult{}, err
	}
	return e.AssignBestAgent(ctx, m, mc, priority)
}

// Candidates returns the ranking for a mission without committing anything.
func (e *Engine) Candidates(ctx context.Context, missionID string) (EligibilityResult, error) {
	m, err := e.Store.GetMission(ctx, missionID)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("load mission %s: %w", missionID, err)
	}
	mc, err := e.PreviewMissionContext(ctx, m)
	if err != nil {
		return EligibilityResult{}, err
	}
	return e.Eligibility(ctx, mc)
}

// commitFirstAvailable returns the index of the committed candidate, or -1
// when every candidate was rejected at commit time.
func (e *Engine) commitFirstAvailable(ctx context.Context, ranked []RankedAgent, build func(RankedAgent) models.AssignmentCommit) (int, error) {
	for i, c := range ranked {
		err := e.Store.CommitAssignment(ctx, build(c))
		if err == nil {
			return i, nil
		}
		if isCommitRejection(err) {
			metrics.CommitConflictsTotal.Inc()
			e.Logger.Debug().Err(err).Str("agent_id", c.Agent.ID).Msg("candidate rejected at commit, trying next")
			continue
		}
		return -1, fmt.Errorf("commit assignment to agent %s: %w", c.Agent.ID, err)
	}
	return -1, nil
}

func (e *Engine) noAgentEvents(m models.Mission, priority models.PriorityLevel, candidates int) []models.Notification {
	return []models.Notification{
		e.newEvent(models.AudienceOperator, "", models.NotifyOperatorAlert,
			"No agent available",
			fmt.Sprintf("Mission %s could not be staffed (%d candidates).", m.ID, candidates),
			models.PriorityHigh,
			map[string]any{"mission_id": m.ID, "reason": ResultNoAvailableAgents}),
		e.newEvent(models.AudiencePassenger, m.UserID, models.NotifyAssignmentPending,
			"Assistance being arranged",
			"We are arranging an agent for your journey and will confirm shortly.",
			priority,
			map[string]any{"mission_id": m.ID}),
	}
}

func runnerUps(ranked []RankedAgent, chosen, limit int) []RankedAgent {
	rest := ranked[chosen+1:]
	if len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]RankedAgent, len(rest))
	copy(out, rest)
	return out
}

func filterProfiles(profiles []models.AgentProfile, keep func(models.AgentProfile) bool) []models.AgentProfile {
	out := make([]models.AgentProfile, 0, len(profiles))
	for _, p := range profiles {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
