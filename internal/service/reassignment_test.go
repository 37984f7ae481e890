package service

import (
	"context"
	"testing"

	"github.com/pmr_assist/backend/internal/models"
)

func assignedProfile(id string, km float64) models.AgentProfile {
	return profile(id, models.AgentOnMission, offset(km), wheelchair(), 1)
}

func criticalMission(id, userID, agentID string) models.Mission {
	m := mission(id, userID, ptr(agentID))
	m.IsCriticalConnection = true
	return m
}

func TestCheckReassignmentNeedConnectionRisk(t *testing.T) {
	m := criticalMission("m1", "u1", "cur")
	store := seedStore(t,
		[]models.AgentProfile{assignedProfile("cur", 1), profile("other", models.AgentAvailable, offset(2), wheelchair(), 0)},
		[]models.Mission{m},
		[]models.PmrNeeds{wheelchairNeeds("u1")})
	e := newTestEngine(store, &fakeSignals{connection: map[string]int{"m1": 10}})
	ctx := context.Background()

	ev, err := e.ReevaluateMissionPriority(ctx, m)
	if err != nil {
		t.Fatalf("reevaluate: %v", err)
	}
	d, err := e.CheckReassignmentNeed(ctx, m, ev)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.ShouldReassign || d.Reason == nil || *d.Reason != models.ReasonConnectionRisk {
		t.Fatalf("expected connection_risk, got %+v", d)
	}
}

func TestCheckReassignmentNeedTriggerOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("off duty agent", func(t *testing.T) {
		gone := assignedProfile("cur", 1)
		gone.Availability.Status = models.AgentOffDuty
		m := criticalMission("m1", "u1", "cur")
		store := seedStore(t, []models.AgentProfile{gone}, []models.Mission{m}, []models.PmrNeeds{wheelchairNeeds("u1")})
		e := newTestEngine(store, nil)

		ev := PriorityEvaluation{NewPriority: models.PriorityCritical, Signals: Signals{MinutesToConnection: ptr(5), DelayMinutes: 90}}
		d, err := e.CheckReassignmentNeed(ctx, m, ev)
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if !d.ShouldReassign || *d.Reason != models.ReasonAgentUnavailable {
			t.Fatalf("expected agent_unavailable first, got %+v", d)
		}
	})

	t.Run("missing agent", func(t *testing.T) {
		m := criticalMission("m1", "u1", "ghost")
		store := seedStore(t, nil, []models.Mission{m}, []models.PmrNeeds{wheelchairNeeds("u1")})
		e := newTestEngine(store, nil)
		d, err := e.CheckReassignmentNeed(ctx, m, PriorityEvaluation{NewPriority: models.PriorityNormal})
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if !d.ShouldReassign || *d.Reason != models.ReasonAgentUnavailable {
			t.Fatalf("expected agent_unavailable, got %+v", d)
		}
	})

	t.Run("escalation with better agent", func(t *testing.T) {
		far := assignedProfile("cur", 45)
		far.Availability.AssignedMissions = 2
		far.Availability.TotalMissionsToday = 6
		m := criticalMission("m1", "u1", "cur")
		store := seedStore(t,
			[]models.AgentProfile{far, profile("near", models.AgentAvailable, offset(1), wheelchair(), 0)},
			[]models.Mission{m}, []models.PmrNeeds{wheelchairNeeds("u1")})
		e := newTestEngine(store, nil)

		ev := PriorityEvaluation{NewPriority: models.PriorityCritical, Signals: Signals{DelayMinutes: 90}}
		d, err := e.CheckReassignmentNeed(ctx, m, ev)
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if !d.ShouldReassign || *d.Reason != models.ReasonEscalationRequired {
			t.Fatalf("expected escalation_required, got %+v", d)
		}
	})

	t.Run("critical without better agent falls through to delay", func(t *testing.T) {
		m := criticalMission("m1", "u1", "cur")
		store := seedStore(t,
			[]models.AgentProfile{assignedProfile("cur", 1), assignedProfile("twin", 1)},
			[]models.Mission{m}, []models.PmrNeeds{wheelchairNeeds("u1")})
		e := newTestEngine(store, nil)

		ev := PriorityEvaluation{NewPriority: models.PriorityCritical, Signals: Signals{DelayMinutes: 90}}
		d, err := e.CheckReassignmentNeed(ctx, m, ev)
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if !d.ShouldReassign || *d.Reason != models.ReasonCriticalDelay {
			t.Fatalf("expected critical_delay, got %+v", d)
		}
	})

	t.Run("critique incident", func(t *testing.T) {
		m := criticalMission("m1", "u1", "cur")
		store := seedStore(t, []models.AgentProfile{assignedProfile("cur", 1)}, []models.Mission{m}, []models.PmrNeeds{wheelchairNeeds("u1")})
		e := newTestEngine(store, nil)

		ev := PriorityEvaluation{NewPriority: models.PriorityUrgent, Signals: Signals{Incidents: []models.Incident{{Severity: models.SeverityCritical}}}}
		d, err := e.CheckReassignmentNeed(ctx, m, ev)
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if !d.ShouldReassign || *d.Reason != models.ReasonIncident {
			t.Fatalf("expected incident, got %+v", d)
		}
	})

	t.Run("nothing to do", func(t *testing.T) {
		m := criticalMission("m1", "u1", "cur")
		store := seedStore(t, []models.AgentProfile{assignedProfile("cur", 1)}, []models.Mission{m}, []models.PmrNeeds{wheelchairNeeds("u1")})
		e := newTestEngine(store, nil)

		d, err := e.CheckReassignmentNeed(ctx, m, PriorityEvaluation{NewPriority: models.PriorityHigh, Signals: Signals{MinutesToConnection: ptr(25)}})
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if d.ShouldReassign {
			t.Fatalf("expected no reassignment, got %+v", d)
		}
	})
}

func TestReassignAgentSwapsAgents(t *testing.T) {
	m := mission("m1", "u1", ptr("cur"))
	store := seedStore(t,
		[]models.AgentProfile{assignedProfile("cur", 1), profile("other", models.AgentAvailable, offset(3), wheelchair(), 0)},
		[]models.Mission{m}, []models.PmrNeeds{wheelchairNeeds("u1")})
	e := newTestEngine(store, nil)

	res, err := e.ReassignAgent(context.Background(), m, models.ReasonIncident)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if !res.Success || res.Agent == nil || res.Agent.ID != "other" || res.PreviousAgentID != "cur" {
		t.Fatalf("unexpected result: %+v", res)
	}

	updated := mustMission(t, store, "m1")
	if updated.ReassignmentCount != m.ReassignmentCount+1 {
		t.Fatalf("expected reassignment count +1, got %d", updated.ReassignmentCount)
	}
	if updated.AgentID == nil || *updated.AgentID == "cur" {
		t.Fatalf("released agent reassigned")
	}
	if updated.ReassignmentReason == nil || *updated.ReassignmentReason != models.ReasonIncident {
		t.Fatalf("reason not recorded: %+v", updated.ReassignmentReason)
	}

	released := mustAgent(t, store, "cur").Availability
	if released.AssignedMissions != 0 || released.Status != models.AgentAvailable {
		t.Fatalf("unexpected released agent state: %+v", released)
	}
	taken := mustAgent(t, store, "other").Availability
	if taken.AssignedMissions != 1 || taken.Status != models.AgentOnMission {
		t.Fatalf("unexpected new agent state: %+v", taken)
	}

	if len(res.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(res.Events))
	}
	if res.Events[0].Audience != models.AudiencePassenger || res.Events[1].UserID != "cur" || res.Events[2].UserID != "other" {
		t.Fatalf("unexpected events: %+v", res.Events)
	}
}

func TestReassignAgentNoReplacement(t *testing.T) {
	m := mission("m1", "u1", ptr("cur"))
	store := seedStore(t,
		[]models.AgentProfile{assignedProfile("cur", 1), profile("off", models.AgentOffDuty, offset(1), wheelchair(), 0)},
		[]models.Mission{m}, []models.PmrNeeds{wheelchairNeeds("u1")})
	e := newTestEngine(store, nil)

	res, err := e.ReassignAgent(context.Background(), m, models.ReasonCriticalDelay)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if res.Success || res.Reason != ResultNoReplacementFound {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Events) != 1 || res.Events[0].Audience != models.AudienceOperator {
		t.Fatalf("expected operator alert, got %+v", res.Events)
	}
	after := mustMission(t, store, "m1")
	if after.AgentID == nil || *after.AgentID != "cur" || after.ReassignmentCount != 0 {
		t.Fatalf("mission must be unchanged: %+v", after)
	}
	if a := mustAgent(t, store, "cur").Availability; a.AssignedMissions != 1 {
		t.Fatalf("current agent must keep the mission: %+v", a)
	}
}

func TestReassignAgentWithoutCurrentAgent(t *testing.T) {
	m := mission("m1", "u1", nil)
	store := seedStore(t, nil, []models.Mission{m}, []models.PmrNeeds{wheelchairNeeds("u1")})
	e := newTestEngine(store, nil)

	res, err := e.ReassignAgent(context.Background(), m, models.ReasonIncident)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if res.Success || res.Reason != ResultNoCurrentAgent {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestReevaluateRunsFullPipeline(t *testing.T) {
	m := criticalMission("m1", "u1", "cur")
	store := seedStore(t,
		[]models.AgentProfile{assignedProfile("cur", 1), profile("other", models.AgentAvailable, offset(2), wheelchair(), 0)},
		[]models.Mission{m}, []models.PmrNeeds{wheelchairNeeds("u1")})
	e := newTestEngine(store, &fakeSignals{connection: map[string]int{"m1": 10}})

	res, err := e.Reevaluate(context.Background(), "m1")
	if err != nil {
		t.Fatalf("reevaluate: %v", err)
	}
	if res.Decision == nil || !res.Decision.ShouldReassign {
		t.Fatalf("expected a reassignment decision, got %+v", res.Decision)
	}
	if res.Reassignment == nil || !res.Reassignment.Success || res.Reassignment.Agent.ID != "other" {
		t.Fatalf("expected reassignment to other, got %+v", res.Reassignment)
	}
	if got := mustMission(t, store, "m1"); got.PriorityLevel != models.PriorityHigh {
		t.Fatalf("expected escalated priority to be kept, got %s", got.PriorityLevel)
	}
}
