package service

import (
	"context"
	"fmt"

	"github.com/pmr_assist/backend/internal/metrics"
	"github.com/pmr_assist/backend/internal/models"
)

// Signals is the live state of the world around one mission. Fields the
// collaborators could not provide keep their conservative zero value.
type Signals struct {
	Incidents           []models.Incident `json:"incidents"`
	MinutesToConnection *int              `json:"minutes_to_connection"`
	DelayMinutes        int               `json:"delay_minutes"`
	Unavailable         []string          `json:"unavailable,omitempty"`
}

func (s Signals) HasIncident(severities ...models.IncidentSeverity) bool {
	for _, inc := range s.Incidents {
		for _, sev := range severities {
			if inc.Severity == sev {
				return true
			}
		}
	}
	return false
}

type PriorityEvaluation struct {
	MissionID        string                `json:"mission_id"`
	PreviousPriority models.PriorityLevel  `json:"previous_priority"`
	NewPriority      models.PriorityLevel  `json:"new_priority"`
	Changed          bool                  `json:"changed"`
	RequiresAction   bool                  `json:"requires_action"`
	Triggers         []string              `json:"triggers,omitempty"`
	Signals          Signals               `json:"signals"`
	Events           []models.Notification `json:"events,omitempty"`
}

// EvaluatePriority applies the escalation rules in order. The level only
// moves up during one evaluation.
func EvaluatePriority(current models.PriorityLevel, isCriticalConnection bool, needs models.PmrNeeds, sig Signals, p Policy) PriorityEvaluation {
	ev := PriorityEvaluation{PreviousPriority: current, Signals: sig}
	level := current
	if level.Rank() < 0 {
		level = models.PriorityNormal
	}
	raise := func(to models.PriorityLevel, trigger string) {
		if to.Rank() > level.Rank() {
			level = to
		}
		ev.Triggers = append(ev.Triggers, trigger)
	}

	if sig.HasIncident(models.SeverityCritical, models.SeverityHigh) {
		raise(level.Escalate(2), "incident")
		ev.RequiresAction = true
	}

	if isCriticalConnection && sig.MinutesToConnection != nil && *sig.MinutesToConnection < p.ConnectionEscalationMinutes {
		raise(level.Escalate(1), "connection")
		ev.RequiresAction = true
	}

	switch needs.AssistanceLevel {
	case models.AssistanceFull, models.AssistanceMedical:
		if floor := level.AtLeast(models.PriorityHigh); floor != level {
			raise(floor, "dependency")
		}
	}

	if sig.DelayMinutes > p.DelayEscalationMinutes {
		raise(level.Escalate(1), "delay")
	}
	if sig.DelayMinutes > p.CriticalDelayMinutes {
		raise(models.PriorityCritical, "critical_delay")
		ev.RequiresAction = true
	}

	ev.NewPriority = level
	ev.Changed = level != current
	return ev
}

// ReevaluateMissionPriority recomputes a mission's priority from live signals
// and persists it when it changed.
func (e *Engine) ReevaluateMissionPriority(ctx context.Context, m models.Mission) (PriorityEvaluation, error) {
	needs, err := e.Store.GetPmrNeeds(ctx, m.UserID)
	if err != nil {
		return PriorityEvaluation{}, fmt.Errorf("load pmr needs for user %s: %w", m.UserID, err)
	}
	if needs.AssistanceLevel.Rank() < 0 {
		return PriorityEvaluation{}, fmt.Errorf("user %s assistance level %q: %w", m.UserID, needs.AssistanceLevel, models.ErrInvalidProfile)
	}

	sig := e.gatherSignals(ctx, m)
	ev := EvaluatePriority(m.PriorityLevel, m.IsCriticalConnection, needs, sig, e.Policy)
	ev.MissionID = m.ID

	if !ev.Changed {
		return ev, nil
	}

	level := ev.NewPriority
	if err := e.Store.UpdateMission(ctx, m.ID, models.MissionPatch{PriorityLevel: &level}); err != nil {
		return PriorityEvaluation{}, fmt.Errorf("update mission %s priority: %w", m.ID, err)
	}
	metrics.PriorityChangesTotal.WithLabelValues(string(ev.PreviousPriority), string(ev.NewPriority)).Inc()
	e.Logger.Info().
		Str("mission_id", m.ID).
		Str("from", string(ev.PreviousPriority)).
		Str("to", string(ev.NewPriority)).
		Strs("triggers", ev.Triggers).
		Msg("mission priority changed")

	if ev.RequiresAction {
		ev.Events = append(ev.Events, e.newEvent(models.AudiencePassenger, m.UserID, models.NotifyPriorityEscalated,
			"Your assistance has been prioritised",
			"Our team is following your journey closely and adapting your assistance.",
			ev.NewPriority,
			map[string]any{"mission_id": m.ID, "priority_level": ev.NewPriority, "triggers": ev.Triggers}))
	}
	return ev, nil
}

// gatherSignals queries the collaborators. A failing collaborator is logged
// and its signal treated as absent.
func (e *Engine) gatherSignals(ctx context.Context, m models.Mission) Signals {
	var sig Signals
	if e.Signals == nil {
		sig.Unavailable = []string{"incidents", "connection", "delay"}
		return sig
	}

	incidents, err := e.Signals.ActiveIncidentsForUser(ctx, m.UserID)
	if err != nil {
		e.Logger.Warn().Err(err).Str("mission_id", m.ID).Str("user_id", m.UserID).Msg("incident feed unavailable")
		sig.Unavailable = append(sig.Unavailable, "incidents")
		metrics.SignalFailuresTotal.WithLabelValues("incidents").Inc()
	} else {
		sig.Incidents = incidents
	}

	if m.IsCriticalConnection {
		minutes, err := e.Signals.MinutesUntilNextConnection(ctx, m)
		if err != nil {
			e.Logger.Warn().Err(err).Str("mission_id", m.ID).Msg("connection timing unavailable")
			sig.Unavailable = append(sig.Unavailable, "connection")
			metrics.SignalFailuresTotal.WithLabelValues("connection").Inc()
		} else {
			sig.MinutesToConnection = minutes
		}
	}

	delay, err := e.Signals.CurrentDelayMinutes(ctx, m)
	if err != nil {
		e.Logger.Warn().Err(err).Str("mission_id", m.ID).Msg("delay signal unavailable")
		sig.Unavailable = append(sig.Unavailable, "delay")
		metrics.SignalFailuresTotal.WithLabelValues("delay").Inc()
	} else {
		sig.DelayMinutes = delay
	}
	return sig
}
