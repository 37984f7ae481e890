package models

import "testing"

func TestPriorityEscalateClamps(t *testing.T) {
	if got := PriorityNormal.Escalate(1); got != PriorityHigh {
		t.Fatalf("expected high, got %s", got)
	}
	if got := PriorityUrgent.Escalate(2); got != PriorityCritical {
		t.Fatalf("expected clamp at critical, got %s", got)
	}
	if got := PriorityLevel("bogus").Escalate(1); got != PriorityHigh {
		t.Fatalf("unknown level should escalate from normal, got %s", got)
	}
	if got := PriorityUrgent.AtLeast(PriorityHigh); got != PriorityUrgent {
		t.Fatalf("AtLeast must never lower, got %s", got)
	}
	if got := PriorityLow.AtLeast(PriorityHigh); got != PriorityHigh {
		t.Fatalf("expected floor, got %s", got)
	}
}

func TestParseTransportModeRejectsUnknown(t *testing.T) {
	if m, err := ParseTransportMode("Avion"); err != nil || m != TransportFlight {
		t.Fatalf("expected flight alias, got %s, %v", m, err)
	}
	if _, err := ParseTransportMode("bus"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestParseAssistanceLevelAliases(t *testing.T) {
	cases := map[string]AssistanceLevel{
		"complete": AssistanceFull,
		"moderate": AssistancePartial,
		" Medical": AssistanceMedical,
	}
	for in, want := range cases {
		got, err := ParseAssistanceLevel(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if AssistanceLevel("extreme").Rank() != -1 {
		t.Fatalf("unknown level must rank -1")
	}
	if AssistanceMinimal.Rank() >= AssistanceMedical.Rank() {
		t.Fatalf("scale out of order")
	}
}

func TestParseIncidentSeverity(t *testing.T) {
	cases := map[string]IncidentSeverity{
		"critique": SeverityCritical,
		"élevé":    SeverityHigh,
		"MEDIUM":   SeverityMedium,
		"faible":   SeverityLow,
	}
	for in, want := range cases {
		got, err := ParseIncidentSeverity(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParseIncidentSeverity("apocalyptic"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMapDisability(t *testing.T) {
	cases := map[string]DisabilityCategory{
		"fauteuil roulant": DisabilityWheelchair,
		"malvoyant":        DisabilityVisual,
		"malentendant":     DisabilityHearing,
		"cognitive":        DisabilityCognitive,
		"":                 DisabilityOther,
		"autre":            DisabilityOther,
	}
	for in, want := range cases {
		if got := MapDisability(in); got != want {
			t.Fatalf("%q: expected %s, got %s", in, want, got)
		}
	}
}

func TestMissionActivity(t *testing.T) {
	agent := "agt_1"
	m := Mission{Status: MissionValidated, AgentID: &agent}
	if !m.IsActive() || !m.HasAgent() {
		t.Fatalf("validated mission with agent should be active and assigned")
	}
	m.Status = MissionCancelled
	if m.IsActive() {
		t.Fatalf("cancelled mission must not be active")
	}
}
