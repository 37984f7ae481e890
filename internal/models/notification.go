package models

import "time"

type Audience string

const (
	AudiencePassenger Audience = "passenger"
	AudienceAgent     Audience = "agent"
	AudienceOperator  Audience = "operator"
)

const (
	NotifyAgentAssigned     = "agent_assigned"
	NotifyAgentReassigned   = "agent_reassigned"
	NotifyMissionAssigned   = "mission_assigned"
	NotifyMissionReleased   = "mission_released"
	NotifyPriorityEscalated = "priority_escalated"
	NotifyAssignmentPending = "assignment_pending"
	NotifyOperatorAlert     = "operator_alert"
)

// Notification is a post-commit event produced by the engine and delivered
// by the caller.
type Notification struct {
	ID        string         `json:"id"`
	Audience  Audience       `json:"audience"`
	UserID    string         `json:"user_id,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Priority  PriorityLevel  `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
}
