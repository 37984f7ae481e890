package models

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write lost against a
	// concurrent change (version mismatch, mission agent changed).
	ErrConflict = errors.New("conflict: resource was modified concurrently")

	// ErrAgentUnavailable is returned when an agent can no longer take a
	// mission at commit time (off duty or daily capacity reached).
	ErrAgentUnavailable = errors.New("agent unavailable at commit time")

	ErrMissionInactive = errors.New("mission is not active")
	ErrInvalidProfile  = errors.New("invalid pmr profile")
)
