package db

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pmr_assist/backend/internal/models"
)

// MemoryStore keeps the directory and missions in process. Every method
// holds the store mutex, which makes CommitAssignment atomic the same way
// the Postgres transaction is.
type MemoryStore struct {
	mu       sync.Mutex
	agents   map[string]*memAgent
	seq      int
	missions map[string]models.Mission
	needs    map[string]models.PmrNeeds
	runs     []models.Run
	now      func() time.Time
}

type memAgent struct {
	profile models.AgentProfile
	order   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:   map[string]*memAgent{},
		missions: map[string]models.Mission{},
		needs:    map[string]models.PmrNeeds{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) PutAgent(ctx context.Context, p models.AgentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = cloneProfile(p)
	p.Availability.AgentID = p.Agent.ID
	if p.Availability.Version == 0 {
		p.Availability.Version = 1
	}
	if existing, ok := s.agents[p.Agent.ID]; ok {
		existing.profile = p
		return nil
	}
	s.seq++
	s.agents[p.Agent.ID] = &memAgent{profile: p, order: s.seq}
	return nil
}

func (s *MemoryStore) PutMission(ctx context.Context, m models.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[m.ID] = cloneMission(m)
	return nil
}

func (s *MemoryStore) PutPmrNeeds(ctx context.Context, n models.PmrNeeds) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needs[n.UserID] = n
	return nil
}

func (s *MemoryStore) ListAgents(ctx context.Context) ([]models.AgentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*memAgent, 0, len(s.agents))
	for _, a := range s.agents {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].order < list[j].order })
	out := make([]models.AgentProfile, 0, len(list))
	for _, a := range list {
		out = append(out, cloneProfile(a.profile))
	}
	return out, nil
}

func (s *MemoryStore) GetAgent(ctx context.Context, agentID string) (models.AgentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return models.AgentProfile{}, fmt.Errorf("agent %s: %w", agentID, models.ErrNotFound)
	}
	return cloneProfile(a.profile), nil
}

func (s *MemoryStore) UpdateAvailability(ctx context.Context, agentID string, patch models.AvailabilityPatch) (models.AgentAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return models.AgentAvailability{}, fmt.Errorf("agent %s: %w", agentID, models.ErrNotFound)
	}
	av := &a.profile.Availability
	if patch.ExpectedVersion != 0 && patch.ExpectedVersion != av.Version {
		return models.AgentAvailability{}, fmt.Errorf("agent %s availability version %d: %w", agentID, patch.ExpectedVersion, models.ErrConflict)
	}
	if patch.Status != nil {
		av.Status = *patch.Status
	}
	if patch.MaxMissionsPerDay != nil {
		av.MaxMissionsPerDay = *patch.MaxMissionsPerDay
	}
	if patch.CurrentLocation != nil {
		loc := *patch.CurrentLocation
		av.CurrentLocation = &loc
	}
	if patch.LastMissionEnd != nil {
		t := *patch.LastMissionEnd
		av.LastMissionEnd = &t
	}
	av.Version++
	av.UpdatedAt = s.now()
	return cloneProfile(a.profile).Availability, nil
}

func (s *MemoryStore) ResetDailyCounters(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.agents {
		av := &a.profile.Availability
		if av.TotalMissionsToday == av.AssignedMissions {
			continue
		}
		av.TotalMissionsToday = av.AssignedMissions
		av.Version++
		av.UpdatedAt = s.now()
		n++
	}
	return n, nil
}

func (s *MemoryStore) GetMission(ctx context.Context, missionID string) (models.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[missionID]
	if !ok {
		return models.Mission{}, fmt.Errorf("mission %s: %w", missionID, models.ErrNotFound)
	}
	return cloneMission(m), nil
}

func (s *MemoryStore) ListActiveMissions(ctx context.Context) ([]models.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Mission{}
	for _, m := range s.missions {
		if m.IsActive() {
			out = append(out, cloneMission(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateMission(ctx context.Context, missionID string, patch models.MissionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[missionID]
	if !ok {
		return fmt.Errorf("mission %s: %w", missionID, models.ErrNotFound)
	}
	if patch.PriorityLevel != nil {
		m.PriorityLevel = *patch.PriorityLevel
	}
	if patch.Location != nil {
		loc := *patch.Location
		m.Location = &loc
	}
	m.UpdatedAt = s.now()
	s.missions[missionID] = m
	return nil
}

func (s *MemoryStore) GetPmrNeeds(ctx context.Context, userID string) (models.PmrNeeds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.needs[userID]
	if !ok {
		return models.PmrNeeds{}, fmt.Errorf("pmr needs for user %s: %w", userID, models.ErrNotFound)
	}
	return n, nil
}

func (s *MemoryStore) CommitAssignment(ctx context.Context, c models.AssignmentCommit) error {
	if c.PreviousAgentID != nil && *c.PreviousAgentID == c.AgentID {
		return fmt.Errorf("mission %s: agent %s is already assigned: %w", c.MissionID, c.AgentID, models.ErrConflict)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.missions[c.MissionID]
	if !ok {
		return fmt.Errorf("mission %s: %w", c.MissionID, models.ErrNotFound)
	}
	if err := checkCommitPreconditions(c, m.AgentID, m.Status); err != nil {
		return err
	}

	next, ok := s.agents[c.AgentID]
	if !ok || !canReserve(next.profile.Availability) {
		return fmt.Errorf("reserve agent %s for mission %s: %w", c.AgentID, c.MissionID, models.ErrAgentUnavailable)
	}

	now := s.now()
	if c.PreviousAgentID != nil {
		if prev, ok := s.agents[*c.PreviousAgentID]; ok {
			release(&prev.profile.Availability, now)
		}
	}
	reserve(&next.profile.Availability, now)

	agentID := c.AgentID
	m.AgentID = &agentID
	m.PriorityLevel = c.Priority
	if c.Reason != nil {
		reason := *c.Reason
		m.ReassignmentCount++
		m.ReassignmentReason = &reason
	}
	m.UpdatedAt = c.At
	s.missions[c.MissionID] = m
	return nil
}

func canReserve(a models.AgentAvailability) bool {
	return a.Status != models.AgentOffDuty && a.TotalMissionsToday < a.MaxMissionsPerDay
}

func reserve(a *models.AgentAvailability, now time.Time) {
	a.AssignedMissions++
	a.TotalMissionsToday++
	a.Status = models.AgentOnMission
	a.Version++
	a.UpdatedAt = now
}

func release(a *models.AgentAvailability, now time.Time) {
	wasLast := a.AssignedMissions <= 1
	if a.AssignedMissions > 0 {
		a.AssignedMissions--
	}
	if wasLast && a.Status == models.AgentOnMission {
		a.Status = models.AgentAvailable
	}
	a.Version++
	a.UpdatedAt = now
}

func (s *MemoryStore) CreateRun(ctx context.Context, status string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "run_" + strconv.Itoa(len(s.runs)+1)
	s.runs = append(s.runs, models.Run{ID: id, StartedAt: s.now(), Status: status})
	return id, nil
}

func (s *MemoryStore) FinishRun(ctx context.Context, runID string, status string, summary []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID != runID {
			continue
		}
		finished := s.now()
		s.runs[i].Status = status
		s.runs[i].Summary = append([]byte(nil), summary...)
		s.runs[i].FinishedAt = &finished
		return nil
	}
	return fmt.Errorf("monitor run %s: %w", runID, models.ErrNotFound)
}

func (s *MemoryStore) GetLatestRun(ctx context.Context) (models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return models.Run{}, fmt.Errorf("monitor run: %w", models.ErrNotFound)
	}
	return s.runs[len(s.runs)-1], nil
}

func cloneProfile(p models.AgentProfile) models.AgentProfile {
	if p.Availability.LastMissionEnd != nil {
		t := *p.Availability.LastMissionEnd
		p.Availability.LastMissionEnd = &t
	}
	if p.Availability.CurrentLocation != nil {
		loc := *p.Availability.CurrentLocation
		p.Availability.CurrentLocation = &loc
	}
	p.Skills.DisabilityTypes = append([]models.DisabilityCategory(nil), p.Skills.DisabilityTypes...)
	p.Skills.TransportModes = append([]models.TransportMode(nil), p.Skills.TransportModes...)
	return p
}

func cloneMission(m models.Mission) models.Mission {
	if m.AgentID != nil {
		id := *m.AgentID
		m.AgentID = &id
	}
	if m.ReassignmentReason != nil {
		r := *m.ReassignmentReason
		m.ReassignmentReason = &r
	}
	if m.Location != nil {
		loc := *m.Location
		m.Location = &loc
	}
	return m
}
