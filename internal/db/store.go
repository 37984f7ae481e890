package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmr_assist/backend/internal/models"
)

// Store is the PostgreSQL implementation of the engine's ports.
type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "pmr-assist-backend"
	cfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const profileColumns = `
	a.id, a.name, a.phone, a.email, a.employer,
	av.status, av.assigned_missions, av.total_missions_today, av.max_missions_per_day,
	av.last_mission_end, av.current_lat, av.current_lon, av.version, av.updated_at,
	COALESCE(sk.disability_types, '{}'), COALESCE(sk.max_assistance_level, 'minimal'),
	COALESCE(sk.transport_modes, '{}'), COALESCE(sk.experience_level, 'beginner'),
	COALESCE(sk.average_rating, 0)
FROM agents a
JOIN agent_availability av ON av.agent_id = a.id
LEFT JOIN agent_skills sk ON sk.agent_id = a.id`

// ListAgents returns the directory ordered by creation time then id; the
// selector's tie-break relies on this order.
func (s *Store) ListAgents(ctx context.Context) ([]models.AgentProfile, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+profileColumns+` ORDER BY a.created_at, a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AgentProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetAgent(ctx context.Context, agentID string) (models.AgentProfile, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+profileColumns+` WHERE a.id = $1`, agentID)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AgentProfile{}, fmt.Errorf("agent %s: %w", agentID, models.ErrNotFound)
	}
	return p, err
}

func scanProfile(row pgx.Row) (models.AgentProfile, error) {
	var (
		p               models.AgentProfile
		status          string
		lat, lon        *float64
		disabilities    []string
		maxAssistance   string
		transportModes  []string
		experienceLevel string
	)
	err := row.Scan(
		&p.Agent.ID, &p.Agent.Name, &p.Agent.Phone, &p.Agent.Email, &p.Agent.Employer,
		&status, &p.Availability.AssignedMissions, &p.Availability.TotalMissionsToday, &p.Availability.MaxMissionsPerDay,
		&p.Availability.LastMissionEnd, &lat, &lon, &p.Availability.Version, &p.Availability.UpdatedAt,
		&disabilities, &maxAssistance, &transportModes, &experienceLevel, &p.Skills.AverageRating,
	)
	if err != nil {
		return models.AgentProfile{}, err
	}
	p.Availability.AgentID = p.Agent.ID
	p.Availability.Status = models.AgentStatus(status)
	p.Availability.CurrentLocation = point(lat, lon)

	for _, d := range disabilities {
		p.Skills.DisabilityTypes = append(p.Skills.DisabilityTypes, models.DisabilityCategory(d))
	}
	for _, m := range transportModes {
		if mode, err := models.ParseTransportMode(m); err == nil {
			p.Skills.TransportModes = append(p.Skills.TransportModes, mode)
		}
	}
	if level, err := models.ParseAssistanceLevel(maxAssistance); err == nil {
		p.Skills.MaxAssistanceLevel = level
	}
	if level, err := models.ParseExperienceLevel(experienceLevel); err == nil {
		p.Skills.ExperienceLevel = level
	}
	return p, nil
}

// UpdateAvailability applies an administrative patch. A non-zero
// ExpectedVersion that no longer matches yields ErrConflict.
func (s *Store) UpdateAvailability(ctx context.Context, agentID string, patch models.AvailabilityPatch) (models.AgentAvailability, error) {
	var status *string
	if patch.Status != nil {
		v := string(*patch.Status)
		status = &v
	}
	var lat, lon *float64
	if patch.CurrentLocation != nil {
		lat, lon = &patch.CurrentLocation.Lat, &patch.CurrentLocation.Lon
	}

	var (
		a         models.AgentAvailability
		rawStatus string
		curLat    *float64
		curLon    *float64
	)
	err := s.Pool.QueryRow(ctx, `
		UPDATE agent_availability
		SET status = COALESCE($2, status),
			max_missions_per_day = COALESCE($3, max_missions_per_day),
			current_lat = COALESCE($4, current_lat),
			current_lon = COALESCE($5, current_lon),
			last_mission_end = COALESCE($6, last_mission_end),
			version = version + 1,
			updated_at = NOW()
		WHERE agent_id = $1 AND ($7::bigint = 0 OR version = $7::bigint)
		RETURNING agent_id, status, assigned_missions, total_missions_today, max_missions_per_day,
			last_mission_end, current_lat, current_lon, version, updated_at
	`, agentID, status, patch.MaxMissionsPerDay, lat, lon, patch.LastMissionEnd, patch.ExpectedVersion).Scan(
		&a.AgentID, &rawStatus, &a.AssignedMissions, &a.TotalMissionsToday, &a.MaxMissionsPerDay,
		&a.LastMissionEnd, &curLat, &curLon, &a.Version, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM agent_availability WHERE agent_id = $1)`, agentID).Scan(&exists); err != nil {
			return models.AgentAvailability{}, err
		}
		if !exists {
			return models.AgentAvailability{}, fmt.Errorf("agent %s: %w", agentID, models.ErrNotFound)
		}
		return models.AgentAvailability{}, fmt.Errorf("agent %s availability version %d: %w", agentID, patch.ExpectedVersion, models.ErrConflict)
	}
	if err != nil {
		return models.AgentAvailability{}, err
	}
	a.Status = models.AgentStatus(rawStatus)
	a.CurrentLocation = point(curLat, curLon)
	return a, nil
}

// ResetDailyCounters starts a new day. total_missions_today falls back to
// the missions still in progress so it never drops below assigned_missions.
func (s *Store) ResetDailyCounters(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE agent_availability
		SET total_missions_today = assigned_missions, version = version + 1, updated_at = NOW()
		WHERE total_missions_today <> assigned_missions
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const missionColumns = `
	id, reservation_id, segment_id, user_id, agent_id, priority_level, is_critical_connection,
	reassignment_count, reassignment_reason, status, transport_mode, meeting_lat, meeting_lon,
	meeting_address, scheduled_at, updated_at
FROM missions`

func scanMission(row pgx.Row) (models.Mission, error) {
	var (
		m                      models.Mission
		priority, status, mode string
		reason                 *string
		lat, lon               *float64
	)
	err := row.Scan(
		&m.ID, &m.ReservationID, &m.SegmentID, &m.UserID, &m.AgentID, &priority, &m.IsCriticalConnection,
		&m.ReassignmentCount, &reason, &status, &mode, &lat, &lon,
		&m.MeetingAddress, &m.ScheduledAt, &m.UpdatedAt,
	)
	if err != nil {
		return models.Mission{}, err
	}
	if err := decodeMissionEnums(&m, priority, status, mode, reason); err != nil {
		return models.Mission{}, fmt.Errorf("mission %s: %w", m.ID, err)
	}
	m.Location = point(lat, lon)
	return m, nil
}

// decodeMissionEnums rejects enum values written outside the engine.
func decodeMissionEnums(m *models.Mission, priority, status, mode string, reason *string) error {
	var err error
	if m.PriorityLevel, err = models.ParsePriorityLevel(priority); err != nil {
		return err
	}
	if m.Status, err = models.ParseMissionStatus(status); err != nil {
		return err
	}
	if m.TransportMode, err = models.ParseTransportMode(mode); err != nil {
		return err
	}
	if reason != nil {
		r, err := models.ParseReassignmentReason(*reason)
		if err != nil {
			return err
		}
		m.ReassignmentReason = &r
	}
	return nil
}

func (s *Store) GetMission(ctx context.Context, missionID string) (models.Mission, error) {
	m, err := scanMission(s.Pool.QueryRow(ctx, `SELECT `+missionColumns+` WHERE id = $1`, missionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Mission{}, fmt.Errorf("mission %s: %w", missionID, models.ErrNotFound)
	}
	return m, err
}

func (s *Store) ListActiveMissions(ctx context.Context) ([]models.Mission, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+missionColumns+` WHERE status IN ('pending', 'validated') ORDER BY scheduled_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateMission(ctx context.Context, missionID string, patch models.MissionPatch) error {
	var priority *string
	if patch.PriorityLevel != nil {
		v := string(*patch.PriorityLevel)
		priority = &v
	}
	var lat, lon *float64
	if patch.Location != nil {
		lat, lon = &patch.Location.Lat, &patch.Location.Lon
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE missions
		SET priority_level = COALESCE($2, priority_level),
			meeting_lat = COALESCE($3, meeting_lat),
			meeting_lon = COALESCE($4, meeting_lon),
			updated_at = NOW()
		WHERE id = $1
	`, missionID, priority, lat, lon)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mission %s: %w", missionID, models.ErrNotFound)
	}
	return nil
}

func (s *Store) GetPmrNeeds(ctx context.Context, userID string) (models.PmrNeeds, error) {
	var (
		n     models.PmrNeeds
		level string
	)
	err := s.Pool.QueryRow(ctx, `
		SELECT user_id, type_handicap, assistance_level, mobility_aid FROM pmr_needs WHERE user_id = $1
	`, userID).Scan(&n.UserID, &n.TypeHandicap, &level, &n.MobilityAid)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PmrNeeds{}, fmt.Errorf("pmr needs for user %s: %w", userID, models.ErrNotFound)
	}
	if err != nil {
		return models.PmrNeeds{}, err
	}
	n.AssistanceLevel = models.AssistanceLevel(level)
	if parsed, err := models.ParseAssistanceLevel(level); err == nil {
		n.AssistanceLevel = parsed
	}
	return n, nil
}

// CommitAssignment applies one agent change in a single transaction. The
// mission row is locked first; the new agent is reserved with a conditional
// update so its capacity is checked against committed state.
func (s *Store) CommitAssignment(ctx context.Context, c models.AssignmentCommit) error {
	if c.PreviousAgentID != nil && *c.PreviousAgentID == c.AgentID {
		return fmt.Errorf("mission %s: agent %s is already assigned: %w", c.MissionID, c.AgentID, models.ErrConflict)
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var (
			current *string
			status  string
		)
		err := tx.QueryRow(ctx, `SELECT agent_id, status FROM missions WHERE id = $1 FOR UPDATE`, c.MissionID).Scan(&current, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("mission %s: %w", c.MissionID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := checkCommitPreconditions(c, current, models.MissionStatus(status)); err != nil {
			return err
		}

		// agents are locked in id order so crossed reassignments cannot deadlock
		steps := []func() error{
			func() error { return reserveAgent(ctx, tx, c.MissionID, c.AgentID) },
		}
		if c.PreviousAgentID != nil {
			release := func() error { return releaseAgent(ctx, tx, *c.PreviousAgentID) }
			if *c.PreviousAgentID < c.AgentID {
				steps = append([]func() error{release}, steps...)
			} else {
				steps = append(steps, release)
			}
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}

		var reason *string
		if c.Reason != nil {
			v := string(*c.Reason)
			reason = &v
		}
		_, err = tx.Exec(ctx, `
			UPDATE missions
			SET agent_id = $2,
				priority_level = $3,
				reassignment_count = reassignment_count + CASE WHEN $4::text IS NULL THEN 0 ELSE 1 END,
				reassignment_reason = COALESCE($4, reassignment_reason),
				updated_at = $5
			WHERE id = $1
		`, c.MissionID, c.AgentID, string(c.Priority), reason, c.At)
		return err
	})
}

func checkCommitPreconditions(c models.AssignmentCommit, current *string, status models.MissionStatus) error {
	if status != models.MissionPending && status != models.MissionValidated {
		return fmt.Errorf("mission %s is %s: %w", c.MissionID, status, models.ErrMissionInactive)
	}
	hasAgent := current != nil && *current != ""
	switch {
	case c.PreviousAgentID == nil && hasAgent:
		return fmt.Errorf("mission %s already assigned to %s: %w", c.MissionID, *current, models.ErrConflict)
	case c.PreviousAgentID != nil && (!hasAgent || *current != *c.PreviousAgentID):
		return fmt.Errorf("mission %s agent changed since evaluation: %w", c.MissionID, models.ErrConflict)
	}
	return nil
}

func reserveAgent(ctx context.Context, tx pgx.Tx, missionID, agentID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE agent_availability
		SET assigned_missions = assigned_missions + 1,
			total_missions_today = total_missions_today + 1,
			status = 'on_mission',
			version = version + 1,
			updated_at = NOW()
		WHERE agent_id = $1
			AND status <> 'off_duty'
			AND total_missions_today < max_missions_per_day
	`, agentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reserve agent %s for mission %s: %w", agentID, missionID, models.ErrAgentUnavailable)
	}
	return nil
}

// releaseAgent frees one concurrent slot. Status goes back to available only
// when the last mission is released from an on_mission agent.
func releaseAgent(ctx context.Context, tx pgx.Tx, agentID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE agent_availability
		SET assigned_missions = GREATEST(assigned_missions - 1, 0),
			status = CASE WHEN assigned_missions <= 1 AND status = 'on_mission' THEN 'available' ELSE status END,
			version = version + 1,
			updated_at = NOW()
		WHERE agent_id = $1
	`, agentID)
	return err
}

func (s *Store) CreateRun(ctx context.Context, status string) (string, error) {
	var id string
	err := s.Pool.QueryRow(ctx, `INSERT INTO monitor_runs (status, started_at) VALUES ($1, NOW()) RETURNING id::text`, status).Scan(&id)
	return id, err
}

func (s *Store) FinishRun(ctx context.Context, runID string, status string, summary []byte) error {
	_, err := s.Pool.Exec(ctx, `UPDATE monitor_runs SET status = $1, summary = $2, finished_at = NOW() WHERE id = $3`, status, summary, runID)
	return err
}

func (s *Store) GetLatestRun(ctx context.Context) (models.Run, error) {
	var r models.Run
	err := s.Pool.QueryRow(ctx, `
		SELECT id::text, started_at, finished_at, status, summary FROM monitor_runs ORDER BY started_at DESC LIMIT 1
	`).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Run{}, fmt.Errorf("monitor run: %w", models.ErrNotFound)
	}
	return r, err
}

func point(lat, lon *float64) *models.GeoPoint {
	if lat == nil || lon == nil {
		return nil
	}
	return &models.GeoPoint{Lat: *lat, Lon: *lon}
}

func (s *Store) PutAgent(ctx context.Context, p models.AgentProfile) error {
	var lat, lon *float64
	if p.Availability.CurrentLocation != nil {
		lat, lon = &p.Availability.CurrentLocation.Lat, &p.Availability.CurrentLocation.Lon
	}
	disabilities := make([]string, 0, len(p.Skills.DisabilityTypes))
	for _, d := range p.Skills.DisabilityTypes {
		disabilities = append(disabilities, string(d))
	}
	modes := make([]string, 0, len(p.Skills.TransportModes))
	for _, m := range p.Skills.TransportModes {
		modes = append(modes, string(m))
	}

	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO agents (id, name, phone, email, employer) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone,
				email = EXCLUDED.email, employer = EXCLUDED.employer
		`, p.Agent.ID, p.Agent.Name, p.Agent.Phone, p.Agent.Email, p.Agent.Employer); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO agent_availability (agent_id, status, assigned_missions, total_missions_today,
				max_missions_per_day, last_mission_end, current_lat, current_lon)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (agent_id) DO UPDATE SET status = EXCLUDED.status,
				assigned_missions = EXCLUDED.assigned_missions, total_missions_today = EXCLUDED.total_missions_today,
				max_missions_per_day = EXCLUDED.max_missions_per_day, last_mission_end = EXCLUDED.last_mission_end,
				current_lat = EXCLUDED.current_lat, current_lon = EXCLUDED.current_lon,
				version = agent_availability.version + 1, updated_at = NOW()
		`, p.Agent.ID, string(p.Availability.Status), p.Availability.AssignedMissions, p.Availability.TotalMissionsToday,
			p.Availability.MaxMissionsPerDay, p.Availability.LastMissionEnd, lat, lon); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO agent_skills (agent_id, disability_types, max_assistance_level, transport_modes,
				experience_level, average_rating)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (agent_id) DO UPDATE SET disability_types = EXCLUDED.disability_types,
				max_assistance_level = EXCLUDED.max_assistance_level, transport_modes = EXCLUDED.transport_modes,
				experience_level = EXCLUDED.experience_level, average_rating = EXCLUDED.average_rating
		`, p.Agent.ID, disabilities, string(p.Skills.MaxAssistanceLevel), modes,
			string(p.Skills.ExperienceLevel), p.Skills.AverageRating)
		return err
	})
}

func (s *Store) PutMission(ctx context.Context, m models.Mission) error {
	var lat, lon *float64
	if m.Location != nil {
		lat, lon = &m.Location.Lat, &m.Location.Lon
	}
	var reason *string
	if m.ReassignmentReason != nil {
		v := string(*m.ReassignmentReason)
		reason = &v
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO missions (id, reservation_id, segment_id, user_id, agent_id, priority_level,
			is_critical_connection, reassignment_count, reassignment_reason, status, transport_mode,
			meeting_lat, meeting_lon, meeting_address, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET reservation_id = EXCLUDED.reservation_id,
			segment_id = EXCLUDED.segment_id, user_id = EXCLUDED.user_id, agent_id = EXCLUDED.agent_id,
			priority_level = EXCLUDED.priority_level, is_critical_connection = EXCLUDED.is_critical_connection,
			reassignment_count = EXCLUDED.reassignment_count, reassignment_reason = EXCLUDED.reassignment_reason,
			status = EXCLUDED.status, transport_mode = EXCLUDED.transport_mode, meeting_lat = EXCLUDED.meeting_lat,
			meeting_lon = EXCLUDED.meeting_lon, meeting_address = EXCLUDED.meeting_address,
			scheduled_at = EXCLUDED.scheduled_at, updated_at = NOW()
	`, m.ID, m.ReservationID, m.SegmentID, m.UserID, m.AgentID, string(m.PriorityLevel),
		m.IsCriticalConnection, m.ReassignmentCount, reason, string(m.Status), string(m.TransportMode),
		lat, lon, m.MeetingAddress, m.ScheduledAt)
	return err
}

func (s *Store) PutPmrNeeds(ctx context.Context, n models.PmrNeeds) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO pmr_needs (user_id, type_handicap, assistance_level, mobility_aid) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET type_handicap = EXCLUDED.type_handicap,
			assistance_level = EXCLUDED.assistance_level, mobility_aid = EXCLUDED.mobility_aid
	`, n.UserID, n.TypeHandicap, string(n.AssistanceLevel), n.MobilityAid)
	return err
}
