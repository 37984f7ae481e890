package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/pmr_assist/backend/internal/metrics"
	"github.com/pmr_assist/backend/internal/models"
)

const (
	RunStatusRunning = "RUNNING"
	RunStatusDone    = "DONE"
	RunStatusPartial = "PARTIAL"
	RunStatusFailed  = "FAILED"
)

// RunRecorder persists monitor sweeps.
type RunRecorder interface {
	CreateRun(ctx context.Context, status string) (string, error)
	FinishRun(ctx context.Context, runID string, status string, summary []byte) error
	GetLatestRun(ctx context.Context) (models.Run, error)
}

type MissionError struct {
	MissionID string `json:"mission_id"`
	Error     string `json:"error"`
}

type MonitorResult struct {
	RunID           string                `json:"run_id,omitempty"`
	Scanned         int                   `json:"scanned"`
	PriorityChanged int                   `json:"priority_changed"`
	ActionsRequired int                   `json:"actions_required"`
	Reassignments   int                   `json:"reassignments"`
	Assignments     int                   `json:"assignments"`
	Errors          int                   `json:"errors"`
	Failures        []MissionError        `json:"failures,omitempty"`
	ElapsedMs       int64                 `json:"elapsed_ms"`
	Events          []models.Notification `json:"-"`
}

// Monitor sweeps every active mission. Missions are processed independently
// with bounded parallelism; one mission failing never stops the sweep.
func (e *Engine) Monitor(ctx context.Context) (MonitorResult, error) {
	start := time.Now()
	timer := metrics.MonitorSweepDuration
	defer func() { timer.Observe(time.Since(start).Seconds()) }()

	missions, err := e.Store.ListActiveMissions(ctx)
	if err != nil {
		return MonitorResult{}, fmt.Errorf("list active missions: %w", err)
	}

	var (
		mu     sync.Mutex
		result = MonitorResult{Scanned: len(missions)}
	)

	limit := e.Policy.MonitorConcurrency
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for _, m := range missions {
		m := m
		g.Go(func() error {
			res, err := e.sweepMission(ctx, m)

			mu.Lock()
			defer mu.Unlock()
			if res.Evaluation.Changed {
				result.PriorityChanged++
			}
			if res.Evaluation.RequiresAction {
				result.ActionsRequired++
			}
			if res.Reassignment != nil && res.Reassignment.Success {
				result.Reassignments++
			}
			if res.Assignment != nil && res.Assignment.Success {
				result.Assignments++
			}
			result.Events = append(result.Events, res.Events...)
			if err != nil {
				result.Errors++
				result.Failures = append(result.Failures, MissionError{MissionID: m.ID, Error: err.Error()})
				metrics.MonitorMissionErrorsTotal.Inc()
				e.Logger.Error().Err(err).Str("mission_id", m.ID).Msg("mission sweep failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	result.ElapsedMs = time.Since(start).Milliseconds()
	e.Logger.Info().
		Int("scanned", result.Scanned).
		Int("priority_changed", result.PriorityChanged).
		Int("actions_required", result.ActionsRequired).
		Int("reassignments", result.Reassignments).
		Int("assignments", result.Assignments).
		Int("errors", result.Errors).
		Msg("monitor sweep complete")
	return result, nil
}

// sweepMission turns a panic while processing one mission into that
// mission's error.
func (e *Engine) sweepMission(ctx context.Context, m models.Mission) (res ReevaluationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = ReevaluationResult{MissionID: m.ID}
			err = fmt.Errorf("mission %s: panic: %v", m.ID, r)
		}
	}()
	return e.processMission(ctx, m)
}

// RecordedMonitor runs a sweep bracketed by a persisted run record.
func (e *Engine) RecordedMonitor(ctx context.Context, runs RunRecorder) (MonitorResult, error) {
	runID, err := runs.CreateRun(ctx, RunStatusRunning)
	if err != nil {
		return MonitorResult{}, fmt.Errorf("create run: %w", err)
	}

	result, sweepErr := e.Monitor(ctx)
	result.RunID = runID

	status := RunStatusDone
	var summary []byte
	switch {
	case sweepErr != nil:
		status = RunStatusFailed
		summary, _ = json.Marshal(map[string]any{"error": sweepErr.Error()})
	default:
		if result.Errors > 0 {
			status = RunStatusPartial
		}
		summary, _ = json.Marshal(result)
	}
	if err := runs.FinishRun(ctx, runID, status, summary); err != nil {
		e.Logger.Error().Err(err).Str("run_id", runID).Msg("failed to finish run")
	}
	return result, sweepErr
}
