package service

import (
	"context"
	"testing"
	"time"

	"github.com/pmr_assist/backend/internal/db"
	"github.com/pmr_assist/backend/internal/models"
	"github.com/pmr_assist/backend/internal/signals"
)

func monitorFixture(t *testing.T) (*db.MemoryStore, *fakeSignals) {
	gone := assignedProfile("gone", 1)
	gone.Availability.Status = models.AgentOffDuty

	cancelled := mission("m4", "u1", nil)
	cancelled.Status = models.MissionCancelled

	store := seedStore(t,
		[]models.AgentProfile{
			gone,
			profile("x", models.AgentAvailable, offset(1), wheelchair(), 0),
			profile("y", models.AgentAvailable, offset(4), wheelchair(), 0),
		},
		[]models.Mission{
			mission("m1", "u1", ptr("gone")),
			mission("m2", "u2", nil),
			mission("m3", "no-profile", nil),
			cancelled,
		},
		[]models.PmrNeeds{wheelchairNeeds("u1"), wheelchairNeeds("u2")})
	sig := &fakeSignals{incidents: map[string][]models.Incident{"u2": {{Severity: models.SeverityCritical}}}}
	return store, sig
}

func TestMonitorIsolatesFailures(t *testing.T) {
	store, sig := monitorFixture(t)
	e := newTestEngine(store, sig)

	res, err := e.Monitor(context.Background())
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if res.Scanned != 3 {
		t.Fatalf("expected 3 active missions scanned, got %d", res.Scanned)
	}
	if res.Errors != 1 || len(res.Failures) != 1 || res.Failures[0].MissionID != "m3" {
		t.Fatalf("expected one failure on m3, got %+v", res.Failures)
	}
	if res.Reassignments != 1 {
		t.Fatalf("expected off duty agent to be replaced, got %d reassignments", res.Reassignments)
	}
	if res.Assignments != 1 || res.ActionsRequired != 1 || res.PriorityChanged != 1 {
		t.Fatalf("unexpected counters: %+v", res)
	}

	m1 := mustMission(t, store, "m1")
	if m1.AgentID == nil || *m1.AgentID == "gone" || m1.ReassignmentCount != 1 {
		t.Fatalf("m1 not reassigned: %+v", m1)
	}
	m2 := mustMission(t, store, "m2")
	if !m2.HasAgent() || m2.PriorityLevel != models.PriorityUrgent {
		t.Fatalf("m2 not assigned after escalation: %+v", m2)
	}
	if len(res.Events) == 0 {
		t.Fatalf("expected events from the sweep")
	}
}

func TestMonitorSequentialMatchesParallel(t *testing.T) {
	store, sig := monitorFixture(t)
	e := newTestEngine(store, sig)
	e.Policy.MonitorConcurrency = 0

	res, err := e.Monitor(context.Background())
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if res.Scanned != 3 || res.Errors != 1 || res.Reassignments != 1 {
		t.Fatalf("unexpected counters: %+v", res)
	}
}

func TestRecordedMonitorPersistsRun(t *testing.T) {
	store, sig := monitorFixture(t)
	e := newTestEngine(store, sig)
	ctx := context.Background()

	res, err := e.RecordedMonitor(ctx, store)
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	run, err := store.GetLatestRun(ctx)
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run.ID != res.RunID || run.Status != RunStatusPartial || len(run.Summary) == 0 {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestMonitorDemoDataWithMockSignals(t *testing.T) {
	store := db.NewMemoryStore()
	if err := db.SeedDemo(context.Background(), store, testNow.Add(-time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := newTestEngine(store, nil)
	e.Signals = signals.MockAdapter{}

	res, err := e.Monitor(context.Background())
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if res.Scanned != 3 || res.Errors != 0 {
		t.Fatalf("unexpected sweep result: %+v", res)
	}
}

// panickySignals blows up for one passenger.
type panickySignals struct {
	fakeSignals
	userID string
}

func (p *panickySignals) ActiveIncidentsForUser(ctx context.Context, userID string) ([]models.Incident, error) {
	if userID == p.userID {
		panic("feed exploded")
	}
	return p.fakeSignals.ActiveIncidentsForUser(ctx, userID)
}

func TestMonitorRecoversFromCollaboratorPanic(t *testing.T) {
	store, _ := monitorFixture(t)
	e := newTestEngine(store, nil)
	e.Signals = &panickySignals{userID: "u2"}

	res, err := e.Monitor(context.Background())
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if res.Scanned != 3 || res.Errors != 2 {
		t.Fatalf("expected m2 and m3 to fail, got %+v", res.Failures)
	}
	if res.Reassignments != 1 {
		t.Fatalf("m1 must still be processed, got %d reassignments", res.Reassignments)
	}
}
