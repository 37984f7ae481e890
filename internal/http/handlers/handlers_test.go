package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/pmr_assist/backend/internal/db"
	"github.com/pmr_assist/backend/internal/models"
	"github.com/pmr_assist/backend/internal/notify"
	"github.com/pmr_assist/backend/internal/service"
)

var fixedNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (*gin.Engine, *db.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := db.NewMemoryStore()
	if err := db.SeedDemo(context.Background(), store, fixedNow); err != nil {
		t.Fatalf("seed: %v", err)
	}
	engine := &service.Engine{
		Store:  store,
		Policy: service.DefaultPolicy(),
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return fixedNow },
	}
	h := &Handler{
		Engine:    engine,
		Store:     store,
		Notifier:  notify.NewService(zerolog.Nop(), notify.LogSender{Logger: zerolog.Nop()}),
		Validator: validator.New(),
		Logger:    zerolog.Nop(),
	}

	r := gin.New()
	r.GET("/healthz", h.Healthz)
	r.GET("/api/agents", h.AgentsList)
	r.GET("/api/missions/:id", h.MissionDetails)
	r.GET("/api/missions/:id/candidates", h.MissionCandidates)
	r.GET("/api/runs/latest", h.RunsLatest)
	r.POST("/api/missions/:id/assign", h.AssignMission)
	r.POST("/api/missions/:id/reevaluate", h.ReevaluateMission)
	r.POST("/api/missions/:id/reassign", h.ReassignMission)
	r.POST("/api/monitor", h.Monitor)
	r.PATCH("/api/agents/:id/availability", h.PatchAvailability)
	r.POST("/api/agents/reset-daily", h.ResetDaily)
	return r, store
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestAgentsListFiltersByStatus(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/agents?status=off_duty", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Items []models.AgentProfile `json:"items"`
	}
	decode(t, w, &body)
	if len(body.Items) != 1 || body.Items[0].Agent.ID != "agt_004" {
		t.Fatalf("unexpected agents: %+v", body.Items)
	}

	if w := do(t, r, http.MethodGet, "/api/agents?status=asleep", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestMissionNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/api/missions/msn_404", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var body errorBody
	decode(t, w, &body)
	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("unexpected error code %q", body.Error.Code)
	}
}

func TestCandidatesDoNotAssign(t *testing.T) {
	r, store := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/api/missions/msn_001/candidates", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res service.EligibilityResult
	decode(t, w, &res)
	if len(res.Ranked) == 0 {
		t.Fatalf("expected ranked candidates")
	}
	for _, c := range res.Ranked {
		if c.Agent.ID == "agt_004" {
			t.Fatalf("off duty agent ranked")
		}
	}
	m, _ := store.GetMission(context.Background(), "msn_001")
	if m.HasAgent() {
		t.Fatalf("candidates must not assign")
	}
}

func TestAssignThenReassign(t *testing.T) {
	r, store := newTestRouter(t)
	ctx := context.Background()

	w := do(t, r, http.MethodPost, "/api/missions/msn_001/assign", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("assign: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var assigned service.AssignmentResult
	decode(t, w, &assigned)
	if !assigned.Success || assigned.Agent == nil {
		t.Fatalf("expected successful assignment, got %+v", assigned)
	}
	first := assigned.Agent.ID

	w = do(t, r, http.MethodPost, "/api/missions/msn_001/assign", map[string]string{"priority_level": "high"})
	var again service.AssignmentResult
	decode(t, w, &again)
	if again.Success || again.Reason != service.ResultMissionAlreadyAssigned {
		t.Fatalf("expected mission_already_assigned, got %+v", again)
	}

	w = do(t, r, http.MethodPost, "/api/missions/msn_001/reassign", map[string]string{"reason": "incident"})
	if w.Code != http.StatusOK {
		t.Fatalf("reassign: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var reassigned service.ReassignmentResult
	decode(t, w, &reassigned)
	if !reassigned.Success || reassigned.Agent == nil || reassigned.Agent.ID == first {
		t.Fatalf("expected a different agent, got %+v", reassigned)
	}

	m, err := store.GetMission(ctx, "msn_001")
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if m.ReassignmentCount != 1 || m.AgentID == nil || *m.AgentID != reassigned.Agent.ID {
		t.Fatalf("unexpected mission state: %+v", m)
	}
}

func TestAssignRejectsUnknownPriority(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/api/missions/msn_001/assign", map[string]string{"priority_level": "extreme"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAssignNormalizesPriorityOverride(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/api/missions/msn_001/assign", map[string]string{"priority_level": " URGENT "})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res service.AssignmentResult
	decode(t, w, &res)
	if res.Priority != models.PriorityUrgent {
		t.Fatalf("expected urgent override, got %q", res.Priority)
	}
}

func TestReassignValidatesReason(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/api/missions/msn_001/reassign", map[string]string{"reason": "bored"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body errorBody
	decode(t, w, &body)
	if body.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code %q", body.Error.Code)
	}
}

func TestReassignWithoutAgent(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/api/missions/msn_002/reassign", map[string]string{"reason": "critical_delay"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res service.ReassignmentResult
	decode(t, w, &res)
	if res.Success || res.Reason != service.ResultNoCurrentAgent {
		t.Fatalf("expected no_current_agent, got %+v", res)
	}
}

func TestPatchAvailabilityVersionConflict(t *testing.T) {
	r, store := newTestRouter(t)

	w := do(t, r, http.MethodPatch, "/api/agents/agt_003/availability", map[string]any{"status": "available", "expected_version": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	p, _ := store.GetAgent(context.Background(), "agt_003")
	if p.Availability.Status != models.AgentAvailable || p.Availability.Version != 2 {
		t.Fatalf("patch not applied: %+v", p.Availability)
	}

	w = do(t, r, http.MethodPatch, "/api/agents/agt_003/availability", map[string]any{"status": "break", "expected_version": 1})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on stale version, got %d", w.Code)
	}

	w = do(t, r, http.MethodPatch, "/api/agents/agt_003/availability", map[string]any{"lat": 48.85})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for lat without lon, got %d", w.Code)
	}

	w = do(t, r, http.MethodPatch, "/api/agents/agt_999/availability", map[string]any{"status": "break"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown agent, got %d", w.Code)
	}
}

func TestMonitorRecordsRun(t *testing.T) {
	r, _ := newTestRouter(t)

	if w := do(t, r, http.MethodGet, "/api/runs/latest", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any run, got %d", w.Code)
	}

	w := do(t, r, http.MethodPost, "/api/monitor", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("monitor: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res service.MonitorResult
	decode(t, w, &res)
	if res.Scanned != 3 || res.RunID == "" {
		t.Fatalf("unexpected monitor result: %+v", res)
	}

	w = do(t, r, http.MethodGet, "/api/runs/latest", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("runs: expected 200, got %d", w.Code)
	}
	var run models.Run
	decode(t, w, &run)
	if run.ID != res.RunID || run.Status != service.RunStatusDone {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestResetDaily(t *testing.T) {
	r, _ := newTestRouter(t)
	if w := do(t, r, http.MethodPost, "/api/missions/msn_001/assign", nil); w.Code != http.StatusOK {
		t.Fatalf("assign: %d", w.Code)
	}
	w := do(t, r, http.MethodPost, "/api/agents/reset-daily", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestReevaluateInactiveMission(t *testing.T) {
	r, store := newTestRouter(t)
	m, _ := store.GetMission(context.Background(), "msn_001")
	m.Status = models.MissionCompleted
	if err := store.PutMission(context.Background(), m); err != nil {
		t.Fatalf("put mission: %v", err)
	}
	w := do(t, r, http.MethodPost, "/api/missions/msn_001/reevaluate", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for inactive mission, got %d", w.Code)
	}
}
