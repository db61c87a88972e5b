package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
	"github.com/CosmoTheDev/vtyscan-agent/internal/database"
	"github.com/CosmoTheDev/vtyscan-agent/internal/events"
	"github.com/CosmoTheDev/vtyscan-agent/models"
)

func newTestGateway(t *testing.T) (*Gateway, database.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "gateway-test.db")
	db, err := database.NewSQLite(config.DatabaseConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("new sqlite db: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return New(&config.Config{}, db), db
}

func seedRun(t *testing.T, gw *Gateway) int64 {
	t.Helper()
	ctx := context.Background()
	run := models.AuditRun{
		Status:      string(models.RunCompleted),
		Inventory:   "devices.yaml",
		DeviceCount: 1,
		Workers:     5,
		StartedAt:   time.Now().UTC(),
	}
	if err := gw.store.CreateRun(ctx, &run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	findings := []models.RiskFinding{
		{Line: models.LineID{Slot: 0, Adapter: 1, Channel: 0, Triple: true}, Score: 40, Level: models.RiskCritical, Telnet: true},
		{Line: models.LineID{Type: "con"}, Score: 0, Level: models.RiskLow},
	}
	if err := gw.store.RecordFindings(ctx, run.ID, "rtr-a", findings); err != nil {
		t.Fatalf("record findings: %v", err)
	}
	if err := gw.store.FinishRun(ctx, run.ID, models.RunCompleted, ""); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	return run.ID
}

func doRequest(t *testing.T, gw *Gateway, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	buildHandler(gw).ServeHTTP(rr, req)
	return rr
}

func TestHandleHealth(t *testing.T) {
	gw, db := newTestGateway(t)
	defer db.Close()

	rr := doRequest(t, gw, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHandleStatusIdle(t *testing.T) {
	gw, db := newTestGateway(t)
	defer db.Close()

	rr := doRequest(t, gw, http.MethodGet, "/api/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var status GatewayStatus
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running {
		t.Error("fresh gateway reports a running audit")
	}
}

func TestHandleListRuns(t *testing.T) {
	gw, db := newTestGateway(t)
	defer db.Close()
	runID := seedRun(t, gw)

	rr := doRequest(t, gw, http.MethodGet, "/api/runs", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Runs  []models.AuditRun `json:"runs"`
		Count int               `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || resp.Runs[0].ID != runID {
		t.Fatalf("unexpected runs response: %+v", resp)
	}
}

func TestHandleGetRunNotFound(t *testing.T) {
	gw, db := newTestGateway(t)
	defer db.Close()

	rr := doRequest(t, gw, http.MethodGet, "/api/runs/999", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleRunFindingsMinLevel(t *testing.T) {
	gw, db := newTestGateway(t)
	defer db.Close()
	runID := seedRun(t, gw)

	rr := doRequest(t, gw, http.MethodGet,
		"/api/runs/"+itoa(runID)+"/findings?min_level=high", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Findings []models.FindingRecord `json:"findings"`
		Count    int                    `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || resp.Findings[0].Level != "CRITICAL" {
		t.Fatalf("min_level filter returned %+v", resp)
	}

	rr = doRequest(t, gw, http.MethodGet,
		"/api/runs/"+itoa(runID)+"/findings?min_level=bogus", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bogus min_level, got %d", rr.Code)
	}
}

func TestHandleTriggerWithoutInventory(t *testing.T) {
	gw, db := newTestGateway(t)
	defer db.Close()

	rr := doRequest(t, gw, http.MethodPost, "/api/audit", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without inventory, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandlePauseWithoutActiveRun(t *testing.T) {
	gw, db := newTestGateway(t)
	defer db.Close()

	for _, path := range []string{"/api/audit/pause", "/api/audit/resume", "/api/audit/stop"} {
		rr := doRequest(t, gw, http.MethodPost, path, "")
		if rr.Code != http.StatusConflict {
			t.Errorf("%s: expected 409 with no active run, got %d", path, rr.Code)
		}
	}
}

func TestScheduleCRUD(t *testing.T) {
	gw, db := newTestGateway(t)
	defer db.Close()

	body := `{"name":"nightly","expr":"0 2 * * *","workers":3,"enabled":true}`
	rr := doRequest(t, gw, http.MethodPost, "/api/schedules", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created Schedule
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode created schedule: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("created schedule has no id")
	}

	rr = doRequest(t, gw, http.MethodGet, "/api/schedules", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	var listResp struct {
		Schedules []Schedule `json:"schedules"`
		Count     int        `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&listResp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if listResp.Count != 1 || listResp.Schedules[0].Name != "nightly" {
		t.Fatalf("unexpected schedule list: %+v", listResp)
	}

	update := `{"name":"nightly","expr":"@every 6h","enabled":false}`
	rr = doRequest(t, gw, http.MethodPut, "/api/schedules/"+itoa(created.ID), update)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, gw, http.MethodDelete, "/api/schedules/"+itoa(created.ID), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rr.Code)
	}
	rr = doRequest(t, gw, http.MethodGet, "/api/schedules", "")
	listResp.Schedules = nil
	if err := json.NewDecoder(rr.Body).Decode(&listResp); err != nil {
		t.Fatalf("decode list after delete: %v", err)
	}
	if listResp.Count != 0 {
		t.Fatalf("schedule survived delete: %+v", listResp)
	}
}

func TestScheduleCreateRejectsBadExpr(t *testing.T) {
	gw, db := newTestGateway(t)
	defer db.Close()

	rr := doRequest(t, gw, http.MethodPost, "/api/schedules",
		`{"name":"broken","expr":"not a cron"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid expression, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleEventsStreamsBusEvents(t *testing.T) {
	gw, db := newTestGateway(t)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		gw.handleEvents(rec, req)
	}()

	// The handler subscribes to the bus before writing anything; wait
	// for that so the published event cannot be missed.
	deadline := time.Now().Add(2 * time.Second)
	for gw.bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed to the event bus")
		}
		time.Sleep(5 * time.Millisecond)
	}

	gw.bus.Publish(events.Event{Type: events.TypeRunStarted, Total: 3})
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, `"type":"connected"`) {
		t.Errorf("stream missing connected frame:\n%s", body)
	}
	if !strings.Contains(body, `"type":"`+events.TypeRunStarted+`"`) {
		t.Errorf("stream missing %s frame:\n%s", events.TypeRunStarted, body)
	}
	for _, frame := range strings.Split(strings.TrimSpace(body), "\n\n") {
		if !strings.HasPrefix(frame, "data: ") {
			t.Errorf("frame not in SSE data format: %q", frame)
		}
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
