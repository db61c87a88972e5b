package gateway

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/CosmoTheDev/vtyscan-agent/models"
)

func buildHandler(gw *Gateway) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", gw.handleRoot)

	// Health / status
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /api/status", gw.handleStatus)

	// Audit run control
	mux.HandleFunc("POST /api/audit", gw.handleTriggerAudit)
	mux.HandleFunc("POST /api/audit/pause", gw.handlePause)
	mux.HandleFunc("POST /api/audit/resume", gw.handleResume)
	mux.HandleFunc("POST /api/audit/stop", gw.handleStop)

	// Run history
	mux.HandleFunc("GET /api/runs", gw.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", gw.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/phases", gw.handleRunPhases)
	mux.HandleFunc("GET /api/runs/{id}/findings", gw.handleRunFindings)
	mux.HandleFunc("GET /api/runs/{id}/lines", gw.handleRunLines)
	mux.HandleFunc("GET /api/runs/{id}/outputs", gw.handleRunOutputs)

	// Schedule management
	mux.HandleFunc("GET /api/schedules", gw.handleListSchedules)
	mux.HandleFunc("POST /api/schedules", gw.handleCreateSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}", gw.handleUpdateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", gw.handleDeleteSchedule)
	mux.HandleFunc("POST /api/schedules/{id}/trigger", gw.handleTriggerSchedule)

	// Live event stream
	mux.HandleFunc("GET /events", gw.handleEvents)

	return mux
}

func (gw *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   "vtyscan gateway",
		"status": "running",
		"endpoints": []string{
			"GET /health",
			"GET /api/status",
			"POST /api/audit",
			"POST /api/audit/pause",
			"POST /api/audit/resume",
			"POST /api/audit/stop",
			"GET /api/runs",
			"GET /api/runs/{id}",
			"GET /api/runs/{id}/findings",
			"GET /api/schedules",
			"POST /api/schedules",
			"GET /events",
		},
	})
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (gw *Gateway) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, gw.currentStatus())
}

// --- Run control ---

type triggerRequest struct {
	Inventory string `json:"inventory,omitempty"`
	Policy    string `json:"policy,omitempty"`
	Workers   int    `json:"workers,omitempty"`
}

func (gw *Gateway) handleTriggerAudit(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	err := gw.TriggerRun(r.Context(), req.Inventory, req.Policy, req.Workers)
	switch {
	case errors.Is(err, ErrRunActive):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

func (gw *Gateway) handlePause(w http.ResponseWriter, _ *http.Request) {
	if err := gw.Pause(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (gw *Gateway) handleResume(w http.ResponseWriter, _ *http.Request) {
	if err := gw.Resume(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (gw *Gateway) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := gw.StopRun(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// --- Run history ---

func (gw *Gateway) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	runs, err := gw.store.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (gw *Gateway) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, err := gw.store.Run(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("run %d not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summary, _ := gw.store.Summary(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "summary": summary})
}

func (gw *Gateway) handleRunPhases(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	phases, err := gw.store.Phases(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phases": phases, "count": len(phases)})
}

func (gw *Gateway) handleRunFindings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minLevel := models.RiskUnknown
	if raw := strings.TrimSpace(r.URL.Query().Get("min_level")); raw != "" {
		minLevel = models.MapRiskLevel(raw)
		if minLevel == models.RiskUnknown {
			writeError(w, http.StatusBadRequest, "invalid min_level: "+raw)
			return
		}
	}
	findings, err := gw.store.Findings(r.Context(), id, minLevel)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": findings, "count": len(findings)})
}

func (gw *Gateway) handleRunLines(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lines, err := gw.store.Lines(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines, "count": len(lines)})
}

func (gw *Gateway) handleRunOutputs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	device := strings.TrimSpace(r.URL.Query().Get("device"))
	outputs, err := gw.store.Outputs(r.Context(), id, device)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outputs": outputs, "count": len(outputs)})
}

// --- Schedules ---

func (gw *Gateway) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := gw.scheduler.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": schedules, "count": len(schedules)})
}

func (gw *Gateway) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var sched Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(sched.Name) == "" || strings.TrimSpace(sched.Expr) == "" {
		writeError(w, http.StatusBadRequest, "name and expr are required")
		return
	}
	id, err := gw.scheduler.Add(r.Context(), sched)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sched.ID = id
	writeJSON(w, http.StatusCreated, sched)
}

func (gw *Gateway) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var sched Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := gw.scheduler.Update(r.Context(), id, sched); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "id": id})
}

func (gw *Gateway) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.scheduler.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "id": id})
}

func (gw *Gateway) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.scheduler.Trigger(r.Context(), id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "triggered", "id": id})
}

// --- SSE ---

// handleEvents streams SSE to the client. Each line is a JSON SSEEvent.
// Clients receive a "connected" event immediately, then live updates.
func (gw *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if behind a proxy

	ch, cancel := gw.bus.Subscribe()
	defer cancel()

	// Send initial connected event with current status.
	connected, _ := json.Marshal(SSEEvent{Type: "connected", Payload: gw.currentStatus()})
	fmt.Fprintf(w, "data: %s\n\n", connected)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			frame, err := json.Marshal(SSEEvent{Type: evt.Type, Payload: evt})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}
}
