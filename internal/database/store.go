package database

import (
	"context"
	"fmt"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/models"
)

// Store wraps the generic DB with the audit-domain queries the engine,
// gateway, and TUI use. Writes happen while a run is in flight, so
// every method takes the caller's context.
type Store struct {
	db DB
}

// NewStore creates a Store over db.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for ad-hoc queries.
func (s *Store) DB() DB { return s.db }

// CreateRun inserts a new audit run and fills in its ID.
func (s *Store) CreateRun(ctx context.Context, run *models.AuditRun) error {
	id, err := s.db.Insert(ctx, "audit_runs", *run)
	if err != nil {
		return fmt.Errorf("creating audit run: %w", err)
	}
	run.ID = id
	return nil
}

// UpdateRunStatus records a live status transition (running/paused/stopping).
func (s *Store) UpdateRunStatus(ctx context.Context, runID int64, status models.RunStatus) error {
	return s.db.Exec(ctx,
		"UPDATE audit_runs SET status = ? WHERE id = ?", string(status), runID)
}

// FinishRun marks a run terminal with its completion time and error, if any.
func (s *Store) FinishRun(ctx context.Context, runID int64, status models.RunStatus, errMsg string) error {
	now := time.Now().UTC()
	return s.db.Exec(ctx,
		"UPDATE audit_runs SET status = ?, completed_at = ?, error_msg = ? WHERE id = ?",
		string(status), now, errMsg, runID)
}

// RecordOutput persists one command's raw output. Called the moment the
// command returns so evidence survives anything that fails afterwards.
func (s *Store) RecordOutput(ctx context.Context, out models.DeviceOutput) error {
	if out.CollectedAt.IsZero() {
		out.CollectedAt = time.Now().UTC()
	}
	_, err := s.db.Insert(ctx, "device_outputs", out)
	return err
}

// RecordPhases persists the ordered phase trail for one device.
func (s *Store) RecordPhases(ctx context.Context, runID int64, device string, phases []models.PhaseResult) error {
	for _, p := range phases {
		if _, err := s.db.Insert(ctx, "phase_results", models.NewPhaseRecord(runID, device, p)); err != nil {
			return fmt.Errorf("recording phase %s for %s: %w", p.Stage, device, err)
		}
	}
	return nil
}

// RecordLines persists the parsed line blocks for one device.
func (s *Store) RecordLines(ctx context.Context, runID int64, device string, blocks []models.LineBlock) error {
	for _, b := range blocks {
		if _, err := s.db.Insert(ctx, "line_records", models.NewLineRecord(runID, device, b)); err != nil {
			return fmt.Errorf("recording line %s for %s: %w", b.ID, device, err)
		}
	}
	return nil
}

// RecordFindings persists the classification verdicts for one device.
func (s *Store) RecordFindings(ctx context.Context, runID int64, device string, findings []models.RiskFinding) error {
	for _, f := range findings {
		f.Device = device
		if _, err := s.db.Insert(ctx, "risk_findings", models.NewFindingRecord(runID, f)); err != nil {
			return fmt.Errorf("recording finding %s for %s: %w", f.Line, device, err)
		}
	}
	return nil
}

// RecordSummary persists the run-level rollup.
func (s *Store) RecordSummary(ctx context.Context, sum *models.RunSummary) error {
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now().UTC()
	}
	id, err := s.db.Insert(ctx, "run_summaries", *sum)
	if err != nil {
		return fmt.Errorf("recording run summary: %w", err)
	}
	sum.ID = id
	return nil
}

// --- read side ---

// Runs lists audit runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]models.AuditRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []models.AuditRun
	err := s.db.Select(ctx, &runs,
		`SELECT id, status, inventory, policy, device_count, workers, started_at, completed_at, error_msg
		 FROM audit_runs ORDER BY id DESC LIMIT ?`, limit)
	return runs, err
}

// Run loads a single audit run.
func (s *Store) Run(ctx context.Context, runID int64) (*models.AuditRun, error) {
	var run models.AuditRun
	err := s.db.Get(ctx, &run,
		`SELECT id, status, inventory, policy, device_count, workers, started_at, completed_at, error_msg
		 FROM audit_runs WHERE id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %d: %w", runID, err)
	}
	return &run, nil
}

// LatestRunID returns the most recent run's id, or 0 when none exist.
func (s *Store) LatestRunID(ctx context.Context) int64 {
	var runs []models.AuditRun
	if err := s.db.Select(ctx, &runs,
		`SELECT id, status, inventory, policy, device_count, workers, started_at, completed_at, error_msg
		 FROM audit_runs ORDER BY id DESC LIMIT 1`); err != nil || len(runs) == 0 {
		return 0
	}
	return runs[0].ID
}

// Phases returns the phase trail for a run, ordered by device then stage.
func (s *Store) Phases(ctx context.Context, runID int64) ([]models.PhaseRecord, error) {
	var out []models.PhaseRecord
	err := s.db.Select(ctx, &out,
		`SELECT id, run_id, device, stage, stage_name, status, detail, started_at, ended_at
		 FROM phase_results WHERE run_id = ? ORDER BY device, stage`, runID)
	return out, err
}

// Findings returns a run's findings, most severe first. minLevel filters
// when non-empty.
func (s *Store) Findings(ctx context.Context, runID int64, minLevel models.RiskLevel) ([]models.FindingRecord, error) {
	var out []models.FindingRecord
	err := s.db.Select(ctx, &out,
		`SELECT id, run_id, device, line, score, level, telnet, violations, created_at
		 FROM risk_findings WHERE run_id = ?
		 ORDER BY CASE level
		   WHEN 'CRITICAL' THEN 0 WHEN 'HIGH' THEN 1 WHEN 'MEDIUM' THEN 2 ELSE 3
		 END, device, line`, runID)
	if err != nil {
		return nil, err
	}
	if minLevel == "" || minLevel == models.RiskUnknown {
		return out, nil
	}
	filtered := out[:0]
	for _, f := range out {
		if models.MapRiskLevel(f.Level).Weight() >= minLevel.Weight() {
			filtered = append(filtered, f)
		}
	}
	return filtered, nil
}

// Lines returns a run's parsed line records.
func (s *Store) Lines(ctx context.Context, runID int64) ([]models.LineRecord, error) {
	var out []models.LineRecord
	err := s.db.Select(ctx, &out,
		`SELECT id, run_id, device, line, line_type, slot, adapter, channel, is_triple,
		        transports, has_transport, login_mode, login_list, has_password,
		        access_class_in, access_class_out, exec_timeout_sec, rotary, no_exec,
		        privilege, raw, created_at
		 FROM line_records WHERE run_id = ? ORDER BY device, slot, adapter, channel`, runID)
	return out, err
}

// Outputs returns the raw command outputs collected during a run,
// optionally restricted to one device.
func (s *Store) Outputs(ctx context.Context, runID int64, device string) ([]models.DeviceOutput, error) {
	var out []models.DeviceOutput
	if device != "" {
		err := s.db.Select(ctx, &out,
			`SELECT id, run_id, device, name, command, output, collected_at
			 FROM device_outputs WHERE run_id = ? AND device = ? ORDER BY id`, runID, device)
		return out, err
	}
	err := s.db.Select(ctx, &out,
		`SELECT id, run_id, device, name, command, output, collected_at
		 FROM device_outputs WHERE run_id = ? ORDER BY device, id`, runID)
	return out, err
}

// Summary loads the rollup for a run, or nil when the run never finished.
func (s *Store) Summary(ctx context.Context, runID int64) (*models.RunSummary, error) {
	var sums []models.RunSummary
	err := s.db.Select(ctx, &sums,
		`SELECT id, run_id, devices, completed, partial, unreachable, auth_failed, stopped,
		        findings_critical, findings_high, findings_medium, findings_low,
		        violations, compliant, duration_ms, created_at
		 FROM run_summaries WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	if len(sums) == 0 {
		return nil, nil
	}
	return &sums[0], nil
}
