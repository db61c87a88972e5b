package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/events"
	"github.com/CosmoTheDev/vtyscan-agent/internal/policy"
	"github.com/CosmoTheDev/vtyscan-agent/models"
	"golang.org/x/sync/semaphore"
)

// Store is the evidence persistence surface the coordinator and the
// phase machines write through. *database.Store implements it; tests
// use NopStore.
type Store interface {
	CreateRun(ctx context.Context, run *models.AuditRun) error
	UpdateRunStatus(ctx context.Context, runID int64, status models.RunStatus) error
	FinishRun(ctx context.Context, runID int64, status models.RunStatus, errMsg string) error
	RecordOutput(ctx context.Context, out models.DeviceOutput) error
	RecordPhases(ctx context.Context, runID int64, device string, phases []models.PhaseResult) error
	RecordLines(ctx context.Context, runID int64, device string, blocks []models.LineBlock) error
	RecordFindings(ctx context.Context, runID int64, device string, findings []models.RiskFinding) error
	RecordSummary(ctx context.Context, sum *models.RunSummary) error
}

// NopStore discards all evidence. Useful for tests and dry runs.
type NopStore struct{}

func (NopStore) CreateRun(context.Context, *models.AuditRun) error                          { return nil }
func (NopStore) UpdateRunStatus(context.Context, int64, models.RunStatus) error             { return nil }
func (NopStore) FinishRun(context.Context, int64, models.RunStatus, string) error           { return nil }
func (NopStore) RecordOutput(context.Context, models.DeviceOutput) error                    { return nil }
func (NopStore) RecordPhases(context.Context, int64, string, []models.PhaseResult) error    { return nil }
func (NopStore) RecordLines(context.Context, int64, string, []models.LineBlock) error       { return nil }
func (NopStore) RecordFindings(context.Context, int64, string, []models.RiskFinding) error  { return nil }
func (NopStore) RecordSummary(context.Context, *models.RunSummary) error                    { return nil }

// ConnectorOpener establishes the shared tunnel and returns the device
// connector plus a close func. An error here is fatal to the whole run:
// nothing is reachable without the tunnel.
type ConnectorOpener func(ctx context.Context) (Connector, func() error, error)

// RunConfig describes one audit run.
type RunConfig struct {
	Devices   []models.Device
	Policy    *policy.Policy
	Workers   int
	Options   Options
	Inventory string // label recorded on the run
	PolicyRef string // label recorded on the run
}

// Result is the completed run: the run row, the per-device reports in
// inventory order, and the rollup.
type Result struct {
	Run     models.AuditRun
	Reports []models.DeviceReport
	Summary models.RunSummary
}

// Coordinator fans the phase machine out across the device population
// with bounded concurrency. One Coordinator per run.
type Coordinator struct {
	cfg     RunConfig
	opener  ConnectorOpener
	store   Store
	events  *events.Broadcaster
	control *Control

	mu        sync.Mutex
	run       models.AuditRun
	reports   []models.DeviceReport
	completed int
}

// NewCoordinator builds a run coordinator. bus and store may not be nil;
// pass events.NewBroadcaster() and NopStore{} when unused.
func NewCoordinator(cfg RunConfig, opener ConnectorOpener, store Store, bus *events.Broadcaster) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.Policy == nil {
		cfg.Policy = policy.Default()
	}
	return &Coordinator{
		cfg:     cfg,
		opener:  opener,
		store:   store,
		events:  bus,
		control: NewControl(),
		run:     models.AuditRun{Status: string(models.RunIdle)},
	}
}

// Pause suspends every worker at its next stage boundary.
func (c *Coordinator) Pause() {
	c.control.Pause()
	c.setStatus(models.RunPaused)
}

// Resume releases paused workers without re-running any stage.
func (c *Coordinator) Resume() {
	c.control.Resume()
	c.setStatus(models.RunRunning)
}

// Stop makes every worker abandon its remaining stages, force its
// reporting stage, and exit. Partial results are kept.
func (c *Coordinator) Stop() {
	c.control.Stop()
	c.setStatus(models.RunStopping)
}

// Status returns a live snapshot of the run.
func (c *Coordinator) Status() (models.AuditRun, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run, c.completed, len(c.cfg.Devices)
}

// Run executes the audit and blocks until every device has reported (or
// the tunnel could not be opened). The returned error is non-nil only
// for run-fatal conditions; per-device failures live in the Result.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	c.run = models.AuditRun{
		Status:      string(models.RunRunning),
		Inventory:   c.cfg.Inventory,
		Policy:      c.cfg.PolicyRef,
		DeviceCount: len(c.cfg.Devices),
		Workers:     c.cfg.Workers,
		StartedAt:   time.Now().UTC(),
	}
	c.mu.Unlock()

	if err := c.store.CreateRun(ctx, &c.run); err != nil {
		slog.Warn("Failed to persist run record; continuing without it", "error", err)
	}
	c.publish(events.Event{Type: events.TypeRunStarted, Total: len(c.cfg.Devices)})

	conn, closeConn, err := c.opener(ctx)
	if err != nil {
		c.mu.Lock()
		c.run.Status = string(models.RunFailed)
		c.run.ErrorMsg = err.Error()
		c.mu.Unlock()
		if ferr := c.store.FinishRun(ctx, c.run.ID, models.RunFailed, err.Error()); ferr != nil {
			slog.Warn("Failed to finalise run record", "error", ferr)
		}
		c.publish(events.Event{Type: events.TypeRunFailed, Detail: err.Error()})
		return nil, fmt.Errorf("opening tunnel: %w", err)
	}
	defer closeConn()

	c.reports = make([]models.DeviceReport, len(c.cfg.Devices))
	sem := semaphore.NewWeighted(int64(c.cfg.Workers))
	var wg sync.WaitGroup

	for i, device := range c.cfg.Devices {
		// Admission respects Stop: devices that never started still get
		// a stopped report via the runner's first checkpoint.
		if err := sem.Acquire(ctx, 1); err != nil {
			c.finishDevice(ctx, i, c.stubReport(device, ctx.Err()))
			continue
		}
		wg.Add(1)
		go func(i int, device models.Device) {
			defer wg.Done()
			defer sem.Release(1)
			runner := NewPhaseRunner(c.run.ID, device, conn, c.control,
				c.events, c.store, c.cfg.Policy, c.cfg.Options)
			c.finishDevice(ctx, i, runner.Run(ctx))
		}(i, device)
	}
	wg.Wait()

	return c.finalise(ctx), nil
}

// finishDevice merges one device's report and persists its trail.
// Reports arrive in any order; the slot index keeps inventory order.
func (c *Coordinator) finishDevice(ctx context.Context, idx int, report models.DeviceReport) {
	device := report.Device.Name
	if err := c.store.RecordPhases(ctx, c.run.ID, device, report.Phases); err != nil {
		slog.Warn("Failed to persist phase results", "device", device, "error", err)
	}
	if err := c.store.RecordLines(ctx, c.run.ID, device, report.Lines); err != nil {
		slog.Warn("Failed to persist line records", "device", device, "error", err)
	}
	if err := c.store.RecordFindings(ctx, c.run.ID, device, report.Findings); err != nil {
		slog.Warn("Failed to persist findings", "device", device, "error", err)
	}

	c.mu.Lock()
	c.reports[idx] = report
	c.completed++
	completed := c.completed
	c.mu.Unlock()

	c.publish(events.Event{
		Type:      events.TypeRunStatus,
		Status:    string(models.RunRunning),
		Device:    device,
		Completed: completed,
		Total:     len(c.cfg.Devices),
	})
}

// stubReport covers devices whose worker never started (context death
// during admission): reporting still runs, with everything else skipped.
func (c *Coordinator) stubReport(device models.Device, cause error) models.DeviceReport {
	detail := "run stopped"
	if cause != nil {
		detail = cause.Error()
	}
	now := time.Now().UTC()
	var phases []models.PhaseResult
	for s := models.StageReachability; s < models.StageReporting; s++ {
		phases = append(phases, models.PhaseResult{
			Stage: s, Status: models.PhaseSkipped, Detail: detail, StartedAt: now, EndedAt: now,
		})
	}
	phases = append(phases, models.PhaseResult{
		Stage: models.StageReporting, Status: models.PhaseSuccess,
		Detail: "status: " + models.DeviceStopped, StartedAt: now, EndedAt: now,
	})
	return models.DeviceReport{Device: device, Status: models.DeviceStopped, Phases: phases}
}

func (c *Coordinator) finalise(ctx context.Context) *Result {
	c.mu.Lock()
	// Compliant until a device says otherwise; CountDevice recomputes it
	// on every fold, so an empty run stays compliant.
	summary := models.RunSummary{RunID: c.run.ID, Compliant: true, CreatedAt: time.Now().UTC()}
	for _, r := range c.reports {
		summary.CountDevice(r)
	}
	summary.DurationMs = time.Since(c.run.StartedAt).Milliseconds()
	now := time.Now().UTC()
	c.run.Status = string(models.RunCompleted)
	c.run.CompletedAt = &now
	result := &Result{Run: c.run, Reports: c.reports, Summary: summary}
	c.mu.Unlock()

	if err := c.store.RecordSummary(ctx, &summary); err != nil {
		slog.Warn("Failed to persist run summary", "error", err)
	}
	if err := c.store.FinishRun(ctx, c.run.ID, models.RunCompleted, ""); err != nil {
		slog.Warn("Failed to finalise run record", "error", err)
	}
	result.Summary = summary

	c.publish(events.Event{
		Type:      events.TypeRunCompleted,
		Status:    string(models.RunCompleted),
		Completed: len(c.reports),
		Total:     len(c.reports),
		Detail: fmt.Sprintf("%d devices, %d violations, compliant=%v",
			summary.Devices, summary.Violations, summary.Compliant),
	})
	slog.Info("Audit run complete",
		"run_id", c.run.ID,
		"devices", summary.Devices,
		"completed", summary.Completed,
		"unreachable", summary.Unreachable,
		"auth_failed", summary.AuthFailed,
		"critical", summary.FindingsCritical,
		"high", summary.FindingsHigh,
		"violations", summary.Violations)
	return result
}

func (c *Coordinator) setStatus(status models.RunStatus) {
	c.mu.Lock()
	terminal := c.run.Status == string(models.RunCompleted) || c.run.Status == string(models.RunFailed)
	if !terminal {
		c.run.Status = string(status)
	}
	runID := c.run.ID
	c.mu.Unlock()
	if terminal {
		return
	}
	if runID > 0 {
		if err := c.store.UpdateRunStatus(context.Background(), runID, status); err != nil {
			slog.Warn("Failed to persist run status", "status", status, "error", err)
		}
	}
	c.publish(events.Event{Type: events.TypeRunStatus, Status: string(status)})
}

func (c *Coordinator) publish(evt events.Event) {
	if c.events == nil {
		return
	}
	evt.RunID = c.run.ID
	c.events.Publish(evt)
}
