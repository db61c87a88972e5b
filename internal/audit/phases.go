package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/events"
	"github.com/CosmoTheDev/vtyscan-agent/internal/lineconf"
	"github.com/CosmoTheDev/vtyscan-agent/internal/platform"
	"github.com/CosmoTheDev/vtyscan-agent/internal/policy"
	"github.com/CosmoTheDev/vtyscan-agent/internal/risk"
	"github.com/CosmoTheDev/vtyscan-agent/internal/tunnel"
	"github.com/CosmoTheDev/vtyscan-agent/models"
)

// OutputRecorder persists raw command output as it arrives. Collection
// writes each command's text the moment it returns, so evidence
// survives whatever fails afterwards.
type OutputRecorder interface {
	RecordOutput(ctx context.Context, out models.DeviceOutput) error
}

// Options tune the per-device timing knobs.
type Options struct {
	DialTimeout    time.Duration
	CommandTimeout time.Duration
	SettleDelay    time.Duration
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 15 * time.Second
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 60 * time.Second
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	return o
}

// PhaseRunner drives the eight fixed stages for one device. One
// instance per device per run; all stages execute sequentially inside
// the device's worker.
type PhaseRunner struct {
	runID    int64
	device   models.Device
	conn     Connector
	control  *Control
	events   *events.Broadcaster
	recorder OutputRecorder
	pol      *policy.Policy
	opts     Options

	phases     []models.PhaseResult
	outputs    map[string]string
	blocks     []models.LineBlock
	findings   []models.RiskFinding
	violations []string

	sess        CommandSession
	family      platform.Family
	authFailed  bool
	unreachable bool
	stopped     bool
}

// NewPhaseRunner builds the per-device sequencer.
func NewPhaseRunner(runID int64, device models.Device, conn Connector, control *Control,
	bus *events.Broadcaster, recorder OutputRecorder, pol *policy.Policy, opts Options) *PhaseRunner {
	return &PhaseRunner{
		runID:    runID,
		device:   device,
		conn:     conn,
		control:  control,
		events:   bus,
		recorder: recorder,
		pol:      pol,
		opts:     opts.withDefaults(),
		outputs:  make(map[string]string),
		family:   platform.Resolve(device.Platform),
	}
}

type stageFunc struct {
	stage models.Stage
	run   func(ctx context.Context) (models.PhaseStatus, string)
}

// Run executes the stage sequence and always ends with reporting.
// Pause and stop are observed at stage boundaries only; in-flight
// device I/O is never interrupted.
func (r *PhaseRunner) Run(ctx context.Context) models.DeviceReport {
	defer func() {
		if r.sess != nil {
			r.sess.Close()
		}
	}()

	stages := []stageFunc{
		{models.StageReachability, r.runReachability},
		{models.StageAuthentication, r.runAuthentication},
		{models.StageAuthorization, r.runAuthorization},
		{models.StageSettle, r.runSettle},
		{models.StageCollection, r.runCollection},
		{models.StagePostProcess, r.runPostProcess},
		{models.StageRiskAnalysis, r.runRiskAnalysis},
	}

	skipFrom := models.Stage(0) // 0 = nothing skipped
	skipDetail := ""
	for _, s := range stages {
		if skipFrom != 0 && s.stage >= skipFrom {
			r.record(s.stage, models.PhaseSkipped, skipDetail)
			continue
		}
		if !r.control.Checkpoint(ctx) {
			r.stopped = true
			skipFrom = s.stage
			skipDetail = "run stopped"
			r.record(s.stage, models.PhaseSkipped, skipDetail)
			continue
		}

		started := time.Now().UTC()
		status, detail := s.run(ctx)
		r.recordTimed(s.stage, status, detail, started)

		if status != models.PhaseFailed {
			continue
		}
		switch s.stage {
		case models.StageAuthentication:
			// Terminal for the device: nothing downstream can run
			// without a session.
			skipFrom = models.StageAuthorization
			skipDetail = "authentication failed"
		case models.StageCollection:
			skipFrom = models.StagePostProcess
			skipDetail = "collection failed"
		}
		// Reachability and authorization failures never gate.
	}

	return r.runReporting()
}

func (r *PhaseRunner) runReachability(ctx context.Context) (models.PhaseStatus, string) {
	if r.conn.Probe(ctx, r.device.Address, r.opts.DialTimeout) {
		return models.PhaseSuccess, "reachable"
	}
	// Advisory only: ICMP/TCP filtering between the jump host and the
	// device is common and must not block the SSH-level checks.
	return models.PhaseSkipped, "no response to probe; continuing anyway"
}

func (r *PhaseRunner) runAuthentication(ctx context.Context) (models.PhaseStatus, string) {
	sess, err := r.conn.Connect(ctx, r.device.Address, r.opts.DialTimeout)
	if err != nil {
		switch {
		case tunnel.IsAuth(err):
			r.authFailed = true
			return models.PhaseFailed, "authentication failed: " + err.Error()
		case tunnel.IsUnreachable(err), tunnel.IsTimeout(err):
			r.unreachable = true
			return models.PhaseFailed, "unreachable: " + err.Error()
		default:
			r.unreachable = true
			return models.PhaseFailed, "session setup failed: " + err.Error()
		}
	}
	r.sess = sess
	return models.PhaseSuccess, "session established"
}

func (r *PhaseRunner) runAuthorization(ctx context.Context) (models.PhaseStatus, string) {
	cmd := platform.ProbeCommand(r.family)
	text, err := r.sess.Run(ctx, cmd.Text, r.opts.CommandTimeout)
	if err != nil {
		// Recorded but non-terminal: a locked-down view still allows
		// the configuration dumps to be attempted.
		return models.PhaseFailed, fmt.Sprintf("%s rejected: %v", cmd.Text, err)
	}
	r.keepOutput(ctx, cmd, text)
	return models.PhaseSuccess, "read access confirmed"
}

func (r *PhaseRunner) runSettle(ctx context.Context) (models.PhaseStatus, string) {
	if r.opts.SettleDelay == 0 {
		return models.PhaseSuccess, "no delay configured"
	}
	timer := time.NewTimer(r.opts.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.control.StopChan():
		// Wake early; the next checkpoint turns this into a stop.
	case <-ctx.Done():
	}
	return models.PhaseSuccess, fmt.Sprintf("paced %s before collection", r.opts.SettleDelay)
}

func (r *PhaseRunner) runCollection(ctx context.Context) (models.PhaseStatus, string) {
	cmds := platform.CommandSet(r.family)
	var failed []string
	for _, cmd := range cmds {
		text, err := r.sess.Run(ctx, cmd.Text, r.opts.CommandTimeout)
		if err != nil {
			slog.Warn("Collection command failed",
				"device", r.device.Name, "command", cmd.Text, "error", err)
			failed = append(failed, fmt.Sprintf("%s (%v)", cmd.Name, err))
			continue
		}
		r.keepOutput(ctx, cmd, text)
	}
	if len(failed) > 0 {
		return models.PhaseFailed, fmt.Sprintf("%d/%d commands failed: %s",
			len(failed), len(cmds), strings.Join(failed, "; "))
	}
	return models.PhaseSuccess, fmt.Sprintf("%d commands collected", len(cmds))
}

func (r *PhaseRunner) runPostProcess(context.Context) (models.PhaseStatus, string) {
	primary, fallbacks := platform.ParseTargets()
	if text, ok := r.outputs[primary]; ok {
		r.blocks = lineconf.Parse(text)
	} else {
		for _, name := range fallbacks {
			if text, ok := r.outputs[name]; ok {
				r.blocks = append(r.blocks, lineconf.Parse(text)...)
			}
		}
	}
	return models.PhaseSuccess, fmt.Sprintf("%d line blocks parsed", len(r.blocks))
}

func (r *PhaseRunner) runRiskAnalysis(context.Context) (models.PhaseStatus, string) {
	opts := r.pol.ClassifyOptions()
	r.findings = risk.ClassifyAll(r.blocks, opts)
	for i := range r.findings {
		r.findings[i].Device = r.device.Name
		if r.findings[i].Level == models.RiskCritical {
			r.publishEvent(events.Event{
				Type:   events.TypeCriticalFinding,
				Device: r.device.Name,
				Detail: r.findings[i].Line.String() + ": " + strings.Join(r.findings[i].Violations, "; "),
			})
		}
	}
	r.violations = risk.ValidateChannelCompliance(r.blocks, r.pol.Ranges())
	return models.PhaseSuccess, fmt.Sprintf("%d findings, %d compliance violations",
		len(r.findings), len(r.violations))
}

// runReporting always executes, whatever happened upstream. It is the
// single place the device's terminal status is decided.
func (r *PhaseRunner) runReporting() models.DeviceReport {
	status := r.terminalStatus()
	r.record(models.StageReporting, models.PhaseSuccess, "status: "+status)

	report := models.DeviceReport{
		Device:     r.device,
		Status:     status,
		Phases:     r.phases,
		Lines:      r.blocks,
		Findings:   r.findings,
		Violations: r.violations,
	}
	r.publishEvent(events.Event{
		Type:   events.TypeDeviceReport,
		Device: r.device.Name,
		Status: status,
	})
	return report
}

func (r *PhaseRunner) terminalStatus() string {
	switch {
	case r.authFailed:
		return models.DeviceAuthFailed
	case r.unreachable:
		return models.DeviceUnreachable
	case r.stopped:
		return models.DeviceStopped
	}
	for _, p := range r.phases {
		if p.Status == models.PhaseFailed {
			return models.DevicePartial
		}
	}
	return models.DeviceCompleted
}

// keepOutput stores command output in memory for post-processing and
// hands it to the recorder immediately.
func (r *PhaseRunner) keepOutput(ctx context.Context, cmd platform.Command, text string) {
	r.outputs[cmd.Name] = text
	if r.recorder == nil {
		return
	}
	out := models.DeviceOutput{
		RunID:       r.runID,
		Device:      r.device.Name,
		Name:        cmd.Name,
		Command:     cmd.Text,
		Output:      text,
		CollectedAt: time.Now().UTC(),
	}
	if err := r.recorder.RecordOutput(ctx, out); err != nil {
		slog.Warn("Failed to persist command output",
			"device", r.device.Name, "command", cmd.Name, "error", err)
	}
}

func (r *PhaseRunner) record(stage models.Stage, status models.PhaseStatus, detail string) {
	r.recordTimed(stage, status, detail, time.Now().UTC())
}

func (r *PhaseRunner) recordTimed(stage models.Stage, status models.PhaseStatus, detail string, started time.Time) {
	r.phases = append(r.phases, models.PhaseResult{
		Stage:     stage,
		Status:    status,
		Detail:    detail,
		StartedAt: started,
		EndedAt:   time.Now().UTC(),
	})
	r.publishEvent(events.Event{
		Type:   events.TypeDeviceStage,
		Device: r.device.Name,
		Stage:  stage.String(),
		Status: string(status),
		Detail: detail,
	})
}

func (r *PhaseRunner) publishEvent(evt events.Event) {
	if r.events == nil {
		return
	}
	evt.RunID = r.runID
	r.events.Publish(evt)
}
