package audit

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/events"
	"github.com/CosmoTheDev/vtyscan-agent/internal/policy"
	"github.com/CosmoTheDev/vtyscan-agent/internal/tunnel"
	"github.com/CosmoTheDev/vtyscan-agent/models"
)

// fakeSession scripts per-command responses. Unscripted commands
// succeed with a canned banner.
type fakeSession struct {
	mu       sync.Mutex
	replies  map[string]string
	failWith map[string]error
	onRun    func(command string)
	ran      []string
	closed   bool
}

func (f *fakeSession) Run(_ context.Context, command string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, command)
	if f.onRun != nil {
		f.onRun(command)
	}
	if err, ok := f.failWith[command]; ok {
		return "", err
	}
	if out, ok := f.replies[command]; ok {
		return out, nil
	}
	return "ok", nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeConnector struct {
	reachable  bool
	connectErr error
	session    *fakeSession
}

func (f *fakeConnector) Probe(context.Context, string, time.Duration) bool { return f.reachable }

func (f *fakeConnector) Connect(context.Context, string, time.Duration) (CommandSession, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.session, nil
}

type memRecorder struct {
	mu      sync.Mutex
	outputs []models.DeviceOutput
}

func (m *memRecorder) RecordOutput(_ context.Context, out models.DeviceOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = append(m.outputs, out)
	return nil
}

func testDevice() models.Device {
	return models.Device{Name: "edge-rtr-01", Address: "10.0.0.1", Platform: "ios"}
}

func fastOptions() Options {
	return Options{DialTimeout: time.Second, CommandTimeout: time.Second, SettleDelay: time.Millisecond}
}

const sampleConfig = `hostname edge-rtr-01
line con 0
 login local
line vty 0 1
 login local
 access-class MGT-IN in
 transport input ssh
line 0/1/0
 no exec
 rotary 1
 transport input telnet
`

func newTestRunner(conn Connector, control *Control, rec OutputRecorder) *PhaseRunner {
	return NewPhaseRunner(1, testDevice(), conn, control,
		events.NewBroadcaster(), rec, policy.Default(), fastOptions())
}

func checkStageOrder(t *testing.T, phases []models.PhaseResult) {
	t.Helper()
	if len(phases) != models.StageCount {
		t.Fatalf("expected %d phase results, got %d", models.StageCount, len(phases))
	}
	reporting := 0
	for i, p := range phases {
		if int(p.Stage) != i+1 {
			t.Errorf("phase %d has stage %v, want %d", i, p.Stage, i+1)
		}
		if p.Stage == models.StageReporting {
			reporting++
		}
	}
	if reporting != 1 {
		t.Errorf("reporting stage present %d times, want exactly once", reporting)
	}
}

func TestRunAllStagesSucceed(t *testing.T) {
	sess := &fakeSession{replies: map[string]string{
		"show running-config": sampleConfig,
	}}
	conn := &fakeConnector{reachable: true, session: sess}
	rec := &memRecorder{}

	report := newTestRunner(conn, NewControl(), rec).Run(context.Background())

	checkStageOrder(t, report.Phases)
	if report.Status != models.DeviceCompleted {
		t.Errorf("status = %q, want %q", report.Status, models.DeviceCompleted)
	}
	for _, p := range report.Phases {
		if p.Status != models.PhaseSuccess {
			t.Errorf("stage %v = %v (%s), want success", p.Stage, p.Status, p.Detail)
		}
	}
	// con 0, vty 0, vty 1, async 0/1/0
	if len(report.Lines) != 4 {
		t.Errorf("parsed %d line blocks, want 4", len(report.Lines))
	}
	if len(report.Findings) != len(report.Lines) {
		t.Errorf("findings %d != lines %d", len(report.Findings), len(report.Lines))
	}
	var critical int
	for _, f := range report.Findings {
		if f.Level == models.RiskCritical {
			critical++
		}
	}
	if critical != 1 {
		t.Errorf("critical findings = %d, want 1 (console-server line)", critical)
	}
	// Authorization probe + 6 collection commands, each persisted on return.
	if len(rec.outputs) != 7 {
		t.Errorf("recorded %d outputs, want 7", len(rec.outputs))
	}
	if !sess.closed {
		t.Error("session not closed after run")
	}
}

func TestRunProbeFailureIsAdvisory(t *testing.T) {
	conn := &fakeConnector{reachable: false, session: &fakeSession{}}

	report := newTestRunner(conn, NewControl(), &memRecorder{}).Run(context.Background())

	checkStageOrder(t, report.Phases)
	if report.Phases[0].Status != models.PhaseSkipped {
		t.Errorf("reachability = %v, want skipped", report.Phases[0].Status)
	}
	// The failed probe must not gate authentication.
	if report.Phases[1].Status != models.PhaseSuccess {
		t.Errorf("authentication = %v, want success despite failed probe", report.Phases[1].Status)
	}
	if report.Status != models.DeviceCompleted {
		t.Errorf("status = %q, want %q", report.Status, models.DeviceCompleted)
	}
}

func TestRunAuthenticationFailureIsTerminal(t *testing.T) {
	conn := &fakeConnector{
		reachable:  true,
		connectErr: &tunnel.AuthError{Host: "10.0.0.1", Err: context.DeadlineExceeded},
	}

	report := newTestRunner(conn, NewControl(), &memRecorder{}).Run(context.Background())

	checkStageOrder(t, report.Phases)
	if report.Status != models.DeviceAuthFailed {
		t.Fatalf("status = %q, want %q", report.Status, models.DeviceAuthFailed)
	}
	if report.Phases[1].Status != models.PhaseFailed {
		t.Errorf("authentication = %v, want failed", report.Phases[1].Status)
	}
	for _, p := range report.Phases[2:7] {
		if p.Status != models.PhaseSkipped {
			t.Errorf("stage %v = %v, want skipped after auth failure", p.Stage, p.Status)
		}
	}
	if report.Phases[7].Status != models.PhaseSuccess {
		t.Errorf("reporting = %v, want success", report.Phases[7].Status)
	}
	if !strings.Contains(report.Phases[7].Detail, models.DeviceAuthFailed) {
		t.Errorf("reporting detail %q does not name the auth failure", report.Phases[7].Detail)
	}
}

func TestRunUnreachableDeviceStatus(t *testing.T) {
	conn := &fakeConnector{
		reachable:  false,
		connectErr: &tunnel.UnreachableError{Host: "10.0.0.1", Err: context.DeadlineExceeded},
	}

	report := newTestRunner(conn, NewControl(), &memRecorder{}).Run(context.Background())

	if report.Status != models.DeviceUnreachable {
		t.Errorf("status = %q, want %q", report.Status, models.DeviceUnreachable)
	}
}

func TestRunCollectionFailureSkipsAnalysis(t *testing.T) {
	sess := &fakeSession{
		replies: map[string]string{"show running-config": sampleConfig},
		failWith: map[string]error{
			"show version": &tunnel.TimeoutError{Host: "10.0.0.1", Op: "awaiting prompt"},
		},
	}
	conn := &fakeConnector{reachable: true, session: sess}
	rec := &memRecorder{}

	report := newTestRunner(conn, NewControl(), rec).Run(context.Background())

	checkStageOrder(t, report.Phases)
	if report.Status != models.DevicePartial {
		t.Errorf("status = %q, want %q", report.Status, models.DevicePartial)
	}
	if report.Phases[4].Status != models.PhaseFailed {
		t.Errorf("collection = %v, want failed", report.Phases[4].Status)
	}
	for _, p := range report.Phases[5:7] {
		if p.Status != models.PhaseSkipped {
			t.Errorf("stage %v = %v, want skipped after collection failure", p.Stage, p.Status)
		}
	}
	// Outputs collected before (and after) the failing command survive:
	// probe + 5 of the 6 collection commands.
	if len(rec.outputs) != 6 {
		t.Errorf("recorded %d outputs, want 6", len(rec.outputs))
	}
}

func TestRunAuthorizationFailureIsNonTerminal(t *testing.T) {
	sess := &fakeSession{
		replies: map[string]string{"show running-config": sampleConfig},
	}
	sess.failWith = map[string]error{
		"show line": &tunnel.CommandError{Host: "10.0.0.1", Command: "show line", Output: "% Command authorization failed"},
	}
	conn := &fakeConnector{reachable: true, session: sess}

	report := newTestRunner(conn, NewControl(), &memRecorder{}).Run(context.Background())

	if report.Phases[2].Status != models.PhaseFailed {
		t.Errorf("authorization = %v, want failed", report.Phases[2].Status)
	}
	// "show line" is also the first collection command, so collection
	// fails too; what matters is that it was still attempted.
	if report.Phases[4].Status == models.PhaseSkipped {
		t.Error("collection skipped; authorization failure must not gate it")
	}
	if report.Status != models.DevicePartial {
		t.Errorf("status = %q, want %q", report.Status, models.DevicePartial)
	}
}

func TestRunStopForcesReporting(t *testing.T) {
	control := NewControl()
	control.Stop()
	conn := &fakeConnector{reachable: true, session: &fakeSession{}}

	report := newTestRunner(conn, control, &memRecorder{}).Run(context.Background())

	checkStageOrder(t, report.Phases)
	if report.Status != models.DeviceStopped {
		t.Errorf("status = %q, want %q", report.Status, models.DeviceStopped)
	}
	for _, p := range report.Phases[:7] {
		if p.Status != models.PhaseSkipped {
			t.Errorf("stage %v = %v, want skipped on stopped run", p.Stage, p.Status)
		}
	}
	if report.Phases[7].Stage != models.StageReporting || report.Phases[7].Status != models.PhaseSuccess {
		t.Error("reporting stage must still execute on a stopped run")
	}
}

func TestRunStopDuringCollectionKeepsEvidence(t *testing.T) {
	control := NewControl()
	sess := &fakeSession{replies: map[string]string{
		"show running-config": sampleConfig,
	}}
	// The stop lands while collection is serving a command. Stages are
	// never interrupted mid-flight, so collection must finish its whole
	// command set before the boundary checkpoint observes the stop.
	sess.onRun = func(command string) {
		if command == "show version" {
			control.Stop()
		}
	}
	conn := &fakeConnector{reachable: true, session: sess}
	rec := &memRecorder{}

	report := newTestRunner(conn, control, rec).Run(context.Background())

	checkStageOrder(t, report.Phases)
	if report.Status != models.DeviceStopped {
		t.Errorf("status = %q, want %q", report.Status, models.DeviceStopped)
	}
	if report.Phases[4].Status != models.PhaseSuccess {
		t.Errorf("collection = %v (%s), want success despite mid-stage stop",
			report.Phases[4].Status, report.Phases[4].Detail)
	}
	for _, i := range []int{5, 6} {
		p := report.Phases[i]
		if p.Status != models.PhaseSkipped || p.Detail != "run stopped" {
			t.Errorf("stage %v = %v (%s), want skipped with run stopped", p.Stage, p.Status, p.Detail)
		}
	}
	if report.Phases[7].Stage != models.StageReporting || report.Phases[7].Status != models.PhaseSuccess {
		t.Error("reporting stage must still execute after a mid-collection stop")
	}
	// Authorization probe + all 6 collection commands reached the recorder.
	rec.mu.Lock()
	persisted := len(rec.outputs)
	rec.mu.Unlock()
	if persisted != 7 {
		t.Errorf("recorded %d outputs, want 7 (evidence gathered before the stop is kept)", persisted)
	}
}

func TestRunPauseBlocksBetweenStages(t *testing.T) {
	control := NewControl()
	control.Pause()
	conn := &fakeConnector{reachable: true, session: &fakeSession{
		replies: map[string]string{"show running-config": sampleConfig},
	}}

	done := make(chan models.DeviceReport, 1)
	go func() {
		done <- newTestRunner(conn, control, &memRecorder{}).Run(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("run finished while paused")
	case <-time.After(50 * time.Millisecond):
	}

	control.Resume()
	select {
	case report := <-done:
		if report.Status != models.DeviceCompleted {
			t.Errorf("status after resume = %q, want completed", report.Status)
		}
		checkStageOrder(t, report.Phases)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after resume")
	}
}
