package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/events"
	"github.com/CosmoTheDev/vtyscan-agent/models"
)

// recordingStore counts persistence calls so tests can assert the
// evidence trail without a real database.
type recordingStore struct {
	NopStore
	mu           sync.Mutex
	createdRuns  int
	phaseDevices []string
	finishStatus models.RunStatus
	finishErrMsg string
	summaries    int
}

func (s *recordingStore) CreateRun(_ context.Context, run *models.AuditRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createdRuns++
	run.ID = 42
	return nil
}

func (s *recordingStore) RecordPhases(_ context.Context, _ int64, device string, _ []models.PhaseResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phaseDevices = append(s.phaseDevices, device)
	return nil
}

func (s *recordingStore) FinishRun(_ context.Context, _ int64, status models.RunStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishStatus = status
	s.finishErrMsg = errMsg
	return nil
}

func (s *recordingStore) RecordSummary(context.Context, *models.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries++
	return nil
}

func testInventory(n int) []models.Device {
	devices := make([]models.Device, n)
	for i := range devices {
		devices[i] = models.Device{
			Name:     "rtr-" + string(rune('a'+i)),
			Address:  "10.0.0.1",
			Platform: "ios",
		}
	}
	return devices
}

func staticOpener(conn Connector) ConnectorOpener {
	return func(context.Context) (Connector, func() error, error) {
		return conn, func() error { return nil }, nil
	}
}

func TestCoordinatorRunCompletes(t *testing.T) {
	conn := &fakeConnector{reachable: true, session: &fakeSession{
		replies: map[string]string{"show running-config": sampleConfig},
	}}
	store := &recordingStore{}
	bus := events.NewBroadcaster()
	ch, cancel := bus.Subscribe()
	defer cancel()

	cfg := RunConfig{Devices: testInventory(3), Workers: 2}
	coord := NewCoordinator(cfg, staticOpener(conn), store, bus)

	result, err := coord.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Run.Status != string(models.RunCompleted) {
		t.Errorf("run status = %q, want completed", result.Run.Status)
	}
	if result.Run.ID != 42 {
		t.Errorf("run ID = %d, want the store-assigned 42", result.Run.ID)
	}
	if len(result.Reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(result.Reports))
	}
	// Reports hold inventory order even though workers finish in any order.
	for i, r := range result.Reports {
		if r.Device.Name != cfg.Devices[i].Name {
			t.Errorf("report %d is for %q, want %q", i, r.Device.Name, cfg.Devices[i].Name)
		}
		if r.Status != models.DeviceCompleted {
			t.Errorf("device %s status = %q, want completed", r.Device.Name, r.Status)
		}
	}
	if result.Summary.Devices != 3 || result.Summary.Completed != 3 {
		t.Errorf("summary devices/completed = %d/%d, want 3/3",
			result.Summary.Devices, result.Summary.Completed)
	}
	if result.Summary.FindingsCritical != 3 {
		t.Errorf("summary critical = %d, want 3 (one per device)", result.Summary.FindingsCritical)
	}
	if result.Summary.Compliant {
		t.Error("summary reports compliant despite critical findings")
	}

	store.mu.Lock()
	created, finished, phased, summaries := store.createdRuns, store.finishStatus, len(store.phaseDevices), store.summaries
	store.mu.Unlock()
	if created != 1 || finished != models.RunCompleted || phased != 3 || summaries != 1 {
		t.Errorf("store trail: runs=%d finish=%q phases=%d summaries=%d",
			created, finished, phased, summaries)
	}

	var started, completed bool
	deadline := time.After(time.Second)
	for !(started && completed) {
		select {
		case evt := <-ch:
			switch evt.Type {
			case events.TypeRunStarted:
				started = true
			case events.TypeRunCompleted:
				completed = true
			}
		case <-deadline:
			t.Fatalf("missing events: started=%v completed=%v", started, completed)
		}
	}
}

func TestCoordinatorEmptyInventoryIsCompliant(t *testing.T) {
	conn := &fakeConnector{reachable: true, session: &fakeSession{}}
	store := &recordingStore{}
	coord := NewCoordinator(RunConfig{Devices: nil, Workers: 2},
		staticOpener(conn), store, events.NewBroadcaster())

	result, err := coord.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Run.Status != string(models.RunCompleted) {
		t.Errorf("run status = %q, want completed", result.Run.Status)
	}
	if result.Summary.Devices != 0 {
		t.Errorf("summary devices = %d, want 0", result.Summary.Devices)
	}
	// No devices means nothing to violate.
	if !result.Summary.Compliant {
		t.Error("empty run reported non-compliant")
	}
}

func TestCoordinatorTunnelFailureFailsRun(t *testing.T) {
	boom := errors.New("jump host unreachable")
	opener := func(context.Context) (Connector, func() error, error) {
		return nil, nil, boom
	}
	store := &recordingStore{}
	coord := NewCoordinator(RunConfig{Devices: testInventory(2)}, opener, store, events.NewBroadcaster())

	_, err := coord.Run(context.Background())
	if err == nil {
		t.Fatal("Run() succeeded with a dead tunnel")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error %v does not wrap the tunnel failure", err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.finishStatus != models.RunFailed {
		t.Errorf("run finished as %q, want failed", store.finishStatus)
	}
	if store.finishErrMsg == "" {
		t.Error("tunnel failure not recorded on the run")
	}
}

func TestCoordinatorStopKeepsPartialResults(t *testing.T) {
	conn := &fakeConnector{reachable: true, session: &fakeSession{}}
	store := &recordingStore{}
	coord := NewCoordinator(RunConfig{Devices: testInventory(4), Workers: 2},
		staticOpener(conn), store, events.NewBroadcaster())

	coord.Stop()
	result, err := coord.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	// A stopped run still finalises: every device reports, all stopped.
	if result.Run.Status != string(models.RunCompleted) {
		t.Errorf("run status = %q, want completed", result.Run.Status)
	}
	if result.Summary.Stopped != 4 {
		t.Errorf("summary stopped = %d, want 4", result.Summary.Stopped)
	}
	for _, r := range result.Reports {
		if len(r.Phases) != models.StageCount {
			t.Errorf("device %s has %d phases, want %d", r.Device.Name, len(r.Phases), models.StageCount)
		}
		if r.Status != models.DeviceStopped {
			t.Errorf("device %s status = %q, want stopped", r.Device.Name, r.Status)
		}
	}
}

func TestCoordinatorPauseResume(t *testing.T) {
	conn := &fakeConnector{reachable: true, session: &fakeSession{
		replies: map[string]string{"show running-config": sampleConfig},
	}}
	coord := NewCoordinator(RunConfig{Devices: testInventory(2), Workers: 2},
		staticOpener(conn), &recordingStore{}, events.NewBroadcaster())

	coord.Pause()
	done := make(chan *Result, 1)
	go func() {
		result, _ := coord.Run(context.Background())
		done <- result
	}()

	select {
	case <-done:
		t.Fatal("run finished while paused")
	case <-time.After(50 * time.Millisecond):
	}
	coord.Pause() // refresh the status snapshot now that the run row exists
	if run, _, _ := coord.Status(); run.Status != string(models.RunPaused) {
		t.Errorf("status while paused = %q", run.Status)
	}

	coord.Resume()
	select {
	case result := <-done:
		if result == nil {
			t.Fatal("nil result after resume")
		}
		if result.Summary.Completed != 2 {
			t.Errorf("summary completed = %d, want 2", result.Summary.Completed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after resume")
	}
}
