// Package gateway is the long-running daemon: a REST + SSE control
// plane over the audit engine, with cron-driven scheduled runs.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/audit"
	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
	"github.com/CosmoTheDev/vtyscan-agent/internal/database"
	"github.com/CosmoTheDev/vtyscan-agent/internal/events"
	"github.com/CosmoTheDev/vtyscan-agent/internal/gitarchive"
	"github.com/CosmoTheDev/vtyscan-agent/internal/inventory"
	"github.com/CosmoTheDev/vtyscan-agent/internal/notify"
	"github.com/CosmoTheDev/vtyscan-agent/internal/policy"
	"github.com/CosmoTheDev/vtyscan-agent/internal/tunnel"
	"github.com/CosmoTheDev/vtyscan-agent/models"
)

// ErrRunActive is returned when a trigger arrives while a run is in flight.
var ErrRunActive = errors.New("an audit run is already active")

// Gateway combines:
//   - the audit Coordinator (one run at a time)
//   - a cron Scheduler (triggering runs on schedule)
//   - a REST + SSE HTTP server (control plane for users)
type Gateway struct {
	cfg         *config.Config
	db          database.DB
	store       *database.Store
	bus       *events.Broadcaster
	notifier  *notify.Dispatcher
	scheduler *Scheduler

	mu            sync.RWMutex
	current       *audit.Coordinator
	running       bool
	lastTriggerAt string
	startedAt     time.Time
}

// New creates a Gateway. Call Start() to begin serving.
func New(cfg *config.Config, db database.DB) *Gateway {
	gw := &Gateway{
		cfg:       cfg,
		db:        db,
		store:     database.NewStore(db),
		bus:       events.NewBroadcaster(),
		notifier:  notify.NewDispatcher(cfg.Notify),
		startedAt: time.Now(),
	}
	gw.scheduler = newScheduler(db, gw.triggerSchedule, gw.bus.Publish)
	return gw
}

// Start runs the gateway until ctx is cancelled. It:
//  1. Loads and starts the cron scheduler
//  2. Attaches the notification dispatcher to the event bus
//  3. Binds the HTTP server (blocks until shutdown)
func (gw *Gateway) Start(ctx context.Context) error {
	port := gw.cfg.Gateway.Port
	if port == 0 {
		port = 6180
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	if err := gw.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	if gw.notifier.IsAnyConfigured() {
		ch, cancel := gw.bus.Subscribe()
		go func() {
			defer cancel()
			gw.notifier.Watch(ctx, ch)
		}()
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: buildHandler(gw),
	}
	go func() {
		<-ctx.Done()
		gw.scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway: listening", "addr", "http://"+addr)
	gw.bus.Publish(events.Event{Type: events.TypeGatewayStarted, Detail: "http://" + addr})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// triggerSchedule fires a scheduled run, resolving per-schedule overrides.
func (gw *Gateway) triggerSchedule(sched Schedule) {
	if err := gw.TriggerRun(context.Background(), sched.Inventory, sched.Policy, sched.Workers); err != nil {
		slog.Warn("gateway: scheduled run not started",
			"id", sched.ID, "name", sched.Name, "error", err)
	}
}

// TriggerRun starts an audit run in the background. Inventory, policy,
// and workers fall back to the configured defaults when zero-valued.
// Returns ErrRunActive while a run is in flight.
func (gw *Gateway) TriggerRun(ctx context.Context, inventoryPath, policyPath string, workers int) error {
	if inventoryPath == "" {
		inventoryPath = gw.cfg.Devices.Inventory
	}
	if policyPath == "" {
		policyPath = gw.cfg.Audit.Policy
	}
	if workers <= 0 {
		workers = gw.cfg.Audit.Workers
	}
	if inventoryPath == "" {
		return errors.New("no inventory configured")
	}

	devices, err := inventory.Load(inventoryPath)
	if err != nil {
		return fmt.Errorf("loading inventory: %w", err)
	}
	pol := policy.Default()
	if policyPath != "" {
		if pol, err = policy.Load(policyPath); err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
	}

	coord := audit.NewCoordinator(audit.RunConfig{
		Devices:   devices,
		Policy:    pol,
		Workers:   workers,
		Options:   gw.auditOptions(),
		Inventory: inventoryPath,
		PolicyRef: policyPath,
	}, gw.opener(), gw.store, gw.bus)

	gw.mu.Lock()
	if gw.running {
		gw.mu.Unlock()
		return ErrRunActive
	}
	gw.running = true
	gw.current = coord
	gw.lastTriggerAt = time.Now().UTC().Format(time.RFC3339)
	gw.mu.Unlock()

	go func() {
		result, err := coord.Run(context.WithoutCancel(ctx))
		gw.mu.Lock()
		gw.running = false
		gw.mu.Unlock()
		if err != nil {
			slog.Error("gateway: audit run failed", "error", err)
			return
		}
		gw.archiveRun(result)
	}()
	return nil
}

func (gw *Gateway) auditOptions() audit.Options {
	return audit.Options{
		DialTimeout:    gw.cfg.Audit.DialTimeout(),
		CommandTimeout: gw.cfg.Audit.CommandTimeout(),
		SettleDelay:    gw.cfg.Audit.SettleDelay(),
	}
}

// opener builds the tunnel-backed connector factory for one run.
func (gw *Gateway) opener() audit.ConnectorOpener {
	return func(ctx context.Context) (audit.Connector, func() error, error) {
		tun, err := tunnel.Open(ctx, gw.cfg.Tunnel.Host, tunnel.Credentials{
			User:           gw.cfg.Tunnel.User,
			Password:       gw.cfg.Tunnel.Password,
			KeyFile:        gw.cfg.Tunnel.KeyFile,
			KeyPassphrase:  gw.cfg.Tunnel.KeyPassphrase,
			KnownHostsFile: gw.cfg.Tunnel.KnownHostsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		conn := audit.NewSSHConnector(tun, tunnel.Credentials{
			User:             gw.cfg.Devices.User,
			Password:         gw.cfg.Devices.Password,
			LegacyAlgorithms: gw.cfg.Devices.LegacyAlgorithms,
		}, gw.cfg.Audit.DialRetries)
		return conn, tun.Close, nil
	}
}

// archiveRun commits the run evidence when the archive is enabled.
func (gw *Gateway) archiveRun(result *audit.Result) {
	if !gw.cfg.Archive.Enabled {
		return
	}
	arch, err := gitarchive.Open(gw.cfg.Archive.Path, gw.cfg.Archive.Author, gw.cfg.Archive.Email)
	if err != nil {
		slog.Warn("gateway: archive unavailable", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var outputs []models.DeviceOutput
	for _, dev := range result.Reports {
		devOutputs, err := gw.store.Outputs(ctx, result.Run.ID, dev.Device.Name)
		if err != nil {
			slog.Warn("gateway: reading outputs for archive", "device", dev.Device.Name, "error", err)
			continue
		}
		outputs = append(outputs, devOutputs...)
	}
	if _, err := arch.CommitRun(result, outputs); err != nil {
		slog.Warn("gateway: archiving run failed", "run_id", result.Run.ID, "error", err)
	}
}

// Pause suspends the active run at its next stage boundaries.
func (gw *Gateway) Pause() error {
	coord := gw.activeCoordinator()
	if coord == nil {
		return errors.New("no active run")
	}
	coord.Pause()
	return nil
}

// Resume releases a paused run.
func (gw *Gateway) Resume() error {
	coord := gw.activeCoordinator()
	if coord == nil {
		return errors.New("no active run")
	}
	coord.Resume()
	return nil
}

// StopRun stops the active run; partial results are kept.
func (gw *Gateway) StopRun() error {
	coord := gw.activeCoordinator()
	if coord == nil {
		return errors.New("no active run")
	}
	coord.Stop()
	return nil
}

func (gw *Gateway) activeCoordinator() *audit.Coordinator {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	if !gw.running {
		return nil
	}
	return gw.current
}

func (gw *Gateway) currentStatus() GatewayStatus {
	gw.mu.RLock()
	running := gw.running
	coord := gw.current
	lastTrigger := gw.lastTriggerAt
	startedAt := gw.startedAt
	gw.mu.RUnlock()

	s := GatewayStatus{
		Running:       running,
		Workers:       gw.cfg.Audit.Workers,
		LastTriggerAt: lastTrigger,
		UptimeSeconds: int64(time.Since(startedAt).Seconds()),
	}
	if coord != nil {
		run, completed, total := coord.Status()
		s.RunID = run.ID
		s.RunStatus = run.Status
		s.Completed = completed
		s.Total = total
		s.Paused = run.Status == string(models.RunPaused)
		if run.Workers > 0 {
			s.Workers = run.Workers
		}
	}
	return s
}
