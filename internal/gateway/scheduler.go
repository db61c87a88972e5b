package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/database"
	"github.com/CosmoTheDev/vtyscan-agent/internal/events"
	"github.com/robfig/cron/v3"
)

const scheduleColumns = "id, name, description, expr, inventory, policy, workers, enabled, last_run_at, created_at, updated_at"

// Scheduler loads gateway_schedules from the database and registers
// them with robfig/cron. When a schedule fires it calls triggerFn
// (starting an audit run) and records last_run_at.
type Scheduler struct {
	db        database.DB
	cron      *cron.Cron
	triggerFn func(Schedule)
	publish   func(events.Event)

	mu      sync.Mutex
	entries map[int64]cron.EntryID // schedule DB id → cron entry id
}

func newScheduler(db database.DB, triggerFn func(Schedule), publish func(events.Event)) *Scheduler {
	return &Scheduler{
		db:        db,
		cron:      cron.New(),
		triggerFn: triggerFn,
		publish:   publish,
		entries:   make(map[int64]cron.EntryID),
	}
}

// Start loads all enabled schedules from the DB and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	var schedules []Schedule
	if err := s.db.Select(ctx, &schedules,
		"SELECT "+scheduleColumns+" FROM gateway_schedules WHERE enabled = 1",
	); err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}

	for _, sched := range schedules {
		if err := s.register(sched); err != nil {
			slog.Warn("scheduler: skipping schedule with invalid expression",
				"id", sched.ID, "name", sched.Name, "expr", sched.Expr, "error", err)
		}
	}

	s.cron.Start()
	slog.Info("Gateway scheduler started", "schedules_loaded", len(schedules))
	return nil
}

// Stop halts the cron runner gracefully.
func (s *Scheduler) Stop() { s.cron.Stop() }

// register adds a schedule to the running cron instance.
func (s *Scheduler) register(sched Schedule) error {
	entryID, err := s.cron.AddFunc(sched.Expr, func() {
		s.fire(context.Background(), sched)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sched.Expr, err)
	}
	s.mu.Lock()
	s.entries[sched.ID] = entryID
	s.mu.Unlock()
	return nil
}

// fire triggers one schedule and records last_run_at.
func (s *Scheduler) fire(ctx context.Context, sched Schedule) {
	slog.Info("Schedule fired", "id", sched.ID, "name", sched.Name)
	s.publish(events.Event{
		Type:   events.TypeScheduleFired,
		Detail: fmt.Sprintf("%s (schedule %d)", sched.Name, sched.ID),
	})
	s.triggerFn(sched)

	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.db.Exec(ctx,
		"UPDATE gateway_schedules SET last_run_at = ? WHERE id = ?", now, sched.ID,
	); err != nil {
		slog.Warn("scheduler: recording last_run_at failed", "id", sched.ID, "error", err)
	}
}

// validate checks that expr is parseable by robfig/cron without adding
// it permanently to any runner.
func validate(expr string) error {
	tmp := cron.New()
	id, err := tmp.AddFunc(expr, func() {})
	if err != nil {
		return err
	}
	tmp.Remove(id)
	return nil
}

// List returns every stored schedule.
func (s *Scheduler) List(ctx context.Context) ([]Schedule, error) {
	var schedules []Schedule
	err := s.db.Select(ctx, &schedules,
		"SELECT "+scheduleColumns+" FROM gateway_schedules ORDER BY id")
	return schedules, err
}

// Add validates, persists, and registers a new schedule. Returns the new DB id.
func (s *Scheduler) Add(ctx context.Context, sched Schedule) (int64, error) {
	if err := validate(sched.Expr); err != nil {
		return 0, fmt.Errorf("invalid schedule expression %q: %w", sched.Expr, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	sched.CreatedAt = now
	sched.UpdatedAt = now

	id, err := s.db.Insert(ctx, "gateway_schedules", sched)
	if err != nil {
		return 0, err
	}
	sched.ID = id
	if sched.Enabled {
		if err := s.register(sched); err != nil {
			slog.Warn("scheduler: persisted but could not register schedule",
				"id", id, "error", err)
		}
	}
	return id, nil
}

// Update validates, persists, and re-registers an existing schedule.
func (s *Scheduler) Update(ctx context.Context, id int64, sched Schedule) error {
	if err := validate(sched.Expr); err != nil {
		return fmt.Errorf("invalid schedule expression %q: %w", sched.Expr, err)
	}

	var existing Schedule
	if err := s.db.Get(ctx, &existing,
		"SELECT "+scheduleColumns+" FROM gateway_schedules WHERE id = ?", id,
	); err != nil {
		return fmt.Errorf("loading schedule %d: %w", id, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.db.Exec(ctx,
		`UPDATE gateway_schedules
		    SET name = ?, description = ?, expr = ?, inventory = ?, policy = ?, workers = ?, enabled = ?, updated_at = ?
		  WHERE id = ?`,
		sched.Name, sched.Description, sched.Expr, sched.Inventory, sched.Policy,
		sched.Workers, sched.Enabled, now, id,
	); err != nil {
		return err
	}

	s.mu.Lock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	sched.ID = id
	sched.CreatedAt = existing.CreatedAt
	sched.UpdatedAt = now
	sched.LastRunAt = existing.LastRunAt
	if sched.Enabled {
		if err := s.register(sched); err != nil {
			slog.Warn("scheduler: persisted but could not register schedule",
				"id", id, "error", err)
		}
	}
	return nil
}

// Delete removes a schedule from the DB and the running cron instance.
func (s *Scheduler) Delete(ctx context.Context, id int64) error {
	if err := s.db.Exec(ctx, "DELETE FROM gateway_schedules WHERE id = ?", id); err != nil {
		return err
	}
	s.mu.Lock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()
	return nil
}

// Trigger fires a schedule immediately, outside its cron cadence.
func (s *Scheduler) Trigger(ctx context.Context, id int64) error {
	var sched Schedule
	if err := s.db.Get(ctx, &sched,
		"SELECT "+scheduleColumns+" FROM gateway_schedules WHERE id = ?", id,
	); err != nil {
		return fmt.Errorf("loading schedule %d: %w", id, err)
	}
	s.fire(ctx, sched)
	return nil
}
