package audit

import (
	"context"
	"sync"
)

// Control is the run-scoped pause/stop token. Workers consult it only
// at stage boundaries, never inside a blocking call, so in-flight
// device I/O is allowed to finish before a signal takes effect.
type Control struct {
	mu      sync.Mutex
	paused  bool
	stopped bool
	gate    chan struct{} // closed while running, open (blocking) while paused
	stop    chan struct{} // closed once on Stop
}

func NewControl() *Control {
	c := &Control{
		gate: make(chan struct{}),
		stop: make(chan struct{}),
	}
	close(c.gate)
	return c
}

// Pause suspends every worker at its next checkpoint.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.stopped {
		return
	}
	c.paused = true
	c.gate = make(chan struct{})
}

// Resume releases paused workers. No stage is re-run: workers continue
// from the boundary they stopped at.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused || c.stopped {
		return
	}
	c.paused = false
	close(c.gate)
}

// Stop makes every checkpoint report stop from now on. Paused workers
// are released so they can observe it.
func (c *Control) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	if c.paused {
		c.paused = false
		close(c.gate)
	}
	close(c.stop)
}

// Checkpoint blocks while the run is paused. It returns false when the
// run is stopping (or the context died) and the caller must jump to
// reporting with whatever it has.
func (c *Control) Checkpoint(ctx context.Context) bool {
	for {
		c.mu.Lock()
		gate := c.gate
		c.mu.Unlock()

		select {
		case <-c.stop:
			return false
		case <-ctx.Done():
			return false
		case <-gate:
			// A Stop issued while we were paused must win over the
			// gate opening.
			select {
			case <-c.stop:
				return false
			default:
				return true
			}
		}
	}
}

// Stopping reports whether Stop has been signalled.
func (c *Control) Stopping() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Paused reports whether the run is currently suspended.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// StopChan exposes the stop signal for select loops (the settling
// stage wakes early on it).
func (c *Control) StopChan() <-chan struct{} {
	return c.stop
}
