package events

import (
	"sync"
	"time"
)

// Event types published during an audit run.
const (
	TypeRunStarted      = "run.started"
	TypeRunStatus       = "run.status"
	TypeRunCompleted    = "run.completed"
	TypeRunFailed       = "run.failed"
	TypeDeviceStage     = "device.stage"
	TypeDeviceReport    = "device.report"
	TypeCriticalFinding = "finding.critical"

	// Gateway lifecycle events share the same bus.
	TypeGatewayStarted = "gateway.started"
	TypeScheduleFired  = "schedule.fired"
)

// Event is one progress notification. Stage events carry device and
// stage fields; run snapshots carry the counters.
type Event struct {
	Type      string    `json:"type"`
	RunID     int64     `json:"run_id,omitempty"`
	Device    string    `json:"device,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Status    string    `json:"status,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Completed int       `json:"completed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBuffer = 32

// Broadcaster fans events out to every subscriber. Publishing never
// blocks: a subscriber that stops draining loses its oldest events,
// not the publisher's time.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a consumer. The cancel func unregisters it and
// closes the channel, so range loops terminate.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			// No publisher holds the channel once it is out of the
			// map: sends happen under the read lock.
			close(ch)
		})
	}
	return ch, cancel
}

// Publish fans evt out to all subscribers without blocking. A full
// subscriber buffer drops its oldest event to make room.
func (b *Broadcaster) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// SubscriberCount reports how many consumers are attached.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
