package notify

import "context"

// Event types dispatched to notification channels.
const (
	EventCriticalFinding = "critical_finding"
	EventRunCompleted    = "run_completed"
	EventRunFailed       = "run_failed"
	EventDeviceFailed    = "device_failed" // unreachable or auth failure
)

// Event is one notification.
type Event struct {
	Type     string // one of the Event* constants
	Title    string
	Body     string
	URL      string // optional deep link into the gateway UI
	Severity string // "critical" | "high" | "medium" | "low" | ""
	Device   string
	RunID    int64
}

// Channel is implemented by each notification provider.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, evt Event) error
}
