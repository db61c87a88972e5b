package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
	"github.com/CosmoTheDev/vtyscan-agent/internal/events"
)

// Dispatcher fans out events to all configured channels.
type Dispatcher struct {
	channels []Channel
	minSev   string          // minimum severity to notify on (empty = all)
	events   map[string]bool // event types to send (empty map = use defaults)
}

// defaultEvents is the set of event types that trigger notifications when cfg.Events is empty.
var defaultEvents = map[string]bool{
	EventCriticalFinding: true,
	EventRunFailed:       true,
}

// NewDispatcher creates a Dispatcher from the given config.
// Only channels with IsConfigured() == true are active.
func NewDispatcher(cfg config.NotifyConfig) *Dispatcher {
	d := &Dispatcher{
		minSev: strings.ToLower(cfg.MinSeverity),
	}
	if len(cfg.Events) > 0 {
		d.events = make(map[string]bool, len(cfg.Events))
		for _, e := range cfg.Events {
			d.events[e] = true
		}
	} else {
		d.events = defaultEvents
	}

	channels := []Channel{
		NewSlack(cfg.Slack),
		NewTelegram(cfg.Telegram),
		NewEmail(cfg.Email),
		NewWebhook(cfg.Webhook),
	}
	for _, ch := range channels {
		if ch.IsConfigured() {
			d.channels = append(d.channels, ch)
		}
	}
	return d
}

// IsAnyConfigured returns true if at least one channel is ready to send.
func (d *Dispatcher) IsAnyConfigured() bool {
	return len(d.channels) > 0
}

// Notify sends evt to all configured channels. Errors are logged but never returned.
func (d *Dispatcher) Notify(ctx context.Context, evt Event) {
	if !d.shouldSend(evt) {
		return
	}
	for _, ch := range d.channels {
		if err := ch.Send(ctx, evt); err != nil {
			slog.Warn("notify: channel send failed", "channel", ch.Name(), "event", evt.Type, "error", err)
		}
	}
}

// Watch consumes the run event stream and notifies on the events that
// map to a notification type. It returns when ch closes or ctx dies.
func (d *Dispatcher) Watch(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if n, ok := Translate(evt); ok {
				d.Notify(ctx, n)
			}
		}
	}
}

// Translate maps a run event to a notification, when one applies.
func Translate(evt events.Event) (Event, bool) {
	switch evt.Type {
	case events.TypeCriticalFinding:
		return Event{
			Type:     EventCriticalFinding,
			Title:    fmt.Sprintf("Critical exposure on %s", evt.Device),
			Body:     evt.Detail,
			Severity: "critical",
			Device:   evt.Device,
			RunID:    evt.RunID,
		}, true
	case events.TypeRunFailed:
		return Event{
			Type:  EventRunFailed,
			Title: fmt.Sprintf("Audit run %d failed", evt.RunID),
			Body:  evt.Detail,
			RunID: evt.RunID,
		}, true
	case events.TypeRunCompleted:
		return Event{
			Type:  EventRunCompleted,
			Title: fmt.Sprintf("Audit run %d completed", evt.RunID),
			Body:  evt.Detail,
			RunID: evt.RunID,
		}, true
	case events.TypeDeviceReport:
		if evt.Status != "unreachable" && evt.Status != "authentication_failed" {
			return Event{}, false
		}
		return Event{
			Type:   EventDeviceFailed,
			Title:  fmt.Sprintf("Device %s: %s", evt.Device, evt.Status),
			Body:   fmt.Sprintf("Run %d could not audit %s (%s).", evt.RunID, evt.Device, evt.Status),
			Device: evt.Device,
			RunID:  evt.RunID,
		}, true
	default:
		return Event{}, false
	}
}

func (d *Dispatcher) shouldSend(evt Event) bool {
	if len(d.events) > 0 && !d.events[evt.Type] {
		return false
	}
	// Severity filter applies to finding events only.
	if d.minSev != "" && evt.Severity != "" {
		return severityAtLeast(evt.Severity, d.minSev)
	}
	return true
}

// severityAtLeast returns true if got >= min in severity ordering.
func severityAtLeast(got, min string) bool {
	order := map[string]int{"critical": 4, "high": 3, "medium": 2, "low": 1}
	return order[strings.ToLower(got)] >= order[min]
}
