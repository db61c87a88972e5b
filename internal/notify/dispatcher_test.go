package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
	"github.com/CosmoTheDev/vtyscan-agent/internal/events"
)

func TestDispatcherSeverityFilter(t *testing.T) {
	d := &Dispatcher{minSev: "high", events: defaultEvents}

	tests := []struct {
		severity string
		want     bool
	}{
		{"critical", true},
		{"CRITICAL", true},
		{"high", true},
		{"medium", false},
		{"low", false},
		{"", true}, // non-finding events pass the severity filter
	}
	for _, tt := range tests {
		evt := Event{Type: EventCriticalFinding, Severity: tt.severity}
		if got := d.shouldSend(evt); got != tt.want {
			t.Errorf("shouldSend(severity=%q) = %v, want %v", tt.severity, got, tt.want)
		}
	}
}

func TestDispatcherEventFilter(t *testing.T) {
	d := &Dispatcher{events: map[string]bool{EventRunFailed: true}}
	if d.shouldSend(Event{Type: EventRunCompleted}) {
		t.Error("run_completed sent despite not being selected")
	}
	if !d.shouldSend(Event{Type: EventRunFailed}) {
		t.Error("run_failed filtered out despite being selected")
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		in       events.Event
		wantType string
		wantOK   bool
	}{
		{"critical finding", events.Event{Type: events.TypeCriticalFinding, Device: "rtr-a", Detail: "0/1/0: telnet open"}, EventCriticalFinding, true},
		{"run failed", events.Event{Type: events.TypeRunFailed, RunID: 3}, EventRunFailed, true},
		{"run completed", events.Event{Type: events.TypeRunCompleted, RunID: 3}, EventRunCompleted, true},
		{"unreachable device", events.Event{Type: events.TypeDeviceReport, Device: "rtr-b", Status: "unreachable"}, EventDeviceFailed, true},
		{"healthy device report", events.Event{Type: events.TypeDeviceReport, Device: "rtr-b", Status: "completed"}, "", false},
		{"stage progress", events.Event{Type: events.TypeDeviceStage}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := Translate(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && n.Type != tt.wantType {
				t.Errorf("type = %q, want %q", n.Type, tt.wantType)
			}
		})
	}
}

func TestWebhookSendSignsPayload(t *testing.T) {
	const secret = "s3cret"
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Vtyscan-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL, Secret: secret})
	evt := Event{Type: EventCriticalFinding, Title: "Critical exposure on rtr-a", Device: "rtr-a", RunID: 5, Severity: "critical"}
	if err := ch.Send(context.Background(), evt); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
	if !strings.Contains(string(gotBody), `"device":"rtr-a"`) {
		t.Errorf("payload missing device field: %s", gotBody)
	}
}

func TestSlackSendRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	ch := NewSlack(config.SlackNotifyConfig{WebhookURL: srv.URL})
	if err := ch.Send(context.Background(), Event{Title: "x"}); err == nil {
		t.Fatal("expected error on 403 response")
	}
}

func TestNewDispatcherSkipsUnconfiguredChannels(t *testing.T) {
	d := NewDispatcher(config.NotifyConfig{})
	if d.IsAnyConfigured() {
		t.Error("no channel configured, but dispatcher reports one")
	}
	d = NewDispatcher(config.NotifyConfig{
		Slack: config.SlackNotifyConfig{WebhookURL: "https://hooks.slack.example/T00/B00"},
	})
	if !d.IsAnyConfigured() {
		t.Error("slack configured, but dispatcher reports nothing")
	}
}
