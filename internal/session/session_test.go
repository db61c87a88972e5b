package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/tunnel"
)

// startFakeDevice wires a Session to a scripted IOS-style responder
// over in-memory pipes: echo, canned output, prompt.
func startFakeDevice(t *testing.T, hostname string, outputs map[string]string) *Session {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	prompt := hostname + "#"

	go func() {
		scanner := bufio.NewScanner(inR)
		for scanner.Scan() {
			cmd := strings.TrimSpace(scanner.Text())
			switch {
			case cmd == "hang":
				// swallow the command, answer nothing
			case cmd == "":
				fmt.Fprintf(outW, "\r\n%s", prompt)
			case cmd == "terminal length 0":
				fmt.Fprintf(outW, "%s\r\n%s", cmd, prompt)
			default:
				out, ok := outputs[cmd]
				if !ok {
					fmt.Fprintf(outW, "%s\r\n%% Invalid input detected at '^' marker.\r\n%s", cmd, prompt)
					continue
				}
				fmt.Fprintf(outW, "%s\r\n%s\r\n%s", cmd, out, prompt)
			}
		}
	}()

	s := newSession(hostname+":22", inW, outR)
	t.Cleanup(func() { s.Close() })
	if err := s.handshake(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	return s
}

func TestHandshakeCapturesPrompt(t *testing.T) {
	s := startFakeDevice(t, "edge-rtr1", nil)
	if s.Prompt() != "edge-rtr1#" {
		t.Fatalf("Prompt() = %q, want %q", s.Prompt(), "edge-rtr1#")
	}
}

func TestRunReturnsCleanOutput(t *testing.T) {
	s := startFakeDevice(t, "edge-rtr1", map[string]string{
		"show line": "   Tty Line Typ     Tx/Rx    A Roty\r\n*     0    0 CTY              -    -",
	})
	out, err := s.Run(context.Background(), "show line", 2*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(out, "show line") {
		t.Errorf("command echo not stripped: %q", out)
	}
	if strings.Contains(out, "edge-rtr1#") {
		t.Errorf("prompt not stripped: %q", out)
	}
	if !strings.Contains(out, "Tty Line Typ") {
		t.Errorf("device output missing: %q", out)
	}
}

func TestRunSurfacesErrorBanner(t *testing.T) {
	s := startFakeDevice(t, "edge-rtr1", nil)
	_, err := s.Run(context.Background(), "show flux", 2*time.Second)
	if err == nil {
		t.Fatalf("Run with bad command: expected error")
	}
	if !tunnel.IsCommand(err) {
		t.Fatalf("error %v, want CommandError", err)
	}
}

func TestRunTimesOutOnSilentDevice(t *testing.T) {
	s := startFakeDevice(t, "edge-rtr1", nil)
	_, err := s.Run(context.Background(), "hang", 100*time.Millisecond)
	if !tunnel.IsTimeout(err) {
		t.Fatalf("error %v, want TimeoutError", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := startFakeDevice(t, "edge-rtr1", nil)
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Run(context.Background(), "show line", time.Second); err == nil {
		t.Fatalf("Run on closed session: expected error")
	}
}

func TestStripEnvelope(t *testing.T) {
	raw := "show line\r\nTty Line\r\nmore text\r\nedge-rtr1#"
	got := stripEnvelope(raw, "show line")
	if got != "Tty Line\nmore text" {
		t.Errorf("stripEnvelope = %q", got)
	}
}

func TestErrorBanner(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"% Invalid input detected at '^' marker.", "% Invalid input detected at '^' marker."},
		{"ok output\n% Incomplete command.", "% Incomplete command."},
		{"Command authorization failed.", "Command authorization failed."},
		{"Building configuration...\nline vty 0 4", ""},
	}
	for _, tt := range tests {
		if got := errorBanner(tt.text); got != tt.want {
			t.Errorf("errorBanner(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestHasPrompt(t *testing.T) {
	tests := []struct {
		buf  string
		want bool
	}{
		{"edge-rtr1#", true},
		{"edge-rtr1>", true},
		{"\r\nUser Access Verification\r\nedge-rtr1# ", true},
		{"Building configuration...", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := hasPrompt(tt.buf); got != tt.want {
			t.Errorf("hasPrompt(%q) = %v, want %v", tt.buf, got, tt.want)
		}
	}
}

type fakeDialer struct {
	fail bool
}

func (f fakeDialer) Dial(_ context.Context, addr string, _ time.Duration) (net.Conn, error) {
	if f.fail {
		return nil, &tunnel.UnreachableError{Host: addr, Err: errors.New("connection refused")}
	}
	c1, c2 := net.Pipe()
	go func() {
		io.Copy(io.Discard, c2)
	}()
	return c1, nil
}

func TestProbeNeverErrors(t *testing.T) {
	if !Probe(context.Background(), fakeDialer{}, "10.0.0.1:22", time.Second) {
		t.Errorf("Probe against live endpoint = false, want true")
	}
	if Probe(context.Background(), fakeDialer{fail: true}, "10.0.0.1:22", time.Second) {
		t.Errorf("Probe against dead endpoint = true, want false")
	}
}
