package tunnel

import (
	"strings"
	"testing"
)

func TestWithDefaultPort(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"10.0.0.1", "10.0.0.1:22"},
		{"10.0.0.1:2222", "10.0.0.1:2222"},
		{"edge-rtr.example.net", "edge-rtr.example.net:22"},
		{"edge-rtr.example.net:8022", "edge-rtr.example.net:8022"},
	}
	for _, tt := range tests {
		if got := withDefaultPort(tt.addr, "22"); got != tt.want {
			t.Errorf("withDefaultPort(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestIsAuthFailure(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]", true},
		{"ssh: no supported methods remain", true},
		{"connection refused", false},
		{"read tcp: i/o timeout", false},
	}
	for _, tt := range tests {
		err := errString(tt.msg)
		if got := isAuthFailure(err); got != tt.want {
			t.Errorf("isAuthFailure(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
	if isAuthFailure(nil) {
		t.Errorf("isAuthFailure(nil) = true, want false")
	}
}

func TestNewClientConfigRequiresAuthMethod(t *testing.T) {
	_, err := NewClientConfig(Credentials{User: "audit"})
	if err == nil {
		t.Fatalf("NewClientConfig with no password or key: expected error")
	}
}

func TestNewClientConfigPassword(t *testing.T) {
	cfg, err := NewClientConfig(Credentials{User: "audit", Password: "hunter2"})
	if err != nil {
		t.Fatalf("NewClientConfig: %v", err)
	}
	if cfg.User != "audit" {
		t.Errorf("User = %q, want audit", cfg.User)
	}
	// password + keyboard-interactive
	if len(cfg.Auth) != 2 {
		t.Errorf("len(Auth) = %d, want 2", len(cfg.Auth))
	}
}

func TestNewClientConfigLegacyAlgorithms(t *testing.T) {
	cfg, err := NewClientConfig(Credentials{User: "audit", Password: "x", LegacyAlgorithms: true})
	if err != nil {
		t.Fatalf("NewClientConfig: %v", err)
	}
	joined := strings.Join(cfg.KeyExchanges, " ")
	if !strings.Contains(joined, "diffie-hellman-group1-sha1") {
		t.Errorf("legacy kex not enabled: %v", cfg.KeyExchanges)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
