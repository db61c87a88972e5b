package policy

import (
	"strings"
	"testing"

	"github.com/CosmoTheDev/vtyscan-agent/internal/risk"
)

func TestDefaultPolicy(t *testing.T) {
	p := Default()
	if p.UnspecifiedTransport != risk.UnspecifiedWarn {
		t.Errorf("default unspecified_transport = %q, want warn", p.UnspecifiedTransport)
	}
	if len(p.ExpectedChannels) != 0 {
		t.Errorf("default policy should expect no banks, got %d", len(p.ExpectedChannels))
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := Parse([]byte(`
expected_channels:
  - {slot: 0, adapter: 1, first: 0, last: 22}
  - {slot: 0, adapter: 2, first: 0, last: 22}
unspecified_transport: assume-telnet
min_notify_severity: high
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.ExpectedChannels) != 2 {
		t.Fatalf("expected 2 ranges, got %d", len(p.ExpectedChannels))
	}
	if p.UnspecifiedTransport != risk.UnspecifiedAssumeTelnet {
		t.Errorf("unspecified_transport = %q", p.UnspecifiedTransport)
	}
	ranges := p.Ranges()
	if ranges[0].Last != 22 || ranges[1].Adapter != 2 {
		t.Errorf("ranges not carried: %+v", ranges)
	}
}

func TestParseRejectsBadPolicy(t *testing.T) {
	if _, err := Parse([]byte("unspecified_transport: guess")); err == nil ||
		!strings.Contains(err.Error(), "invalid unspecified_transport") {
		t.Errorf("bad mode not rejected: %v", err)
	}
	if _, err := Parse([]byte("expected_channels:\n  - {slot: 0, adapter: 1, first: 10, last: 2}")); err == nil ||
		!strings.Contains(err.Error(), "invalid range") {
		t.Errorf("inverted range not rejected: %v", err)
	}
}
