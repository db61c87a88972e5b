// Package policy holds the compliance policy an audit run is judged
// against: which async channel banks are expected to exist, and how
// ambiguous configuration is interpreted.
package policy

import (
	"fmt"
	"os"

	"github.com/CosmoTheDev/vtyscan-agent/internal/risk"
	"go.yaml.in/yaml/v3"
)

// ChannelRange declares one expected contiguous async bank.
type ChannelRange struct {
	Slot    int `yaml:"slot"    json:"slot"`
	Adapter int `yaml:"adapter" json:"adapter"`
	First   int `yaml:"first"   json:"first"`
	Last    int `yaml:"last"    json:"last"`
}

// Policy is the loaded compliance policy for a run.
type Policy struct {
	// ExpectedChannels lists the async banks the fleet is known to own.
	// Banks not listed are not checked for missing channels.
	ExpectedChannels []ChannelRange `yaml:"expected_channels" json:"expected_channels"`
	// UnspecifiedTransport decides how a line with no transport input
	// directive is scored: warn (default), assume-telnet, or ignore.
	UnspecifiedTransport string `yaml:"unspecified_transport" json:"unspecified_transport"`
	// MinNotifySeverity filters finding notifications (critical|high|medium|low).
	MinNotifySeverity string `yaml:"min_notify_severity" json:"min_notify_severity"`
}

// Default returns the built-in policy used when no file is given: no
// expected banks, warn on unspecified transport.
func Default() *Policy {
	return &Policy{
		UnspecifiedTransport: risk.UnspecifiedWarn,
		MinNotifySeverity:    "critical",
	}
}

// Load reads a YAML policy file, filling blanks from Default.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates policy YAML.
func Parse(data []byte) (*Policy, error) {
	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	switch p.UnspecifiedTransport {
	case risk.UnspecifiedWarn, risk.UnspecifiedAssumeTelnet, risk.UnspecifiedIgnore:
	case "":
		p.UnspecifiedTransport = risk.UnspecifiedWarn
	default:
		return nil, fmt.Errorf("invalid unspecified_transport %q (valid: warn, assume-telnet, ignore)",
			p.UnspecifiedTransport)
	}
	for i, r := range p.ExpectedChannels {
		if r.Slot < 0 || r.Adapter < 0 || r.First < 0 || r.Last < r.First {
			return nil, fmt.Errorf("expected_channels[%d]: invalid range %d/%d %d-%d",
				i, r.Slot, r.Adapter, r.First, r.Last)
		}
	}
	return p, nil
}

// ClassifyOptions converts the policy into classifier options.
func (p *Policy) ClassifyOptions() risk.Options {
	return risk.Options{UnspecifiedTransport: p.UnspecifiedTransport}
}

// Ranges converts the expected banks into the validator's range type.
func (p *Policy) Ranges() []risk.ChannelRange {
	out := make([]risk.ChannelRange, len(p.ExpectedChannels))
	for i, r := range p.ExpectedChannels {
		out[i] = risk.ChannelRange{Slot: r.Slot, Adapter: r.Adapter, First: r.First, Last: r.Last}
	}
	return out
}
