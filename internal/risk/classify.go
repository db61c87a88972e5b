package risk

import (
	"github.com/CosmoTheDev/vtyscan-agent/models"
)

// Interpretation modes for lines that carry no transport input
// directive. Platform defaults differ, so the choice is policy.
const (
	UnspecifiedWarn         = "warn"
	UnspecifiedAssumeTelnet = "assume-telnet"
	UnspecifiedIgnore       = "ignore"
)

// Options tune how ambiguous configuration is interpreted.
type Options struct {
	UnspecifiedTransport string // warn (default) | assume-telnet | ignore
}

// Violation strings are stable so reports and tests can match on them.
const (
	violationTelnetNoAuth  = "telnet enabled without authentication"
	violationTelnetNoACL   = "telnet enabled without inbound access-class"
	violationNoTransport   = "transport input not specified"
	violationConsoleServer = "console-server pattern: no exec + rotary with telnet and no access-class"
)

// Classify scores one line's remote-access exposure. Pure and
// deterministic: equal blocks always produce equal findings.
//
// Additive score: +10 transport configured, +20 telnet enabled,
// +30 telnet without authentication, +15 telnet authenticated but
// unfiltered, +10 telnet with elevated privilege and no filter.
// 0-19 LOW, 20-39 MEDIUM, 40+ HIGH. A no-exec rotary telnet line with
// no access-class is a reverse-telnet console server and overrides to
// CRITICAL regardless of score.
func Classify(b models.LineBlock, opts Options) models.RiskFinding {
	telnet := b.AllowsTransport("telnet")
	transportConfigured := b.TransportSpecified && len(b.Transports) > 0
	if !b.TransportSpecified && opts.UnspecifiedTransport == UnspecifiedAssumeTelnet {
		telnet = true
		transportConfigured = true
	}
	noAuth := !b.Login.Configured()
	unfiltered := b.AccessClassIn == ""

	score := 0
	if transportConfigured {
		score += 10
	}
	if telnet {
		score += 20
	}
	if telnet && noAuth {
		score += 30
	}
	if telnet && !noAuth && unfiltered {
		score += 15
	}
	if telnet && b.Privilege > 1 && unfiltered {
		score += 10
	}

	violations := []string{}
	if telnet && noAuth {
		violations = append(violations, violationTelnetNoAuth)
	}
	if telnet && unfiltered {
		violations = append(violations, violationTelnetNoACL)
	}
	if !b.TransportSpecified && opts.UnspecifiedTransport != UnspecifiedIgnore {
		violations = append(violations, violationNoTransport)
	}

	level := models.RiskLevelForScore(score)
	if b.NoExec && b.Rotary > 0 && telnet && unfiltered {
		level = models.RiskCritical
		violations = append(violations, violationConsoleServer)
	}

	return models.RiskFinding{
		Line:       b.ID,
		Score:      score,
		Level:      level,
		Telnet:     telnet,
		Violations: violations,
	}
}

// ClassifyAll classifies every block in order.
func ClassifyAll(blocks []models.LineBlock, opts Options) []models.RiskFinding {
	out := make([]models.RiskFinding, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, Classify(b, opts))
	}
	return out
}
