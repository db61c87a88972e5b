package models

// Device is one audit target from the inventory.
type Device struct {
	Name     string `json:"name"               yaml:"name"`
	Address  string `json:"address"            yaml:"address"`            // host or host:port, dialed through the tunnel
	Platform string `json:"platform,omitempty" yaml:"platform,omitempty"` // ios | ios-xe | nxos (empty = ios)
	Site     string `json:"site,omitempty"     yaml:"site,omitempty"`
}

// Terminal device statuses set by the reporting stage.
const (
	DeviceCompleted   = "completed"
	DevicePartial     = "partial"
	DeviceUnreachable = "unreachable"
	DeviceAuthFailed  = "authentication_failed"
	DeviceStopped     = "stopped"
)

// DeviceReport is the reporting-stage output for one device: the
// terminal status, every phase result in stage order, and whatever
// analysis completed before the run ended.
type DeviceReport struct {
	Device     Device        `json:"device"`
	Status     string        `json:"status"` // completed|partial|unreachable|authentication_failed|stopped
	Phases     []PhaseResult `json:"phases"`
	Lines      []LineBlock   `json:"lines,omitempty"`
	Findings   []RiskFinding `json:"findings,omitempty"`
	Violations []string      `json:"violations,omitempty"`
}

// HighestLevel returns the most severe finding level in the report,
// or RiskUnknown when no findings exist.
func (r DeviceReport) HighestLevel() RiskLevel {
	top := RiskUnknown
	for _, f := range r.Findings {
		if f.Level.Weight() > top.Weight() {
			top = f.Level
		}
	}
	return top
}
