package platform

import "strings"

// Family identifies the CLI dialect of one device platform.
type Family string

const (
	FamilyIOS   Family = "ios"    // classic IOS, the default
	FamilyIOSXE Family = "ios-xe" // IOS XE, same line model as IOS
	FamilyNXOS  Family = "nxos"   // NX-OS: no aux port, no async banks
)

// Command is one read-only collection step.
type Command struct {
	Name string // short key used for storage, archives and reports
	Text string // exact CLI string sent to the device
}

// Resolve maps an inventory platform hint to a family. Empty or
// unknown hints fall back to classic IOS, the most permissive parser
// target.
func Resolve(hint string) Family {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "ios-xe", "iosxe", "ios_xe":
		return FamilyIOSXE
	case "nxos", "nx-os":
		return FamilyNXOS
	case "ios", "":
		return FamilyIOS
	default:
		return FamilyIOS
	}
}

// ProbeCommand is the low-risk read-only command used by the
// authorization check. It is valid on every supported family.
func ProbeCommand(Family) Command {
	return Command{Name: "show_line", Text: "show line"}
}

// CommandSet returns the collection commands for a family in execution
// order. Every family yields exactly six commands; the parse targets
// are the configuration dumps, the rest is supporting evidence.
func CommandSet(f Family) []Command {
	switch f {
	case FamilyNXOS:
		return []Command{
			{Name: "show_line", Text: "show line"},
			{Name: "active_users", Text: "show users"}, // NX-OS has no aux port
			{Name: "vty_lines", Text: "show running-config | section vty"},
			{Name: "console_lines", Text: "show running-config | section console"},
			{Name: "version", Text: "show version"},
			{Name: "running_config", Text: "show running-config"},
		}
	default:
		return []Command{
			{Name: "show_line", Text: "show line"},
			{Name: "aux_lines", Text: "show running-config | section ^hostname|^line aux"},
			{Name: "vty_lines", Text: "show running-config | section ^line vty"},
			{Name: "console_lines", Text: "show running-config | section ^line con"},
			{Name: "version", Text: "show version"},
			{Name: "running_config", Text: "show running-config"},
		}
	}
}

// ParseTargets names the outputs post-processing feeds to the parser.
// The full running config supersedes the per-section dumps; sections
// are the fallback when the full dump never arrived.
func ParseTargets() (primary string, fallbacks []string) {
	return "running_config", []string{"console_lines", "aux_lines", "vty_lines"}
}
