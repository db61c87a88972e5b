// Package inventory loads the ordered device population an audit run
// sweeps over. The audit core only ever sees the resulting slice; it
// never re-reads files mid-run.
package inventory

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/CosmoTheDev/vtyscan-agent/models"
	"go.yaml.in/yaml/v3"
)

// File is the on-disk inventory shape.
type File struct {
	Devices []models.Device `yaml:"devices"`
}

// Load reads and validates a YAML inventory file, returning the devices
// in file order.
func Load(path string) ([]models.Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory %s: %w", path, err)
	}
	devices, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	return devices, nil
}

// Parse decodes and validates inventory YAML.
func Parse(data []byte) ([]models.Device, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if len(f.Devices) == 0 {
		return nil, fmt.Errorf("no devices defined")
	}

	seen := make(map[string]struct{}, len(f.Devices))
	for i, d := range f.Devices {
		if err := validate(d); err != nil {
			return nil, fmt.Errorf("device %d (%s): %w", i+1, d.Name, err)
		}
		key := strings.ToLower(d.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate device name %q", d.Name)
		}
		seen[key] = struct{}{}
	}
	return f.Devices, nil
}

// knownPlatforms mirrors the families the collection command tables
// support. Unknown hints still audit, defaulting to classic IOS, but
// the loader flags typos up front.
var knownPlatforms = map[string]bool{
	"": true, "ios": true, "ios-xe": true, "iosxe": true, "ios_xe": true,
	"nxos": true, "nx-os": true,
}

func validate(d models.Device) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(d.Address) == "" {
		return fmt.Errorf("address is required")
	}
	if host, port, err := net.SplitHostPort(d.Address); err == nil {
		if host == "" || port == "" {
			return fmt.Errorf("invalid address %q", d.Address)
		}
	} else if strings.Contains(d.Address, ":") {
		// Contains a colon but is not host:port — reject rather than
		// letting the dial fail much later mid-run.
		return fmt.Errorf("invalid address %q", d.Address)
	}
	if !knownPlatforms[strings.ToLower(strings.TrimSpace(d.Platform))] {
		return fmt.Errorf("unknown platform %q (supported: ios, ios-xe, nxos)", d.Platform)
	}
	return nil
}
