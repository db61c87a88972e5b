package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleInventory = `
devices:
  - name: edge-rtr-01
    address: 10.0.0.1
    platform: ios
  - name: term-srv-01
    address: 10.0.0.2:2201
    platform: ios
    site: dc-west
  - name: agg-sw-01
    address: 10.0.0.3
    platform: nxos
`

func TestParseOrderPreserved(t *testing.T) {
	devices, err := Parse([]byte(sampleInventory))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(devices))
	}
	want := []string{"edge-rtr-01", "term-srv-01", "agg-sw-01"}
	for i, name := range want {
		if devices[i].Name != name {
			t.Errorf("device %d = %q, want %q", i, devices[i].Name, name)
		}
	}
	if devices[1].Address != "10.0.0.2:2201" {
		t.Errorf("host:port address mangled: %q", devices[1].Address)
	}
	if devices[1].Site != "dc-west" {
		t.Errorf("site not carried: %q", devices[1].Site)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "devices: []", "no devices"},
		{"missing name", "devices:\n  - address: 10.0.0.1", "name is required"},
		{"missing address", "devices:\n  - name: r1", "address is required"},
		{"duplicate name", "devices:\n  - {name: r1, address: 10.0.0.1}\n  - {name: R1, address: 10.0.0.2}", "duplicate"},
		{"bad platform", "devices:\n  - {name: r1, address: 10.0.0.1, platform: junos}", "unknown platform"},
		{"bad address", "devices:\n  - {name: r1, address: '10.0.0.1:'}", "invalid address"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not contain %q", err, tc.want)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.yaml")
	if err := os.WriteFile(path, []byte(sampleInventory), 0o600); err != nil {
		t.Fatal(err)
	}
	devices, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(devices))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
