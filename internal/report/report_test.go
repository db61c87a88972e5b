package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/CosmoTheDev/vtyscan-agent/internal/audit"
	"github.com/CosmoTheDev/vtyscan-agent/models"
)

func sampleResult() *audit.Result {
	return &audit.Result{
		Run: models.AuditRun{ID: 7, Status: "completed", DeviceCount: 2},
		Summary: models.RunSummary{
			RunID: 7, Devices: 2, Completed: 2,
			FindingsCritical: 1, FindingsLow: 2,
			Violations:    1,
			ViolationList: []string{"term-01: rotary group 1 reused by 0/1/0 and 0/1/1"},
		},
		Reports: []models.DeviceReport{
			{
				Device: models.Device{Name: "term-01"},
				Status: models.DeviceCompleted,
				Findings: []models.RiskFinding{
					{
						Line:       models.LineID{Slot: 0, Adapter: 1, Channel: 0, Triple: true},
						Score:      40,
						Level:      models.RiskCritical,
						Telnet:     true,
						Violations: []string{"telnet allowed without access-class"},
					},
					{Line: models.LineID{Type: "con"}, Score: 0, Level: models.RiskLow},
				},
			},
			{
				Device: models.Device{Name: "edge-02"},
				Status: models.DeviceCompleted,
				Findings: []models.RiskFinding{
					{Line: models.LineID{Type: "vty"}, Score: 10, Level: models.RiskLow},
				},
			},
		},
	}
}

func TestRowsOrderedWorstFirst(t *testing.T) {
	rows := Rows(sampleResult())
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Level != "CRITICAL" || rows[0].Device != "term-01" {
		t.Errorf("first row = %s/%s, want term-01 CRITICAL first", rows[0].Device, rows[0].Level)
	}
	// Within the same level, devices sort alphabetically.
	if rows[1].Device != "edge-02" {
		t.Errorf("second row device = %s, want edge-02", rows[1].Device)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleResult(), FormatJSON); err != nil {
		t.Fatalf("Write(json): %v", err)
	}
	var export Export
	if err := json.Unmarshal(buf.Bytes(), &export); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if export.Run.ID != 7 || len(export.Devices) != 2 {
		t.Errorf("export run=%d devices=%d, want 7 and 2", export.Run.ID, len(export.Devices))
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleResult(), FormatCSV); err != nil {
		t.Fatalf("Write(csv): %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 4 { // header + 3 findings
		t.Fatalf("got %d records, want 4", len(records))
	}
	if records[0][0] != "device" {
		t.Errorf("header starts with %q", records[0][0])
	}
	if records[1][2] != "CRITICAL" || records[1][1] != "0/1/0" {
		t.Errorf("first data row = %v, want the critical 0/1/0 finding", records[1])
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleResult(), FormatTable); err != nil {
		t.Fatalf("Write(table): %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Run 7", "CRITICAL", "NOT COMPLIANT", "rotary group 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, sampleResult(), "xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
