// Package report renders a finished audit run as JSON, CSV, or a plain
// text table for terminals and evidence pipelines.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/audit"
	"github.com/CosmoTheDev/vtyscan-agent/models"
)

// Formats accepted by Write.
const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatTable = "table"
)

// Export is the full JSON payload for one run.
type Export struct {
	ExportedAt string               `json:"exported_at"`
	Run        models.AuditRun      `json:"run"`
	Summary    models.RunSummary    `json:"summary"`
	Devices    []models.DeviceReport `json:"devices"`
}

// Row is one finding flattened for tabular output.
type Row struct {
	Device     string `json:"device"`
	Line       string `json:"line"`
	Level      string `json:"level"`
	Score      int    `json:"score"`
	Telnet     bool   `json:"telnet"`
	Violations string `json:"violations"`
	Status     string `json:"device_status"`
}

// Write renders result in the requested format.
func Write(w io.Writer, result *audit.Result, format string) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatCSV:
		return writeCSV(w, result)
	case FormatTable, "":
		return writeTable(w, result)
	default:
		return fmt.Errorf("unsupported format: %s (use json, csv, or table)", format)
	}
}

func writeJSON(w io.Writer, result *audit.Result) error {
	export := Export{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Run:        result.Run,
		Summary:    result.Summary,
		Devices:    result.Reports,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(export)
}

func writeCSV(w io.Writer, result *audit.Result) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"device", "line", "level", "score", "telnet", "violations", "device_status"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range Rows(result) {
		record := []string{
			r.Device, r.Line, r.Level, strconv.Itoa(r.Score),
			strconv.FormatBool(r.Telnet), r.Violations, r.Status,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeTable(w io.Writer, result *audit.Result) error {
	sum := result.Summary
	fmt.Fprintf(w, "Run %d: %d devices (%d completed, %d partial, %d unreachable, %d auth failed, %d stopped) in %s\n",
		result.Run.ID, sum.Devices, sum.Completed, sum.Partial,
		sum.Unreachable, sum.AuthFailed, sum.Stopped,
		(time.Duration(sum.DurationMs) * time.Millisecond).Round(time.Millisecond))
	fmt.Fprintf(w, "Findings: %d critical, %d high, %d medium, %d low; %d compliance violations\n\n",
		sum.FindingsCritical, sum.FindingsHigh, sum.FindingsMedium, sum.FindingsLow, sum.Violations)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tLINE\tLEVEL\tSCORE\tTELNET\tVIOLATIONS")
	for _, r := range Rows(result) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%v\t%s\n",
			r.Device, r.Line, r.Level, r.Score, r.Telnet, r.Violations)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(sum.ViolationList) > 0 {
		fmt.Fprintln(w, "\nChannel compliance violations:")
		for _, v := range sum.ViolationList {
			fmt.Fprintln(w, "  - "+v)
		}
	}
	if sum.Compliant {
		fmt.Fprintln(w, "\nResult: COMPLIANT")
	} else {
		fmt.Fprintln(w, "\nResult: NOT COMPLIANT")
	}
	return nil
}

// Rows flattens every finding, worst first, then by device and line so
// repeated exports of the same run are byte-identical.
func Rows(result *audit.Result) []Row {
	var rows []Row
	for _, dev := range result.Reports {
		for _, f := range dev.Findings {
			rows = append(rows, Row{
				Device:     dev.Device.Name,
				Line:       f.Line.String(),
				Level:      f.Level.String(),
				Score:      f.Score,
				Telnet:     f.Telnet,
				Violations: strings.Join(f.Violations, "; "),
				Status:     dev.Status,
			})
		}
	}
	order := func(level string) int { return -models.MapRiskLevel(level).Weight() }
	sort.SliceStable(rows, func(i, j int) bool {
		if order(rows[i].Level) != order(rows[j].Level) {
			return order(rows[i].Level) < order(rows[j].Level)
		}
		if rows[i].Device != rows[j].Device {
			return rows[i].Device < rows[j].Device
		}
		return rows[i].Line < rows[j].Line
	})
	return rows
}
