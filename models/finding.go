package models

import (
	"encoding/json"
	"time"
)

// RiskFinding is the classification verdict for one line.
type RiskFinding struct {
	Device     string    `json:"device,omitempty"`
	Line       LineID    `json:"line"`
	Score      int       `json:"score"`
	Level      RiskLevel `json:"level"`
	Telnet     bool      `json:"telnet"`
	Violations []string  `json:"violations,omitempty"`
}

// FindingRecord is the persisted form of a RiskFinding.
type FindingRecord struct {
	ID         int64     `json:"id"         db:"id"`
	RunID      int64     `json:"run_id"     db:"run_id"`
	Device     string    `json:"device"     db:"device"`
	Line       string    `json:"line"       db:"line"`
	Score      int       `json:"score"      db:"score"`
	Level      string    `json:"level"      db:"level"`
	Telnet     bool      `json:"telnet"     db:"telnet"`
	Violations string    `json:"violations" db:"violations"` // JSON array
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// NewFindingRecord flattens a finding for storage.
func NewFindingRecord(runID int64, f RiskFinding) FindingRecord {
	violations := "[]"
	if len(f.Violations) > 0 {
		if raw, err := json.Marshal(f.Violations); err == nil {
			violations = string(raw)
		}
	}
	return FindingRecord{
		RunID:      runID,
		Device:     f.Device,
		Line:       f.Line.String(),
		Score:      f.Score,
		Level:      f.Level.String(),
		Telnet:     f.Telnet,
		Violations: violations,
		CreatedAt:  time.Now().UTC(),
	}
}

// ViolationList decodes the stored JSON violations array.
func (r FindingRecord) ViolationList() []string {
	var out []string
	if err := json.Unmarshal([]byte(r.Violations), &out); err != nil {
		return nil
	}
	return out
}
