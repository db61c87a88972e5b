package models

import "time"

// Stage is one of the eight fixed audit phases, in execution order.
type Stage int

const (
	StageReachability Stage = iota + 1
	StageAuthentication
	StageAuthorization
	StageSettle
	StageCollection
	StagePostProcess
	StageRiskAnalysis
	StageReporting
)

// StageCount is the fixed number of phases every device passes through.
const StageCount = 8

func (s Stage) String() string {
	switch s {
	case StageReachability:
		return "reachability"
	case StageAuthentication:
		return "authentication"
	case StageAuthorization:
		return "authorization"
	case StageSettle:
		return "settle"
	case StageCollection:
		return "collection"
	case StagePostProcess:
		return "post-process"
	case StageRiskAnalysis:
		return "risk-analysis"
	case StageReporting:
		return "reporting"
	default:
		return "unknown"
	}
}

// PhaseStatus is the outcome recorded for one stage of one device.
type PhaseStatus string

const (
	PhaseSuccess PhaseStatus = "success"
	PhaseFailed  PhaseStatus = "failed"
	PhaseSkipped PhaseStatus = "skipped"
)

// PhaseResult records the outcome of a single stage for a device.
type PhaseResult struct {
	Stage     Stage       `json:"stage"`
	Status    PhaseStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at"`
}

// PhaseRecord is the persisted form of a PhaseResult.
type PhaseRecord struct {
	ID        int64     `json:"id"         db:"id"`
	RunID     int64     `json:"run_id"     db:"run_id"`
	Device    string    `json:"device"     db:"device"`
	Stage     int       `json:"stage"      db:"stage"`
	StageName string    `json:"stage_name" db:"stage_name"`
	Status    string    `json:"status"     db:"status"`
	Detail    string    `json:"detail"     db:"detail"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
	EndedAt   time.Time `json:"ended_at"   db:"ended_at"`
}

// NewPhaseRecord flattens a phase result for storage.
func NewPhaseRecord(runID int64, device string, p PhaseResult) PhaseRecord {
	return PhaseRecord{
		RunID:     runID,
		Device:    device,
		Stage:     int(p.Stage),
		StageName: p.Stage.String(),
		Status:    string(p.Status),
		Detail:    p.Detail,
		StartedAt: p.StartedAt,
		EndedAt:   p.EndedAt,
	}
}

// RunStatus is the lifecycle state of an audit run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunStopping  RunStatus = "stopping"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// AuditRun tracks one sweep over the inventory.
type AuditRun struct {
	ID          int64      `json:"id"           db:"id"`
	Status      string     `json:"status"       db:"status"` // running|paused|stopping|completed|failed
	Inventory   string     `json:"inventory"    db:"inventory"`
	Policy      string     `json:"policy"       db:"policy"`
	DeviceCount int        `json:"device_count" db:"device_count"`
	Workers     int        `json:"workers"      db:"workers"`
	StartedAt   time.Time  `json:"started_at"   db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	ErrorMsg    string     `json:"error_msg"    db:"error_msg"`
}

// DeviceOutput is one command's raw output, written the moment the
// command returns so evidence survives later failures.
type DeviceOutput struct {
	ID          int64     `json:"id"           db:"id"`
	RunID       int64     `json:"run_id"       db:"run_id"`
	Device      string    `json:"device"       db:"device"`
	Name        string    `json:"name"         db:"name"` // short command key, e.g. "running_config"
	Command     string    `json:"command"      db:"command"`
	Output      string    `json:"output"       db:"output"`
	CollectedAt time.Time `json:"collected_at" db:"collected_at"`
}

// RunSummary aggregates one finished run for reporting. ViolationList
// carries the device-prefixed compliance strings; only its count is
// persisted.
type RunSummary struct {
	ID               int64     `json:"id"                db:"id"`
	RunID            int64     `json:"run_id"            db:"run_id"`
	Devices          int       `json:"devices"           db:"devices"`
	Completed        int       `json:"completed"         db:"completed"`
	Partial          int       `json:"partial"           db:"partial"`
	Unreachable      int       `json:"unreachable"       db:"unreachable"`
	AuthFailed       int       `json:"auth_failed"       db:"auth_failed"`
	Stopped          int       `json:"stopped"           db:"stopped"`
	FindingsCritical int       `json:"findings_critical" db:"findings_critical"`
	FindingsHigh     int       `json:"findings_high"     db:"findings_high"`
	FindingsMedium   int       `json:"findings_medium"   db:"findings_medium"`
	FindingsLow      int       `json:"findings_low"      db:"findings_low"`
	Violations       int       `json:"violations"        db:"violations"`
	Compliant        bool      `json:"compliant"         db:"compliant"`
	DurationMs       int64     `json:"duration_ms"       db:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"        db:"created_at"`

	ViolationList []string `json:"violation_list,omitempty" db:"-"`
}

// CountDevice folds one device report into the summary totals.
func (s *RunSummary) CountDevice(r DeviceReport) {
	s.Devices++
	switch r.Status {
	case DeviceCompleted:
		s.Completed++
	case DevicePartial:
		s.Partial++
	case DeviceUnreachable:
		s.Unreachable++
	case DeviceAuthFailed:
		s.AuthFailed++
	case DeviceStopped:
		s.Stopped++
	}
	for _, f := range r.Findings {
		switch f.Level {
		case RiskCritical:
			s.FindingsCritical++
		case RiskHigh:
			s.FindingsHigh++
		case RiskMedium:
			s.FindingsMedium++
		case RiskLow:
			s.FindingsLow++
		}
	}
	for _, v := range r.Violations {
		s.ViolationList = append(s.ViolationList, r.Device.Name+": "+v)
	}
	s.Violations += len(r.Violations)
	s.Compliant = s.Violations == 0 && s.FindingsCritical == 0 && s.FindingsHigh == 0
}
