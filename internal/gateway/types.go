package gateway

// Schedule is a persisted cron entry that triggers an audit run.
type Schedule struct {
	ID          int64  `db:"id"          json:"id"`
	Name        string `db:"name"        json:"name"`
	Description string `db:"description" json:"description"`
	// Expr is a cron expression ("0 2 * * *"), "@every 6h", "@hourly", or "@daily".
	Expr string `db:"expr" json:"expr"`
	// Inventory overrides the configured inventory file when non-empty.
	Inventory string `db:"inventory" json:"inventory"`
	// Policy overrides the configured policy file when non-empty.
	Policy string `db:"policy" json:"policy"`
	// Workers overrides audit.workers when > 0.
	Workers   int     `db:"workers"     json:"workers"`
	Enabled   bool    `db:"enabled"     json:"enabled"`
	LastRunAt *string `db:"last_run_at" json:"last_run_at,omitempty"`
	CreatedAt string  `db:"created_at"  json:"created_at"`
	UpdatedAt string  `db:"updated_at"  json:"updated_at"`
}

// SSEEvent is serialised as JSON and pushed over the GET /events SSE stream.
type SSEEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// GatewayStatus is a live snapshot of the daemon and the active run.
type GatewayStatus struct {
	Running       bool   `json:"running"` // an audit run is in flight
	Paused        bool   `json:"paused"`
	RunID         int64  `json:"run_id,omitempty"`
	RunStatus     string `json:"run_status,omitempty"`
	Completed     int    `json:"completed"`
	Total         int    `json:"total"`
	Workers       int    `json:"workers"`
	LastTriggerAt string `json:"last_trigger_at,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
