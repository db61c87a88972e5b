package config

// Config is the root configuration structure for vtyscan.
// Serialised to ~/.vtyscan/config.json.
type Config struct {
	Tunnel   TunnelConfig   `mapstructure:"tunnel"   json:"tunnel"`
	Devices  DevicesConfig  `mapstructure:"devices"  json:"devices"`
	Audit    AuditConfig    `mapstructure:"audit"    json:"audit"`
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Archive  ArchiveConfig  `mapstructure:"archive"  json:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"   json:"notify"`
	Gateway  GatewayConfig  `mapstructure:"gateway"  json:"gateway"`
}

// TunnelConfig describes the jump host every device is reached through.
type TunnelConfig struct {
	// Host is the jump host address (host or host:port, default port 22).
	Host string `mapstructure:"host" json:"host"`
	User string `mapstructure:"user" json:"user"`
	// Password is used when KeyFile is empty.
	Password string `mapstructure:"password" json:"password"`
	// KeyFile is a path to an SSH private key (takes precedence over Password).
	KeyFile       string `mapstructure:"key_file"       json:"key_file"`
	KeyPassphrase string `mapstructure:"key_passphrase" json:"key_passphrase"`
	// KnownHostsFile enables host key verification when set.
	KnownHostsFile string `mapstructure:"known_hosts_file" json:"known_hosts_file"`
	// ConnectTimeoutSec bounds the initial jump-host dial (default 15).
	ConnectTimeoutSec int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec"`
}

// DevicesConfig holds the credentials used against every audited device.
type DevicesConfig struct {
	User     string `mapstructure:"user"     json:"user"`
	Password string `mapstructure:"password" json:"password"`
	// LegacyAlgorithms enables old kex/ciphers for aging device firmware.
	LegacyAlgorithms bool `mapstructure:"legacy_algorithms" json:"legacy_algorithms"`
	// Inventory is the default inventory file used when --inventory is omitted.
	Inventory string `mapstructure:"inventory" json:"inventory"`
}

// AuditConfig controls the run engine.
type AuditConfig struct {
	// Workers is the number of devices audited concurrently (default 5).
	Workers int `mapstructure:"workers" json:"workers"`
	// Policy is the default compliance policy file (empty = built-in defaults).
	Policy string `mapstructure:"policy" json:"policy"`
	// CommandTimeoutSec bounds each collection command (default 60).
	CommandTimeoutSec int `mapstructure:"command_timeout_sec" json:"command_timeout_sec"`
	// DialTimeoutSec bounds each per-device dial through the tunnel (default 15).
	DialTimeoutSec int `mapstructure:"dial_timeout_sec" json:"dial_timeout_sec"`
	// SettleDelaySec is the pause before bulk collection; low-end CLIs
	// drop output when commands arrive back to back (default 2).
	SettleDelaySec int `mapstructure:"settle_delay_sec" json:"settle_delay_sec"`
	// DialRetries is how many times a device dial is retried before the
	// device is declared unreachable (default 3).
	DialRetries int `mapstructure:"dial_retries" json:"dial_retries"`
}

// DatabaseConfig controls the evidence store backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// ArchiveConfig controls the git-backed raw configuration archive.
type ArchiveConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Path is the archive repository directory (created on first run).
	Path string `mapstructure:"path" json:"path"`
	// Author/Email stamp the archive commits.
	Author string `mapstructure:"author" json:"author"`
	Email  string `mapstructure:"email"  json:"email"`
}

// NotifyConfig selects channels and filters for run notifications.
type NotifyConfig struct {
	// MinSeverity filters finding notifications: critical|high|medium|low.
	MinSeverity string `mapstructure:"min_severity" json:"min_severity"`
	// Events lists the event types to send. Empty means the defaults
	// (run_completed, run_failed, critical_finding).
	Events   []string             `mapstructure:"events"   json:"events"`
	Slack    SlackNotifyConfig    `mapstructure:"slack"    json:"slack"`
	Telegram TelegramNotifyConfig `mapstructure:"telegram" json:"telegram"`
	Email    EmailNotifyConfig    `mapstructure:"email"    json:"email"`
	Webhook  WebhookNotifyConfig  `mapstructure:"webhook"  json:"webhook"`
}

// SlackNotifyConfig configures the Slack incoming-webhook channel.
type SlackNotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" json:"webhook_url"`
}

// TelegramNotifyConfig configures the Telegram bot channel.
type TelegramNotifyConfig struct {
	BotToken string `mapstructure:"bot_token" json:"bot_token"`
	ChatID   string `mapstructure:"chat_id"   json:"chat_id"`
}

// EmailNotifyConfig configures SMTP delivery.
type EmailNotifyConfig struct {
	SMTPHost string   `mapstructure:"smtp_host" json:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port" json:"smtp_port"`
	Username string   `mapstructure:"username"  json:"username"`
	Password string   `mapstructure:"password"  json:"password"`
	From     string   `mapstructure:"from"      json:"from"`
	To       []string `mapstructure:"to"        json:"to"`
}

// WebhookNotifyConfig configures a generic JSON webhook.
type WebhookNotifyConfig struct {
	URL string `mapstructure:"url" json:"url"`
	// Secret enables HMAC-SHA256 signing of the payload; the signature
	// is sent as the X-Vtyscan-Signature header.
	Secret string `mapstructure:"secret" json:"secret"`
}

// GatewayConfig controls the persistent gateway daemon.
type GatewayConfig struct {
	// Port is the localhost HTTP port the gateway listens on (default: 6180).
	Port int `mapstructure:"port" json:"port"`
}
