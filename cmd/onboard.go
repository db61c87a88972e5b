package cmd

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Interactive setup wizard for vtyscan",
	Long: `Walks you through configuring vtyscan:
  - Jump host (the SSH bastion every device is reached through)
  - Device credentials (TACACS/local account used on the devices)
  - Inventory file and worker count
  - Evidence database (SQLite or MySQL)
  - Git evidence archive and notification channels (optional)

Passwords may be left blank; vtyscan prompts for them at run time
instead of writing them to disk.`,
	RunE: runOnboard,
}

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#14B8A6")).
	MarginBottom(1)

var successStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#10B981"))

var warnStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#F59E0B"))

var dimStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#6B7280"))

func runOnboard(cmd *cobra.Command, args []string) error {
	fmt.Println()
	fmt.Println(headerStyle.Render("  vtyscan — terminal-line security auditor"))
	fmt.Println(dimStyle.Render("  Audits vty, console, aux, and async line exposure over an SSH jump host.\n"))

	// Load existing config or start fresh.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		cfg = &config.Config{}
	}

	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("creating vtyscan directories: %w", err)
	}

	// --- Step 1: Jump host ---
	fmt.Println(headerStyle.Render("  Step 1/6 · Jump Host"))
	fmt.Println(dimStyle.Render("  All device connections are proxied through one SSH bastion."))
	fmt.Println(dimStyle.Render("  Devices themselves are never dialed directly.\n"))

	tunnelHost := cfg.Tunnel.Host
	tunnelUser := cfg.Tunnel.User
	tunnelAuth := "password"
	if cfg.Tunnel.KeyFile != "" {
		tunnelAuth = "key"
	}
	tunnelPassword := cfg.Tunnel.Password
	tunnelKeyFile := cfg.Tunnel.KeyFile
	knownHosts := cfg.Tunnel.KnownHostsFile

	hostForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Jump host address").
				Description("host or host:port (default port 22)").
				Placeholder("bastion.example.net:22").
				Value(&tunnelHost),
			huh.NewInput().
				Title("Jump host username").
				Value(&tunnelUser),
			huh.NewSelect[string]().
				Title("Authentication method").
				Options(
					huh.NewOption("Password (prompted at run time if left blank)", "password"),
					huh.NewOption("Private key file", "key"),
				).
				Value(&tunnelAuth),
		),
	)
	if err := hostForm.Run(); err != nil {
		return err
	}

	if tunnelAuth == "key" {
		keyForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Private key file").
				Placeholder("~/.ssh/id_ed25519").
				Value(&tunnelKeyFile),
		))
		if err := keyForm.Run(); err != nil {
			return err
		}
		tunnelPassword = ""
	} else {
		pwForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Jump host password (leave blank to be prompted per run)").
				EchoMode(huh.EchoModePassword).
				Value(&tunnelPassword),
		))
		if err := pwForm.Run(); err != nil {
			return err
		}
		tunnelKeyFile = ""
	}

	khForm := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("known_hosts file (blank disables host key checking)").
			Placeholder("~/.ssh/known_hosts").
			Value(&knownHosts),
	))
	if err := khForm.Run(); err != nil {
		return err
	}

	cfg.Tunnel.Host = strings.TrimSpace(tunnelHost)
	cfg.Tunnel.User = strings.TrimSpace(tunnelUser)
	cfg.Tunnel.Password = tunnelPassword
	cfg.Tunnel.KeyFile = strings.TrimSpace(tunnelKeyFile)
	cfg.Tunnel.KnownHostsFile = strings.TrimSpace(knownHosts)

	if cfg.Tunnel.KnownHostsFile == "" {
		fmt.Println(warnStyle.Render("  Host key checking disabled — the jump host key will not be verified.\n"))
	}

	// --- Step 2: Device credentials ---
	fmt.Println(headerStyle.Render("\n  Step 2/6 · Device Credentials"))
	fmt.Println(dimStyle.Render("  One account is used on every device (TACACS or local).\n"))

	deviceUser := cfg.Devices.User
	devicePassword := cfg.Devices.Password
	legacyAlgos := cfg.Devices.LegacyAlgorithms

	devForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Device username").
				Value(&deviceUser),
			huh.NewInput().
				Title("Device password (leave blank to be prompted per run)").
				EchoMode(huh.EchoModePassword).
				Value(&devicePassword),
			huh.NewConfirm().
				Title("Enable legacy SSH algorithms?").
				Description("Needed for older IOS devices that only offer ssh-rsa and CBC ciphers.").
				Value(&legacyAlgos),
		),
	)
	if err := devForm.Run(); err != nil {
		return err
	}
	cfg.Devices.User = strings.TrimSpace(deviceUser)
	cfg.Devices.Password = devicePassword
	cfg.Devices.LegacyAlgorithms = legacyAlgos

	// --- Step 3: Inventory and workers ---
	fmt.Println(headerStyle.Render("\n  Step 3/6 · Inventory"))

	inventoryPath := cfg.Devices.Inventory
	workersStr := "5"
	if cfg.Audit.Workers > 0 {
		workersStr = strconv.Itoa(cfg.Audit.Workers)
	}

	invForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Inventory YAML file").
				Description("One entry per device: name, address, optional platform (ios|ios-xe|nxos).").
				Placeholder("~/inventory.yaml").
				Value(&inventoryPath),
			huh.NewInput().
				Title("Parallel device workers").
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 1 || n > 64 {
						return fmt.Errorf("enter a number between 1 and 64")
					}
					return nil
				}).
				Value(&workersStr),
		),
	)
	if err := invForm.Run(); err != nil {
		return err
	}
	cfg.Devices.Inventory = strings.TrimSpace(inventoryPath)
	cfg.Audit.Workers, _ = strconv.Atoi(strings.TrimSpace(workersStr))

	// --- Step 4: Database ---
	fmt.Println(headerStyle.Render("\n  Step 4/6 · Evidence Database"))

	dbDriver := cfg.Database.Driver
	if dbDriver == "" {
		dbDriver = "sqlite"
	}
	dbDSN := cfg.Database.DSN

	dbForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Database backend").
				Options(
					huh.NewOption("SQLite (default, zero setup)", "sqlite"),
					huh.NewOption("MySQL (shared team database)", "mysql"),
				).
				Value(&dbDriver),
		),
	)
	if err := dbForm.Run(); err != nil {
		return err
	}
	if dbDriver == "mysql" {
		dsnForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("MySQL DSN").
				Placeholder("user:pass@tcp(db.example.net:3306)/vtyscan?parseTime=true").
				Value(&dbDSN),
		))
		if err := dsnForm.Run(); err != nil {
			return err
		}
		cfg.Database.DSN = strings.TrimSpace(dbDSN)
	}
	cfg.Database.Driver = dbDriver

	// --- Step 5: Evidence archive ---
	fmt.Println(headerStyle.Render("\n  Step 5/6 · Git Evidence Archive (optional)"))
	fmt.Println(dimStyle.Render("  Each run's report and raw outputs committed to a local git repo.\n"))

	archiveEnabled := cfg.Archive.Enabled
	archForm := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Archive run evidence to git?").
			Value(&archiveEnabled),
	))
	if err := archForm.Run(); err != nil {
		return err
	}
	cfg.Archive.Enabled = archiveEnabled

	// --- Step 6: Notifications ---
	fmt.Println(headerStyle.Render("\n  Step 6/6 · Notifications (optional)"))

	var addNotify bool
	notifyForm := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Configure notification channels?").
			Description("Critical findings and failed runs can be pushed to Slack, Telegram, email, or a signed webhook.").
			Value(&addNotify),
	))
	if err := notifyForm.Run(); err != nil {
		return err
	}

	if addNotify {
		slackURL := cfg.Notify.Slack.WebhookURL
		webhookURL := cfg.Notify.Webhook.URL
		webhookSecret := cfg.Notify.Webhook.Secret
		minSeverity := cfg.Notify.MinSeverity
		if minSeverity == "" {
			minSeverity = "high"
		}

		chanForm := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Slack incoming webhook URL (blank to skip)").
					Placeholder("https://hooks.slack.com/services/...").
					Value(&slackURL),
				huh.NewInput().
					Title("Generic webhook URL (blank to skip)").
					Value(&webhookURL),
				huh.NewInput().
					Title("Webhook HMAC secret").
					EchoMode(huh.EchoModePassword).
					Value(&webhookSecret),
				huh.NewSelect[string]().
					Title("Minimum severity to notify").
					Options(
						huh.NewOption("critical", "critical"),
						huh.NewOption("high", "high"),
						huh.NewOption("medium", "medium"),
						huh.NewOption("low", "low"),
					).
					Value(&minSeverity),
			),
		)
		if err := chanForm.Run(); err != nil {
			return err
		}
		cfg.Notify.Slack.WebhookURL = strings.TrimSpace(slackURL)
		cfg.Notify.Webhook.URL = strings.TrimSpace(webhookURL)
		cfg.Notify.Webhook.Secret = webhookSecret
		cfg.Notify.MinSeverity = minSeverity
	}

	// Save config
	cfgPath, _ := config.ConfigPath(cfgFile)
	if err := config.Save(cfg, cfgPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("  Setup complete!"))
	fmt.Printf("  Config saved to: %s\n\n", dimStyle.Render(cfgPath))

	fmt.Println(dimStyle.Render("  Next steps:"))
	fmt.Println(dimStyle.Render("    vtyscan doctor --probe  — verify config and jump-host reachability"))
	fmt.Println(dimStyle.Render("    vtyscan audit           — run a one-shot audit"))
	fmt.Println(dimStyle.Render("    vtyscan gateway         — start the daemon with REST API"))
	fmt.Println(dimStyle.Render("    vtyscan ui              — launch the terminal dashboard"))
	fmt.Println()

	slog.Debug("Onboarding complete", "config", cfgPath)
	return nil
}
