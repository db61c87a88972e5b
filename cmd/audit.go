package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/audit"
	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
	"github.com/CosmoTheDev/vtyscan-agent/internal/database"
	"github.com/CosmoTheDev/vtyscan-agent/internal/events"
	"github.com/CosmoTheDev/vtyscan-agent/internal/gitarchive"
	"github.com/CosmoTheDev/vtyscan-agent/internal/inventory"
	"github.com/CosmoTheDev/vtyscan-agent/internal/policy"
	"github.com/CosmoTheDev/vtyscan-agent/internal/report"
	"github.com/CosmoTheDev/vtyscan-agent/internal/tunnel"
	"github.com/CosmoTheDev/vtyscan-agent/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	auditInventory string
	auditPolicy    string
	auditWorkers   int
	auditOutputFmt string
	auditOutFile   string
	auditDryRun    bool
	auditArchive   bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run a one-shot audit over the device inventory",
	Long: `Opens the jump-host tunnel, walks every inventory device through the
eight audit stages, and prints the resulting risk report.

Each device is processed by one worker: reachability probe, SSH
authentication, line-status query, settle pause, command collection,
config parsing, risk classification, and a final report. Evidence is
written to the database as it is collected, so a failed or interrupted
run still leaves partial results behind.

Press Ctrl+C once to stop gracefully at the next stage boundaries
(partial results are kept); press it again to abort.

Examples:
  vtyscan audit
  vtyscan audit --inventory lab.yaml --workers 10
  vtyscan audit --output json --out run.json
  vtyscan audit --dry-run`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditInventory, "inventory", "",
		"inventory YAML file (overrides config)")
	auditCmd.Flags().StringVar(&auditPolicy, "policy", "",
		"compliance policy YAML file (overrides config)")
	auditCmd.Flags().IntVar(&auditWorkers, "workers", 0,
		"number of parallel device workers (overrides config)")
	auditCmd.Flags().StringVar(&auditOutputFmt, "output", "table",
		"report format: table|json|csv")
	auditCmd.Flags().StringVar(&auditOutFile, "out", "",
		"write the report to a file instead of stdout")
	auditCmd.Flags().BoolVar(&auditDryRun, "dry-run", false,
		"validate inventory and policy without touching any device")
	auditCmd.Flags().BoolVar(&auditArchive, "archive", false,
		"commit run evidence to the git archive even if disabled in config")
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	inventoryPath := auditInventory
	if inventoryPath == "" {
		inventoryPath = cfg.Devices.Inventory
	}
	if inventoryPath == "" {
		return fmt.Errorf("no inventory configured (use --inventory or run 'vtyscan onboard')")
	}
	policyPath := auditPolicy
	if policyPath == "" {
		policyPath = cfg.Audit.Policy
	}
	workers := auditWorkers
	if workers <= 0 {
		workers = cfg.Audit.Workers
	}

	devices, err := inventory.Load(inventoryPath)
	if err != nil {
		return fmt.Errorf("loading inventory: %w", err)
	}
	pol := policy.Default()
	if policyPath != "" {
		if pol, err = policy.Load(policyPath); err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
	}

	if auditDryRun {
		fmt.Printf("Inventory OK: %d devices (%s)\n", len(devices), inventoryPath)
		if policyPath != "" {
			fmt.Printf("Policy OK: %s\n", policyPath)
		} else {
			fmt.Println("Policy: built-in defaults")
		}
		return nil
	}

	if err := ensureTunnelCredentials(cfg); err != nil {
		return err
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	store := database.NewStore(db)

	bus := events.NewBroadcaster()
	coord := audit.NewCoordinator(audit.RunConfig{
		Devices: devices,
		Policy:  pol,
		Workers: workers,
		Options: audit.Options{
			DialTimeout:    cfg.Audit.DialTimeout(),
			CommandTimeout: cfg.Audit.CommandTimeout(),
			SettleDelay:    cfg.Audit.SettleDelay(),
		},
		Inventory: inventoryPath,
		PolicyRef: policyPath,
	}, auditOpener(cfg), store, bus)

	// First Ctrl+C stops at the next stage boundaries; second aborts.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Fprintln(os.Stderr, "\nStopping at the next stage boundaries (partial results kept)...")
		coord.Stop()
		<-sigs
		fmt.Fprintln(os.Stderr, "Aborting.")
		cancel()
	}()

	progressDone := make(chan struct{})
	evtCh, unsubscribe := bus.Subscribe()
	go printProgress(evtCh, progressDone)

	fmt.Printf("Auditing %d devices via %s (workers: %d)\n\n", len(devices), cfg.Tunnel.Host, workers)

	result, err := coord.Run(ctx)
	unsubscribe()
	<-progressDone
	if err != nil {
		return fmt.Errorf("audit run: %w", err)
	}

	out := os.Stdout
	if auditOutFile != "" {
		f, err := os.Create(auditOutFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := report.Write(out, result, auditOutputFmt); err != nil {
		return err
	}
	if auditOutFile != "" {
		fmt.Printf("Report written to %s\n", auditOutFile)
	}

	if cfg.Archive.Enabled || auditArchive {
		archiveResult(ctx, cfg, store, result)
	}
	return nil
}

// auditOpener builds the tunnel-backed connector factory from config.
func auditOpener(cfg *config.Config) audit.ConnectorOpener {
	return func(ctx context.Context) (audit.Connector, func() error, error) {
		tun, err := tunnel.Open(ctx, cfg.Tunnel.Host, tunnel.Credentials{
			User:           cfg.Tunnel.User,
			Password:       cfg.Tunnel.Password,
			KeyFile:        cfg.Tunnel.KeyFile,
			KeyPassphrase:  cfg.Tunnel.KeyPassphrase,
			KnownHostsFile: cfg.Tunnel.KnownHostsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		conn := audit.NewSSHConnector(tun, tunnel.Credentials{
			User:             cfg.Devices.User,
			Password:         cfg.Devices.Password,
			LegacyAlgorithms: cfg.Devices.LegacyAlgorithms,
		}, cfg.Audit.DialRetries)
		return conn, tun.Close, nil
	}
}

// ensureTunnelCredentials prompts for missing passwords when stdin is a
// terminal. Key-based tunnel auth needs no prompt.
func ensureTunnelCredentials(cfg *config.Config) error {
	if cfg.Tunnel.Host == "" {
		return fmt.Errorf("no jump host configured (run 'vtyscan onboard')")
	}
	if cfg.Tunnel.Password == "" && cfg.Tunnel.KeyFile == "" {
		pw, err := promptPassword(fmt.Sprintf("Password for %s@%s: ", cfg.Tunnel.User, cfg.Tunnel.Host))
		if err != nil {
			return err
		}
		cfg.Tunnel.Password = pw
	}
	if cfg.Devices.Password == "" {
		pw, err := promptPassword(fmt.Sprintf("Device password for user %s: ", cfg.Devices.User))
		if err != nil {
			return err
		}
		cfg.Devices.Password = pw
	}
	return nil
}

func promptPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no password configured and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}

// printProgress renders live device events until the channel closes or
// the run completes.
func printProgress(ch <-chan events.Event, done chan<- struct{}) {
	defer close(done)
	// Device reports carry no counter; the total arrives on the run.started
	// event and each report advances the count by one.
	var completed, total int
	for evt := range ch {
		switch evt.Type {
		case events.TypeRunStarted:
			total = evt.Total
		case events.TypeDeviceReport:
			completed++
			marker := "✓"
			if evt.Status != models.DeviceCompleted {
				marker = "✗"
			}
			fmt.Printf("  %s %-24s %s  [%d/%d]\n", marker, evt.Device, evt.Status, completed, total)
		case events.TypeCriticalFinding:
			fmt.Printf("  ! %-24s CRITICAL: %s\n", evt.Device, evt.Detail)
		case events.TypeDeviceStage:
			slog.Debug("Stage finished",
				"device", evt.Device, "stage", evt.Stage, "status", evt.Status)
		case events.TypeRunCompleted, events.TypeRunFailed:
			fmt.Println()
			return
		}
	}
}

// archiveResult commits the run evidence to the git archive.
func archiveResult(ctx context.Context, cfg *config.Config, store *database.Store, result *audit.Result) {
	arch, err := gitarchive.Open(cfg.Archive.Path, cfg.Archive.Author, cfg.Archive.Email)
	if err != nil {
		slog.Warn("Archive unavailable", "path", cfg.Archive.Path, "error", err)
		return
	}
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	var outputs []models.DeviceOutput
	for _, dev := range result.Reports {
		devOutputs, err := store.Outputs(readCtx, result.Run.ID, dev.Device.Name)
		if err != nil {
			slog.Warn("Reading outputs for archive", "device", dev.Device.Name, "error", err)
			continue
		}
		outputs = append(outputs, devOutputs...)
	}
	hash, err := arch.CommitRun(result, outputs)
	if err != nil {
		slog.Warn("Archiving run failed", "run_id", result.Run.ID, "error", err)
		return
	}
	fmt.Printf("Evidence archived: %s (%s)\n", cfg.Archive.Path, hash[:12])
}
