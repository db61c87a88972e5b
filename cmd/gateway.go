package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
	"github.com/CosmoTheDev/vtyscan-agent/internal/database"
	"github.com/CosmoTheDev/vtyscan-agent/internal/gateway"
	"github.com/spf13/cobra"
)

var gatewayPort int
var gatewayLogDir string

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the vtyscan gateway daemon",
	Long: `Starts the vtyscan gateway: a long-running daemon that combines the
audit engine with a REST + SSE control plane.

The gateway exposes a local HTTP API (default: http://127.0.0.1:6180)
so you can:

  • Trigger audit runs and pause, resume, or stop them mid-flight
  • Browse runs, phase trails, findings, and raw device outputs
  • Create cron schedules that trigger audits automatically
  • Stream live events via GET /events (Server-Sent Events)

Example schedules:
  "0 2 * * *"   — every night at 02:00
  "@every 6h"   — every 6 hours
  "@daily"      — once per day at midnight

Unlike 'vtyscan audit' (one-shot), the gateway stays running and lets
you orchestrate audits over time without manual intervention.

Quick API reference:
  GET  /health                         liveness check
  GET  /api/status                     run status snapshot
  POST /api/audit                      trigger a run (body: {"inventory":"..."})
  POST /api/audit/pause                pause at the next stage boundaries
  POST /api/audit/resume               resume a paused run
  POST /api/audit/stop                 stop, keeping partial results
  GET  /api/runs                       list audit runs
  GET  /api/runs/:id                   run detail with summary
  GET  /api/runs/:id/findings          findings (?min_level=high)
  GET  /api/runs/:id/outputs           raw command outputs (?device=...)
  GET  /api/schedules                  list cron schedules
  POST /api/schedules                  create a schedule
  DELETE /api/schedules/:id            delete a schedule
  POST /api/schedules/:id/trigger      run a schedule immediately
  GET  /events                         SSE stream of live events`,
	RunE: runGateway,
}

func init() {
	gatewayCmd.Flags().IntVar(&gatewayPort, "port", 0,
		"HTTP port to listen on (default 6180, overrides config)")
	gatewayCmd.Flags().StringVar(&gatewayLogDir, "log-dir", "logs",
		"directory to write gateway logs for later inspection")
}

func runGateway(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down gateway gracefully...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logFilePath, closeLog, err := setupGatewayFileLogger(gatewayLogDir)
	if err != nil {
		return fmt.Errorf("initialising gateway logger: %w", err)
	}
	defer closeLog()

	if gatewayPort > 0 {
		cfg.Gateway.Port = gatewayPort
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 6180
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Printf("vtyscan gateway starting\n")
	fmt.Printf("  Jump host  : %s\n", cfg.Tunnel.Host)
	fmt.Printf("  Workers    : %d\n", cfg.Audit.Workers)
	fmt.Printf("  API        : http://127.0.0.1:%d\n", cfg.Gateway.Port)
	fmt.Printf("  Events     : http://127.0.0.1:%d/events\n", cfg.Gateway.Port)
	fmt.Printf("  Logs       : %s\n\n", logFilePath)
	fmt.Println("Press Ctrl+C to stop gracefully.")
	fmt.Println("Gateway starts idle; trigger audits via API or cron schedules.")
	fmt.Println()

	slog.Info("Gateway logger initialised", "file", logFilePath)
	gw := gateway.New(cfg, db)
	return gw.Start(ctx)
}

func setupGatewayFileLogger(logDir string) (string, func(), error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir %s: %w", logDir, err)
	}

	ts := time.Now().UTC().Format("20060102-150405")
	runLogPath := filepath.Join(logDir, fmt.Sprintf("gateway-%s.log", ts))
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("opening run log file: %w", err)
	}

	latestPath := filepath.Join(logDir, "gateway.log")
	latestFile, err := os.OpenFile(latestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = runFile.Close()
		return "", nil, fmt.Errorf("opening latest log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, runFile, latestFile), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))
	slog.SetLogLoggerLevel(level)

	cleanup := func() {
		_ = latestFile.Close()
		_ = runFile.Close()
	}
	return runLogPath, cleanup, nil
}
