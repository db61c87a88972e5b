package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
	"github.com/CosmoTheDev/vtyscan-agent/internal/database"
	"github.com/CosmoTheDev/vtyscan-agent/models"
	"github.com/spf13/cobra"
)

var runsLimit int
var runsMinLevel string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded audit runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run: summary, phase trail, and findings",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	runsShowCmd.Flags().StringVar(&runsMinLevel, "min-level", "",
		"only show findings at or above this level (low|medium|high|critical)")
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
}

func openStore(ctx context.Context) (*database.Store, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return database.NewStore(db), func() { db.Close() }, nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := store.Runs(ctx, runsLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No audit runs recorded. Run: vtyscan audit")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tDEVICES\tFINDINGS\tVIOLATIONS\tCOMPLIANT")
	for _, run := range runs {
		findings := "-"
		violations := "-"
		compliant := "-"
		if sum, err := store.Summary(ctx, run.ID); err == nil {
			findings = fmt.Sprintf("C:%d H:%d M:%d L:%d",
				sum.FindingsCritical, sum.FindingsHigh, sum.FindingsMedium, sum.FindingsLow)
			violations = strconv.Itoa(sum.Violations)
			if sum.Compliant {
				compliant = "yes"
			} else {
				compliant = "NO"
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			run.ID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Status,
			run.DeviceCount,
			findings,
			violations,
			compliant,
		)
	}
	return tw.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	runID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q", args[0])
	}

	store, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	run, err := store.Run(ctx, runID)
	if err != nil {
		return fmt.Errorf("run %d: %w", runID, err)
	}

	fmt.Printf("Run %d  status=%s  devices=%d  workers=%d  started=%s\n",
		run.ID, run.Status, run.DeviceCount, run.Workers,
		run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.ErrorMsg != "" {
		fmt.Printf("Error: %s\n", run.ErrorMsg)
	}

	if sum, err := store.Summary(ctx, runID); err == nil {
		fmt.Printf("Devices: %d completed, %d partial, %d unreachable, %d auth failed, %d stopped\n",
			sum.Completed, sum.Partial, sum.Unreachable, sum.AuthFailed, sum.Stopped)
		fmt.Printf("Findings: %d critical, %d high, %d medium, %d low  (violations: %d)\n",
			sum.FindingsCritical, sum.FindingsHigh, sum.FindingsMedium, sum.FindingsLow, sum.Violations)
		if sum.Compliant {
			fmt.Println("Result: COMPLIANT")
		} else {
			fmt.Println("Result: NOT COMPLIANT")
		}
	}
	fmt.Println()

	phases, err := store.Phases(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading phases: %w", err)
	}
	if len(phases) > 0 {
		fmt.Println("Phase trail:")
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DEVICE\t#\tSTAGE\tSTATUS\tDETAIL")
		for _, p := range phases {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
				p.Device, p.Stage, p.StageName, p.Status, p.Detail)
		}
		tw.Flush()
		fmt.Println()
	}

	minLevel := models.RiskUnknown
	if runsMinLevel != "" {
		minLevel = models.MapRiskLevel(strings.ToUpper(runsMinLevel))
		if minLevel == models.RiskUnknown {
			return fmt.Errorf("invalid level %q (use low, medium, high, or critical)", runsMinLevel)
		}
	}
	findings, err := store.Findings(ctx, runID, minLevel)
	if err != nil {
		return fmt.Errorf("loading findings: %w", err)
	}
	if len(findings) == 0 {
		fmt.Println("No findings.")
		return nil
	}

	fmt.Println("Findings:")
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tLINE\tLEVEL\tSCORE\tTELNET\tVIOLATIONS")
	for _, f := range findings {
		telnet := ""
		if f.Telnet {
			telnet = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			f.Device, f.Line, f.Level, f.Score, telnet,
			strings.Join(f.ViolationList(), "; "))
	}
	return tw.Flush()
}
