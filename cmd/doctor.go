package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
	"github.com/CosmoTheDev/vtyscan-agent/internal/database"
	"github.com/CosmoTheDev/vtyscan-agent/internal/inventory"
	"github.com/CosmoTheDev/vtyscan-agent/internal/policy"
	"github.com/CosmoTheDev/vtyscan-agent/internal/tunnel"
	"github.com/spf13/cobra"
)

var doctorProbe bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify config, database, inventory, and tunnel health",
	Long: `Checks that the configuration is complete, the database can be
reached, the inventory and policy files parse, and the jump-host
credentials are present.

Use --probe to additionally open a live SSH connection to the jump host.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorProbe, "probe", false,
		"Open a live SSH connection to the jump host")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	allOK := true

	fmt.Println("=== vtyscan doctor ===")
	fmt.Println()

	// Check database
	fmt.Print("Database ................. ")
	db, err := database.New(cfg.Database)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		if err := db.Ping(ctx); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Printf("OK (%s: %s)\n", db.Driver(), cfg.Database.Path)
		}
		db.Close()
	}

	// Check jump host config
	fmt.Print("Jump host ................ ")
	switch {
	case cfg.Tunnel.Host == "":
		fmt.Println("MISSING (run 'vtyscan onboard')")
		allOK = false
	case cfg.Tunnel.User == "":
		fmt.Println("WARN (host set but no user)")
		allOK = false
	case cfg.Tunnel.Password == "" && cfg.Tunnel.KeyFile == "":
		fmt.Printf("OK (%s@%s, password will be prompted)\n", cfg.Tunnel.User, cfg.Tunnel.Host)
	default:
		fmt.Printf("OK (%s@%s)\n", cfg.Tunnel.User, cfg.Tunnel.Host)
	}

	// Check key file if configured
	if cfg.Tunnel.KeyFile != "" {
		fmt.Print("SSH key file ............. ")
		if _, err := os.Stat(cfg.Tunnel.KeyFile); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Printf("OK (%s)\n", cfg.Tunnel.KeyFile)
		}
	}

	// Check known_hosts
	fmt.Print("Host key checking ........ ")
	if cfg.Tunnel.KnownHostsFile == "" {
		fmt.Println("disabled (set tunnel.known_hosts_file to pin the jump host key)")
	} else if _, err := os.Stat(cfg.Tunnel.KnownHostsFile); err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (%s)\n", cfg.Tunnel.KnownHostsFile)
	}

	// Check device credentials
	fmt.Print("Device credentials ....... ")
	if cfg.Devices.User == "" {
		fmt.Println("MISSING (run 'vtyscan onboard')")
		allOK = false
	} else if cfg.Devices.Password == "" {
		fmt.Printf("OK (user %s, password will be prompted)\n", cfg.Devices.User)
	} else {
		fmt.Printf("OK (user %s)\n", cfg.Devices.User)
	}

	// Check inventory
	fmt.Print("Inventory ................ ")
	if cfg.Devices.Inventory == "" {
		fmt.Println("not configured (pass --inventory per run, or run 'vtyscan onboard')")
	} else if devices, err := inventory.Load(cfg.Devices.Inventory); err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (%d devices in %s)\n", len(devices), cfg.Devices.Inventory)
	}

	// Check policy
	fmt.Print("Policy ................... ")
	if cfg.Audit.Policy == "" {
		fmt.Println("built-in defaults")
	} else if _, err := policy.Load(cfg.Audit.Policy); err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (%s)\n", cfg.Audit.Policy)
	}

	// Optional live tunnel probe
	if doctorProbe {
		fmt.Print("Tunnel probe ............. ")
		if cfg.Tunnel.Host == "" {
			fmt.Println("SKIPPED (no jump host)")
		} else {
			probeCfg := *cfg
			if err := ensureTunnelCredentials(&probeCfg); err != nil {
				fmt.Printf("FAIL (%s)\n", err)
				allOK = false
			} else {
				probeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
				tun, err := tunnel.Open(probeCtx, probeCfg.Tunnel.Host, tunnel.Credentials{
					User:           probeCfg.Tunnel.User,
					Password:       probeCfg.Tunnel.Password,
					KeyFile:        probeCfg.Tunnel.KeyFile,
					KeyPassphrase:  probeCfg.Tunnel.KeyPassphrase,
					KnownHostsFile: probeCfg.Tunnel.KnownHostsFile,
				})
				cancel()
				if err != nil {
					fmt.Printf("FAIL (%s)\n", err)
					allOK = false
				} else {
					_ = tun.Close()
					fmt.Printf("OK (connected to %s)\n", probeCfg.Tunnel.Host)
				}
			}
		}
	}

	fmt.Println()
	if allOK {
		fmt.Println(successStyle.Render("All checks passed — vtyscan is ready!"))
	} else {
		fmt.Println(warnStyle.Render("Some checks failed — run 'vtyscan onboard' to fix."))
	}

	return nil
}
