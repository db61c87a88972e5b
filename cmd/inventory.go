package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/CosmoTheDev/vtyscan-agent/internal/config"
	"github.com/CosmoTheDev/vtyscan-agent/internal/inventory"
	"github.com/spf13/cobra"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Validate and inspect device inventories",
}

var inventoryValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Parse an inventory file and report problems",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveInventoryPath(args)
		if err != nil {
			return err
		}
		devices, err := inventory.Load(path)
		if err != nil {
			return fmt.Errorf("inventory %s: %w", path, err)
		}
		fmt.Printf("%s: OK (%d devices)\n", path, len(devices))
		return nil
	},
}

var inventoryListCmd = &cobra.Command{
	Use:   "list [file]",
	Short: "List the devices in an inventory file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveInventoryPath(args)
		if err != nil {
			return err
		}
		devices, err := inventory.Load(path)
		if err != nil {
			return fmt.Errorf("inventory %s: %w", path, err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tADDRESS\tPLATFORM\tSITE")
		for _, d := range devices {
			platform := d.Platform
			if platform == "" {
				platform = "ios"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Address, platform, d.Site)
		}
		return tw.Flush()
	},
}

func resolveInventoryPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	if cfg.Devices.Inventory == "" {
		return "", fmt.Errorf("no inventory configured (pass a file or run 'vtyscan onboard')")
	}
	return cfg.Devices.Inventory, nil
}

func init() {
	inventoryCmd.AddCommand(inventoryValidateCmd, inventoryListCmd)
}
