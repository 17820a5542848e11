package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fleetwire-net/fleetwire/pkg/cli"
	"github.com/fleetwire-net/fleetwire/pkg/inventory"
)

var (
	filterPlatform string
	filterLocation string
	filterPolling  bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Inventory operations",
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inventory devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := directory.ListDevices(cmd.Context(), inventory.Filter{
			Platform:    filterPlatform,
			Location:    filterLocation,
			PollingOnly: filterPolling,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(devices)
		}
		table := cli.NewTable("ID", "NAME", "HOST", "PLATFORM", "LOCATION", "POLLING")
		for _, d := range devices {
			table.Row(d.ID, d.Name, d.Addr(), d.Platform, d.Location, strconv.FormatBool(d.PollingEnabled))
		}
		table.Flush()
		return nil
	},
}

var devicesActionsCmd = &cobra.Command{
	Use:   "actions [platform]",
	Short: "List supported actions, optionally for one platform",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platforms := registry.Platforms()
		if len(args) == 1 {
			platforms = args[:1]
		}
		for _, platform := range platforms {
			a, err := registry.Resolve(platform)
			if err != nil {
				return err
			}
			fmt.Printf("%s:\n", a.Platform())
			for _, action := range a.SupportedActions() {
				fmt.Printf("  %s\n", action)
			}
		}
		return nil
	},
}

func init() {
	devicesListCmd.Flags().StringVar(&filterPlatform, "platform", "", "Filter by platform")
	devicesListCmd.Flags().StringVar(&filterLocation, "location", "", "Filter by location")
	devicesListCmd.Flags().BoolVar(&filterPolling, "polling", false, "Only polling-enabled devices")
	devicesCmd.AddCommand(devicesListCmd, devicesActionsCmd)
}
