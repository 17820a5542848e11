package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fleetwire-net/fleetwire/pkg/settings"
	"github.com/fleetwire-net/fleetwire/pkg/version"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent CLI preferences",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return err
		}
		fmt.Printf("inventory: %s\nuser: %s\ndevices: %s\n",
			s.DefaultInventory, s.DefaultUser, s.DefaultDevices)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a default (" + strings.Join(settings.Keys(), ", ") + ")",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return err
		}
		if !s.Set(args[0], args[1]) {
			return fmt.Errorf("unknown setting %q, valid keys: %s", args[0], strings.Join(settings.Keys(), ", "))
		}
		return s.Save()
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := &settings.Settings{}
		return s.Save()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("fleetwire", version.Info())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsClearCmd)
}
