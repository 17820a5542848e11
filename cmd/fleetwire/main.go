// Fleetwire - multivendor network automation engine
//
// A CLI for running operational commands across a fleet of switches
// (H3C Comware, Huawei VRP, Cisco IOS), with pooled SSH connections,
// interactive device sessions, and a background SNMP health poller.
//
//	fleetwire devices list
//	fleetwire run get_version -d sw-01,sw-02
//	fleetwire session sw-01
//	fleetwire poll
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetwire-net/fleetwire/pkg/adapter"
	"github.com/fleetwire-net/fleetwire/pkg/config"
	"github.com/fleetwire-net/fleetwire/pkg/events"
	"github.com/fleetwire-net/fleetwire/pkg/inventory"
	"github.com/fleetwire-net/fleetwire/pkg/settings"
	"github.com/fleetwire-net/fleetwire/pkg/transport"
	"github.com/fleetwire-net/fleetwire/pkg/util"
)

var (
	// Global flags
	configPath    string
	inventoryPath string
	verbose       bool
	jsonOutput    bool

	// Global state, initialized in PersistentPreRunE
	cfg          *config.Config
	userSettings *settings.Settings
	registry     *adapter.Registry
	directory    inventory.Directory
	builder      *inventory.Builder
	dialer       transport.Dialer
	sink         events.Sink
	sinkClose    func()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "fleetwire",
	Short:         "Multivendor network automation engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `Fleetwire runs operational commands across a multivendor switch
fleet over pooled SSH connections, opens interactive device sessions,
and monitors device health over SNMP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isLocalCommand(cmd) {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			util.SetLogLevel("debug")
		} else if err := util.SetLogLevel(cfg.LogLevel); err != nil {
			return err
		}

		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		// Inventory resolution: flag, then user settings, then config.
		if inventoryPath == "" {
			inventoryPath = userSettings.DefaultInventory
		}
		if inventoryPath == "" {
			inventoryPath = cfg.Inventory
		}
		if inventoryPath == "" {
			return fmt.Errorf("no inventory file: set --inventory or the inventory config key")
		}
		directory, err = inventory.LoadFileDirectory(inventoryPath)
		if err != nil {
			return fmt.Errorf("loading inventory: %w", err)
		}

		registry = adapter.DefaultRegistry()
		builder = inventory.NewBuilder(directory)
		dialer = transport.NewSSHDialer()

		if cfg.Events.RedisAddr != "" {
			redisSink := events.NewRedisSink(cfg.Events.RedisAddr, cfg.Events.RedisPassword,
				cfg.Events.RedisDB, cfg.Events.Channel)
			async := events.NewAsyncPublisher(redisSink, cfg.Events.Buffer)
			sink = async
			sinkClose = func() {
				async.Close()
				redisSink.Close()
			}
		} else {
			sink = events.LogSink{}
			sinkClose = func() {}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if sinkClose != nil {
			sinkClose()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/fleetwire/fleetwire.yaml", "Config file")
	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "I", "", "Device inventory file (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")

	rootCmd.AddCommand(devicesCmd, runCmd, sessionCmd, pollCmd, settingsCmd, versionCmd)
}

// isLocalCommand reports whether a command runs without the engine
// stack (no config, inventory, or transport needed).
func isLocalCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}
