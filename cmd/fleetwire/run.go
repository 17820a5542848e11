package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetwire-net/fleetwire/pkg/adapter"
	"github.com/fleetwire-net/fleetwire/pkg/cli"
	"github.com/fleetwire-net/fleetwire/pkg/executor"
	"github.com/fleetwire-net/fleetwire/pkg/pool"
	"github.com/fleetwire-net/fleetwire/pkg/util"
)

var (
	runDevices     string
	runParams      []string
	runConcurrency int
	runTimeout     time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <action>",
	Short: "Run an action across devices",
	Long: `Run fans one action out to the given devices with bounded
concurrency. Failures are per device: the exit status is non-zero when
any device failed, and the summary shows which.

  fleetwire run get_version -d sw-01,sw-02,sw-03
  fleetwire run find_mac -d core-01 -p mac_address=00:1b:2c:3d:4e:5f`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runDevices == "" {
			runDevices = userSettings.DefaultDevices
		}
		if runDevices == "" {
			return fmt.Errorf("no target devices: use -d id1,id2,...")
		}
		params := adapter.Params{}
		for _, kv := range runParams {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("bad parameter %q, want key=value", kv)
			}
			params[k] = v
		}

		p := pool.New(dialer, registry, cfg.PoolConfig())
		defer p.Close()
		exec := executor.New(p, registry, builder, sink, cfg.ExecutorConfig())

		result, err := exec.Run(cmd.Context(), executor.Request{
			Action:           args[0],
			Params:           params,
			DeviceIDs:        util.SplitCommaSeparated(runDevices),
			Concurrency:      runConcurrency,
			PerDeviceTimeout: runTimeout,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
				return err
			}
		} else {
			printBatch(result)
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d of %d devices failed", len(result.Failed), result.Total())
		}
		return nil
	},
}

func printBatch(result executor.BatchResult) {
	for _, id := range sortedKeys(result.Success) {
		tr := result.Success[id]
		fmt.Printf("=== %s (%s)\n%s\n", cli.Bold(id), tr.Elapsed.Round(time.Millisecond), strings.TrimRight(tr.Output.Raw, "\n"))
	}
	for _, id := range sortedKeys(result.Failed) {
		tr := result.Failed[id]
		fmt.Printf("=== %s %s: %s\n", cli.Bold(id), cli.Status(string(tr.Status)), tr.Error)
	}
	summary := fmt.Sprintf("%d ok, %d failed in %s",
		len(result.Success), len(result.Failed), result.Elapsed.Round(time.Millisecond))
	if len(result.Failed) > 0 {
		fmt.Println("\n" + cli.Yellow(summary))
	} else {
		fmt.Println("\n" + cli.Green(summary))
	}
}

func sortedKeys(m map[string]executor.TaskResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	runCmd.Flags().StringVarP(&runDevices, "devices", "d", "", "Comma-separated device ids")
	runCmd.Flags().StringArrayVarP(&runParams, "param", "p", nil, "Action parameter key=value (repeatable)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Worker cap (default from config)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-device timeout (default from config)")
}
