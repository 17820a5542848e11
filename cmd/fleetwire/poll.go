package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetwire-net/fleetwire/pkg/poller"
	"github.com/fleetwire-net/fleetwire/pkg/util"
)

var pollOnce bool

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run the SNMP health poller",
	Long: `Poll monitors every polling-enabled device on the configured
interval, emitting edge-triggered alerts on threshold crossings and
connectivity loss. Runs until interrupted; --once runs a single cycle
and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		collector := &poller.SNMPCollector{
			Community: cfg.Poll.Community,
			Timeout:   time.Duration(cfg.Poll.PollTimeout),
			Retries:   1,
		}
		p := poller.New(builder, collector, sink, cfg.PollerConfig())

		if pollOnce {
			p.RunCycle(cmd.Context())
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		fmt.Printf("polling every %s, ctrl-c to stop\n", time.Duration(cfg.Poll.Interval))
		p.Run(ctx)
		util.Infof("poller stopped")
		return nil
	},
}

func init() {
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "Run one poll cycle and exit")
}
