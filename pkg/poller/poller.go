// Package poller runs the background SNMP health loop: on a fixed
// schedule it polls every polling-enabled device, compares samples
// against per-metric thresholds, and emits edge-triggered alerts so a
// metric stuck above threshold produces one event per transition
// rather than one per cycle.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/fleetwire-net/fleetwire/pkg/events"
	"github.com/fleetwire-net/fleetwire/pkg/inventory"
	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// Config tunes the poll loop. Zero values take defaults.
type Config struct {
	Interval      time.Duration // cycle period (default 2m)
	CycleDeadline time.Duration // hard per-cycle limit (default 90s)
	PollTimeout   time.Duration // per-device limit (default 10s)
	Concurrency   int           // poll workers (default 20)

	// Thresholds maps metric name to its alert levels. Metrics
	// without a threshold are collected but never alerted on.
	Thresholds map[string]Threshold
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Minute
	}
	if c.CycleDeadline <= 0 {
		c.CycleDeadline = 90 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 20
	}
	if c.Thresholds == nil {
		c.Thresholds = DefaultThresholds()
	}
	return c
}

// DefaultThresholds covers the utilization metrics.
func DefaultThresholds() map[string]Threshold {
	return map[string]Threshold{
		MetricCPU:    {Warning: 80, Critical: 95, Unit: "%"},
		MetricMemory: {Warning: 80, Critical: 95, Unit: "%"},
	}
}

// Poller drives the polling schedule. Its worker pool is its own, so
// heavy interactive load on the executor never starves health
// monitoring.
type Poller struct {
	builder   *inventory.Builder
	collector Collector
	sink      events.Sink
	tracker   *AlertTracker
	cfg       Config

	wg sync.WaitGroup
}

// New wires a poller. The sink may be nil; transitions are then only
// logged.
func New(builder *inventory.Builder, collector Collector, sink events.Sink, cfg Config) *Poller {
	return &Poller{
		builder:   builder,
		collector: collector,
		sink:      sink,
		tracker:   NewAlertTracker(),
		cfg:       cfg.withDefaults(),
	}
}

// Run polls until the context is cancelled. The first cycle starts
// immediately; each subsequent cycle starts on schedule even when the
// previous one has not drained (overlap is allowed, the cycle
// deadline bounds the damage).
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.startCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case <-ticker.C:
			p.startCycle(ctx)
		}
	}
}

func (p *Poller) startCycle(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		cycleCtx, cancel := context.WithTimeout(ctx, p.cfg.CycleDeadline)
		defer cancel()
		p.RunCycle(cycleCtx)
	}()
}

// RunCycle polls every polling-enabled device once. Individual device
// failures are recorded as offline transitions and never abort the
// cycle.
func (p *Poller) RunCycle(ctx context.Context) {
	started := time.Now()
	batch, err := p.builder.BuildFromFilter(ctx, inventory.Filter{PollingOnly: true})
	if err != nil {
		util.WithOperation("poll").Errorf("building poll batch: %v", err)
		return
	}
	if len(batch.Entries) == 0 {
		return
	}

	workers := p.cfg.Concurrency
	if workers > len(batch.Entries) {
		workers = len(batch.Entries)
	}
	jobs := make(chan inventory.Device)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for device := range jobs {
				p.pollDevice(ctx, device)
			}
		}()
	}
	for _, entry := range batch.Entries {
		select {
		case jobs <- entry.Device:
		case <-ctx.Done():
			// Deadline hit; undispatched devices wait for the next
			// cycle.
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()

	util.WithOperation("poll").Debugf("cycle over %d devices finished in %s",
		len(batch.Entries), time.Since(started).Round(time.Millisecond))
}

func (p *Poller) pollDevice(ctx context.Context, device inventory.Device) {
	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	defer cancel()

	samples, err := p.collector.Collect(pollCtx, device)
	if err != nil {
		if p.tracker.SetOffline(device.ID, true) {
			util.WithDevice(device.ID).Warnf("device went offline: %v", err)
			p.publish(events.TypeDeviceOffline, device.ID, map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}
	if p.tracker.SetOffline(device.ID, false) {
		util.WithDevice(device.ID).Info("device back online")
		p.publish(events.TypeAlertResolved, device.ID, map[string]interface{}{
			"metric": "connectivity",
		})
	}

	for _, sample := range samples {
		threshold, ok := p.cfg.Thresholds[sample.Metric]
		if !ok {
			continue
		}
		severity := threshold.Classify(sample.Value)
		changed, previous := p.tracker.Observe(device.ID, sample.Metric, severity)
		if !changed {
			continue
		}
		payload := map[string]interface{}{
			"metric":   sample.Metric,
			"value":    sample.Value,
			"unit":     sample.Unit,
			"severity": severity.String(),
			"previous": previous.String(),
		}
		if severity == SeverityNormal {
			util.WithDevice(device.ID).Infof("%s back to normal (%.1f%s)", sample.Metric, sample.Value, sample.Unit)
			p.publish(events.TypeAlertResolved, device.ID, payload)
		} else {
			util.WithDevice(device.ID).Warnf("%s %s: %.1f%s", sample.Metric, severity, sample.Value, sample.Unit)
			p.publish(events.TypeAlert, device.ID, payload)
		}
	}
}

func (p *Poller) publish(eventType, deviceID string, payload map[string]interface{}) {
	if p.sink == nil {
		return
	}
	p.sink.Publish(events.New(eventType, deviceID, payload))
}
