// Package executor fans a single action out to a batch of devices
// with bounded concurrency and partial-failure semantics: one device
// failing never cancels its siblings, and the batch result always
// covers every requested device.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fleetwire-net/fleetwire/pkg/adapter"
	"github.com/fleetwire-net/fleetwire/pkg/events"
	"github.com/fleetwire-net/fleetwire/pkg/inventory"
	"github.com/fleetwire-net/fleetwire/pkg/pool"
	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// Status classifies one device's outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// Request describes one fan-out invocation.
type Request struct {
	Action    string
	Params    adapter.Params
	DeviceIDs []string

	// PerDeviceTimeout bounds each device's whole unit of work
	// (acquire + execute + parse). Zero takes the executor default.
	PerDeviceTimeout time.Duration

	// Concurrency caps the worker count. Zero takes the executor
	// default; the effective count is min(len(DeviceIDs), cap).
	Concurrency int
}

// TaskResult is one device's outcome.
type TaskResult struct {
	DeviceID string              `json:"device_id"`
	Status   Status              `json:"status"`
	Command  string              `json:"command,omitempty"`
	Output   adapter.ParseResult `json:"output,omitempty"`
	Err      error               `json:"-"`
	Error    string              `json:"error,omitempty"`
	Elapsed  time.Duration       `json:"elapsed"`
}

// BatchResult partitions per-device results into success and failure
// maps keyed by device id. Partial failure is the normal case, not an
// error: Run populates both maps and returns.
type BatchResult struct {
	Success map[string]TaskResult `json:"success"`
	Failed  map[string]TaskResult `json:"failed"`
	Elapsed time.Duration         `json:"elapsed"`
}

// Total returns the number of devices covered by the batch.
func (b BatchResult) Total() int {
	return len(b.Success) + len(b.Failed)
}

// TaskFunc is one device's unit of work for RunFunc callers that need
// something other than a single rendered action.
type TaskFunc func(ctx context.Context, entry inventory.Entry, conn *pool.PooledConn) (adapter.ParseResult, error)

// Config tunes executor defaults. Zero values take defaults.
type Config struct {
	Concurrency      int           // worker cap (default 50)
	PerDeviceTimeout time.Duration // per-device deadline (default 30s)
	RetryBackoff     time.Duration // wait before the single acquire retry (default 500ms)
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 50
	}
	if c.PerDeviceTimeout <= 0 {
		c.PerDeviceTimeout = 30 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// Executor runs batch actions against the fleet.
type Executor struct {
	pool     *pool.Pool
	registry *adapter.Registry
	builder  *inventory.Builder
	sink     events.Sink
	cfg      Config
}

// New wires an executor. The sink may be nil; progress events are
// then skipped.
func New(p *pool.Pool, registry *adapter.Registry, builder *inventory.Builder, sink events.Sink, cfg Config) *Executor {
	return &Executor{
		pool:     p,
		registry: registry,
		builder:  builder,
		sink:     sink,
		cfg:      cfg.withDefaults(),
	}
}

// Run resolves the request's device ids and fans the action out. It
// fails outright only when no partial result is meaningful: an
// unresolvable device list or an empty registry. Everything else is
// captured per device in the BatchResult.
func (e *Executor) Run(ctx context.Context, req Request) (BatchResult, error) {
	batch, err := e.builder.BuildFromIDs(ctx, req.DeviceIDs)
	if err != nil {
		return BatchResult{}, fmt.Errorf("building batch for action %s: %w", req.Action, err)
	}
	return e.RunBatch(ctx, batch, req)
}

// RunBatch fans the action out over a pre-built batch.
func (e *Executor) RunBatch(ctx context.Context, batch *inventory.Batch, req Request) (BatchResult, error) {
	task := func(ctx context.Context, entry inventory.Entry, conn *pool.PooledConn) (adapter.ParseResult, error) {
		a, err := e.registry.Resolve(entry.Device.Platform)
		if err != nil {
			return adapter.ParseResult{}, err
		}
		command, err := a.CommandFor(req.Action, req.Params)
		if err != nil {
			return adapter.ParseResult{}, err
		}
		raw, err := conn.Exec(ctx, command)
		if err != nil {
			return adapter.ParseResult{}, err
		}
		return a.Parse(req.Action, raw), nil
	}
	return e.RunFunc(ctx, batch, req, task)
}

// RunFunc fans a custom per-device function out over a batch with the
// request's concurrency and timeout settings. Every entry in the
// batch produces exactly one TaskResult; the call returns only after
// all workers have finished.
func (e *Executor) RunFunc(ctx context.Context, batch *inventory.Batch, req Request, task TaskFunc) (BatchResult, error) {
	started := time.Now()
	result := BatchResult{
		Success: make(map[string]TaskResult, len(batch.Entries)),
		Failed:  make(map[string]TaskResult),
	}
	if len(batch.Entries) == 0 {
		return result, nil
	}

	timeout := req.PerDeviceTimeout
	if timeout <= 0 {
		timeout = e.cfg.PerDeviceTimeout
	}
	workers := req.Concurrency
	if workers <= 0 {
		workers = e.cfg.Concurrency
	}
	if workers > len(batch.Entries) {
		workers = len(batch.Entries)
	}

	jobs := make(chan inventory.Entry)
	results := make(chan TaskResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				results <- e.runDevice(ctx, entry, timeout, task)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, entry := range batch.Entries {
			select {
			case jobs <- entry:
			case <-ctx.Done():
				// Undispatched devices still get a result.
				results <- TaskResult{
					DeviceID: entry.Device.ID,
					Status:   StatusFailed,
					Err:      ctx.Err(),
					Error:    ctx.Err().Error(),
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := 0
	for tr := range results {
		if tr.Status == StatusSuccess {
			result.Success[tr.DeviceID] = tr
		} else {
			result.Failed[tr.DeviceID] = tr
		}
		collected++
		e.publishProgress(req.Action, tr, collected, len(batch.Entries))
		if collected == len(batch.Entries) {
			// All entries accounted for; workers drain the closed jobs
			// channel and exit on their own.
			break
		}
	}

	result.Elapsed = time.Since(started)
	e.publishComplete(req.Action, result)
	util.WithOperation(req.Action).Infof("batch finished: %d ok, %d failed in %s",
		len(result.Success), len(result.Failed), result.Elapsed.Round(time.Millisecond))
	return result, nil
}

// runDevice executes one device's unit of work under its own
// deadline. All failures come back as values.
func (e *Executor) runDevice(ctx context.Context, entry inventory.Entry, timeout time.Duration, task TaskFunc) TaskResult {
	started := time.Now()
	tr := TaskResult{DeviceID: entry.Device.ID}

	devCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := e.acquire(devCtx, entry)
	if err != nil {
		return tr.fail(err, started, timeout)
	}

	output, err := task(devCtx, entry, conn)
	if err != nil {
		// A failure mid-command leaves the connection in an unknown
		// read state; do not pool it.
		e.pool.Discard(conn)
		return tr.fail(err, started, timeout)
	}
	e.pool.Release(conn)

	tr.Status = StatusSuccess
	tr.Output = output
	tr.Elapsed = time.Since(started)
	return tr
}

// acquire borrows a connection, retrying once on a transient
// connection failure. Auth failures and everything else are not
// retried.
func (e *Executor) acquire(ctx context.Context, entry inventory.Entry) (*pool.PooledConn, error) {
	conn, err := e.pool.Acquire(ctx, entry)
	if err == nil || !util.IsRetryable(err) {
		return conn, err
	}

	util.WithDevice(entry.Device.ID).Debugf("transient connect failure, retrying once: %v", err)
	select {
	case <-time.After(e.cfg.RetryBackoff):
	case <-ctx.Done():
		return nil, err
	}
	return e.pool.Acquire(ctx, entry)
}

func (tr TaskResult) fail(err error, started time.Time, timeout time.Duration) TaskResult {
	tr.Elapsed = time.Since(started)
	tr.Err = err
	tr.Error = err.Error()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, util.ErrCommandTimeout) {
		tr.Status = StatusTimeout
		tr.Err = util.NewTimeoutError(tr.DeviceID, "", timeout)
		tr.Error = tr.Err.Error()
	} else {
		tr.Status = StatusFailed
		tr.Err = util.NewCommandError(tr.DeviceID, err)
		tr.Error = tr.Err.Error()
	}
	return tr
}

func (e *Executor) publishProgress(action string, tr TaskResult, done, total int) {
	if e.sink == nil {
		return
	}
	e.sink.Publish(events.New(events.TypeTaskProgress, tr.DeviceID, map[string]interface{}{
		"action":    action,
		"status":    string(tr.Status),
		"completed": done,
		"total":     total,
	}))
}

func (e *Executor) publishComplete(action string, result BatchResult) {
	if e.sink == nil {
		return
	}
	e.sink.Publish(events.New(events.TypeTaskComplete, "", map[string]interface{}{
		"action":  action,
		"success": len(result.Success),
		"failed":  len(result.Failed),
		"elapsed": result.Elapsed.String(),
	}))
}
