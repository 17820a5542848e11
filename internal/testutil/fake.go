// Package testutil provides in-memory fakes for the transport and
// device directory so engine behavior can be tested without network
// devices.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetwire-net/fleetwire/pkg/inventory"
	"github.com/fleetwire-net/fleetwire/pkg/transport"
	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// FakeConn is a scripted transport connection. Responses maps a
// command to its output; unmapped commands echo the command itself.
type FakeConn struct {
	Device    string
	Responses map[string]string
	ExecDelay time.Duration // simulated device latency
	ProbeErr  error         // returned by Probe
	ExecErr   error         // returned by every Exec

	mu       sync.Mutex
	closed   bool
	execLog  []string
	probeCnt int
}

// Exec returns the scripted output for a command.
func (c *FakeConn) Exec(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", fmt.Errorf("connection to %s is closed", c.Device)
	}
	c.execLog = append(c.execLog, command)
	c.mu.Unlock()

	if c.ExecDelay > 0 {
		select {
		case <-time.After(c.ExecDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if c.ExecErr != nil {
		return "", c.ExecErr
	}
	if out, ok := c.Responses[command]; ok {
		return out, nil
	}
	return command + "\n", nil
}

// Probe returns the configured probe error.
func (c *FakeConn) Probe(ctx context.Context) error {
	c.mu.Lock()
	c.probeCnt++
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("connection to %s is closed", c.Device)
	}
	return c.ProbeErr
}

// Close marks the connection closed.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ExecLog returns the commands executed so far.
func (c *FakeConn) ExecLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execLog...)
}

// Probes returns how many times Probe ran.
func (c *FakeConn) Probes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probeCnt
}

// FakeDialer builds FakeConns. FailFor simulates connection-refused
// devices; FailAuthFor simulates credential rejections; FailNext
// injects N transient failures before dials start succeeding (for
// retry tests).
type FakeDialer struct {
	Responses   map[string]string
	ExecDelay   time.Duration
	FailFor     map[string]bool
	FailAuthFor map[string]bool
	DialDelay   time.Duration

	failNext int64
	dials    int64

	mu    sync.Mutex
	conns []*FakeConn
}

// FailNext makes the next n dials fail with a transient error.
func (d *FakeDialer) FailNext(n int) {
	atomic.StoreInt64(&d.failNext, int64(n))
}

// Dials returns the number of Dial calls so far.
func (d *FakeDialer) Dials() int {
	return int(atomic.LoadInt64(&d.dials))
}

// Conns returns every connection this dialer has produced.
func (d *FakeDialer) Conns() []*FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeConn(nil), d.conns...)
}

// OpenConns counts produced connections not yet closed.
func (d *FakeDialer) OpenConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if !c.Closed() {
			n++
		}
	}
	return n
}

// Dial opens a fake connection, honoring the configured failure modes
// and running the target's setup commands like a real dialer would.
func (d *FakeDialer) Dial(ctx context.Context, target transport.Target) (transport.Conn, error) {
	atomic.AddInt64(&d.dials, 1)
	if d.DialDelay > 0 {
		select {
		case <-time.After(d.DialDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.FailAuthFor[target.Device] {
		return nil, util.NewAuthError(target.Device, target.Addr, fmt.Errorf("permission denied"))
	}
	if d.FailFor[target.Device] {
		return nil, util.NewConnectError(target.Device, target.Addr, fmt.Errorf("connection refused"))
	}
	for {
		n := atomic.LoadInt64(&d.failNext)
		if n <= 0 {
			break
		}
		if atomic.CompareAndSwapInt64(&d.failNext, n, n-1) {
			return nil, util.NewConnectError(target.Device, target.Addr, fmt.Errorf("transient failure"))
		}
	}

	conn := &FakeConn{
		Device:    target.Device,
		Responses: d.Responses,
		ExecDelay: d.ExecDelay,
	}
	for _, cmd := range target.SetupCommands {
		if _, err := conn.Exec(ctx, cmd); err != nil {
			conn.Close()
			return nil, err
		}
	}
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

// Directory is an in-memory inventory.Directory.
type Directory struct {
	Entries map[string]inventory.Entry
	order   []string
}

// NewDirectory builds a directory with n generated devices named
// dev-001.. using the given platform.
func NewDirectory(n int, platform string) *Directory {
	d := &Directory{Entries: make(map[string]inventory.Entry, n)}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("dev-%03d", i)
		d.Add(inventory.Entry{
			Device: inventory.Device{
				ID:             id,
				Name:           id,
				Host:           fmt.Sprintf("10.0.%d.%d", i/256, i%256),
				Platform:       platform,
				CredentialRef:  "default",
				PollingEnabled: true,
			},
			Credentials: inventory.Credentials{Username: "ops", Password: "secret"},
		})
	}
	return d
}

// Add inserts an entry.
func (d *Directory) Add(e inventory.Entry) {
	if _, exists := d.Entries[e.Device.ID]; !exists {
		d.order = append(d.order, e.Device.ID)
	}
	d.Entries[e.Device.ID] = e
}

// IDs returns all device ids in insertion order.
func (d *Directory) IDs() []string {
	return append([]string(nil), d.order...)
}

// ListDevices implements inventory.Directory.
func (d *Directory) ListDevices(ctx context.Context, filter inventory.Filter) ([]inventory.Device, error) {
	var out []inventory.Device
	for _, id := range d.order {
		dev := d.Entries[id].Device
		if inventory.MatchesFilter(dev, filter) {
			out = append(out, dev)
		}
	}
	return out, nil
}

// ResolveCredentials implements inventory.Directory.
func (d *Directory) ResolveCredentials(ctx context.Context, deviceID string) (inventory.Credentials, error) {
	e, ok := d.Entries[deviceID]
	if !ok {
		return inventory.Credentials{}, fmt.Errorf("device %s not found", deviceID)
	}
	return e.Credentials, nil
}
