// Package pool owns the live protocol connections to devices. Each
// device gets its own shard with its own lock and its own connection
// cap, so slow or broken devices never serialize traffic to healthy
// ones. Connections are borrowed by exactly one caller at a time and
// probed for liveness before they are handed out again.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetwire-net/fleetwire/pkg/adapter"
	"github.com/fleetwire-net/fleetwire/pkg/inventory"
	"github.com/fleetwire-net/fleetwire/pkg/transport"
	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// Config tunes pool behavior. Zero values take defaults.
type Config struct {
	PerDeviceCap   int           // live connections per device (default 2)
	AcquireTimeout time.Duration // wait for a free slot (default 10s)
	ProbeTimeout   time.Duration // liveness probe deadline (default 3s)
	IdleTTL        time.Duration // close idle connections older than this (default 5m)
	SweepInterval  time.Duration // background sweep period (default 1m)
}

func (c Config) withDefaults() Config {
	if c.PerDeviceCap <= 0 {
		c.PerDeviceCap = 2
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 10 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	return c
}

// PooledConn is one borrowed connection. It belongs to its shard and
// must be returned with Release exactly once.
type PooledConn struct {
	DeviceID string

	conn     transport.Conn
	gen      uint64
	idleAt   time.Time
	released bool
}

// Exec runs a command on the underlying connection.
func (p *PooledConn) Exec(ctx context.Context, command string) (string, error) {
	return p.conn.Exec(ctx, command)
}

// Pool manages per-device connection shards.
type Pool struct {
	dialer   transport.Dialer
	registry *adapter.Registry
	cfg      Config

	mu     sync.Mutex
	shards map[string]*shard
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// shard is the per-device subset of the pool. sem holds one token per
// allowed connection; a caller owns a token for as long as it owns a
// connection. gen invalidates borrowed connections after an Evict.
type shard struct {
	deviceID string
	sem      chan struct{}

	mu   sync.Mutex
	idle []*PooledConn
	gen  uint64
}

// New creates a pool. The adapter registry supplies vendor
// post-connect hooks for new connections.
func New(dialer transport.Dialer, registry *adapter.Registry, cfg Config) *Pool {
	p := &Pool{
		dialer:   dialer,
		registry: registry,
		cfg:      cfg.withDefaults(),
		shards:   make(map[string]*shard),
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.sweepLoop()
	return p
}

func (p *Pool) shardFor(deviceID string) *shard {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.shards[deviceID]
	if !ok {
		s = &shard{
			deviceID: deviceID,
			sem:      make(chan struct{}, p.cfg.PerDeviceCap),
		}
		for i := 0; i < p.cfg.PerDeviceCap; i++ {
			s.sem <- struct{}{}
		}
		p.shards[deviceID] = s
	}
	return s
}

// Acquire borrows a connection for the device, opening a new transport
// if no idle one is usable and the per-device cap allows it. An idle
// connection that fails its liveness probe is closed and replaced
// transparently. Blocks up to AcquireTimeout for a free slot, then
// fails with ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context, entry inventory.Entry) (*PooledConn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("device %s: %w", entry.Device.ID, util.ErrPoolClosed)
	}
	p.mu.Unlock()

	s := p.shardFor(entry.Device.ID)

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()
	select {
	case <-s.sem:
	case <-timer.C:
		return nil, fmt.Errorf("device %s: %w", entry.Device.ID, util.ErrPoolExhausted)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Token held from here on: return it on every failure path.
	for {
		s.mu.Lock()
		var pc *PooledConn
		if n := len(s.idle); n > 0 {
			pc = s.idle[n-1]
			s.idle = s.idle[:n-1]
		}
		gen := s.gen
		s.mu.Unlock()

		if pc == nil {
			conn, err := p.dial(ctx, entry)
			if err != nil {
				s.sem <- struct{}{}
				return nil, err
			}
			return &PooledConn{DeviceID: entry.Device.ID, conn: conn, gen: gen}, nil
		}

		probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
		err := pc.conn.Probe(probeCtx)
		cancel()
		if err == nil {
			pc.released = false
			return pc, nil
		}
		util.WithDevice(entry.Device.ID).Debugf("pooled connection failed probe, replacing: %v", err)
		pc.conn.Close()
		// Loop: try the next idle connection or dial fresh.
	}
}

// dial opens a transport and runs the vendor's post-connect hooks.
func (p *Pool) dial(ctx context.Context, entry inventory.Entry) (transport.Conn, error) {
	a, err := p.registry.Resolve(entry.Device.Platform)
	if err != nil {
		return nil, err
	}
	target := transport.Target{
		Device:        entry.Device.ID,
		Addr:          entry.Device.Addr(),
		Username:      entry.Credentials.Username,
		Password:      entry.Credentials.Password,
		Enable:        entry.Credentials.Enable,
		SetupCommands: a.ConnectCommands(),
	}
	return p.dialer.Dial(ctx, target)
}

// Release returns a borrowed connection to its shard. A connection
// borrowed before an Evict, or returned after the pool closed, is
// discarded instead of pooled. Double release is a no-op.
func (p *Pool) Release(pc *PooledConn) {
	if pc == nil {
		return
	}
	s := p.shardFor(pc.DeviceID)

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	s.mu.Lock()
	if pc.released {
		s.mu.Unlock()
		return
	}
	pc.released = true

	if closed || pc.gen != s.gen {
		s.mu.Unlock()
		pc.conn.Close()
		s.sem <- struct{}{}
		return
	}
	pc.idleAt = time.Now()
	s.idle = append(s.idle, pc)
	s.mu.Unlock()
	s.sem <- struct{}{}
}

// Discard closes a borrowed connection instead of returning it to the
// idle set. Used when the caller knows the connection is broken (a
// command timed out mid-read, for example).
func (p *Pool) Discard(pc *PooledConn) {
	if pc == nil {
		return
	}
	s := p.shardFor(pc.DeviceID)
	s.mu.Lock()
	if pc.released {
		s.mu.Unlock()
		return
	}
	pc.released = true
	s.mu.Unlock()
	pc.conn.Close()
	s.sem <- struct{}{}
}

// Evict forcibly closes every idle connection for a device and marks
// borrowed ones for closure on release. Used on credential rotation or
// persistent device failure.
func (p *Pool) Evict(deviceID string) {
	s := p.shardFor(deviceID)
	s.mu.Lock()
	s.gen++
	idle := s.idle
	s.idle = nil
	s.mu.Unlock()

	for _, pc := range idle {
		pc.conn.Close()
	}
	if len(idle) > 0 {
		util.WithDevice(deviceID).Infof("evicted %d pooled connections", len(idle))
	}
}

// Stats reports pool occupancy for one device.
type Stats struct {
	Idle  int
	InUse int
	Cap   int
}

// DeviceStats returns occupancy for a device's shard.
func (p *Pool) DeviceStats(deviceID string) Stats {
	s := p.shardFor(deviceID)
	s.mu.Lock()
	idle := len(s.idle)
	s.mu.Unlock()
	return Stats{
		Idle:  idle,
		InUse: p.cfg.PerDeviceCap - len(s.sem),
		Cap:   p.cfg.PerDeviceCap,
	}
}

// Close stops the sweep loop and closes all idle connections. Borrowed
// connections are closed as they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	shards := make([]*shard, 0, len(p.shards))
	for _, s := range p.shards {
		shards = append(shards, s)
	}
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()

	for _, s := range shards {
		s.mu.Lock()
		idle := s.idle
		s.idle = nil
		s.mu.Unlock()
		for _, pc := range idle {
			pc.conn.Close()
		}
	}
}

// sweepLoop proactively closes idle connections older than IdleTTL.
// Runs on a fixed interval regardless of request traffic.
func (p *Pool) sweepLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.sweep(time.Now())
		}
	}
}

func (p *Pool) sweep(now time.Time) {
	p.mu.Lock()
	shards := make([]*shard, 0, len(p.shards))
	for _, s := range p.shards {
		shards = append(shards, s)
	}
	p.mu.Unlock()

	for _, s := range shards {
		var expired []*PooledConn
		s.mu.Lock()
		kept := s.idle[:0]
		for _, pc := range s.idle {
			if now.Sub(pc.idleAt) > p.cfg.IdleTTL {
				expired = append(expired, pc)
			} else {
				kept = append(kept, pc)
			}
		}
		s.idle = kept
		s.mu.Unlock()

		for _, pc := range expired {
			pc.conn.Close()
		}
		if len(expired) > 0 {
			util.WithDevice(s.deviceID).Debugf("swept %d idle connections past TTL", len(expired))
		}
	}
}
