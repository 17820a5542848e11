package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fleetwire-net/fleetwire/internal/testutil"
	"github.com/fleetwire-net/fleetwire/pkg/adapter"
	"github.com/fleetwire-net/fleetwire/pkg/inventory"
	"github.com/fleetwire-net/fleetwire/pkg/util"
)

func testEntry(id string) inventory.Entry {
	return inventory.Entry{
		Device: inventory.Device{
			ID:       id,
			Name:     id,
			Host:     "192.0.2.10",
			Platform: "hp_comware",
		},
		Credentials: inventory.Credentials{Username: "ops", Password: "secret"},
	}
}

func newTestPool(t *testing.T, dialer *testutil.FakeDialer, cfg Config) *Pool {
	t.Helper()
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Hour // keep the sweeper quiet unless the test drives it
	}
	p := New(dialer, adapter.DefaultRegistry(), cfg)
	t.Cleanup(p.Close)
	return p
}

func TestAcquireReleaseLeavesSizeUnchanged(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := newTestPool(t, dialer, Config{PerDeviceCap: 2})
	entry := testEntry("sw-01")

	pc, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := p.DeviceStats("sw-01"); got.InUse != 1 || got.Idle != 0 {
		t.Fatalf("during borrow: stats = %+v", got)
	}
	p.Release(pc)

	got := p.DeviceStats("sw-01")
	if got.InUse != 0 || got.Idle != 1 || got.Cap != 2 {
		t.Fatalf("after release: stats = %+v", got)
	}

	// Second acquire reuses the idle connection rather than dialing.
	pc2, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	p.Release(pc2)
	if dialer.Dials() != 1 {
		t.Fatalf("dials = %d, want 1", dialer.Dials())
	}
}

func TestAcquireRunsVendorSetupCommands(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := newTestPool(t, dialer, Config{})

	pc, err := p.Acquire(context.Background(), testEntry("sw-01"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p.Release(pc)

	conns := dialer.Conns()
	if len(conns) != 1 {
		t.Fatalf("conns = %d, want 1", len(conns))
	}
	log := conns[0].ExecLog()
	if len(log) == 0 || log[0] != "screen-length disable" {
		t.Fatalf("setup commands not run, exec log = %v", log)
	}
}

func TestPerDeviceCapUnderConcurrency(t *testing.T) {
	dialer := &testutil.FakeDialer{ExecDelay: 2 * time.Millisecond}
	const perDevice = 2
	p := newTestPool(t, dialer, Config{PerDeviceCap: perDevice, AcquireTimeout: 5 * time.Second})
	entry := testEntry("sw-01")

	var inFlight, maxInFlight int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pc, err := p.Acquire(context.Background(), entry)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt64(&inFlight, 1)
			for {
				m := atomic.LoadInt64(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt64(&maxInFlight, m, n) {
					break
				}
			}
			if _, err := pc.Exec(context.Background(), "display clock"); err != nil {
				t.Errorf("exec: %v", err)
			}
			atomic.AddInt64(&inFlight, -1)
			p.Release(pc)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&maxInFlight); got > perDevice {
		t.Fatalf("observed %d concurrent borrows, cap is %d", got, perDevice)
	}
	if dialer.Dials() > perDevice {
		t.Fatalf("dialed %d connections, cap is %d", dialer.Dials(), perDevice)
	}
}

func TestAcquireNeverReturnsDeadConnection(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := newTestPool(t, dialer, Config{PerDeviceCap: 1})
	entry := testEntry("sw-01")

	pc, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(pc)

	// Kill the idle connection behind the pool's back. The next acquire
	// must detect it via the probe and dial a replacement.
	first := dialer.Conns()[0]
	first.ProbeErr = errors.New("broken pipe")

	pc2, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire after idle death: %v", err)
	}
	defer p.Release(pc2)

	if !first.Closed() {
		t.Fatal("dead idle connection was not closed")
	}
	if dialer.Dials() != 2 {
		t.Fatalf("dials = %d, want 2 (replacement dialed)", dialer.Dials())
	}
	if pc2.conn == first {
		t.Fatal("acquire returned the dead connection")
	}
}

func TestAcquireExhaustion(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := newTestPool(t, dialer, Config{PerDeviceCap: 1, AcquireTimeout: 20 * time.Millisecond})
	entry := testEntry("sw-01")

	pc, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p.Release(pc)

	_, err = p.Acquire(context.Background(), entry)
	if !errors.Is(err, util.ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
}

func TestAcquireHonorsContextCancel(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := newTestPool(t, dialer, Config{PerDeviceCap: 1, AcquireTimeout: 5 * time.Second})
	entry := testEntry("sw-01")

	pc, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p.Release(pc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Acquire(ctx, entry); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDialFailureReturnsSlot(t *testing.T) {
	dialer := &testutil.FakeDialer{FailFor: map[string]bool{"sw-01": true}}
	p := newTestPool(t, dialer, Config{PerDeviceCap: 1, AcquireTimeout: 50 * time.Millisecond})
	entry := testEntry("sw-01")

	if _, err := p.Acquire(context.Background(), entry); !errors.Is(err, util.ErrConnectionFailure) {
		t.Fatalf("err = %v, want ErrConnectionFailure", err)
	}

	// The failed dial must not leak its slot.
	dialer.FailFor = nil
	pc, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire after dial failure: %v", err)
	}
	p.Release(pc)
}

func TestUnknownPlatformFailsAcquire(t *testing.T) {
	p := newTestPool(t, &testutil.FakeDialer{}, Config{})
	entry := testEntry("sw-01")
	entry.Device.Platform = "wrt54g"

	if _, err := p.Acquire(context.Background(), entry); !errors.Is(err, util.ErrUnsupportedPlatform) {
		t.Fatalf("err = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestDiscardClosesConnection(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := newTestPool(t, dialer, Config{PerDeviceCap: 1})
	entry := testEntry("sw-01")

	pc, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Discard(pc)

	if !dialer.Conns()[0].Closed() {
		t.Fatal("discarded connection left open")
	}
	if got := p.DeviceStats("sw-01"); got.Idle != 0 || got.InUse != 0 {
		t.Fatalf("after discard: stats = %+v", got)
	}

	// Slot is free again.
	pc2, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire after discard: %v", err)
	}
	p.Release(pc2)
}

func TestEvictClosesIdleAndBorrowed(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := newTestPool(t, dialer, Config{PerDeviceCap: 2})
	entry := testEntry("sw-01")

	idle, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	borrowed, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(idle)

	p.Evict("sw-01")

	conns := dialer.Conns()
	if !conns[0].Closed() {
		t.Fatal("idle connection survived eviction")
	}
	if conns[1].Closed() {
		t.Fatal("borrowed connection closed while still in use")
	}

	// A connection from before the eviction is closed on release, not
	// returned to the idle set.
	p.Release(borrowed)
	if !conns[1].Closed() {
		t.Fatal("stale borrowed connection pooled after eviction")
	}
	if got := p.DeviceStats("sw-01"); got.Idle != 0 {
		t.Fatalf("after evict: stats = %+v", got)
	}
}

func TestDoubleReleaseIsNoop(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := newTestPool(t, dialer, Config{PerDeviceCap: 2})
	entry := testEntry("sw-01")

	pc, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(pc)
	p.Release(pc)

	if got := p.DeviceStats("sw-01"); got.Idle != 1 || got.InUse != 0 {
		t.Fatalf("after double release: stats = %+v", got)
	}
}

func TestSweepClosesExpiredIdle(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := newTestPool(t, dialer, Config{PerDeviceCap: 2, IdleTTL: time.Minute})
	entry := testEntry("sw-01")

	pc, err := p.Acquire(context.Background(), entry)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(pc)

	p.sweep(time.Now().Add(2 * time.Minute))

	if !dialer.Conns()[0].Closed() {
		t.Fatal("expired idle connection not closed by sweep")
	}
	if got := p.DeviceStats("sw-01"); got.Idle != 0 {
		t.Fatalf("after sweep: stats = %+v", got)
	}
}

func TestShardsAreIndependent(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := newTestPool(t, dialer, Config{PerDeviceCap: 1, AcquireTimeout: 50 * time.Millisecond})

	a, err := p.Acquire(context.Background(), testEntry("sw-01"))
	if err != nil {
		t.Fatalf("acquire sw-01: %v", err)
	}
	defer p.Release(a)

	// sw-01 is at cap; sw-02 must still get a connection immediately.
	b, err := p.Acquire(context.Background(), testEntry("sw-02"))
	if err != nil {
		t.Fatalf("acquire sw-02 with sw-01 saturated: %v", err)
	}
	p.Release(b)
}

func TestCloseShutsDownIdleConnections(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := New(dialer, adapter.DefaultRegistry(), Config{PerDeviceCap: 2, SweepInterval: time.Hour})
	entries := []inventory.Entry{testEntry("sw-01"), testEntry("sw-02")}

	for _, e := range entries {
		pc, err := p.Acquire(context.Background(), e)
		if err != nil {
			t.Fatalf("acquire %s: %v", e.Device.ID, err)
		}
		p.Release(pc)
	}

	p.Close()

	if n := dialer.OpenConns(); n != 0 {
		t.Fatalf("%d connections left open after Close", n)
	}
	_, err := p.Acquire(context.Background(), entries[0])
	if err == nil {
		t.Fatal("acquire succeeded on a closed pool")
	}
	if !errors.Is(err, util.ErrPoolClosed) {
		t.Fatalf("err = %v, want ErrPoolClosed", err)
	}
}

func TestBorrowedConnSurvivesPoolOfOthers(t *testing.T) {
	dialer := &testutil.FakeDialer{}
	p := newTestPool(t, dialer, Config{PerDeviceCap: 2})

	var pcs []*PooledConn
	for i := 0; i < 2; i++ {
		pc, err := p.Acquire(context.Background(), testEntry("sw-01"))
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		pcs = append(pcs, pc)
	}
	for i, pc := range pcs {
		if _, err := pc.Exec(context.Background(), fmt.Sprintf("display vlan %d", i)); err != nil {
			t.Fatalf("exec on borrow %d: %v", i, err)
		}
		p.Release(pc)
	}
}
