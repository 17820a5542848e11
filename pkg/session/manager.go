package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fleetwire-net/fleetwire/pkg/events"
	"github.com/fleetwire-net/fleetwire/pkg/inventory"
	"github.com/fleetwire-net/fleetwire/pkg/pool"
	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// Config tunes the session manager. Zero values take defaults.
type Config struct {
	PerUserCap     int           // concurrent sessions per user (default 5)
	IdleTimeout    time.Duration // force-close idle sessions after this (default 30m)
	ReapInterval   time.Duration // idle scan period (default 60s)
	HistoryLimit   int           // retained commands per session (default 100)
	CommandTimeout time.Duration // single command deadline (default 30s)
}

func (c Config) withDefaults() Config {
	if c.PerUserCap <= 0 {
		c.PerUserCap = 5
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 100
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 30 * time.Second
	}
	return c
}

// CommandResult is one executed command's outcome.
type CommandResult struct {
	Output  string        `json:"output"`
	Elapsed time.Duration `json:"elapsed"`
}

// ConfigResult reports a configuration push: every line applied in
// order, plus the line that stopped the push when it aborted early.
type ConfigResult struct {
	Applied    []string `json:"applied"`
	FailedLine string   `json:"failed_line,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Chunk is one piece of a streamed command's output. Final marks the
// end of the stream; a Final chunk carries no data.
type Chunk struct {
	Data  string `json:"data,omitempty"`
	Final bool   `json:"final"`
}

const streamChunkSize = 1024

// Manager owns the active-session table.
type Manager struct {
	pool    *pool.Pool
	builder *inventory.Builder
	sink    events.Sink
	cfg     Config

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewManager starts a manager and its idle reaper. The sink may be
// nil.
func NewManager(p *pool.Pool, builder *inventory.Builder, sink events.Sink, cfg Config) *Manager {
	m := &Manager{
		pool:     p,
		builder:  builder,
		sink:     sink,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.reapLoop()
	return m
}

// Create opens a session for a user against a device. It enforces the
// per-user cap before dialing, borrows a pooled connection, and hands
// back a Ready session. A connect failure releases both the slot and
// the cap count.
func (m *Manager) Create(ctx context.Context, deviceID, userID string) (*Session, error) {
	entry, err := m.builder.Lookup(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	s := newSession(deviceID, userID, m.cfg.HistoryLimit)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("session manager is shut down")
	}
	if n := m.countForUserLocked(userID); n >= m.cfg.PerUserCap {
		m.mu.Unlock()
		return nil, util.NewLimitError(userID, m.cfg.PerUserCap)
	}
	// Registered before connecting so a burst of creates cannot
	// overshoot the cap while dials are in flight.
	m.sessions[s.ID] = s
	m.mu.Unlock()

	s.setState(StateConnecting)
	conn, err := m.pool.Acquire(ctx, entry)
	if err != nil {
		s.setState(StateErrored)
		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("session connect to %s: %w", deviceID, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.state = StateReady
	s.lastActive = time.Now()
	s.mu.Unlock()

	util.WithSession(s.ID).WithField("device", deviceID).WithField("user", userID).Info("session opened")
	m.publish(events.TypeSessionOpened, s)
	return s, nil
}

// Execute runs one command on a Ready session. A session that is
// Executing, Closed, or Errored rejects the call; a transport failure
// mid-command is terminal and closes the session.
func (m *Manager) Execute(ctx context.Context, sessionID, command string) (CommandResult, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return CommandResult{}, err
	}
	if state, ok := s.transition(StateReady, StateExecuting); !ok {
		return CommandResult{}, util.NewStateError(sessionID, string(state), string(StateReady))
	}

	started := time.Now()
	cmdCtx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
	output, err := s.exec(cmdCtx, command)
	cancel()

	if err != nil {
		s.record(command, false)
		m.fail(s, command, err)
		return CommandResult{}, err
	}
	s.record(command, true)
	if state, ok := s.transition(StateExecuting, StateReady); !ok {
		// Closed underneath the command; the connection is already
		// torn down.
		return CommandResult{}, util.NewStateError(sessionID, string(state), string(StateExecuting))
	}
	return CommandResult{Output: output, Elapsed: time.Since(started)}, nil
}

// ExecuteStream runs one command and delivers its output to emit in
// fixed-size chunks, always terminating the stream with a Final
// chunk. State discipline matches Execute.
func (m *Manager) ExecuteStream(ctx context.Context, sessionID, command string, emit func(Chunk)) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	if state, ok := s.transition(StateReady, StateExecuting); !ok {
		return util.NewStateError(sessionID, string(state), string(StateReady))
	}

	cmdCtx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
	output, err := s.exec(cmdCtx, command)
	cancel()

	if err != nil {
		s.record(command, false)
		m.fail(s, command, err)
		return err
	}
	s.record(command, true)
	if state, ok := s.transition(StateExecuting, StateReady); !ok {
		return util.NewStateError(sessionID, string(state), string(StateExecuting))
	}

	for len(output) > 0 {
		n := streamChunkSize
		if n > len(output) {
			n = len(output)
		}
		emit(Chunk{Data: output[:n]})
		output = output[n:]
	}
	emit(Chunk{Final: true})
	return nil
}

// SendConfig pushes configuration lines in order, stopping at the
// first failure and reporting which lines were applied. A transport
// failure is terminal for the session, like Execute.
func (m *Manager) SendConfig(ctx context.Context, sessionID string, lines []string) (ConfigResult, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return ConfigResult{}, err
	}
	if state, ok := s.transition(StateReady, StateExecuting); !ok {
		return ConfigResult{}, util.NewStateError(sessionID, string(state), string(StateReady))
	}

	result := ConfigResult{Applied: make([]string, 0, len(lines))}
	for _, line := range lines {
		cmdCtx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
		_, err := s.exec(cmdCtx, line)
		cancel()
		if err != nil {
			s.record(line, false)
			result.FailedLine = line
			result.Error = err.Error()
			m.fail(s, line, err)
			return result, err
		}
		s.record(line, true)
		result.Applied = append(result.Applied, line)
	}
	if state, ok := s.transition(StateExecuting, StateReady); !ok {
		return result, util.NewStateError(sessionID, string(state), string(StateExecuting))
	}
	return result, nil
}

// Close ends a session and returns its connection to the pool.
// Closing an unknown or already-closed session is a no-op.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.release(s, StateClosed)
	util.WithSession(s.ID).Info("session closed")
	m.publish(events.TypeSessionClosed, s)
}

// ListSessions snapshots active sessions, oldest first.
func (m *Manager) ListSessions() []Info {
	m.mu.Lock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.info())
	}
	m.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// Stats summarizes the session table.
type Stats struct {
	Active int            `json:"active"`
	ByUser map[string]int `json:"by_user"`
}

// ManagerStats returns active-session counts overall and per user.
func (m *Manager) ManagerStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{Active: len(m.sessions), ByUser: make(map[string]int)}
	for _, s := range m.sessions {
		st.ByUser[s.UserID]++
	}
	return st
}

// Shutdown closes every session and stops the reaper.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()

	for _, s := range open {
		m.release(s, StateClosed)
	}
}

func (m *Manager) get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, util.ErrSessionNotFound)
	}
	return s, nil
}

func (m *Manager) countForUserLocked(userID string) int {
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// fail handles a terminal mid-command error: the connection is in an
// unknown read state, so it is discarded and the session closed in
// Errored state rather than left ambiguous.
func (m *Manager) fail(s *Session, command string, err error) {
	util.WithSession(s.ID).WithField("device", s.DeviceID).
		Warnf("command %q failed, closing session: %v", command, err)
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = StateErrored
	s.mu.Unlock()
	if conn != nil {
		m.pool.Discard(conn)
	}
	m.publish(events.TypeSessionClosed, s)
}

// release returns the session's connection to the pool and moves the
// session to its final state.
func (m *Manager) release(s *Session, final State) {
	s.mu.Lock()
	conn := s.conn
	executing := s.state == StateExecuting
	s.conn = nil
	s.state = final
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if executing {
		// A command is still in flight on this connection. Pooling it
		// would hand a shared transport to the next borrower, so tear
		// it down; closing also aborts the in-flight read.
		m.pool.Discard(conn)
		return
	}
	m.pool.Release(conn)
}

func (m *Manager) publish(eventType string, s *Session) {
	if m.sink == nil {
		return
	}
	ev := events.New(eventType, s.DeviceID, map[string]interface{}{"user_id": s.UserID})
	ev.SessionID = s.ID
	m.sink.Publish(ev)
}

func (m *Manager) reapLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.reap(time.Now())
		}
	}
}

// reap force-closes sessions idle past the timeout so clients that
// vanish without closing cannot pin pool slots forever.
func (m *Manager) reap(now time.Time) {
	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.IdleFor(now) > m.cfg.IdleTimeout && s.State() != StateExecuting {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		util.WithSession(s.ID).WithField("device", s.DeviceID).Info("reaping idle session")
		m.release(s, StateClosed)
		m.publish(events.TypeSessionClosed, s)
	}
}
