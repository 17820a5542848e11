// Package session manages interactive CLI sessions: long-lived
// borrowed connections with a strict state machine, bounded command
// history, per-user caps, and an idle reaper so abandoned sessions
// never pin pool slots.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/fleetwire-net/fleetwire/pkg/pool"
	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// State is a session's lifecycle position.
type State string

const (
	StateCreated    State = "created"
	StateConnecting State = "connecting"
	StateReady      State = "ready"
	StateExecuting  State = "executing"
	StateClosed     State = "closed"
	StateErrored    State = "errored"
)

// HistoryEntry records one executed command.
type HistoryEntry struct {
	Command string    `json:"command"`
	At      time.Time `json:"at"`
	OK      bool      `json:"ok"`
}

// Session is one user's interactive connection to one device. All
// state transitions go through the manager; Session itself only
// guards its own fields.
type Session struct {
	ID       string
	DeviceID string
	UserID   string

	mu         sync.Mutex
	state      State
	conn       *pool.PooledConn
	history    []HistoryEntry
	histLimit  int
	createdAt  time.Time
	lastActive time.Time
}

func newSession(deviceID, userID string, histLimit int) *Session {
	now := time.Now()
	return &Session{
		ID:         newSessionID(),
		DeviceID:   deviceID,
		UserID:     userID,
		state:      StateCreated,
		histLimit:  histLimit,
		createdAt:  now,
		lastActive: now,
	}
}

func newSessionID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; a broken
		// entropy source is not something to limp past.
		panic("session id: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the bounded command history, oldest
// first.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.history...)
}

// IdleFor reports how long the session has been without activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// transition moves Ready -> Executing, failing when the session is in
// any other state. This is what rejects concurrent executes on one
// session.
func (s *Session) transition(from, to State) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return s.state, false
	}
	s.state = to
	s.lastActive = time.Now()
	return from, true
}

func (s *Session) record(command string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, HistoryEntry{Command: command, At: time.Now(), OK: ok})
	if len(s.history) > s.histLimit {
		s.history = s.history[len(s.history)-s.histLimit:]
	}
	s.lastActive = time.Now()
}

// exec runs a command on the session's connection.
func (s *Session) exec(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return "", util.NewStateError(s.ID, string(s.State()), string(StateReady))
	}
	return conn.Exec(ctx, command)
}

// Info is a read-only session snapshot for listings.
type Info struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	UserID     string    `json:"user_id"`
	State      State     `json:"state"`
	Commands   int       `json:"commands"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.ID,
		DeviceID:   s.DeviceID,
		UserID:     s.UserID,
		State:      s.state,
		Commands:   len(s.history),
		CreatedAt:  s.createdAt,
		LastActive: s.lastActive,
	}
}
