// Package transport owns the protocol connections to devices. The
// engine talks to a Conn; the concrete dialer (SSH today) is selected
// by the pool and can be substituted in tests.
package transport

import (
	"context"
)

// Target identifies one device endpoint plus the credentials and
// post-connect setup commands required to open a usable connection.
// Credentials live here only for the lifetime of a dial and are never
// logged.
type Target struct {
	Device   string // device name for error context
	Addr     string // host:port
	Username string
	Password string
	Enable   string // enable/super password, optional

	// SetupCommands run immediately after the transport opens, before
	// the connection is considered usable (pagination off, etc).
	SetupCommands []string
}

// Conn is one live protocol connection to exactly one device.
type Conn interface {
	// Exec sends a command and returns its output. A canceled context
	// aborts a hung read by tearing down the transport.
	Exec(ctx context.Context, command string) (string, error)

	// Probe is a lightweight liveness check used by the pool before a
	// connection is handed back out.
	Probe(ctx context.Context) error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer opens connections to targets.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Conn, error)
}
