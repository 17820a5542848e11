package util

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the engine's failure taxonomy
var (
	ErrUnsupportedPlatform   = errors.New("unsupported platform")
	ErrUnknownAction         = errors.New("unknown action")
	ErrConnectionFailure     = errors.New("connection failure")
	ErrAuthenticationFailure = errors.New("authentication failure")
	ErrCommandTimeout        = errors.New("command timeout")
	ErrParseFailure          = errors.New("parse failure")
	ErrSessionLimitExceeded  = errors.New("session limit exceeded")
	ErrInvalidSessionState   = errors.New("invalid session state")
	ErrPoolExhausted         = errors.New("connection pool exhausted")
	ErrPoolClosed            = errors.New("connection pool closed")
	ErrSessionNotFound       = errors.New("session not found")
	ErrDeviceNotFound        = errors.New("device not found")
)

// IsRetryable reports whether an error may be retried at the
// connection-acquisition layer. Only connection failures qualify;
// authentication failures and command-level errors never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectionFailure) && !errors.Is(err, ErrAuthenticationFailure)
}

// CommandError wraps a per-device task failure with the device id and a
// coarse failure kind so batch results stay self-describing.
type CommandError struct {
	Device string
	Kind   string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.Device, e.Kind, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError classifies err against the sentinel taxonomy and wraps it.
func NewCommandError(device string, err error) *CommandError {
	kind := "command"
	switch {
	case errors.Is(err, ErrAuthenticationFailure):
		kind = "auth"
	case errors.Is(err, ErrConnectionFailure):
		kind = "connect"
	case errors.Is(err, ErrCommandTimeout):
		kind = "timeout"
	case errors.Is(err, ErrUnknownAction):
		kind = "action"
	}
	return &CommandError{Device: device, Kind: kind, Err: err}
}

// PlatformError reports that no adapter is registered for a platform tag
type PlatformError struct {
	Platform string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("no adapter registered for platform %q", e.Platform)
}

func (e *PlatformError) Unwrap() error {
	return ErrUnsupportedPlatform
}

// NewPlatformError creates an unsupported-platform error
func NewPlatformError(platform string) *PlatformError {
	return &PlatformError{Platform: platform}
}

// ActionError reports an action a vendor adapter does not define
type ActionError struct {
	Platform string
	Action   string
	Detail   string
}

func (e *ActionError) Error() string {
	msg := fmt.Sprintf("adapter %s does not support action %q", e.Platform, e.Action)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ActionError) Unwrap() error {
	return ErrUnknownAction
}

// NewActionError creates an unknown-action error
func NewActionError(platform, action, detail string) *ActionError {
	return &ActionError{Platform: platform, Action: action, Detail: detail}
}

// ConnectError wraps a transport-level failure for one device
type ConnectError struct {
	Device string
	Addr   string
	Auth   bool // true for credential rejection
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Auth {
		return fmt.Sprintf("authentication to %s (%s) failed: %v", e.Device, e.Addr, e.Err)
	}
	return fmt.Sprintf("connecting to %s (%s): %v", e.Device, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	if e.Auth {
		return ErrAuthenticationFailure
	}
	return ErrConnectionFailure
}

// NewConnectError creates a connection-failure error
func NewConnectError(device, addr string, err error) *ConnectError {
	return &ConnectError{Device: device, Addr: addr, Err: err}
}

// NewAuthError creates an authentication-failure error
func NewAuthError(device, addr string, err error) *ConnectError {
	return &ConnectError{Device: device, Addr: addr, Auth: true, Err: err}
}

// TimeoutError reports a command that exceeded its per-call deadline
type TimeoutError struct {
	Device  string
	Command string
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q on %s exceeded %v", e.Command, e.Device, e.Limit)
}

func (e *TimeoutError) Unwrap() error {
	return ErrCommandTimeout
}

// NewTimeoutError creates a command-timeout error
func NewTimeoutError(device, command string, limit time.Duration) *TimeoutError {
	return &TimeoutError{Device: device, Command: command, Limit: limit}
}

// StateError reports a session operation attempted in the wrong state
type StateError struct {
	SessionID string
	State     string
	Wanted    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("session %s is %s, operation requires %s", e.SessionID, e.State, e.Wanted)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidSessionState
}

// NewStateError creates an invalid-session-state error
func NewStateError(sessionID, state, wanted string) *StateError {
	return &StateError{SessionID: sessionID, State: state, Wanted: wanted}
}

// LimitError reports a per-user session cap violation
type LimitError struct {
	UserID string
	Limit  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("user %s already holds %d sessions (limit)", e.UserID, e.Limit)
}

func (e *LimitError) Unwrap() error {
	return ErrSessionLimitExceeded
}

// NewLimitError creates a session-limit error
func NewLimitError(userID string, limit int) *LimitError {
	return &LimitError{UserID: userID, Limit: limit}
}
