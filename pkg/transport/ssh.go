package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// SSHDialer opens SSH connections to devices. Sessions are created
// per-exec (stateless), matching how network gear treats exec channels.
type SSHDialer struct {
	// ConnectTimeout bounds the TCP+handshake phase. Zero means 15s.
	ConnectTimeout time.Duration
}

// NewSSHDialer creates an SSH dialer with default timeouts.
func NewSSHDialer() *SSHDialer {
	return &SSHDialer{ConnectTimeout: 15 * time.Second}
}

// Dial opens an SSH connection to the target and runs its setup
// commands. Credential rejection is reported as an authentication
// failure so callers never retry it.
func (d *SSHDialer) Dial(ctx context.Context, target Target) (Conn, error) {
	timeout := d.ConnectTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	config := &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(target.Password),
		},
		// Managed fleet behind an isolated management network; host
		// keys rotate with device replacements too often to pin.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	netConn, err := (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", target.Addr)
	if err != nil {
		return nil, util.NewConnectError(target.Device, target.Addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(netConn, target.Addr, config)
	if err != nil {
		netConn.Close()
		if isAuthError(err) {
			return nil, util.NewAuthError(target.Device, target.Addr, err)
		}
		return nil, util.NewConnectError(target.Device, target.Addr, err)
	}

	c := &sshConn{
		device: target.Device,
		client: ssh.NewClient(clientConn, chans, reqs),
	}

	for _, cmd := range target.SetupCommands {
		if _, err := c.Exec(ctx, cmd); err != nil {
			c.Close()
			return nil, fmt.Errorf("setup command %q on %s: %w", cmd, target.Device, err)
		}
	}

	return c, nil
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "permission denied")
}

// sshConn wraps one ssh.Client as a Conn.
type sshConn struct {
	device string
	client *ssh.Client

	mu     sync.Mutex
	closed bool
}

// Exec runs a command in a fresh SSH session and returns the combined
// output. Cancellation closes the whole client, which aborts any hung
// read; an exec'd Conn whose context fired is dead and must not be
// reused.
func (c *sshConn) Exec(ctx context.Context, command string) (string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", util.NewConnectError(c.device, c.client.RemoteAddr().String(), err)
	}
	defer session.Close()

	type execResult struct {
		output []byte
		err    error
	}
	done := make(chan execResult, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- execResult{out, err}
	}()

	select {
	case <-ctx.Done():
		c.Close()
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return string(res.output), fmt.Errorf("exec %q on %s: %w", command, c.device, res.err)
		}
		return string(res.output), nil
	}
}

// Probe sends a keepalive request over the existing transport.
func (c *sshConn) Probe(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil)
		done <- err
	}()
	select {
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return util.NewConnectError(c.device, c.client.RemoteAddr().String(), err)
		}
		return nil
	}
}

// Close tears down the SSH client. Idempotent.
func (c *sshConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}
