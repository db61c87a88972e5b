package audit

import (
	"context"
	"net"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/session"
	"github.com/CosmoTheDev/vtyscan-agent/internal/tunnel"
	"github.com/codeGROOVE-dev/retry"
)

// CommandSession is the authenticated, command-executing surface the
// phase machine drives. *session.Session implements it.
type CommandSession interface {
	Run(ctx context.Context, command string, timeout time.Duration) (string, error)
	Close() error
}

// Connector reaches devices through the shared tunnel. Workers call it
// concurrently, one device each.
type Connector interface {
	// Probe answers the advisory reachability question; it never errors.
	Probe(ctx context.Context, addr string, timeout time.Duration) bool
	// Connect dials and authenticates a session to one device.
	Connect(ctx context.Context, addr string, timeout time.Duration) (CommandSession, error)
}

const (
	dialRetryDelay    = 500 * time.Millisecond
	dialRetryMaxDelay = 5 * time.Second
)

// sshConnector is the production Connector: proxied TCP through the
// jump host, SSH handshake on the device end. The dial is retried a few
// times before the device is declared unreachable; authentication is
// attempted once, since repeating a rejected credential only trips
// lockout counters.
type sshConnector struct {
	tun     *tunnel.Tunnel
	creds   tunnel.Credentials
	retries uint
}

// NewSSHConnector builds a Connector over an open tunnel.
func NewSSHConnector(tun *tunnel.Tunnel, creds tunnel.Credentials, dialRetries int) Connector {
	if dialRetries < 1 {
		dialRetries = 1
	}
	return &sshConnector{tun: tun, creds: creds, retries: uint(dialRetries)}
}

func (c *sshConnector) Probe(ctx context.Context, addr string, timeout time.Duration) bool {
	return session.Probe(ctx, c.tun, addr, timeout)
}

func (c *sshConnector) Connect(ctx context.Context, addr string, timeout time.Duration) (CommandSession, error) {
	var conn net.Conn
	err := retry.Do(func() error {
		var derr error
		conn, derr = c.tun.Dial(ctx, addr, timeout)
		return derr
	}, retry.Attempts(c.retries), retry.Delay(dialRetryDelay), retry.MaxDelay(dialRetryMaxDelay))
	if err != nil {
		return nil, err
	}
	sess, err := session.Authenticate(ctx, conn, addr, c.creds, timeout)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
