package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultDialTimeout = 15 * time.Second

// Credentials authenticate an SSH endpoint, the jump host or a device.
type Credentials struct {
	User             string
	Password         string
	KeyFile          string
	KeyPassphrase    string
	KnownHostsFile   string // empty = accept any host key
	LegacyAlgorithms bool   // enable old kex/ciphers for aging device firmware
}

// Tunnel is the single SSH connection to the jump host. Device streams
// are channels multiplexed over it, so one Tunnel serves every worker
// concurrently.
type Tunnel struct {
	addr   string
	client *ssh.Client

	mu     sync.Mutex
	closed bool
}

// Open establishes the jump-host connection. It returns *AuthError when
// the credentials are rejected and *UnreachableError when the host
// cannot be reached; both are fatal to an audit run. Open does not
// retry; that belongs to the caller.
func Open(ctx context.Context, addr string, creds Credentials) (*Tunnel, error) {
	cfg, err := NewClientConfig(creds)
	if err != nil {
		return nil, err
	}
	addr = withDefaultPort(addr, "22")

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &UnreachableError{Host: addr, Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		raw.SetDeadline(deadline)
	} else {
		raw.SetDeadline(time.Now().Add(defaultDialTimeout))
	}
	conn, chans, reqs, err := ssh.NewClientConn(raw, addr, cfg)
	if err != nil {
		raw.Close()
		if isAuthFailure(err) {
			return nil, &AuthError{Host: addr, Err: err}
		}
		return nil, &UnreachableError{Host: addr, Err: err}
	}
	raw.SetDeadline(time.Time{})

	slog.Info("Tunnel established", "jump_host", addr, "user", creds.User)
	return &Tunnel{addr: addr, client: ssh.NewClient(conn, chans, reqs)}, nil
}

// Addr returns the jump-host address the tunnel is connected to.
func (t *Tunnel) Addr() string { return t.addr }

// Dial opens a proxied TCP stream to a device through the jump host.
// Safe for concurrent use. A failure affects only the device being
// dialed, never the tunnel itself.
func (t *Tunnel) Dial(ctx context.Context, deviceAddr string, timeout time.Duration) (net.Conn, error) {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	addr := withDefaultPort(deviceAddr, "22")

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := t.client.DialContext(dctx, "tcp", addr)
	if err != nil {
		slog.Debug("Device dial failed", "device", addr, "error", err)
		return nil, &UnreachableError{Host: addr, Err: err}
	}
	return conn, nil
}

// Close tears down the SSH transport and every stream running over it.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	slog.Debug("Tunnel closed", "jump_host", t.addr)
	return t.client.Close()
}

// NewClientConfig builds the SSH client configuration shared by the
// jump-host connection and the per-device handshakes.
func NewClientConfig(creds Credentials) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	if creds.KeyFile != "" {
		key, err := os.ReadFile(creds.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		var signer ssh.Signer
		if creds.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(creds.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
		// Network devices frequently negotiate keyboard-interactive
		// instead of plain password auth.
		methods = append(methods, ssh.KeyboardInteractive(
			func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = creds.Password
				}
				return answers, nil
			}))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no authentication method configured")
	}

	hostKeys := ssh.InsecureIgnoreHostKey() //nolint:gosec // device fleets rarely have managed host keys
	if creds.KnownHostsFile != "" {
		cb, err := knownhosts.New(creds.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts: %w", err)
		}
		hostKeys = cb
	}

	cfg := &ssh.ClientConfig{
		User:            creds.User,
		Auth:            methods,
		HostKeyCallback: hostKeys,
		Timeout:         defaultDialTimeout,
	}
	if creds.LegacyAlgorithms {
		cfg.KeyExchanges = append(cfg.KeyExchanges,
			"diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1")
		cfg.Ciphers = append(cfg.Ciphers,
			"aes128-cbc", "3des-cbc", "aes192-cbc", "aes256-cbc")
	}
	return cfg, nil
}

func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "permission denied")
}

func withDefaultPort(addr, port string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, port)
}
