package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/internal/tunnel"
	"golang.org/x/crypto/ssh"
)

// promptRe matches an IOS-family CLI prompt sitting at the end of
// output: hostname plus ">" (exec) or "#" (privileged).
var promptRe = regexp.MustCompile(`[\w.@()/:~-]+[>#] ?$`)

// Session is an interactive shell on one device, reached over a stream
// proxied through the jump host. Sessions are single-device and are
// never shared between workers.
type Session struct {
	host   string
	prompt string
	stdin  io.WriteCloser
	out    chan []byte
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	closers []func() error
}

// Authenticate runs the SSH handshake over an already-dialed stream and
// brings the shell to a known state: prompt located, paging disabled.
// It returns *tunnel.AuthError when the device rejects the credentials
// and *tunnel.TimeoutError when no usable prompt appears.
func Authenticate(ctx context.Context, conn net.Conn, addr string, creds tunnel.Credentials, timeout time.Duration) (*Session, error) {
	cfg, err := tunnel.NewClientConfig(creds)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		cfg.Timeout = timeout
		conn.SetDeadline(time.Now().Add(timeout))
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		if isAuthFailure(err) {
			return nil, &tunnel.AuthError{Host: addr, Err: err}
		}
		return nil, &tunnel.UnreachableError{Host: addr, Err: err}
	}
	conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	sh, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, &tunnel.UnreachableError{Host: addr, Err: err}
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	// Wide pty keeps long config lines from wrapping mid-token.
	if err := sh.RequestPty("vt100", 0, 512, modes); err != nil {
		sh.Close()
		client.Close()
		return nil, fmt.Errorf("requesting pty on %s: %w", addr, err)
	}
	stdin, err := sh.StdinPipe()
	if err != nil {
		sh.Close()
		client.Close()
		return nil, fmt.Errorf("stdin pipe on %s: %w", addr, err)
	}
	stdout, err := sh.StdoutPipe()
	if err != nil {
		sh.Close()
		client.Close()
		return nil, fmt.Errorf("stdout pipe on %s: %w", addr, err)
	}
	if err := sh.Shell(); err != nil {
		sh.Close()
		client.Close()
		return nil, &tunnel.UnreachableError{Host: addr, Err: err}
	}

	s := newSession(addr, stdin, stdout, sh.Close, client.Close)
	if err := s.handshake(ctx, timeout); err != nil {
		s.Close()
		return nil, err
	}
	slog.Debug("Device session ready", "device", addr, "prompt", s.prompt)
	return s, nil
}

// newSession wires a shell session around raw stdin/stdout streams.
// Split out from Authenticate so the expect machinery is testable
// without an SSH endpoint.
func newSession(host string, stdin io.WriteCloser, stdout io.Reader, closers ...func() error) *Session {
	s := &Session{
		host:    host,
		stdin:   stdin,
		out:     make(chan []byte, 16),
		done:    make(chan struct{}),
		closers: closers,
	}
	go s.readLoop(stdout)
	return s
}

func (s *Session) readLoop(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.out <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			close(s.out)
			return
		}
	}
}

// handshake nudges the shell, captures the prompt, and turns paging off.
func (s *Session) handshake(ctx context.Context, timeout time.Duration) error {
	if _, err := s.stdin.Write([]byte("\n")); err != nil {
		return fmt.Errorf("waking shell on %s: %w", s.host, err)
	}
	raw, err := s.readUntil(ctx, timeout, func(buf string) bool {
		return hasPrompt(buf)
	})
	if err != nil {
		return err
	}
	s.prompt = lastLine(raw)

	if _, err := s.Run(ctx, "terminal length 0", timeout); err != nil {
		if tunnel.IsCommand(err) {
			// Paging stays on; very long outputs may stall, but the
			// session itself is usable.
			slog.Warn("Could not disable paging", "device", s.host, "error", err)
			return nil
		}
		return err
	}
	return nil
}

// Host returns the device address the session is attached to.
func (s *Session) Host() string { return s.host }

// Prompt returns the CLI prompt captured during the handshake.
func (s *Session) Prompt() string { return s.prompt }

// Run sends one command and collects output until the prompt returns.
// The raw text is returned unmodified apart from envelope stripping
// (command echo, trailing prompt, CR normalisation). A device error
// banner yields *tunnel.CommandError alongside whatever text arrived.
func (s *Session) Run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.New("session closed")
	}

	// Unsolicited output (syslog chatter) queued since the previous
	// command would otherwise pollute this one.
	s.drain()

	if _, err := s.stdin.Write([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("sending %q to %s: %w", command, s.host, err)
	}
	raw, err := s.readUntil(ctx, timeout, s.atPrompt)
	if err != nil {
		return "", err
	}
	text := stripEnvelope(raw, command)
	if banner := errorBanner(text); banner != "" {
		return text, &tunnel.CommandError{Host: s.host, Command: command, Output: banner}
	}
	return text, nil
}

// Close shuts the shell down. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	var first error
	for _, fn := range s.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Session) drain() {
	for {
		select {
		case _, ok := <-s.out:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) readUntil(ctx context.Context, timeout time.Duration, stop func(string) bool) (string, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var b strings.Builder
	for {
		if stop(b.String()) {
			return b.String(), nil
		}
		select {
		case chunk, ok := <-s.out:
			if !ok {
				return b.String(), &tunnel.UnreachableError{Host: s.host, Err: errors.New("stream closed")}
			}
			b.Write(chunk)
		case <-timer.C:
			return b.String(), &tunnel.TimeoutError{Host: s.host, Op: "awaiting prompt", Err: context.DeadlineExceeded}
		case <-ctx.Done():
			return b.String(), ctx.Err()
		}
	}
}

// atPrompt reports whether the buffer ends at this session's prompt.
// The captured prompt is matched by its base name so the exec/enable
// marker may differ between commands.
func (s *Session) atPrompt(buf string) bool {
	line := lastLine(buf)
	if line == "" {
		return false
	}
	if line == s.prompt {
		return true
	}
	base := strings.TrimRight(s.prompt, "># ")
	return strings.HasPrefix(line, base) && promptRe.MatchString(line)
}

func hasPrompt(buf string) bool {
	line := lastLine(buf)
	return line != "" && len(line) < 80 && promptRe.MatchString(line)
}

func lastLine(buf string) string {
	buf = strings.ReplaceAll(buf, "\r", "")
	buf = strings.TrimRight(buf, " ")
	if i := strings.LastIndex(buf, "\n"); i >= 0 {
		buf = buf[i+1:]
	}
	return strings.TrimRight(buf, " ")
}

// stripEnvelope removes the echoed command line and the trailing prompt
// from raw shell output, leaving only what the device printed.
func stripEnvelope(raw, command string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	lines := strings.Split(raw, "\n")

	start := 0
	for i, ln := range lines {
		if strings.TrimSpace(ln) == strings.TrimSpace(command) {
			start = i + 1
			break
		}
		if i > 2 {
			break
		}
	}
	end := len(lines)
	for end > start {
		tail := strings.TrimSpace(lines[end-1])
		if tail == "" || promptRe.MatchString(tail) {
			end--
			continue
		}
		break
	}
	return strings.Join(lines[start:end], "\n")
}

// errorBanner returns the device's rejection line, if any. IOS-family
// CLIs flag bad or unauthorized commands with a leading "%".
func errorBanner(text string) string {
	for _, ln := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(ln)
		if strings.HasPrefix(trimmed, "% ") ||
			strings.HasPrefix(trimmed, "%Error") ||
			strings.Contains(trimmed, "Command authorization failed") {
			return trimmed
		}
	}
	return ""
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
