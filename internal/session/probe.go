package session

import (
	"context"
	"net"
	"time"
)

// Dialer opens proxied streams to devices. *tunnel.Tunnel implements it.
type Dialer interface {
	Dial(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error)
}

// Probe answers the advisory reachability question with a plain TCP
// connect through the tunnel. It never returns an error: any failure
// just means "not reachable right now" and must not gate the audit.
func Probe(ctx context.Context, d Dialer, addr string, timeout time.Duration) bool {
	conn, err := d.Dial(ctx, addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
