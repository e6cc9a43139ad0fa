package socket

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"

	"github.com/lxzan/gws"
)

// dial opens the TCP (and TLS for wss) transport with ctx, then runs the
// opening handshake over it. Cancelling ctx aborts any step, the handshake
// included.
func dial(ctx context.Context, handler gws.Event, option *gws.ClientOption) (*gws.Conn, error) {
	u, err := url.Parse(option.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	port := u.Port()
	switch {
	case port != "":
	case u.Scheme == "wss":
		port = "443"
	case u.Scheme == "ws":
		port = "80"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return nil, err
	}

	if u.Scheme == "wss" {
		tlsConn := tls.Client(netConn, &tls.Config{ServerName: u.Hostname()})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = netConn.Close()
			return nil, err
		}
		netConn = tlsConn
	}

	stop := context.AfterFunc(ctx, func() { _ = netConn.Close() })
	socket, _, err := gws.NewClientFromConn(handler, option, netConn)
	if !stop() {
		// The handshake may have won the race; the transport is closed anyway.
		return nil, ctx.Err()
	}
	return socket, err
}
