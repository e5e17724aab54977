package xmppcore

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Default ports for XMPP client connections.
const (
	// DefaultPort is the standard client-to-server port (STARTTLS upgrade).
	DefaultPort = "5222"

	// DefaultTLSPort is the direct-TLS client-to-server port.
	DefaultTLSPort = "5223"
)

// Conn represents a network connection carrying one XML stream.
type Conn interface {
	net.Conn
}

// Dialer establishes XMPP connections.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (Conn, error)
}

// TCPDialer connects to XMPP servers over plain TCP. The stream is
// expected to upgrade via STARTTLS during feature negotiation.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	var dialer net.Dialer
	if d.Timeout > 0 {
		dialer.Timeout = d.Timeout
	}
	return dialer.DialContext(ctx, "tcp", address)
}

// TLSDialer connects to XMPP servers over direct TLS (the legacy 5223
// style), skipping STARTTLS.
type TLSDialer struct {
	// Config is the TLS configuration.
	Config *tls.Config

	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to the address.
func (d *TLSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{
			Timeout: d.Timeout,
		},
		Config: d.Config,
	}
	return dialer.DialContext(ctx, "tcp", address)
}
