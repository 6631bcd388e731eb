// Package output implements the per-protocol transports that put assembled
// frames on the wire. A transport owns exactly one device's handle and is
// only ever driven by that device's loop.
package output

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

// ErrNotActive is returned by Flush before Activate or after Deactivate.
var ErrNotActive = errors.New("transport not active")

const (
	// DefaultWriteTimeout bounds one send so a wedged destination turns into
	// a transient failure instead of stalling the device loop.
	DefaultWriteTimeout = 100 * time.Millisecond
	// DefaultDialTimeout bounds connection setup for stream transports.
	DefaultDialTimeout = 2 * time.Second
	// RedialInterval is the minimum time between reconnect attempts of a
	// stream transport that lost its connection.
	RedialInterval = time.Second
)

// Transport sends frames to one device.
type Transport interface {
	// Activate acquires the handle and resolves the destination.
	Activate(ctx context.Context) error
	// Flush sends one frame of RGB bytes. force bypasses traffic suppression.
	Flush(data []byte, force bool) error
	// Deactivate releases the handle. It is safe to call in any state.
	Deactivate() error
}

// dialUDP resolves host once and returns a socket connected to it.
func dialUDP(ctx context.Context, host string, port int) (*net.UDPConn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return c.(*net.UDPConn), nil
}

// resolveIPv4 looks host up once, preferring IPv4.
func resolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no IPv4 address", Name: host}
	}
	return ips[0], nil
}

// writeAll sends packets on a connected socket under one write deadline.
func writeAll(conn *net.UDPConn, timeout time.Duration, packets ...[]byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	for _, p := range packets {
		if _, err := conn.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func closeUDP(conn **net.UDPConn) error {
	if *conn == nil {
		return nil
	}
	err := (*conn).Close()
	*conn = nil
	return err
}
