package output

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
)

// UDPTransport sends one raw datagram per frame: optional prefix, RGB bytes
// (each optionally preceded by a one byte pixel index), optional postfix.
type UDPTransport struct {
	cfg          config.DeviceConfig
	log          *logger.Log
	prefix       []byte
	postfix      []byte
	conn         *net.UDPConn
	writeTimeout time.Duration
}

// NewUDP creates a plain UDP transport.
func NewUDP(cfg config.DeviceConfig, log logger.Logger) (*UDPTransport, error) {
	if err := cfg.Validate(config.TypeUDP); err != nil {
		return nil, err
	}
	return &UDPTransport{
		cfg:          cfg,
		log:          log.With(logger.Fields{"module": "output", "protocol": "udp", "device": cfg.Name}),
		prefix:       cfg.PrefixBytes(),
		postfix:      cfg.PostfixBytes(),
		writeTimeout: DefaultWriteTimeout,
	}, nil
}

func (t *UDPTransport) Activate(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	conn, err := dialUDP(ctx, t.cfg.IPAddress, t.cfg.Port)
	if err != nil {
		return fmt.Errorf("udp %s:%d: %w", t.cfg.IPAddress, t.cfg.Port, err)
	}
	t.conn = conn
	t.log.Debugf("sending to %s", conn.RemoteAddr())
	return nil
}

func (t *UDPTransport) Flush(data []byte, _ bool) error {
	if t.conn == nil {
		return ErrNotActive
	}
	return writeAll(t.conn, t.writeTimeout, t.payload(data))
}

func (t *UDPTransport) payload(data []byte) []byte {
	n := len(data) / 3
	size := len(t.prefix) + len(data) + len(t.postfix)
	if t.cfg.IncludeIndexes {
		size += n
	}
	out := make([]byte, 0, size)
	out = append(out, t.prefix...)
	if t.cfg.IncludeIndexes {
		for i := 0; i < n; i++ {
			out = append(out, byte(i))
			out = append(out, data[i*3:i*3+3]...)
		}
	} else {
		out = append(out, data...)
	}
	return append(out, t.postfix...)
}

func (t *UDPTransport) Deactivate() error {
	return closeUDP(&t.conn)
}
