package output

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/pkg/ddp"
)

// DDPTransport sends frames as DDP packets, chunked at ddp.MaxDataLen bytes.
type DDPTransport struct {
	cfg          config.DeviceConfig
	log          *logger.Log
	conn         *net.UDPConn
	frameCount   uint64
	maxDataLen   int
	writeTimeout time.Duration
}

// NewDDP creates a DDP transport.
func NewDDP(cfg config.DeviceConfig, log logger.Logger) (*DDPTransport, error) {
	if err := cfg.Validate(config.TypeDDP); err != nil {
		return nil, err
	}
	return &DDPTransport{
		cfg:          cfg,
		log:          log.With(logger.Fields{"module": "output", "protocol": "ddp", "device": cfg.Name}),
		maxDataLen:   ddp.MaxDataLen,
		writeTimeout: DefaultWriteTimeout,
	}, nil
}

func (t *DDPTransport) Activate(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	conn, err := dialUDP(ctx, t.cfg.IPAddress, t.cfg.Port)
	if err != nil {
		return fmt.Errorf("ddp %s:%d: %w", t.cfg.IPAddress, t.cfg.Port, err)
	}
	t.conn = conn
	t.frameCount = 0
	t.log.Debugf("sending to %s", conn.RemoteAddr())
	return nil
}

// Flush sends every chunk of the frame in offset order; only the last one
// carries the push flag.
func (t *DDPTransport) Flush(data []byte, _ bool) error {
	if t.conn == nil {
		return ErrNotActive
	}
	packets := ddp.Packets(data, t.frameCount, t.maxDataLen)
	t.frameCount++
	return writeAll(t.conn, t.writeTimeout, packets...)
}

func (t *DDPTransport) Deactivate() error {
	return closeUDP(&t.conn)
}
