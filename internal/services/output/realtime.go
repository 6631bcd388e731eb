package output

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/pkg/wled"
)

// RealtimeTransport speaks the WLED realtime UDP protocol family
// (WARLS, DRGB, DRGBW, DNRGB), optionally choosing the format per frame.
type RealtimeTransport struct {
	cfg          config.DeviceConfig
	log          *logger.Log
	format       wled.Format
	timeout      byte
	conn         *net.UDPConn
	writeTimeout time.Duration
	now          func() time.Time

	// session state, reset on Activate
	last     []byte
	lastSent time.Time
	warned   map[wled.Format]bool
}

// NewRealtime creates a realtime UDP transport.
func NewRealtime(cfg config.DeviceConfig, log logger.Logger) (*RealtimeTransport, error) {
	if err := cfg.Validate(config.TypeUDPRealtime); err != nil {
		return nil, err
	}
	format, err := wled.ParseFormat(cfg.UDPPacketType)
	if err != nil {
		return nil, err
	}
	return &RealtimeTransport{
		cfg:          cfg,
		log:          log.With(logger.Fields{"module": "output", "protocol": "udp_realtime", "device": cfg.Name}),
		format:       format,
		timeout:      byte(cfg.Timeout),
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
	}, nil
}

func (t *RealtimeTransport) Activate(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	conn, err := dialUDP(ctx, t.cfg.IPAddress, t.cfg.Port)
	if err != nil {
		return fmt.Errorf("udp realtime %s:%d: %w", t.cfg.IPAddress, t.cfg.Port, err)
	}
	t.conn = conn
	t.last = nil
	t.lastSent = time.Time{}
	t.warned = make(map[wled.Format]bool)
	t.log.Debugf("sending %s to %s", t.format, conn.RemoteAddr())
	return nil
}

// keepAlive is how long an unchanged frame may go unsent: half of the
// receiver's realtime timeout.
func (t *RealtimeTransport) keepAlive() time.Duration {
	secs := t.timeout
	if secs == 0 {
		secs = 1
	}
	return time.Duration(secs) * time.Second / 2
}

// Flush encodes and sends one frame. With minimise_traffic, a frame equal
// to the last one sent is skipped until the keep-alive interval passes.
func (t *RealtimeTransport) Flush(data []byte, force bool) error {
	if t.conn == nil {
		return ErrNotActive
	}
	now := t.now()
	if t.cfg.MinimiseTraffic && !force && t.last != nil && bytes.Equal(data, t.last) &&
		now.Sub(t.lastSent) <= t.keepAlive() {
		return nil
	}

	n := len(data) / 3
	changed := len(wled.ChangedPixels(data, t.last))
	f, fallback := wled.Choose(t.format, n, changed)
	if fallback && !t.warned[t.format] {
		t.warned[t.format] = true
		t.log.Warnf("%s cannot carry %d pixels (max %d), sending %s instead", t.format, n, t.format.MaxPixels(), f)
	}

	if err := writeAll(t.conn, t.writeTimeout, wled.Encode(f, data, t.timeout, t.last)...); err != nil {
		return err
	}
	t.last = append(t.last[:0], data...)
	t.lastSent = now
	return nil
}

func (t *RealtimeTransport) Deactivate() error {
	t.last = nil
	return closeUDP(&t.conn)
}
