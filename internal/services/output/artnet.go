package output

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/internal/services/dmx"
	"github.com/bbernstein/lacylights-pixels/pkg/artnet"
)

// ArtNetTransport sends frames as ArtDMX packets, one per universe of the
// device's sub-device layout.
type ArtNetTransport struct {
	cfg          config.DeviceConfig
	log          *logger.Log
	layout       dmx.ArtNetLayout
	conn         *net.UDPConn
	sequence     byte
	writeTimeout time.Duration
}

// NewArtNet creates an Art-Net transport.
func NewArtNet(cfg config.DeviceConfig, log logger.Logger) (*ArtNetTransport, error) {
	if err := cfg.Validate(config.TypeArtNet); err != nil {
		return nil, err
	}
	layout, err := dmx.PlanArtNet(cfg.PixelCount, cfg.PixelsPerDevice, cfg.DMXStartAddress, cfg.PacketSize,
		cfg.Universe, cfg.PreAmbleBytes(), cfg.PostAmbleBytes())
	if err != nil {
		return nil, err
	}
	return &ArtNetTransport{
		cfg:          cfg,
		log:          log.With(logger.Fields{"module": "output", "protocol": "artnet", "device": cfg.Name}),
		layout:       layout,
		writeTimeout: DefaultWriteTimeout,
	}, nil
}

func (t *ArtNetTransport) Activate(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	conn, err := dialUDP(ctx, t.cfg.IPAddress, t.cfg.Port)
	if err != nil {
		return fmt.Errorf("artnet %s:%d: %w", t.cfg.IPAddress, t.cfg.Port, err)
	}
	t.conn = conn
	t.sequence = 0
	t.log.Debugf("sending universes %d-%d to %s", t.layout.BaseUniverse,
		t.layout.BaseUniverse+t.layout.Universes-1, conn.RemoteAddr())
	return nil
}

// nextSequence advances the frame sequence through 1-255; 0 is reserved
// for receivers that ignore ordering.
func (t *ArtNetTransport) nextSequence() byte {
	t.sequence++
	if t.sequence == 0 {
		t.sequence = 1
	}
	return t.sequence
}

func (t *ArtNetTransport) Flush(data []byte, _ bool) error {
	if t.conn == nil {
		return ErrNotActive
	}
	seq := t.nextSequence()
	universes := t.layout.Packets(data)
	packets := make([][]byte, 0, len(universes))
	for _, u := range universes {
		length := artnet.DataLength(len(u.Data), t.cfg.EvenPacketSize)
		packets = append(packets, artnet.BuildDMXPacket(uint16(u.Universe), u.Data, seq, length))
	}
	return writeAll(t.conn, t.writeTimeout, packets...)
}

func (t *ArtNetTransport) Deactivate() error {
	return closeUDP(&t.conn)
}
