package output

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/internal/services/dmx"
	"github.com/bbernstein/lacylights-pixels/pkg/e131"
)

// E131Transport sends frames as sACN data packets, unicast to one host or
// multicast to each universe's group.
type E131Transport struct {
	cfg          config.DeviceConfig
	log          *logger.Log
	plan         dmx.UniversePlan
	conn         *net.UDPConn
	writeTimeout time.Duration

	// session state, created on Activate
	opts      e131.Options
	addrs     map[int]*net.UDPAddr
	sequence  map[int]byte
	universes map[int][]byte
}

// NewE131 creates an E1.31 transport.
func NewE131(cfg config.DeviceConfig, log logger.Logger) (*E131Transport, error) {
	if err := cfg.Validate(config.TypeE131); err != nil {
		return nil, err
	}
	plan, err := dmx.PlanUniverses(cfg.Universe, cfg.ChannelOffset, cfg.PixelCount*dmx.ChannelsPerPixel, cfg.UniverseSize)
	if err != nil {
		return nil, err
	}
	return &E131Transport{
		cfg:          cfg,
		log:          log.With(logger.Fields{"module": "output", "protocol": "e131", "device": cfg.Name}),
		plan:         plan,
		writeTimeout: DefaultWriteTimeout,
	}, nil
}

// Plan returns the universe plan of the device.
func (t *E131Transport) Plan() dmx.UniversePlan {
	return t.plan
}

func (t *E131Transport) multicast() bool {
	return t.cfg.IPAddress == config.Multicast
}

func (t *E131Transport) Activate(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	addrs := make(map[int]*net.UDPAddr, t.plan.Universes())
	if t.multicast() {
		for u := t.plan.UniverseStart; u <= t.plan.UniverseEnd; u++ {
			addrs[u] = &net.UDPAddr{IP: e131.MulticastAddr(uint16(u)), Port: t.cfg.Port}
		}
	} else {
		ip, err := resolveIPv4(ctx, t.cfg.IPAddress)
		if err != nil {
			return fmt.Errorf("e131 %s: %w", t.cfg.IPAddress, err)
		}
		dest := &net.UDPAddr{IP: ip, Port: t.cfg.Port}
		for u := t.plan.UniverseStart; u <= t.plan.UniverseEnd; u++ {
			addrs[u] = dest
		}
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("e131 socket: %w", err)
	}

	t.conn = conn
	t.addrs = addrs
	t.sequence = make(map[int]byte, len(addrs))
	t.universes = make(map[int][]byte, len(addrs))
	t.opts = e131.Options{
		CID:        [16]byte(uuid.New()),
		SourceName: t.cfg.Name,
		Priority:   byte(t.cfg.PacketPriority),
	}
	t.log.Debugf("sending universes %d-%d (multicast %v)", t.plan.UniverseStart, t.plan.UniverseEnd, t.multicast())
	return nil
}

// Flush writes the frame into the universe buffers and sends every universe
// the device spans, each with its own sequence number.
func (t *E131Transport) Flush(data []byte, _ bool) error {
	if t.conn == nil {
		return ErrNotActive
	}
	if err := t.plan.Fill(data, t.universes); err != nil {
		return err
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	for _, s := range t.plan.Spans {
		seq := t.sequence[s.Universe]
		t.sequence[s.Universe] = seq + 1
		packet := e131.BuildDataPacket(uint16(s.Universe), t.universes[s.Universe], seq, t.opts)
		if _, err := t.conn.WriteToUDP(packet, t.addrs[s.Universe]); err != nil {
			return err
		}
	}
	return nil
}

func (t *E131Transport) Deactivate() error {
	return closeUDP(&t.conn)
}
