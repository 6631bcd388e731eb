package output

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/pkg/openrgb"
)

// maxReply bounds the body of a reply read from the server.
const maxReply = 1 << 20

// OpenRGBTransport keeps a session with an OpenRGB SDK server and updates
// one controller's LEDs per frame. A dropped session is redialled to the
// address resolved at activation. With openrgb_name set, the controller is
// looked up by name on every connect instead of using openrgb_id.
type OpenRGBTransport struct {
	cfg          config.DeviceConfig
	log          *logger.Log
	tlsConfig    *tls.Config
	now          func() time.Time
	dialTimeout  time.Duration
	writeTimeout time.Duration

	active bool
	addr   string // resolved ip:port
	conn   net.Conn
	retry  time.Time
	index  uint32 // controller receiving updates
}

// NewOpenRGB creates an OpenRGB transport.
func NewOpenRGB(cfg config.DeviceConfig, log logger.Logger) (*OpenRGBTransport, error) {
	if err := cfg.Validate(config.TypeOpenRGB); err != nil {
		return nil, err
	}
	t := &OpenRGBTransport{
		cfg:          cfg,
		log:          log.With(logger.Fields{"module": "output", "protocol": "openrgb", "device": cfg.Name}),
		now:          time.Now,
		dialTimeout:  DefaultDialTimeout,
		writeTimeout: DefaultWriteTimeout,
		index:        uint32(cfg.OpenRGBID),
	}
	if cfg.TLS {
		t.tlsConfig = &tls.Config{ServerName: cfg.IPAddress, MinVersion: tls.VersionTLS12}
	}
	return t, nil
}

func (t *OpenRGBTransport) Activate(ctx context.Context) error {
	if t.active {
		return nil
	}
	ip, err := resolveIPv4(ctx, t.cfg.IPAddress)
	if err != nil {
		return fmt.Errorf("openrgb %s: %w", t.cfg.IPAddress, err)
	}
	t.addr = net.JoinHostPort(ip.String(), strconv.Itoa(t.cfg.Port))
	if err := t.connect(ctx); err != nil {
		return err
	}
	t.active = true
	return nil
}

// connect dials the server and names this client.
func (t *OpenRGBTransport) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if t.tlsConfig != nil {
		d := tls.Dialer{Config: t.tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", t.addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", t.addr)
	}
	if err != nil {
		t.retry = t.now().Add(RedialInterval)
		return fmt.Errorf("openrgb %s: %w", t.addr, err)
	}

	t.conn = conn
	if err := t.write(openrgb.BuildSetClientName(t.cfg.OpenRGBClientName)); err != nil {
		return err
	}
	if t.cfg.OpenRGBName != "" {
		if err := t.lookup(t.cfg.OpenRGBName); err != nil {
			return err
		}
	}
	t.log.Debugf("connected to %s as %q, controller %d", t.addr, t.cfg.OpenRGBClientName, t.index)
	return nil
}

// lookup finds the index of the controller called name. The session is
// dropped when no controller matches.
func (t *OpenRGBTransport) lookup(name string) error {
	body, err := t.request(openrgb.BuildRequestControllerCount(), openrgb.PacketRequestControllerCount)
	if err != nil {
		return err
	}
	count, err := openrgb.ParseControllerCount(body)
	if err != nil {
		t.drop()
		return fmt.Errorf("openrgb %s: %w", t.addr, err)
	}
	for i := uint32(0); i < count; i++ {
		body, err := t.request(openrgb.BuildRequestControllerData(i), openrgb.PacketRequestControllerData)
		if err != nil {
			return err
		}
		got, err := openrgb.ParseControllerName(body)
		if err != nil {
			t.drop()
			return fmt.Errorf("openrgb %s: controller %d: %w", t.addr, i, err)
		}
		if got == name {
			t.index = i
			return nil
		}
	}
	t.drop()
	return fmt.Errorf("openrgb %s: no controller named %q among %d", t.addr, name, count)
}

// request sends a query and returns the body of its reply. Unrelated
// packets, such as device list notifications, are skipped.
func (t *OpenRGBTransport) request(packet []byte, packetID uint32) ([]byte, error) {
	if err := t.write(packet); err != nil {
		return nil, err
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		t.drop()
		return nil, err
	}
	head := make([]byte, openrgb.HeaderLen)
	for {
		if _, err := io.ReadFull(t.conn, head); err != nil {
			t.drop()
			return nil, fmt.Errorf("openrgb %s: %w", t.addr, err)
		}
		h, ok := openrgb.ParseHeader(head)
		if !ok || h.Size > maxReply {
			t.drop()
			return nil, fmt.Errorf("openrgb %s: malformed reply", t.addr)
		}
		body := make([]byte, h.Size)
		if _, err := io.ReadFull(t.conn, body); err != nil {
			t.drop()
			return nil, fmt.Errorf("openrgb %s: %w", t.addr, err)
		}
		if h.PacketID == packetID {
			return body, nil
		}
	}
}

// write sends one packet; on failure the session is dropped.
func (t *OpenRGBTransport) write(packet []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		t.drop()
		return err
	}
	if _, err := t.conn.Write(packet); err != nil {
		t.drop()
		return fmt.Errorf("openrgb %s: %w", t.addr, err)
	}
	return nil
}

func (t *OpenRGBTransport) drop() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.retry = t.now().Add(RedialInterval)
}

func (t *OpenRGBTransport) Flush(data []byte, _ bool) error {
	if !t.active {
		return ErrNotActive
	}
	if t.conn == nil {
		if t.now().Before(t.retry) {
			return fmt.Errorf("openrgb %s: waiting to reconnect", t.addr)
		}
		if err := t.connect(context.Background()); err != nil {
			return err
		}
	}
	return t.write(openrgb.BuildUpdateLEDs(t.index, data))
}

func (t *OpenRGBTransport) Deactivate() error {
	t.active = false
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
