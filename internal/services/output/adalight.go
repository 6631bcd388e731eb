package output

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/pkg/adalight"
)

// SerialOpener opens a serial device at a baud rate.
type SerialOpener func(name string, baudRate int) (io.WriteCloser, error)

// OpenSerial opens a real serial port, 8N1.
func OpenSerial(name string, baudRate int) (io.WriteCloser, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// AdalightTransport writes Adalight frames to a serial port. A port that
// fails mid-stream is closed and reopened on a later frame.
type AdalightTransport struct {
	cfg    config.DeviceConfig
	log    *logger.Log
	order  adalight.ColorOrder
	open   SerialOpener
	now    func() time.Time
	active bool
	port   io.WriteCloser
	retry  time.Time
}

// NewAdalight creates an Adalight transport.
func NewAdalight(cfg config.DeviceConfig, log logger.Logger) (*AdalightTransport, error) {
	if err := cfg.Validate(config.TypeAdalight); err != nil {
		return nil, err
	}
	order, err := adalight.ParseColorOrder(cfg.ColorOrder)
	if err != nil {
		return nil, err
	}
	return &AdalightTransport{
		cfg:   cfg,
		log:   log.With(logger.Fields{"module": "output", "protocol": "adalight", "device": cfg.Name}),
		order: order,
		open:  OpenSerial,
		now:   time.Now,
	}, nil
}

func (t *AdalightTransport) Activate(_ context.Context) error {
	if t.active {
		return nil
	}
	if err := t.openPort(); err != nil {
		return err
	}
	t.active = true
	t.log.Debugf("opened %s at %d baud", t.cfg.SerialPort, t.cfg.BaudRate)
	return nil
}

func (t *AdalightTransport) openPort() error {
	port, err := t.open(t.cfg.SerialPort, t.cfg.BaudRate)
	if err != nil {
		t.retry = t.now().Add(RedialInterval)
		return fmt.Errorf("serial %s: %w", t.cfg.SerialPort, err)
	}
	t.port = port
	return nil
}

func (t *AdalightTransport) Flush(data []byte, _ bool) error {
	if !t.active {
		return ErrNotActive
	}
	if t.port == nil {
		if t.now().Before(t.retry) {
			return fmt.Errorf("serial %s: waiting to reopen", t.cfg.SerialPort)
		}
		if err := t.openPort(); err != nil {
			return err
		}
	}
	if _, err := t.port.Write(adalight.BuildPacket(data, t.order)); err != nil {
		t.port.Close()
		t.port = nil
		t.retry = t.now().Add(RedialInterval)
		return fmt.Errorf("serial %s: %w", t.cfg.SerialPort, err)
	}
	return nil
}

func (t *AdalightTransport) Deactivate() error {
	t.active = false
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}
