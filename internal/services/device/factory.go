package device

import (
	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/internal/services/output"
)

// TransportFactory builds the transport for a validated device configuration.
// It must not perform I/O; the device activates the transport on its loop.
type TransportFactory func(cfg config.DeviceConfig, log logger.Logger) (output.Transport, error)

func factory[T output.Transport](build func(config.DeviceConfig, logger.Logger) (T, error)) TransportFactory {
	return func(cfg config.DeviceConfig, log logger.Logger) (output.Transport, error) {
		t, err := build(cfg, log)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// DefaultFactories returns the transport constructors for every device type.
func DefaultFactories() map[string]TransportFactory {
	return map[string]TransportFactory{
		config.TypeUDP:         factory(output.NewUDP),
		config.TypeUDPRealtime: factory(output.NewRealtime),
		config.TypeDDP:         factory(output.NewDDP),
		config.TypeArtNet:      factory(output.NewArtNet),
		config.TypeE131:        factory(output.NewE131),
		config.TypeAdalight:    factory(output.NewAdalight),
		config.TypeOpenRGB:     factory(output.NewOpenRGB),
		config.TypeWLED:        newWLED,
	}
}

// newWLED builds the transport a wled device's sync_mode selects.
func newWLED(cfg config.DeviceConfig, log logger.Logger) (output.Transport, error) {
	if err := cfg.Validate(config.TypeWLED); err != nil {
		return nil, err
	}
	deviceType, target, err := cfg.WLEDTarget()
	if err != nil {
		return nil, err
	}
	switch deviceType {
	case config.TypeUDPRealtime:
		return factory(output.NewRealtime)(target, log)
	case config.TypeE131:
		return factory(output.NewE131)(target, log)
	}
	return factory(output.NewDDP)(target, log)
}
