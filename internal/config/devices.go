package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/bbernstein/lacylights-pixels/internal/services/dmx"
	"github.com/bbernstein/lacylights-pixels/internal/services/fade"
	"github.com/bbernstein/lacylights-pixels/internal/services/frame"
	"github.com/bbernstein/lacylights-pixels/pkg/adalight"
	"github.com/bbernstein/lacylights-pixels/pkg/ddp"
	"github.com/bbernstein/lacylights-pixels/pkg/e131"
	"github.com/bbernstein/lacylights-pixels/pkg/openrgb"
	"github.com/bbernstein/lacylights-pixels/pkg/wled"
)

// ErrInvalidDevice is returned for device configuration that fails validation.
var ErrInvalidDevice = errors.New("invalid device configuration")

// Device types.
const (
	TypeUDP         = "udp"
	TypeUDPRealtime = "udp_realtime"
	TypeDDP         = "ddp"
	TypeArtNet      = "artnet"
	TypeE131        = "e131"
	TypeAdalight    = "adalight"
	TypeOpenRGB     = "openrgb"
	TypeWLED        = "wled"
)

// WLED sync modes select the protocol a wled device is driven with.
const (
	SyncDDP  = "DDP"
	SyncUDP  = "UDP"
	SyncE131 = "E131"
)

// Multicast is the ip_address value that selects sACN multicast.
const Multicast = "multicast"

// maxDatagram is the largest UDP payload over IPv4.
const maxDatagram = 65507

// DeviceConfig is the complete configuration of one device. A device holds
// it as an immutable snapshot; reconfiguration replaces it wholesale.
type DeviceConfig struct {
	Name          string  `toml:"name" json:"name"`
	PixelCount    int     `toml:"pixel_count" json:"pixel_count"`
	MaxBrightness float64 `toml:"max_brightness" json:"max_brightness"`
	CenterOffset  int     `toml:"center_offset" json:"center_offset"`
	RefreshRate   int     `toml:"refresh_rate" json:"refresh_rate"`
	ForceRefresh  bool    `toml:"force_refresh" json:"force_refresh"`
	PreviewOnly   bool    `toml:"preview_only" json:"preview_only"`
	FadeCurve     string  `toml:"fade_curve" json:"fade_curve"`

	// Network destinations
	IPAddress string `toml:"ip_address" json:"ip_address,omitempty"`
	Port      int    `toml:"port" json:"port,omitempty"`

	// Plain and realtime UDP
	Timeout         int    `toml:"timeout" json:"timeout,omitempty"`
	UDPPacketType   string `toml:"udp_packet_type" json:"udp_packet_type,omitempty"`
	MinimiseTraffic bool   `toml:"minimise_traffic" json:"minimise_traffic,omitempty"`
	IncludeIndexes  bool   `toml:"include_indexes" json:"include_indexes,omitempty"`
	DataPrefix      string `toml:"data_prefix" json:"data_prefix,omitempty"`
	DataPostfix     string `toml:"data_postfix" json:"data_postfix,omitempty"`

	// DMX derived protocols
	Universe        int    `toml:"universe" json:"universe,omitempty"`
	UniverseSize    int    `toml:"universe_size" json:"universe_size,omitempty"`
	ChannelOffset   int    `toml:"channel_offset" json:"channel_offset,omitempty"`
	PacketPriority  int    `toml:"packet_priority" json:"packet_priority,omitempty"`
	PacketSize      int    `toml:"packet_size" json:"packet_size,omitempty"`
	EvenPacketSize  bool   `toml:"even_packet_size" json:"even_packet_size,omitempty"`
	PixelsPerDevice int    `toml:"pixels_per_device" json:"pixels_per_device,omitempty"`
	DMXStartAddress int    `toml:"dmx_start_address" json:"dmx_start_address,omitempty"`
	PreAmble        string `toml:"pre_amble" json:"pre_amble,omitempty"`
	PostAmble       string `toml:"post_amble" json:"post_amble,omitempty"`

	// Serial
	SerialPort string `toml:"serial_port" json:"serial_port,omitempty"`
	BaudRate   int    `toml:"baud_rate" json:"baud_rate,omitempty"`
	ColorOrder string `toml:"color_order" json:"color_order,omitempty"`

	// WLED
	SyncMode string `toml:"sync_mode" json:"sync_mode,omitempty"`

	// OpenRGB
	OpenRGBID         int    `toml:"openrgb_id" json:"openrgb_id,omitempty"`
	OpenRGBName       string `toml:"openrgb_name" json:"openrgb_name,omitempty"`
	OpenRGBClientName string `toml:"openrgb_client_name" json:"openrgb_client_name,omitempty"`
	TLS               bool   `toml:"tls" json:"tls,omitempty"`
}

// DefaultDeviceConfig returns the defaults for a device type.
func DefaultDeviceConfig(deviceType string) DeviceConfig {
	cfg := DeviceConfig{
		MaxBrightness:     1,
		RefreshRate:       60,
		FadeCurve:         string(fade.CurveLinear),
		Timeout:           1,
		UDPPacketType:     string(wled.FormatDRGB),
		UniverseSize:      dmx.DefaultUniverseSize,
		PacketPriority:    e131.DefaultPriority,
		PacketSize:        dmx.DefaultUniverseSize,
		EvenPacketSize:    true,
		DMXStartAddress:   1,
		BaudRate:          adalight.DefaultBaudRate,
		ColorOrder:        string(adalight.RGB),
		OpenRGBClientName: "lacylights-pixels",
	}
	switch deviceType {
	case TypeDDP:
		cfg.Port = ddp.DefaultPort
	case TypeUDPRealtime:
		cfg.Port = wled.DefaultPort
	case TypeArtNet:
		cfg.Port = 6454
	case TypeE131:
		cfg.Port = e131.DefaultPort
		cfg.Universe = 1
	case TypeOpenRGB:
		cfg.Port = openrgb.DefaultPort
	case TypeWLED:
		// the port follows sync_mode unless set
		cfg.SyncMode = SyncDDP
		cfg.UDPPacketType = string(wled.FormatDNRGB)
		cfg.MinimiseTraffic = true
		cfg.Universe = 1
	}
	return cfg
}

// WLEDTarget resolves a wled device to the device type its sync_mode selects
// and the configuration to drive it with. A zero port takes that type's
// default.
func (c DeviceConfig) WLEDTarget() (string, DeviceConfig, error) {
	var deviceType string
	switch strings.ToUpper(strings.TrimSpace(c.SyncMode)) {
	case SyncDDP:
		deviceType = TypeDDP
	case SyncUDP:
		deviceType = TypeUDPRealtime
	case SyncE131:
		deviceType = TypeE131
	default:
		return "", c, invalid("sync_mode", "must be DDP, UDP or E131, got %q", c.SyncMode)
	}
	target := c
	if target.Port == 0 {
		target.Port = DefaultDeviceConfig(deviceType).Port
	}
	return deviceType, target, nil
}

// KnownType reports whether deviceType has a transport.
func KnownType(deviceType string) bool {
	switch deviceType {
	case TypeUDP, TypeUDPRealtime, TypeDDP, TypeArtNet, TypeE131, TypeAdalight, TypeOpenRGB, TypeWLED:
		return true
	}
	return false
}

// DecodeHex decodes a hex byte string, ignoring spaces ("ff 00 0a").
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.ReplaceAll(s, " ", ""))
}

// mustHex decodes a field that Validate already accepted.
func mustHex(s string) []byte {
	b, _ := DecodeHex(s)
	return b
}

// PrefixBytes returns the decoded data_prefix.
func (c DeviceConfig) PrefixBytes() []byte { return mustHex(c.DataPrefix) }

// PostfixBytes returns the decoded data_postfix.
func (c DeviceConfig) PostfixBytes() []byte { return mustHex(c.DataPostfix) }

// PreAmbleBytes returns the decoded pre_amble.
func (c DeviceConfig) PreAmbleBytes() []byte { return mustHex(c.PreAmble) }

// PostAmbleBytes returns the decoded post_amble.
func (c DeviceConfig) PostAmbleBytes() []byte { return mustHex(c.PostAmble) }

// Curve returns the parsed fade curve.
func (c DeviceConfig) Curve() fade.Curve {
	curve, err := fade.ParseCurve(c.FadeCurve)
	if err != nil {
		return fade.CurveLinear
	}
	return curve
}

// Validate checks the configuration for a device type. Errors wrap
// ErrInvalidDevice and name the offending field.
func (c DeviceConfig) Validate(deviceType string) error {
	if !KnownType(deviceType) {
		return invalid("type", "unknown device type %q", deviceType)
	}
	if c.PixelCount < 1 {
		return invalid("pixel_count", "must be at least 1, got %d", c.PixelCount)
	}
	if c.MaxBrightness < 0 || c.MaxBrightness > 1 {
		return invalid("max_brightness", "must be between 0 and 1, got %v", c.MaxBrightness)
	}
	if c.RefreshRate < 1 || c.RefreshRate > 1000 {
		return invalid("refresh_rate", "must be between 1 and 1000 Hz, got %d", c.RefreshRate)
	}
	if _, err := fade.ParseCurve(c.FadeCurve); err != nil {
		return invalid("fade_curve", "%v", err)
	}

	switch deviceType {
	case TypeUDP:
		if err := c.validateDestination(); err != nil {
			return err
		}
		if c.IncludeIndexes && c.PixelCount > 256 {
			return invalid("include_indexes", "one byte indexes address at most 256 pixels, got %d", c.PixelCount)
		}
		if _, err := DecodeHex(c.DataPrefix); err != nil {
			return invalid("data_prefix", "not hex: %v", err)
		}
		if _, err := DecodeHex(c.DataPostfix); err != nil {
			return invalid("data_postfix", "not hex: %v", err)
		}
		perPixel := 3
		if c.IncludeIndexes {
			perPixel = 4
		}
		if size := len(c.PrefixBytes()) + c.PixelCount*perPixel + len(c.PostfixBytes()); size > maxDatagram {
			return invalid("pixel_count", "%d pixels make a %d byte datagram, the limit is %d", c.PixelCount, size, maxDatagram)
		}

	case TypeUDPRealtime:
		if err := c.validateDestination(); err != nil {
			return err
		}
		if _, err := wled.ParseFormat(c.UDPPacketType); err != nil {
			return invalid("udp_packet_type", "%v", err)
		}
		if c.Timeout < 0 || c.Timeout > 255 {
			return invalid("timeout", "must be between 0 and 255 seconds, got %d", c.Timeout)
		}
		// DNRGB, the fallback for every format, addresses pixels with a uint16
		if c.PixelCount > 0xffff {
			return invalid("pixel_count", "realtime frames carry at most 65535 pixels, got %d", c.PixelCount)
		}

	case TypeDDP:
		if err := c.validateDestination(); err != nil {
			return err
		}

	case TypeArtNet:
		if err := c.validateDestination(); err != nil {
			return err
		}
		if _, err := DecodeHex(c.PreAmble); err != nil {
			return invalid("pre_amble", "not hex: %v", err)
		}
		if _, err := DecodeHex(c.PostAmble); err != nil {
			return invalid("post_amble", "not hex: %v", err)
		}
		if _, err := dmx.PlanArtNet(c.PixelCount, c.PixelsPerDevice, c.DMXStartAddress, c.PacketSize, c.Universe,
			c.PreAmbleBytes(), c.PostAmbleBytes()); err != nil {
			return invalid("artnet", "%v", err)
		}

	case TypeE131:
		if c.IPAddress != Multicast {
			if err := c.validateDestination(); err != nil {
				return err
			}
		}
		if c.PacketPriority < 0 || c.PacketPriority > 200 {
			return invalid("packet_priority", "must be between 0 and 200, got %d", c.PacketPriority)
		}
		plan, err := dmx.PlanUniverses(c.Universe, c.ChannelOffset, c.PixelCount*dmx.ChannelsPerPixel, c.UniverseSize)
		if err != nil {
			return invalid("universe", "%v", err)
		}
		if err := e131.ValidateUniverse(plan.UniverseStart); err != nil {
			return invalid("universe", "%v", err)
		}
		if err := e131.ValidateUniverse(plan.UniverseEnd); err != nil {
			return invalid("universe", "%d pixels overflow the last universe: %v", c.PixelCount, err)
		}

	case TypeAdalight:
		if c.SerialPort == "" {
			return invalid("serial_port", "is required")
		}
		if c.BaudRate < adalight.DefaultBaudRate {
			return invalid("baud_rate", "must be at least %d, got %d", adalight.DefaultBaudRate, c.BaudRate)
		}
		if _, err := adalight.ParseColorOrder(c.ColorOrder); err != nil {
			return invalid("color_order", "%v", err)
		}
		if c.PixelCount > 0xffff {
			return invalid("pixel_count", "adalight frames carry at most 65535 pixels, got %d", c.PixelCount)
		}

	case TypeOpenRGB:
		if err := c.validateDestination(); err != nil {
			return err
		}
		if c.OpenRGBID < 0 {
			return invalid("openrgb_id", "must not be negative, got %d", c.OpenRGBID)
		}
		if c.PixelCount > 0xffff {
			return invalid("pixel_count", "openrgb frames carry at most 65535 LEDs, got %d", c.PixelCount)
		}

	case TypeWLED:
		targetType, target, err := c.WLEDTarget()
		if err != nil {
			return err
		}
		return target.Validate(targetType)
	}
	return nil
}

func (c DeviceConfig) validateDestination() error {
	if strings.TrimSpace(c.IPAddress) == "" {
		return invalid("ip_address", "is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return invalid("port", "must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

func invalid(field, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidDevice, field, fmt.Sprintf(format, args...))
}

// DeviceSpec is one [[device]] entry of the devices file.
type DeviceSpec struct {
	ID        string
	Type      string
	TestColor *frame.RGB // solid colour shown at startup, if set
	Config    DeviceConfig
}

type deviceFile struct {
	Device []struct {
		ID        string         `toml:"id"`
		Type      string         `toml:"type"`
		TestColor string         `toml:"test_color"`
		Config    toml.Primitive `toml:"config"`
	} `toml:"device"`
}

// LoadDevices reads a devices file. Each [device.config] table is decoded on
// top of the defaults for the device's type and validated.
func LoadDevices(path string) ([]DeviceSpec, error) {
	var raw deviceFile
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read devices file %s: %w", path, err)
	}
	return decodeDevices(md, raw)
}

// ParseDevices parses devices file content.
func ParseDevices(data string) ([]DeviceSpec, error) {
	var raw deviceFile
	md, err := toml.Decode(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse devices: %w", err)
	}
	return decodeDevices(md, raw)
}

func decodeDevices(md toml.MetaData, raw deviceFile) ([]DeviceSpec, error) {
	seen := make(map[string]bool)
	specs := make([]DeviceSpec, 0, len(raw.Device))
	for i, d := range raw.Device {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: device %d has no id", ErrInvalidDevice, i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("%w: duplicate device id %q", ErrInvalidDevice, d.ID)
		}
		seen[d.ID] = true

		cfg := DefaultDeviceConfig(d.Type)
		if err := md.PrimitiveDecode(d.Config, &cfg); err != nil {
			return nil, fmt.Errorf("device %s: %w", d.ID, err)
		}
		if cfg.Name == "" {
			cfg.Name = d.ID
		}
		if err := cfg.Validate(d.Type); err != nil {
			return nil, fmt.Errorf("device %s: %w", d.ID, err)
		}

		spec := DeviceSpec{ID: d.ID, Type: d.Type, Config: cfg}
		if d.TestColor != "" {
			c, err := frame.ParseColor(d.TestColor)
			if err != nil {
				return nil, fmt.Errorf("%w: device %s test_color: %v", ErrInvalidDevice, d.ID, err)
			}
			spec.TestColor = &c
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
