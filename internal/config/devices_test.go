package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lacylights-pixels/internal/services/frame"
)

const sampleDevices = `
[[device]]
id = "desk"
type = "udp_realtime"
test_color = "#ff0000"

  [device.config]
  ip_address = "192.168.1.40"
  pixel_count = 120
  udp_packet_type = "adaptive"
  minimise_traffic = true

[[device]]
id = "stage"
type = "e131"

  [device.config]
  name = "Stage wash"
  ip_address = "multicast"
  pixel_count = 300
  universe = 4

[[device]]
id = "bar"
type = "adalight"

  [device.config]
  serial_port = "/dev/ttyUSB0"
  pixel_count = 60
  color_order = "GRB"
`

func TestParseDevices(t *testing.T) {
	specs, err := ParseDevices(sampleDevices)
	require.NoError(t, err)
	require.Len(t, specs, 3)

	desk := specs[0]
	assert.Equal(t, "desk", desk.ID)
	assert.Equal(t, TypeUDPRealtime, desk.Type)
	assert.Equal(t, "desk", desk.Config.Name, "name defaults to the id")
	assert.Equal(t, 21324, desk.Config.Port, "type default port")
	assert.Equal(t, 60, desk.Config.RefreshRate)
	assert.Equal(t, 1.0, desk.Config.MaxBrightness)
	assert.True(t, desk.Config.MinimiseTraffic)
	require.NotNil(t, desk.TestColor)
	assert.Equal(t, frame.RGB{255, 0, 0}, *desk.TestColor)

	stage := specs[1]
	assert.Equal(t, "Stage wash", stage.Config.Name)
	assert.Equal(t, 5568, stage.Config.Port)
	assert.Equal(t, 4, stage.Config.Universe)
	assert.Equal(t, 510, stage.Config.UniverseSize)
	assert.Nil(t, stage.TestColor)

	bar := specs[2]
	assert.Equal(t, 115200, bar.Config.BaudRate)
	assert.Equal(t, "GRB", bar.Config.ColorOrder)
}

func TestLoadDevices_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDevices), 0o600))

	specs, err := LoadDevices(path)
	require.NoError(t, err)
	assert.Len(t, specs, 3)

	_, err = LoadDevices(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseDevices_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing id", "[[device]]\ntype = \"ddp\"\n[device.config]\nip_address = \"a\"\npixel_count = 1\n"},
		{"duplicate id", "[[device]]\nid = \"a\"\ntype = \"ddp\"\n[device.config]\nip_address = \"a\"\npixel_count = 1\n" +
			"[[device]]\nid = \"a\"\ntype = \"ddp\"\n[device.config]\nip_address = \"a\"\npixel_count = 1\n"},
		{"unknown type", "[[device]]\nid = \"a\"\ntype = \"hue\"\n[device.config]\npixel_count = 1\n"},
		{"bad colour", "[[device]]\nid = \"a\"\ntype = \"ddp\"\ntest_color = \"red\"\n[device.config]\nip_address = \"a\"\npixel_count = 1\n"},
		{"no pixels", "[[device]]\nid = \"a\"\ntype = \"ddp\"\n[device.config]\nip_address = \"a\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDevices(tt.data)
			assert.True(t, errors.Is(err, ErrInvalidDevice), "got %v", err)
		})
	}
}

func TestValidate(t *testing.T) {
	base := func(deviceType string) DeviceConfig {
		cfg := DefaultDeviceConfig(deviceType)
		cfg.Name = "test"
		cfg.PixelCount = 10
		cfg.IPAddress = "10.0.0.2"
		cfg.SerialPort = "/dev/ttyACM0"
		return cfg
	}

	tests := []struct {
		name       string
		deviceType string
		mutate     func(*DeviceConfig)
		wantErr    bool
	}{
		{"udp ok", TypeUDP, func(c *DeviceConfig) { c.Port = 7777; c.DataPrefix = "ff 00" }, false},
		{"udp bad prefix", TypeUDP, func(c *DeviceConfig) { c.Port = 7777; c.DataPrefix = "xyz" }, true},
		{"udp no port", TypeUDP, func(c *DeviceConfig) {}, true},
		{"udp indexes too many pixels", TypeUDP, func(c *DeviceConfig) { c.Port = 1; c.IncludeIndexes = true; c.PixelCount = 257 }, true},
		{"udp largest datagram", TypeUDP, func(c *DeviceConfig) { c.Port = 1; c.PixelCount = 21835; c.DataPrefix = "aa" }, false},
		{"udp datagram too large", TypeUDP, func(c *DeviceConfig) { c.Port = 1; c.PixelCount = 21836 }, true},
		{"udp prefix overflows datagram", TypeUDP, func(c *DeviceConfig) { c.Port = 1; c.PixelCount = 21835; c.DataPrefix = "aa bb 00" }, true},
		{"ddp ok", TypeDDP, func(c *DeviceConfig) {}, false},
		{"ddp no address", TypeDDP, func(c *DeviceConfig) { c.IPAddress = "" }, true},
		{"brightness", TypeDDP, func(c *DeviceConfig) { c.MaxBrightness = 1.5 }, true},
		{"refresh rate", TypeDDP, func(c *DeviceConfig) { c.RefreshRate = 0 }, true},
		{"fade curve", TypeDDP, func(c *DeviceConfig) { c.FadeCurve = "BOUNCE" }, true},
		{"realtime format", TypeUDPRealtime, func(c *DeviceConfig) { c.UDPPacketType = "RGBW" }, true},
		{"realtime timeout", TypeUDPRealtime, func(c *DeviceConfig) { c.Timeout = 256 }, true},
		{"realtime most pixels", TypeUDPRealtime, func(c *DeviceConfig) { c.UDPPacketType = "DNRGB"; c.PixelCount = 65535 }, false},
		{"realtime start index overflow", TypeUDPRealtime, func(c *DeviceConfig) { c.UDPPacketType = "DNRGB"; c.PixelCount = 65536 }, true},
		{"artnet ok", TypeArtNet, func(c *DeviceConfig) { c.PixelsPerDevice = 5; c.PreAmble = "01" }, false},
		{"artnet group too large", TypeArtNet, func(c *DeviceConfig) { c.PixelsPerDevice = 11 }, true},
		{"artnet universe overflow", TypeArtNet, func(c *DeviceConfig) { c.Universe = 32768 }, true},
		{"e131 multicast ok", TypeE131, func(c *DeviceConfig) { c.IPAddress = Multicast; c.Port = 0 }, false},
		{"e131 universe zero", TypeE131, func(c *DeviceConfig) { c.Universe = 0 }, true},
		{"e131 last universe overflow", TypeE131, func(c *DeviceConfig) { c.Universe = 63999; c.PixelCount = 200 }, true},
		{"e131 offset", TypeE131, func(c *DeviceConfig) { c.ChannelOffset = 510 }, true},
		{"e131 priority", TypeE131, func(c *DeviceConfig) { c.PacketPriority = 201 }, true},
		{"adalight ok", TypeAdalight, func(c *DeviceConfig) {}, false},
		{"adalight slow baud", TypeAdalight, func(c *DeviceConfig) { c.BaudRate = 9600 }, true},
		{"adalight colour order", TypeAdalight, func(c *DeviceConfig) { c.ColorOrder = "RGBW" }, true},
		{"adalight no port", TypeAdalight, func(c *DeviceConfig) { c.SerialPort = "" }, true},
		{"openrgb ok", TypeOpenRGB, func(c *DeviceConfig) {}, false},
		{"openrgb negative id", TypeOpenRGB, func(c *DeviceConfig) { c.OpenRGBID = -1 }, true},
		{"wled ddp ok", TypeWLED, func(c *DeviceConfig) {}, false},
		{"wled udp ok", TypeWLED, func(c *DeviceConfig) { c.SyncMode = "udp" }, false},
		{"wled e131 ok", TypeWLED, func(c *DeviceConfig) { c.SyncMode = SyncE131 }, false},
		{"wled sync mode", TypeWLED, func(c *DeviceConfig) { c.SyncMode = "ARTNET" }, true},
		{"wled udp timeout", TypeWLED, func(c *DeviceConfig) { c.SyncMode = SyncUDP; c.Timeout = 256 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(tt.deviceType)
			tt.mutate(&cfg)
			err := cfg.Validate(tt.deviceType)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidDevice), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWLEDTarget(t *testing.T) {
	tests := []struct {
		syncMode string
		port     int
		wantType string
		wantPort int
	}{
		{SyncDDP, 0, TypeDDP, 4048},
		{SyncUDP, 0, TypeUDPRealtime, 21324},
		{"e131", 0, TypeE131, 5568},
		{SyncUDP, 19446, TypeUDPRealtime, 19446},
	}
	for _, tt := range tests {
		t.Run(tt.syncMode, func(t *testing.T) {
			cfg := DefaultDeviceConfig(TypeWLED)
			cfg.SyncMode = tt.syncMode
			cfg.Port = tt.port

			deviceType, target, err := cfg.WLEDTarget()
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, deviceType)
			assert.Equal(t, tt.wantPort, target.Port)
			assert.Equal(t, "DNRGB", target.UDPPacketType)
			assert.True(t, target.MinimiseTraffic)
			assert.Equal(t, 1, target.Universe)
		})
	}

	cfg := DefaultDeviceConfig(TypeWLED)
	assert.Equal(t, SyncDDP, cfg.SyncMode)
	cfg.SyncMode = "SERIAL"
	_, _, err := cfg.WLEDTarget()
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

func TestDeviceConfig_HexFields(t *testing.T) {
	cfg := DeviceConfig{DataPrefix: "aa bb", PreAmble: "01"}
	assert.Equal(t, []byte{0xaa, 0xbb}, cfg.PrefixBytes())
	assert.Equal(t, []byte{0x01}, cfg.PreAmbleBytes())
	assert.Empty(t, cfg.PostfixBytes())
}
