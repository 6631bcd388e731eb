package dmx

import (
	"fmt"
)

// MaxArtNetUniverse is the largest 15-bit Art-Net port address.
const MaxArtNetUniverse = 0x7fff

// ArtNetLayout describes how pixels are grouped into sub-devices, framed
// with a pre-amble and post-amble per group, offset by the DMX start
// address and chunked into packets addressed to consecutive universes.
type ArtNetLayout struct {
	BaseUniverse    int
	PacketSize      int
	PixelsPerDevice int
	Devices         int
	Padding         int
	PreAmble        []byte
	PostAmble       []byte
	ChannelCount    int
	Universes       int
}

// UniverseData is the channel payload destined for one universe.
type UniverseData struct {
	Universe int
	Data     []byte
}

// PlanArtNet computes the Art-Net layout for a device.
//
// pixelsPerDevice of 0 treats the whole strip as one sub-device. Pixels
// left over after the last full group are never transmitted.
// dmxStartAddress is 1-based; slots before it are zero padded.
func PlanArtNet(pixelCount, pixelsPerDevice, dmxStartAddress, packetSize, baseUniverse int, preAmble, postAmble []byte) (ArtNetLayout, error) {
	if pixelCount <= 0 {
		return ArtNetLayout{}, fmt.Errorf("%w: pixel count %d", ErrInvalidPlan, pixelCount)
	}
	if packetSize <= 0 || packetSize > UniverseSize {
		return ArtNetLayout{}, fmt.Errorf("%w: packet size %d outside 1-%d", ErrInvalidPlan, packetSize, UniverseSize)
	}
	if dmxStartAddress < 1 || dmxStartAddress > UniverseSize {
		return ArtNetLayout{}, fmt.Errorf("%w: dmx start address %d outside 1-%d", ErrInvalidPlan, dmxStartAddress, UniverseSize)
	}
	if pixelsPerDevice <= 0 {
		pixelsPerDevice = pixelCount
	}
	devices := pixelCount / pixelsPerDevice
	if devices == 0 {
		return ArtNetLayout{}, fmt.Errorf("%w: %d pixels cannot fill one %d pixel sub-device", ErrInvalidPlan, pixelCount, pixelsPerDevice)
	}

	l := ArtNetLayout{
		BaseUniverse:    baseUniverse,
		PacketSize:      packetSize,
		PixelsPerDevice: pixelsPerDevice,
		Devices:         devices,
		Padding:         dmxStartAddress - 1,
		PreAmble:        append([]byte(nil), preAmble...),
		PostAmble:       append([]byte(nil), postAmble...),
	}
	group := len(preAmble) + pixelsPerDevice*ChannelsPerPixel + len(postAmble)
	l.ChannelCount = l.Padding + devices*group
	l.Universes = (l.ChannelCount + packetSize - 1) / packetSize

	if last := baseUniverse + l.Universes - 1; baseUniverse < 0 || last > MaxArtNetUniverse {
		return ArtNetLayout{}, fmt.Errorf("%w: universes %d-%d outside 0-%d", ErrInvalidPlan, baseUniverse, last, MaxArtNetUniverse)
	}
	return l, nil
}

// Channels builds the flat channel array for one frame of RGB bytes.
func (l ArtNetLayout) Channels(rgb []byte) []byte {
	out := make([]byte, l.Padding, l.ChannelCount)
	groupBytes := l.PixelsPerDevice * ChannelsPerPixel
	for g := 0; g < l.Devices; g++ {
		out = append(out, l.PreAmble...)
		start := g * groupBytes
		end := start + groupBytes
		if end > len(rgb) {
			// short frames are zero filled rather than shifting later groups
			chunk := make([]byte, groupBytes)
			if start < len(rgb) {
				copy(chunk, rgb[start:])
			}
			out = append(out, chunk...)
		} else {
			out = append(out, rgb[start:end]...)
		}
		out = append(out, l.PostAmble...)
	}
	return out
}

// Packets chunks one frame into per-universe payloads of exactly PacketSize
// channels, the last one zero padded.
func (l ArtNetLayout) Packets(rgb []byte) []UniverseData {
	channels := l.Channels(rgb)
	packets := make([]UniverseData, 0, l.Universes)
	for i := 0; i < l.Universes; i++ {
		data := make([]byte, l.PacketSize)
		start := i * l.PacketSize
		end := start + l.PacketSize
		if end > len(channels) {
			end = len(channels)
		}
		copy(data, channels[start:end])
		packets = append(packets, UniverseData{Universe: l.BaseUniverse + i, Data: data})
	}
	return packets
}
