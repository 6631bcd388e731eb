// Package openrgb builds packets for the OpenRGB SDK network protocol.
//
// Every packet starts with a 16 byte header: the magic "ORGB", then the
// device index, packet id and payload size as little-endian uint32.
package openrgb

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// DefaultPort is the OpenRGB SDK server port.
	DefaultPort = 6742
	// HeaderLen is the size of the packet header.
	HeaderLen = 16

	// PacketRequestControllerCount asks how many controllers the server has.
	PacketRequestControllerCount uint32 = 0
	// PacketRequestControllerData asks for the description of one controller.
	PacketRequestControllerData uint32 = 1
	// PacketSetClientName announces the client name for the session.
	PacketSetClientName uint32 = 50
	// PacketUpdateLEDs replaces the colors of every LED on a device.
	PacketUpdateLEDs uint32 = 1050
)

// Magic is the OpenRGB packet identifier.
var Magic = []byte{'O', 'R', 'G', 'B'}

// ErrShortBody is returned for a reply body too short for its contents.
var ErrShortBody = errors.New("openrgb: short reply body")

// Header is the decoded form of a packet header.
type Header struct {
	DeviceID uint32
	PacketID uint32
	Size     uint32
}

func buildPacket(deviceID, packetID uint32, body []byte) []byte {
	packet := make([]byte, HeaderLen+len(body))
	copy(packet[0:4], Magic)
	binary.LittleEndian.PutUint32(packet[4:8], deviceID)
	binary.LittleEndian.PutUint32(packet[8:12], packetID)
	binary.LittleEndian.PutUint32(packet[12:16], uint32(len(body)))
	copy(packet[HeaderLen:], body)
	return packet
}

// BuildSetClientName encodes the client name announcement.
func BuildSetClientName(name string) []byte {
	body := make([]byte, len(name)+1)
	copy(body, name)
	return buildPacket(0, PacketSetClientName, body)
}

// BuildUpdateLEDs encodes RGB pixel data as an UPDATE_LEDS packet. The body
// holds its own size (uint32), the color count (uint16) and one
// [R, G, B, 0] quad per pixel.
func BuildUpdateLEDs(deviceID uint32, data []byte) []byte {
	n := len(data) / 3
	size := 4 + 2 + n*4
	body := make([]byte, size)
	binary.LittleEndian.PutUint32(body[0:4], uint32(size))
	binary.LittleEndian.PutUint16(body[4:6], uint16(n))
	for i := 0; i < n; i++ {
		copy(body[6+i*4:6+i*4+3], data[i*3:i*3+3])
	}
	return buildPacket(deviceID, PacketUpdateLEDs, body)
}

// BuildRequestControllerCount encodes the controller count query.
func BuildRequestControllerCount() []byte {
	return buildPacket(0, PacketRequestControllerCount, nil)
}

// BuildRequestControllerData encodes the description query for the
// controller at index. An empty body selects protocol version 0.
func BuildRequestControllerData(index uint32) []byte {
	return buildPacket(index, PacketRequestControllerData, nil)
}

// ParseControllerCount decodes the reply to a controller count query.
func ParseControllerCount(body []byte) (uint32, error) {
	if len(body) < 4 {
		return 0, ErrShortBody
	}
	return binary.LittleEndian.Uint32(body[0:4]), nil
}

// ParseControllerName extracts the name from a controller description. The
// body starts with its own size (uint32) and the device type (int32),
// followed by the name as a uint16 length and NUL terminated bytes.
func ParseControllerName(body []byte) (string, error) {
	if len(body) < 10 {
		return "", ErrShortBody
	}
	n := int(binary.LittleEndian.Uint16(body[8:10]))
	if len(body) < 10+n {
		return "", ErrShortBody
	}
	return string(bytes.TrimRight(body[10:10+n], "\x00")), nil
}

// ParseHeader decodes a packet header.
func ParseHeader(packet []byte) (Header, bool) {
	if len(packet) < HeaderLen || string(packet[0:4]) != string(Magic) {
		return Header{}, false
	}
	return Header{
		DeviceID: binary.LittleEndian.Uint32(packet[4:8]),
		PacketID: binary.LittleEndian.Uint32(packet[8:12]),
		Size:     binary.LittleEndian.Uint32(packet[12:16]),
	}, true
}
