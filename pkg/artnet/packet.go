// Package artnet provides Art-Net protocol packet building.
package artnet

import (
	"encoding/binary"
)

const (
	// OpCodeDMX is the Art-Net operation code for DMX data.
	OpCodeDMX uint16 = 0x5000
	// ProtocolVersion is the Art-Net protocol version.
	ProtocolVersion uint16 = 14
	// HeaderSize is the size of the ArtDMX header preceding the channel data.
	HeaderSize = 18
	// MaxDataLength is the maximum number of DMX channels per ArtDMX packet.
	MaxDataLength = 512
	// MaxUniverse is the largest 15-bit Art-Net port address.
	MaxUniverse = 0x7fff
	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454
)

// ArtNetID is the Art-Net packet identifier.
var ArtNetID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

// DataLength returns the on-wire channel count for a packet carrying n channels.
// Art-Net requires a length between 2 and 512; even rounds odd lengths up.
func DataLength(n int, even bool) int {
	if n < 2 {
		n = 2
	}
	if n > MaxDataLength {
		n = MaxDataLength
	}
	if even && n%2 == 1 {
		n++
	}
	return n
}

// BuildDMXPacket creates an ArtDMX packet for the specified port address.
// Universe is the 15-bit port address (Net in the high byte, Sub-Net/Universe in the low byte).
// Length is the number of channel slots on the wire; channels shorter than
// length are zero padded, longer ones are truncated.
// Sequence should increment for each packet (1-255, 0 disables resequencing at the receiver).
func BuildDMXPacket(universe uint16, channels []byte, sequence byte, length int) []byte {
	if length < 0 {
		length = 0
	}
	if length > MaxDataLength {
		length = MaxDataLength
	}
	packet := make([]byte, HeaderSize+length)

	copy(packet[0:8], ArtNetID)                                        // ID (8 bytes): "Art-Net\0"
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)             // OpCode: 0x5000, little endian
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)         // Protocol version: 14
	packet[12] = sequence                                              // Sequence
	packet[13] = 0                                                     // Physical input port
	binary.LittleEndian.PutUint16(packet[14:16], universe&MaxUniverse) // SubUni, Net
	binary.BigEndian.PutUint16(packet[16:18], uint16(length))          // Data length

	if len(channels) > length {
		channels = channels[:length]
	}
	copy(packet[HeaderSize:], channels)

	return packet
}
