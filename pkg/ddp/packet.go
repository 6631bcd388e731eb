// Package ddp builds Distributed Display Protocol packets.
//
// A frame is split into chunks of at most MaxDataLen bytes. Every chunk of a
// frame carries the same sequence number and its byte offset into the frame;
// only the final chunk has the push flag set.
package ddp

import (
	"encoding/binary"
)

const (
	// DefaultPort is the conventional DDP UDP port.
	DefaultPort = 4048
	// HeaderLen is the size of the DDP header without the optional timecode.
	HeaderLen = 10
	// MaxPixels is the number of RGB pixels carried by a full chunk.
	MaxPixels = 480
	// MaxDataLen fits one chunk in a standard Ethernet frame.
	MaxDataLen = MaxPixels * 3

	// FlagVersion1 marks the packet as protocol version 1.
	FlagVersion1 byte = 0x40
	// FlagPush tells the receiver to display the assembled frame.
	FlagPush byte = 0x01

	// DataTypeRGB is the data type byte for 8-bit RGB pixels.
	DataTypeRGB byte = 0x01
	// IDDisplay addresses the default output device.
	IDDisplay byte = 0x01
)

// Header is the decoded form of a DDP header.
type Header struct {
	Flags    byte
	Sequence byte
	DataType byte
	ID       byte
	Offset   uint32
	Length   uint16
}

// Push reports whether the header has the push flag set.
func (h Header) Push() bool {
	return h.Flags&FlagPush != 0
}

// Sequence returns the DDP sequence number for a frame count, wrapping 1..15.
func Sequence(frameCount uint64) byte {
	return byte(frameCount%15) + 1
}

// BuildPacket encodes a single DDP packet.
func BuildPacket(sequence byte, offset uint32, data []byte, push bool) []byte {
	packet := make([]byte, HeaderLen+len(data))
	flags := FlagVersion1
	if push {
		flags |= FlagPush
	}
	packet[0] = flags
	packet[1] = sequence & 0x0f
	packet[2] = DataTypeRGB
	packet[3] = IDDisplay
	binary.BigEndian.PutUint32(packet[4:8], offset)
	binary.BigEndian.PutUint16(packet[8:10], uint16(len(data)))
	copy(packet[HeaderLen:], data)
	return packet
}

// ParseHeader decodes the header of a DDP packet.
func ParseHeader(packet []byte) (Header, bool) {
	if len(packet) < HeaderLen {
		return Header{}, false
	}
	return Header{
		Flags:    packet[0],
		Sequence: packet[1],
		DataType: packet[2],
		ID:       packet[3],
		Offset:   binary.BigEndian.Uint32(packet[4:8]),
		Length:   binary.BigEndian.Uint16(packet[8:10]),
	}, true
}

// ChunkCount returns the number of packets needed for n bytes.
// An empty frame still produces one (empty) push packet.
func ChunkCount(n, maxDataLen int) int {
	if maxDataLen <= 0 {
		maxDataLen = MaxDataLen
	}
	if n <= 0 {
		return 1
	}
	return (n + maxDataLen - 1) / maxDataLen
}

// Packets splits one frame of raw pixel bytes into DDP packets in send order.
func Packets(data []byte, frameCount uint64, maxDataLen int) [][]byte {
	if maxDataLen <= 0 {
		maxDataLen = MaxDataLen
	}
	seq := Sequence(frameCount)
	count := ChunkCount(len(data), maxDataLen)
	packets := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * maxDataLen
		end := start + maxDataLen
		if end > len(data) {
			end = len(data)
		}
		packets = append(packets, BuildPacket(seq, uint32(start), data[start:end], i == count-1))
	}
	return packets
}
