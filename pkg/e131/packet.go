// Package e131 builds ANSI E1.31 (sACN) data packets.
package e131

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	// DefaultPort is the sACN UDP port.
	DefaultPort = 5568
	// HeaderLen is the size of root, framing and DMP layers up to the start code.
	HeaderLen = 126
	// MaxSlots is the number of DMX slots in a universe.
	MaxSlots = 512
	// MinUniverse and MaxUniverse bound valid sACN universe numbers.
	MinUniverse = 1
	MaxUniverse = 63999
	// DefaultPriority is the sACN default source priority.
	DefaultPriority = 100

	sourceNameLen = 64
)

var acnPacketIdentifier = []byte{'A', 'S', 'C', '-', 'E', '1', '.', '1', '7', 0x00, 0x00, 0x00}

// Options carries the per-source fields of a data packet.
type Options struct {
	CID        [16]byte
	SourceName string
	Priority   byte
}

func flagsAndLength(n int) uint16 {
	return 0x7000 | uint16(n&0x0fff)
}

// BuildDataPacket builds a data packet for one universe. Slots beyond 512 are dropped.
func BuildDataPacket(universe uint16, slots []byte, sequence byte, opts Options) []byte {
	if len(slots) > MaxSlots {
		slots = slots[:MaxSlots]
	}
	total := HeaderLen + len(slots)
	p := make([]byte, total)

	// Root layer
	binary.BigEndian.PutUint16(p[0:2], 0x0010) // preamble size
	binary.BigEndian.PutUint16(p[2:4], 0x0000) // postamble size
	copy(p[4:16], acnPacketIdentifier)
	binary.BigEndian.PutUint16(p[16:18], flagsAndLength(total-16))
	binary.BigEndian.PutUint32(p[18:22], 0x00000004) // VECTOR_ROOT_E131_DATA
	copy(p[22:38], opts.CID[:])

	// Framing layer
	binary.BigEndian.PutUint16(p[38:40], flagsAndLength(total-38))
	binary.BigEndian.PutUint32(p[40:44], 0x00000002) // VECTOR_E131_DATA_PACKET
	name := opts.SourceName
	if len(name) > sourceNameLen-1 {
		name = name[:sourceNameLen-1]
	}
	copy(p[44:44+sourceNameLen], name)
	p[108] = opts.Priority
	binary.BigEndian.PutUint16(p[109:111], 0) // synchronization address
	p[111] = sequence
	p[112] = 0 // options
	binary.BigEndian.PutUint16(p[113:115], universe)

	// DMP layer
	binary.BigEndian.PutUint16(p[115:117], flagsAndLength(total-115))
	p[117] = 0x02 // VECTOR_DMP_SET_PROPERTY
	p[118] = 0xa1 // address type & data type
	binary.BigEndian.PutUint16(p[119:121], 0x0000)
	binary.BigEndian.PutUint16(p[121:123], 0x0001)
	binary.BigEndian.PutUint16(p[123:125], uint16(len(slots)+1))
	p[125] = 0x00 // DMX start code
	copy(p[HeaderLen:], slots)

	return p
}

// Universe extracts the universe number from a data packet.
func Universe(packet []byte) (uint16, bool) {
	if len(packet) < HeaderLen {
		return 0, false
	}
	return binary.BigEndian.Uint16(packet[113:115]), true
}

// Slots returns the DMX slot data of a data packet.
func Slots(packet []byte) []byte {
	if len(packet) < HeaderLen {
		return nil
	}
	return packet[HeaderLen:]
}

// MulticastAddr returns the multicast group for a universe (239.255.hi.lo).
func MulticastAddr(universe uint16) net.IP {
	return net.IPv4(239, 255, byte(universe>>8), byte(universe&0xff))
}

// ValidateUniverse checks that a universe number is inside the sACN range.
func ValidateUniverse(u int) error {
	if u < MinUniverse || u > MaxUniverse {
		return fmt.Errorf("universe %d outside %d-%d", u, MinUniverse, MaxUniverse)
	}
	return nil
}
