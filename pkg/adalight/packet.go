// Package adalight builds Adalight serial frames.
package adalight

import (
	"fmt"
	"strings"
)

// DefaultBaudRate is the lowest baud rate supported for streaming.
const DefaultBaudRate = 115200

// HeaderLen is the size of the "Ada" header including count and checksum.
const HeaderLen = 6

// ColorOrder is the channel order expected by the LED strip.
type ColorOrder string

// Supported color orders.
const (
	RGB ColorOrder = "RGB"
	RBG ColorOrder = "RBG"
	GRB ColorOrder = "GRB"
	GBR ColorOrder = "GBR"
	BRG ColorOrder = "BRG"
	BGR ColorOrder = "BGR"
)

// source index of each output byte, keyed by order
var permutations = map[ColorOrder][3]int{
	RGB: {0, 1, 2},
	RBG: {0, 2, 1},
	GRB: {1, 0, 2},
	GBR: {1, 2, 0},
	BRG: {2, 0, 1},
	BGR: {2, 1, 0},
}

// ParseColorOrder validates a color order string.
func ParseColorOrder(s string) (ColorOrder, error) {
	o := ColorOrder(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := permutations[o]; !ok {
		return "", fmt.Errorf("unsupported color order %q", s)
	}
	return o, nil
}

// Checksum returns the Adalight header checksum for a pixel count.
func Checksum(count uint16) byte {
	return byte(count>>8) ^ byte(count&0xff) ^ 0x55
}

// BuildPacket frames RGB pixel data for an Adalight receiver, reordering
// each pixel's channels to match order. Unknown orders are sent as RGB.
func BuildPacket(data []byte, order ColorOrder) []byte {
	n := len(data) / 3
	count := uint16(n)
	perm, ok := permutations[order]
	if !ok {
		perm = permutations[RGB]
	}

	packet := make([]byte, HeaderLen+n*3)
	packet[0], packet[1], packet[2] = 'A', 'd', 'a'
	packet[3] = byte(count >> 8)
	packet[4] = byte(count & 0xff)
	packet[5] = Checksum(count)

	out := packet[HeaderLen:]
	for i := 0; i < n; i++ {
		px := data[i*3 : i*3+3]
		out[i*3] = px[perm[0]]
		out[i*3+1] = px[perm[1]]
		out[i*3+2] = px[perm[2]]
	}
	return packet
}
