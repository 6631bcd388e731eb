// Package wled encodes the WLED UDP realtime protocol family (WARLS, DRGB,
// DRGBW and DNRGB) and chooses between them for a given frame.
//
// All encoders take pixel data as a flat RGB byte slice (3 bytes per pixel).
package wled

import (
	"fmt"
	"strings"
)

// DefaultPort is the WLED realtime UDP port.
const DefaultPort = 21324

// Format identifies one realtime packet layout.
type Format string

const (
	// FormatWARLS sends [index, R, G, B] only for pixels that changed.
	FormatWARLS Format = "WARLS"
	// FormatDRGB sends every pixel as RGB.
	FormatDRGB Format = "DRGB"
	// FormatDRGBW sends every pixel as RGBW with W = 0.
	FormatDRGBW Format = "DRGBW"
	// FormatDNRGB sends RGB for a range of pixels starting at an index.
	FormatDNRGB Format = "DNRGB"
	// FormatAdaptive picks the cheapest valid format per frame.
	FormatAdaptive Format = "ADAPTIVE"
)

// Protocol bytes and per-packet pixel ceilings.
const (
	protoWARLS byte = 1
	protoDRGB  byte = 2
	protoDRGBW byte = 3
	protoDNRGB byte = 4

	WARLSMaxPixels = 255
	DRGBMaxPixels  = 490
	DRGBWMaxPixels = 367
	DNRGBMaxPixels = 489
)

// ParseFormat converts a configuration string to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case FormatWARLS, FormatDRGB, FormatDRGBW, FormatDNRGB, FormatAdaptive:
		return f, nil
	}
	return "", fmt.Errorf("unknown realtime packet type %q", s)
}

// MaxPixels returns the per-packet pixel ceiling of a single-packet format.
// DNRGB and ADAPTIVE are unbounded because they chunk.
func (f Format) MaxPixels() int {
	switch f {
	case FormatWARLS:
		return WARLSMaxPixels
	case FormatDRGB:
		return DRGBMaxPixels
	case FormatDRGBW:
		return DRGBWMaxPixels
	}
	return 0
}

// Supports reports whether the format can carry pixelCount pixels.
func (f Format) Supports(pixelCount int) bool {
	limit := f.MaxPixels()
	return limit == 0 || pixelCount <= limit
}

func timeoutByte(timeout byte) byte {
	if timeout == 0 {
		return 1
	}
	return timeout
}

// ChangedPixels returns the indexes of pixels that differ from last.
// A nil or differently sized last frame marks every pixel as changed.
func ChangedPixels(data, last []byte) []int {
	n := len(data) / 3
	changed := make([]int, 0, n)
	if len(last) != len(data) {
		for i := 0; i < n; i++ {
			changed = append(changed, i)
		}
		return changed
	}
	for i := 0; i < n; i++ {
		o := i * 3
		if data[o] != last[o] || data[o+1] != last[o+1] || data[o+2] != last[o+2] {
			changed = append(changed, i)
		}
	}
	return changed
}

// BuildWARLS encodes the pixels that differ from last.
// Pixels beyond index 255 cannot be addressed and are ignored.
func BuildWARLS(data []byte, timeout byte, last []byte) []byte {
	changed := ChangedPixels(data, last)
	packet := make([]byte, 2, 2+len(changed)*4)
	packet[0] = protoWARLS
	packet[1] = timeoutByte(timeout)
	for _, i := range changed {
		if i > 0xff {
			break
		}
		o := i * 3
		packet = append(packet, byte(i), data[o], data[o+1], data[o+2])
	}
	return packet
}

// BuildDRGB encodes a full frame as RGB.
func BuildDRGB(data []byte, timeout byte) []byte {
	packet := make([]byte, 2, 2+len(data))
	packet[0] = protoDRGB
	packet[1] = timeoutByte(timeout)
	return append(packet, data...)
}

// BuildDRGBW encodes a full frame as RGBW with an unused white channel.
func BuildDRGBW(data []byte, timeout byte) []byte {
	n := len(data) / 3
	packet := make([]byte, 2+n*4)
	packet[0] = protoDRGBW
	packet[1] = timeoutByte(timeout)
	for i := 0; i < n; i++ {
		copy(packet[2+i*4:2+i*4+3], data[i*3:i*3+3])
	}
	return packet
}

// BuildDNRGB encodes a range of pixels starting at start.
func BuildDNRGB(data []byte, timeout byte, start uint16) []byte {
	packet := make([]byte, 4, 4+len(data))
	packet[0] = protoDNRGB
	packet[1] = timeoutByte(timeout)
	packet[2] = byte(start >> 8)
	packet[3] = byte(start & 0xff)
	return append(packet, data...)
}

// DNRGBPackets splits a frame into DNRGB packets of at most DNRGBMaxPixels.
func DNRGBPackets(data []byte, timeout byte) [][]byte {
	n := len(data) / 3
	if n == 0 {
		return [][]byte{BuildDNRGB(nil, timeout, 0)}
	}
	packets := make([][]byte, 0, (n+DNRGBMaxPixels-1)/DNRGBMaxPixels)
	for start := 0; start < n; start += DNRGBMaxPixels {
		end := start + DNRGBMaxPixels
		if end > n {
			end = n
		}
		packets = append(packets, BuildDNRGB(data[start*3:end*3], timeout, uint16(start)))
	}
	return packets
}

// Choose returns the format to use for a frame of pixelCount pixels of
// which changed differ from the previous frame.
//
// ADAPTIVE compares the diff cost (4 bytes per changed pixel) with the full
// frame cost (3 bytes per pixel) and falls back to DNRGB when neither
// single-packet format can carry the frame. A configured single-packet
// format that cannot carry pixelCount also falls back to DNRGB; fallback
// reports whether that happened.
func Choose(configured Format, pixelCount, changed int) (f Format, fallback bool) {
	if configured == FormatAdaptive {
		if FormatWARLS.Supports(pixelCount) && changed*4 < pixelCount*3 {
			return FormatWARLS, false
		}
		if FormatDRGB.Supports(pixelCount) {
			return FormatDRGB, false
		}
		return FormatDNRGB, false
	}
	if configured.Supports(pixelCount) {
		return configured, false
	}
	return FormatDNRGB, true
}

// Encode builds the packets for one frame in the given format.
func Encode(f Format, data []byte, timeout byte, last []byte) [][]byte {
	switch f {
	case FormatWARLS:
		return [][]byte{BuildWARLS(data, timeout, last)}
	case FormatDRGB:
		return [][]byte{BuildDRGB(data, timeout)}
	case FormatDRGBW:
		return [][]byte{BuildDRGBW(data, timeout)}
	default:
		return DNRGBPackets(data, timeout)
	}
}
