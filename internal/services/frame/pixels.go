// Package frame holds pixel buffers, the effect contract that produces them,
// and the assembler that turns effect output into the frame a device sends.
package frame

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// RGB is one pixel. Channels are 0-255 but carried as floats so frames can be
// scaled and blended before the final clamp.
type RGB [3]float64

// Pixels is an ordered pixel buffer.
type Pixels []RGB

// NewPixels returns an all-black buffer of n pixels.
func NewPixels(n int) Pixels {
	return make(Pixels, n)
}

// Clone returns a copy of the buffer.
func (p Pixels) Clone() Pixels {
	if p == nil {
		return nil
	}
	out := make(Pixels, len(p))
	copy(out, p)
	return out
}

// Fill sets every pixel to c.
func (p Pixels) Fill(c RGB) {
	for i := range p {
		p[i] = c
	}
}

// Scale multiplies every channel by f in place.
func (p Pixels) Scale(f float64) {
	for i := range p {
		p[i][0] *= f
		p[i][1] *= f
		p[i][2] *= f
	}
}

// Clamp limits every channel to 0-255 in place.
func (p Pixels) Clamp() {
	for i := range p {
		for c := 0; c < 3; c++ {
			p[i][c] = clampChannel(p[i][c])
		}
	}
}

// Add adds o to p element-wise. o must be the same length.
func (p Pixels) Add(o Pixels) {
	for i := range p {
		p[i][0] += o[i][0]
		p[i][1] += o[i][1]
		p[i][2] += o[i][2]
	}
}

// Roll rotates the buffer by offset positions: pixel i moves to i+offset,
// wrapping around.
func (p Pixels) Roll(offset int) Pixels {
	n := len(p)
	if n == 0 {
		return p
	}
	offset %= n
	if offset < 0 {
		offset += n
	}
	if offset == 0 {
		return p
	}
	out := make(Pixels, n)
	copy(out[offset:], p[:n-offset])
	copy(out[:offset], p[n-offset:])
	return out
}

// Bytes flattens the buffer to R,G,B bytes, rounding and clamping each channel.
func (p Pixels) Bytes() []byte {
	out := make([]byte, len(p)*3)
	for i, px := range p {
		out[i*3] = toByte(px[0])
		out[i*3+1] = toByte(px[1])
		out[i*3+2] = toByte(px[2])
	}
	return out
}

// IsBlack reports whether every channel rounds to zero.
func (p Pixels) IsBlack() bool {
	for _, px := range p {
		if toByte(px[0]) != 0 || toByte(px[1]) != 0 || toByte(px[2]) != 0 {
			return false
		}
	}
	return true
}

func clampChannel(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func toByte(v float64) byte {
	return byte(math.Round(clampChannel(v)))
}

// ParseColor parses a hex colour such as "#ff8800" or "ff8800".
func ParseColor(s string) (RGB, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "#"))
	if err != nil || len(raw) != 3 {
		return RGB{}, fmt.Errorf("invalid colour %q: want six hex digits", s)
	}
	return RGB{float64(raw[0]), float64(raw[1]), float64(raw[2])}, nil
}
