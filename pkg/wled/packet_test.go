package wled

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(n int, fill byte) []byte {
	data := make([]byte, n*3)
	for i := range data {
		data[i] = fill
	}
	return data
}

func TestBuildWARLS_OnlyChangedPixels(t *testing.T) {
	last := frame(100, 10)
	data := frame(100, 10)
	changed := []int{0, 7, 42, 99}
	for _, i := range changed {
		data[i*3] = 200
		data[i*3+2] = byte(i)
	}

	packet := BuildWARLS(data, 2, last)
	require.Len(t, packet, 2+len(changed)*4)
	assert.Equal(t, byte(1), packet[0])
	assert.Equal(t, byte(2), packet[1])

	seen := map[int]bool{}
	for r := 0; r < len(changed); r++ {
		rec := packet[2+r*4 : 2+r*4+4]
		idx := int(rec[0])
		assert.Less(t, idx, 100)
		assert.False(t, seen[idx], "duplicate index %d", idx)
		seen[idx] = true
		assert.Equal(t, data[idx*3:idx*3+3], rec[1:])
	}
	for _, i := range changed {
		assert.True(t, seen[i], "missing index %d", i)
	}
}

func TestBuildWARLS_NoPreviousFrame(t *testing.T) {
	data := frame(3, 5)
	packet := BuildWARLS(data, 0, nil)

	want := []byte{1, 1, 0, 5, 5, 5, 1, 5, 5, 5, 2, 5, 5, 5}
	if !bytes.Equal(packet, want) {
		t.Errorf("BuildWARLS() = %v, want %v", packet, want)
	}
}

func TestBuildDRGB(t *testing.T) {
	packet := BuildDRGB([]byte{1, 2, 3, 4, 5, 6}, 3)
	want := []byte{2, 3, 1, 2, 3, 4, 5, 6}
	if !bytes.Equal(packet, want) {
		t.Errorf("BuildDRGB() = %v, want %v", packet, want)
	}
}

func TestBuildDRGBW(t *testing.T) {
	packet := BuildDRGBW([]byte{1, 2, 3, 4, 5, 6}, 1)
	want := []byte{3, 1, 1, 2, 3, 0, 4, 5, 6, 0}
	if !bytes.Equal(packet, want) {
		t.Errorf("BuildDRGBW() = %v, want %v", packet, want)
	}
}

func TestBuildDNRGB(t *testing.T) {
	packet := BuildDNRGB([]byte{9, 8, 7}, 1, 0x0102)
	want := []byte{4, 1, 0x01, 0x02, 9, 8, 7}
	if !bytes.Equal(packet, want) {
		t.Errorf("BuildDNRGB() = %v, want %v", packet, want)
	}
}

func TestDNRGBPackets_Chunking(t *testing.T) {
	data := frame(1000, 1)
	packets := DNRGBPackets(data, 1)
	require.Len(t, packets, 3)

	starts := []uint16{0, 489, 978}
	total := 0
	for i, p := range packets {
		start := uint16(p[2])<<8 | uint16(p[3])
		assert.Equal(t, starts[i], start)
		total += (len(p) - 4) / 3
	}
	assert.Equal(t, 1000, total)
}

func TestChoose_Adaptive(t *testing.T) {
	tests := []struct {
		name    string
		pixels  int
		changed int
		want    Format
	}{
		{"few changes use diff", 100, 20, FormatWARLS},
		{"half changed still cheaper as diff", 100, 50, FormatWARLS},
		{"at cost threshold use full frame", 100, 75, FormatDRGB},
		{"most changed use full frame", 100, 90, FormatDRGB},
		{"diff cannot index past 255", 300, 1, FormatDRGB},
		{"too many for one packet", 600, 10, FormatDNRGB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fallback := Choose(FormatAdaptive, tt.pixels, tt.changed)
			assert.Equal(t, tt.want, got)
			assert.False(t, fallback)
		})
	}
}

func TestChoose_FallbackWhenConfiguredFormatTooSmall(t *testing.T) {
	got, fallback := Choose(FormatDRGBW, 400, 400)
	assert.Equal(t, FormatDNRGB, got)
	assert.True(t, fallback)

	got, fallback = Choose(FormatDRGB, 400, 400)
	assert.Equal(t, FormatDRGB, got)
	assert.False(t, fallback)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("dnrgb")
	require.NoError(t, err)
	assert.Equal(t, FormatDNRGB, f)

	_, err = ParseFormat("rgbx")
	assert.Error(t, err)
}
