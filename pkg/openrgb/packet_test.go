package openrgb

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateLEDs(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}
	packet := BuildUpdateLEDs(3, data)

	h, ok := ParseHeader(packet)
	require.True(t, ok)
	assert.Equal(t, uint32(3), h.DeviceID)
	assert.Equal(t, PacketUpdateLEDs, h.PacketID)
	assert.Equal(t, uint32(len(packet)-HeaderLen), h.Size)

	body := packet[HeaderLen:]
	assert.Equal(t, h.Size, binary.LittleEndian.Uint32(body[0:4]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(body[4:6]))
	assert.Equal(t, []byte{1, 2, 3, 0, 4, 5, 6, 0}, body[6:])
}

func TestBuildSetClientName(t *testing.T) {
	packet := BuildSetClientName("LacyLights")

	h, ok := ParseHeader(packet)
	require.True(t, ok)
	assert.Equal(t, PacketSetClientName, h.PacketID)
	assert.Equal(t, uint32(len("LacyLights")+1), h.Size)
	assert.Equal(t, byte(0), packet[len(packet)-1])
}

// controllerData encodes the leading fields of a controller description.
func controllerData(name string) []byte {
	body := make([]byte, 10, 10+len(name)+1+8)
	binary.LittleEndian.PutUint32(body[4:8], 2) // keyboard
	binary.LittleEndian.PutUint16(body[8:10], uint16(len(name)+1))
	body = append(body, name...)
	body = append(body, 0)
	body = append(body, make([]byte, 8)...) // vendor and the rest
	binary.LittleEndian.PutUint32(body[0:4], uint32(len(body)))
	return body
}

func TestControllerQueries(t *testing.T) {
	h, ok := ParseHeader(BuildRequestControllerCount())
	require.True(t, ok)
	assert.Equal(t, PacketRequestControllerCount, h.PacketID)
	assert.Equal(t, uint32(0), h.Size)

	h, ok = ParseHeader(BuildRequestControllerData(4))
	require.True(t, ok)
	assert.Equal(t, PacketRequestControllerData, h.PacketID)
	assert.Equal(t, uint32(4), h.DeviceID)
	assert.Equal(t, uint32(0), h.Size)
}

func TestParseControllerCount(t *testing.T) {
	n, err := ParseControllerCount([]byte{3, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)

	_, err = ParseControllerCount([]byte{3})
	assert.ErrorIs(t, err, ErrShortBody)
}

func TestParseControllerName(t *testing.T) {
	name, err := ParseControllerName(controllerData("Corsair K70"))
	require.NoError(t, err)
	assert.Equal(t, "Corsair K70", name)

	body := controllerData("Corsair K70")
	_, err = ParseControllerName(body[:14])
	assert.ErrorIs(t, err, ErrShortBody)
	_, err = ParseControllerName(body[:6])
	assert.ErrorIs(t, err, ErrShortBody)
}

func TestParseHeader_BadMagic(t *testing.T) {
	_, ok := ParseHeader(make([]byte, HeaderLen))
	assert.False(t, ok)
}
