// Package dmx plans how a flat pixel buffer maps onto DMX-derived addressing
// units: sACN universes spanned by a channel range, and Art-Net sub-device
// layouts chunked into fixed-size packets.
package dmx

import (
	"errors"
	"fmt"
)

const (
	// UniverseSize is the number of channels per DMX universe.
	UniverseSize = 512
	// DefaultUniverseSize keeps RGB pixels from straddling universes (170 pixels).
	DefaultUniverseSize = 510
	// ChannelsPerPixel is the channel count of one RGB pixel.
	ChannelsPerPixel = 3
)

// ErrInvalidPlan is returned when addressing parameters cannot be satisfied.
var ErrInvalidPlan = errors.New("invalid dmx addressing")

// Span is the part of the flat channel array that lands in one universe.
type Span struct {
	Universe int
	// DMXStart and DMXEnd are the half-open slot range inside the universe.
	DMXStart int
	DMXEnd   int
	// InputStart and InputEnd are the half-open range in the flat channel array.
	InputStart int
	InputEnd   int
}

// Len returns the number of channels in the span.
func (s Span) Len() int {
	return s.InputEnd - s.InputStart
}

// UniversePlan describes a channel range spread across consecutive universes.
type UniversePlan struct {
	UniverseStart int
	UniverseEnd   int
	UniverseSize  int
	ChannelOffset int
	ChannelCount  int
	Spans         []Span
}

// PlanUniverses computes the universes covered by channelCount channels
// placed channelOffset slots into universeStart, and the slice of the flat
// channel array that lands in each.
//
// The last channel sits at offset+count-1, so the final universe is
// universeStart + (offset+count-1)/universeSize.
func PlanUniverses(universeStart, channelOffset, channelCount, universeSize int) (UniversePlan, error) {
	if universeSize <= 0 || universeSize > UniverseSize {
		return UniversePlan{}, fmt.Errorf("%w: universe size %d outside 1-%d", ErrInvalidPlan, universeSize, UniverseSize)
	}
	if channelCount <= 0 {
		return UniversePlan{}, fmt.Errorf("%w: channel count %d", ErrInvalidPlan, channelCount)
	}
	if channelOffset < 0 || channelOffset >= universeSize {
		return UniversePlan{}, fmt.Errorf("%w: channel offset %d outside 0-%d", ErrInvalidPlan, channelOffset, universeSize-1)
	}

	plan := UniversePlan{
		UniverseStart: universeStart,
		UniverseEnd:   universeStart + (channelOffset+channelCount-1)/universeSize,
		UniverseSize:  universeSize,
		ChannelOffset: channelOffset,
		ChannelCount:  channelCount,
	}

	end := channelOffset + channelCount
	for u := plan.UniverseStart; u <= plan.UniverseEnd; u++ {
		k := u - plan.UniverseStart
		lo := k * universeSize
		hi := lo + universeSize
		if lo < channelOffset {
			lo = channelOffset
		}
		if hi > end {
			hi = end
		}
		plan.Spans = append(plan.Spans, Span{
			Universe:   u,
			DMXStart:   lo - k*universeSize,
			DMXEnd:     hi - k*universeSize,
			InputStart: lo - channelOffset,
			InputEnd:   hi - channelOffset,
		})
	}
	return plan, nil
}

// Universes returns the number of universes in the plan.
func (p UniversePlan) Universes() int {
	return p.UniverseEnd - p.UniverseStart + 1
}

// Fill copies each span of channels into the matching universe buffer.
// Buffers are created on demand with UniverseSize slots; slots outside a
// span keep their previous value.
func (p UniversePlan) Fill(channels []byte, universes map[int][]byte) error {
	if len(channels) != p.ChannelCount {
		return fmt.Errorf("%w: got %d channels, plan expects %d", ErrInvalidPlan, len(channels), p.ChannelCount)
	}
	for _, s := range p.Spans {
		buf := universes[s.Universe]
		if buf == nil {
			buf = make([]byte, UniverseSize)
			universes[s.Universe] = buf
		}
		copy(buf[s.DMXStart:s.DMXEnd], channels[s.InputStart:s.InputEnd])
	}
	return nil
}
