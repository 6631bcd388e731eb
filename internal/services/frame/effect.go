package frame

import (
	"sync"
)

// Effect produces pixel buffers for a device. Implementations are driven by
// their own producer and must be safe for concurrent use: the device loop
// reads them while the producer writes.
type Effect interface {
	// Activate sizes the effect for a device with pixelCount pixels.
	Activate(pixelCount int)
	// Deactivate releases the effect's resources.
	Deactivate()
	// IsDirty reports whether the pixels changed since the flag was cleared.
	IsDirty() bool
	// SetDirty sets the dirty flag.
	SetDirty(dirty bool)
	// Pixels returns a snapshot of the current buffer.
	Pixels() Pixels
}

// Base is an embeddable Effect implementation holding a buffer and a dirty
// flag. Producers call Set with each new buffer.
type Base struct {
	mu     sync.Mutex
	pixels Pixels
	dirty  bool
	active bool
}

// Activate allocates a black buffer of pixelCount pixels.
func (b *Base) Activate(pixelCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pixels = NewPixels(pixelCount)
	b.active = true
	b.dirty = true
}

// Deactivate drops the buffer.
func (b *Base) Deactivate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pixels = nil
	b.active = false
	b.dirty = false
}

// Active reports whether the effect is attached to a device.
func (b *Base) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Base) IsDirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

func (b *Base) SetDirty(dirty bool) {
	b.mu.Lock()
	b.dirty = dirty
	b.mu.Unlock()
}

func (b *Base) Pixels() Pixels {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pixels.Clone()
}

// Set replaces the buffer and marks it dirty. The buffer is copied.
func (b *Base) Set(p Pixels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pixels = p.Clone()
	b.dirty = true
}

// Solid shows one colour on every pixel.
type Solid struct {
	Base
	color RGB
}

// NewSolid returns a solid colour effect.
func NewSolid(c RGB) *Solid {
	return &Solid{color: c}
}

// Activate fills the buffer with the effect's colour.
func (s *Solid) Activate(pixelCount int) {
	p := NewPixels(pixelCount)
	p.Fill(s.color)
	s.Base.Activate(pixelCount)
	s.Base.Set(p)
}

// Color returns the effect's colour.
func (s *Solid) Color() RGB {
	return s.color
}
