package frame

import (
	"errors"
	"fmt"

	"github.com/bbernstein/lacylights-pixels/internal/services/fade"
)

// ErrShapeMismatch is returned when an effect hands back a buffer whose
// length differs from the device's pixel count.
var ErrShapeMismatch = errors.New("frame shape mismatch")

// Settings are the per-device values the assembler needs.
type Settings struct {
	PixelCount    int
	MaxBrightness float64
	CenterOffset  int
	ForceRefresh  bool
}

// Assemble builds the next frame from the active effect and the effect fading
// out, advancing the fade timer by one frame. It returns nil when there is
// nothing to send: no effects, or neither effect dirty and ForceRefresh unset.
//
// A buffer of the wrong length is never padded or truncated; it fails with
// ErrShapeMismatch.
func Assemble(active, fadeout Effect, s Settings, st *fade.State) (Pixels, error) {
	if active == nil && fadeout == nil {
		return nil, nil
	}
	activeDirty := active != nil && active.IsDirty()
	fadeoutDirty := fadeout != nil && fadeout.IsDirty()
	if !activeDirty && !fadeoutDirty && !s.ForceRefresh {
		return nil, nil
	}

	out := NewPixels(s.PixelCount)

	if active != nil {
		p, err := source(active, s)
		if err != nil {
			return nil, fmt.Errorf("active effect: %w", err)
		}
		p.Scale(st.Step())
		out.Add(p)
	}

	if fadeout != nil {
		p, err := source(fadeout, s)
		if err != nil {
			return nil, fmt.Errorf("fadeout effect: %w", err)
		}
		p.Scale(st.FadeoutWeight())
		out.Add(p)
	}

	out.Clamp()
	return out, nil
}

// source reads one effect and applies brightness and centre offset. The dirty
// flag is cleared unless ForceRefresh keeps it set.
func source(e Effect, s Settings) (Pixels, error) {
	p := e.Pixels()
	e.SetDirty(s.ForceRefresh)
	if len(p) != s.PixelCount {
		return nil, fmt.Errorf("%w: got %d pixels, device has %d", ErrShapeMismatch, len(p), s.PixelCount)
	}
	p.Scale(s.MaxBrightness)
	p.Clamp()
	return p.Roll(s.CenterOffset), nil
}
