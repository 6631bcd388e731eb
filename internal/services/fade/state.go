package fade

import (
	"math"
	"time"
)

// Phase is the direction of a cross-fade.
type Phase int

const (
	// Steady means no fade is in progress.
	Steady Phase = iota
	// FadingIn means a newly set effect is rising while the previous one falls.
	FadingIn
	// FadingOut means the active effect is falling toward black.
	FadingOut
)

func (p Phase) String() string {
	switch p {
	case FadingIn:
		return "fading_in"
	case FadingOut:
		return "fading_out"
	default:
		return "steady"
	}
}

// Frames converts a cross-fade length into a frame count at the given rate.
func Frames(refreshRate int, crossfade time.Duration) int {
	if refreshRate <= 0 || crossfade <= 0 {
		return 0
	}
	return int(math.Round(float64(refreshRate) * crossfade.Seconds()))
}

// State is a device's cross-fade timer. Timer counts frames toward zero:
// positive while fading in, negative while fading out.
//
// State is not safe for concurrent use; it belongs to one device loop.
type State struct {
	Timer    int
	Duration int
	Curve    Curve

	phase    Phase
	deadline time.Time
}

// FadeIn starts fading in over frames frames. The fade also completes once
// wall time passes now+limit, whichever comes first.
func (s *State) FadeIn(frames int, limit time.Duration, now time.Time) {
	s.start(FadingIn, frames, limit, now)
	s.Timer = s.Duration
}

// FadeOut starts fading the active effect out toward black.
func (s *State) FadeOut(frames int, limit time.Duration, now time.Time) {
	s.start(FadingOut, frames, limit, now)
	s.Timer = -s.Duration
}

func (s *State) start(p Phase, frames int, limit time.Duration, now time.Time) {
	if frames < 0 {
		frames = 0
	}
	s.phase = p
	s.Duration = frames
	s.deadline = now.Add(limit)
}

// Phase returns the fade in progress.
func (s *State) Phase() Phase {
	return s.phase
}

// Step returns the multiplier for the active effect's current frame and
// advances the timer one frame toward zero.
func (s *State) Step() float64 {
	if s.Timer == 0 || s.Duration == 0 {
		return 1
	}
	var m float64
	if s.Timer > 0 {
		m = s.Curve.Apply(1 - float64(s.Timer)/float64(s.Duration))
		s.Timer--
	} else {
		m = 1 - s.Curve.Apply(1-float64(-s.Timer)/float64(s.Duration))
		s.Timer++
	}
	return m
}

// FadeoutWeight returns the weight of the outgoing effect at the current
// timer. While fading out it follows the active multiplier so both sources
// reach black together.
func (s *State) FadeoutWeight() float64 {
	if s.Duration == 0 {
		return 0
	}
	switch {
	case s.Timer > 0:
		return 1 - s.Curve.Apply(1-float64(s.Timer)/float64(s.Duration))
	case s.Timer < 0:
		return 1 - s.Curve.Apply(1-float64(-s.Timer)/float64(s.Duration))
	}
	return 0
}

// Done reports whether the fade in progress has finished, either because the
// timer reached zero or the wall clock limit passed. It returns the phase that
// finished and resets the state to Steady.
func (s *State) Done(now time.Time) (Phase, bool) {
	if s.phase == Steady {
		return Steady, false
	}
	if s.Timer != 0 && now.Before(s.deadline) {
		return s.phase, false
	}
	p := s.phase
	s.phase = Steady
	s.Timer = 0
	return p, true
}

// Reset cancels any fade in progress.
func (s *State) Reset() {
	s.phase = Steady
	s.Timer = 0
}
