// Package device runs one fixed-rate output loop per device: it assembles
// frames from the bound effects, sends them through the device's transport
// and reports frames and connection state to subscribers.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/internal/services/fade"
	"github.com/bbernstein/lacylights-pixels/internal/services/frame"
	"github.com/bbernstein/lacylights-pixels/internal/services/health"
	"github.com/bbernstein/lacylights-pixels/internal/services/output"
)

// ActivationRetry is the minimum time between attempts to activate a
// transport that failed to activate.
const ActivationRetry = time.Second

var (
	// ErrUnknownType is returned for a device type without a transport factory.
	ErrUnknownType = errors.New("unknown device type")
	// ErrDeviceExists is returned when creating a device with a taken id.
	ErrDeviceExists = errors.New("device already exists")
	// ErrDeviceNotFound is returned for an id that is not registered.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrShutdown is returned when activating after shutdown.
	ErrShutdown = errors.New("devices are shut down")
)

// Publisher receives the notifications a device emits.
type Publisher interface {
	PublishFrame(deviceID string, pixels frame.Pixels)
	PublishState(deviceID string, online bool)
}

// Options are the shared dependencies of every device.
type Options struct {
	Log       logger.Logger
	Publisher Publisher
	Crossfade time.Duration
	Shutdown  <-chan struct{}
}

// Status is a point-in-time view of a device.
type Status struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	PixelCount int    `json:"pixel_count"`
	Active     bool   `json:"active"`
	Online     bool   `json:"online"`
	Connection string `json:"connection"`
	Effect     bool   `json:"effect"`
	Fade       string `json:"fade"`
	Frames     uint64 `json:"frames"`
	Error      string `json:"error,omitempty"`
}

// Device drives one output. All effect, fade and transport state is guarded
// by mu and touched by the loop once per tick; the configuration is an
// immutable snapshot swapped atomically on reconfiguration. The snapshot is
// only stored with mu held, so anything sizing effects must load it under mu.
type Device struct {
	id        string
	kind      string
	factory   TransportFactory
	log       *logger.Log
	baseLog   logger.Logger
	pub       Publisher
	crossfade time.Duration
	shutdown  <-chan struct{}
	health    *health.Tracker
	now       func() time.Time

	config atomic.Pointer[config.DeviceConfig]
	frames atomic.Uint64

	mu        sync.Mutex
	active    frame.Effect
	fadeout   frame.Effect
	fade      fade.State
	transport output.Transport
	open      bool
	retryAt   time.Time
	running   bool
	stop      chan struct{}
	done      chan struct{}
	err       error
}

// New creates an inactive device. cfg must be valid for deviceType.
func New(id, deviceType string, cfg config.DeviceConfig, factory TransportFactory, opts Options) (*Device, error) {
	if err := cfg.Validate(deviceType); err != nil {
		return nil, fmt.Errorf("device %s: %w", id, err)
	}
	transport, err := factory(cfg, opts.Log)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", id, err)
	}

	d := &Device{
		id:        id,
		kind:      deviceType,
		factory:   factory,
		log:       opts.Log.With(logger.Fields{"module": "device", "device": id}),
		baseLog:   opts.Log,
		pub:       opts.Publisher,
		crossfade: opts.Crossfade,
		shutdown:  opts.Shutdown,
		health:    health.NewTracker(id, opts.Log, opts.Publisher.PublishState),
		now:       time.Now,
		transport: transport,
	}
	d.fade.Curve = cfg.Curve()
	d.config.Store(&cfg)
	return d, nil
}

// ID returns the device id.
func (d *Device) ID() string {
	return d.id
}

// Type returns the device type.
func (d *Device) Type() string {
	return d.kind
}

// Config returns the current configuration snapshot.
func (d *Device) Config() config.DeviceConfig {
	return *d.config.Load()
}

// PixelCount returns the configured number of pixels.
func (d *Device) PixelCount() int {
	return d.config.Load().PixelCount
}

// Active reports whether the device loop is running.
func (d *Device) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Err returns the error that halted the loop, if any.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Status returns a snapshot of the device.
func (d *Device) Status() Status {
	cfg := d.config.Load()
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Status{
		ID:         d.id,
		Type:       d.kind,
		Name:       cfg.Name,
		PixelCount: cfg.PixelCount,
		Active:     d.running,
		Online:     d.health.Online(),
		Connection: d.health.State().String(),
		Effect:     d.active != nil,
		Fade:       d.fade.Phase().String(),
		Frames:     d.frames.Load(),
	}
	if d.err != nil {
		s.Error = d.err.Error()
	}
	return s
}

// Activate starts the device loop. The transport is opened by the loop.
func (d *Device) Activate() error {
	select {
	case <-d.shutdown:
		return ErrShutdown
	default:
	}

	// a previous loop must finish its teardown first
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	prev := d.done
	d.mu.Unlock()
	if prev != nil {
		<-prev
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	d.running = true
	d.err = nil
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stop, d.done)
	d.log.Infof("activated at %d Hz", d.config.Load().RefreshRate)
	return nil
}

// Deactivate stops the loop. The loop sends one black frame, releases the
// transport and exits before Deactivate returns.
func (d *Device) Deactivate() {
	d.mu.Lock()
	done := d.done
	if d.running {
		d.running = false
		close(d.stop)
	}
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}

// SetEffect binds a new effect and fades it in. The previous effect, if any,
// fades out underneath it. An inactive device is activated.
func (d *Device) SetEffect(e frame.Effect) error {
	d.mu.Lock()
	cfg := d.config.Load()
	if d.fadeout != nil {
		d.fadeout.Deactivate()
		d.fadeout = nil
	}
	e.Activate(cfg.PixelCount)
	if d.active != nil {
		d.fadeout = d.active
	}
	d.active = e
	d.fade.FadeIn(fade.Frames(cfg.RefreshRate, d.crossfade), d.crossfade, d.now())
	d.mu.Unlock()

	return d.Activate()
}

// ClearEffect fades the active effect out. Once the fade completes the
// device goes black and deactivates. An inactive device drops its effects
// immediately.
func (d *Device) ClearEffect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := d.config.Load()
	if !d.running || d.active == nil {
		d.clearEffects()
		return
	}
	d.fade.FadeOut(fade.Frames(cfg.RefreshRate, d.crossfade), d.crossfade, d.now())
}

// clearEffects unbinds both effects. Called with mu held.
func (d *Device) clearEffects() {
	if d.active != nil {
		d.active.Deactivate()
		d.active = nil
	}
	if d.fadeout != nil {
		d.fadeout.Deactivate()
		d.fadeout = nil
	}
	d.fade.Reset()
}

// Reconfigure replaces the configuration. The transport is rebuilt and
// reopened on the next tick; bound effects are resized when the pixel count
// changes.
func (d *Device) Reconfigure(cfg config.DeviceConfig) error {
	if err := cfg.Validate(d.kind); err != nil {
		return fmt.Errorf("device %s: %w", d.id, err)
	}
	transport, err := d.factory(cfg, d.baseLog)
	if err != nil {
		return fmt.Errorf("device %s: %w", d.id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.config.Load()
	d.release()
	d.transport = transport
	d.retryAt = time.Time{}
	d.fade.Curve = cfg.Curve()
	if cfg.PixelCount != prev.PixelCount {
		if d.active != nil {
			d.active.Activate(cfg.PixelCount)
		}
		if d.fadeout != nil {
			d.fadeout.Deactivate()
			d.fadeout = nil
		}
		d.fade.Reset()
	}
	d.config.Store(&cfg)
	d.log.Infof("reconfigured: %d pixels at %d Hz", cfg.PixelCount, cfg.RefreshRate)
	return nil
}

// release deactivates the transport whatever state it is in. Called with mu held.
func (d *Device) release() {
	if err := d.transport.Deactivate(); err != nil {
		d.log.WithError(err).Debug("transport deactivate failed")
	}
	if d.open {
		d.open = false
		d.health.Disconnected()
	}
}

func (d *Device) run(stop, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			d.teardown()
			return
		case <-d.shutdown:
			d.teardown()
			return
		case <-timer.C:
		}

		start := time.Now()
		interval, err := d.tick()
		if err != nil {
			if !errors.Is(err, errFadedOut) {
				d.log.WithError(err).Error("device halted")
				d.mu.Lock()
				d.err = err
				d.mu.Unlock()
			}
			d.teardown()
			return
		}

		next := interval - time.Since(start)
		if next < 0 {
			next = 0
		}
		timer.Reset(next)
	}
}

// errFadedOut stops the loop after a cleared effect finished fading out.
var errFadedOut = errors.New("faded out")

// tick produces and sends at most one frame and returns the interval to the
// next tick. The config is loaded under mu so it always matches the effects'
// pixel count.
func (d *Device) tick() (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := d.config.Load()
	interval := time.Second / time.Duration(cfg.RefreshRate)
	now := d.now()
	if phase, done := d.fade.Done(now); done {
		switch phase {
		case fade.FadingIn:
			if d.fadeout != nil {
				d.fadeout.Deactivate()
				d.fadeout = nil
			}
		case fade.FadingOut:
			d.clearEffects()
			return interval, errFadedOut
		}
	}

	pixels, err := frame.Assemble(d.active, d.fadeout, frame.Settings{
		PixelCount:    cfg.PixelCount,
		MaxBrightness: cfg.MaxBrightness,
		CenterOffset:  cfg.CenterOffset,
		ForceRefresh:  cfg.ForceRefresh || d.fade.Phase() != fade.Steady,
	}, &d.fade)
	if err != nil {
		return interval, err
	}
	if pixels == nil {
		return interval, nil
	}

	d.frames.Add(1)
	if !cfg.PreviewOnly {
		d.send(pixels.Bytes(), false, now, false)
	}
	d.pub.PublishFrame(d.id, pixels)
	return interval, nil
}

// send flushes one frame, opening the transport first if needed. Failures
// are reported to the health tracker and never returned. Called with mu held.
func (d *Device) send(data []byte, force bool, now time.Time, ignoreRetry bool) {
	if !d.open {
		if !ignoreRetry && now.Before(d.retryAt) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), output.DefaultDialTimeout)
		err := d.transport.Activate(ctx)
		cancel()
		if err != nil {
			d.retryAt = now.Add(ActivationRetry)
			d.health.Failure(err)
			return
		}
		d.open = true
		d.health.Connecting()
	}
	if err := d.transport.Flush(data, force); err != nil {
		d.health.Failure(err)
		return
	}
	d.health.Success()
}

// teardown sends the final black frame and releases the transport. It runs
// on the loop goroutine so no tick can follow it.
func (d *Device) teardown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := d.config.Load()

	black := frame.NewPixels(cfg.PixelCount)
	if !cfg.PreviewOnly {
		d.send(black.Bytes(), true, d.now(), true)
	}
	d.pub.PublishFrame(d.id, black)
	d.release()
	d.running = false
	d.log.Info("deactivated")
}
