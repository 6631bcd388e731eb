package device

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/internal/services/frame"
	"github.com/bbernstein/lacylights-pixels/internal/services/output"
	"github.com/bbernstein/lacylights-pixels/internal/services/pubsub"
)

// fakes builds one fakeTransport per device name.
type fakes struct {
	mu    sync.Mutex
	byDev map[string]*fakeTransport
	delay map[string]time.Duration
}

func (f *fakes) factory(cfg config.DeviceConfig, _ logger.Logger) (output.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tr := &fakeTransport{flushDelay: f.delay[cfg.Name]}
	f.byDev[cfg.Name] = tr
	return tr, nil
}

func (f *fakes) get(name string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byDev[name]
}

func newTestRegistry(t *testing.T) (*Registry, *fakes) {
	t.Helper()
	f := &fakes{byDev: make(map[string]*fakeTransport)}
	r := NewRegistry(logger.Discard(), pubsub.New(), 0, map[string]TransportFactory{
		config.TypeDDP: f.factory,
	})
	t.Cleanup(r.Shutdown)
	return r, f
}

func named(name string) config.DeviceConfig {
	cfg := testConfig()
	cfg.Name = name
	return cfg
}

func TestRegistry_Create(t *testing.T) {
	r, _ := newTestRegistry(t)

	d, err := r.Create("a", config.TypeDDP, named("a"))
	require.NoError(t, err)
	assert.Equal(t, "a", d.ID())
	assert.Equal(t, config.TypeDDP, d.Type())
	assert.False(t, d.Active())

	_, err = r.Create("a", config.TypeDDP, named("a"))
	assert.ErrorIs(t, err, ErrDeviceExists)

	_, err = r.Create("b", "dmx", named("b"))
	assert.ErrorIs(t, err, ErrUnknownType)

	bad := named("c")
	bad.PixelCount = 0
	_, err = r.Create("c", config.TypeDDP, bad)
	assert.ErrorIs(t, err, config.ErrInvalidDevice)
	_, err = r.Get("c")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestRegistry_ListSorted(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, id := range []string{"c", "a", "b"} {
		_, err := r.Create(id, config.TypeDDP, named(id))
		require.NoError(t, err)
	}

	var ids []string
	for _, d := range r.List() {
		ids = append(ids, d.ID())
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestRegistry_Remove(t *testing.T) {
	r, f := newTestRegistry(t)
	d, err := r.Create("a", config.TypeDDP, named("a"))
	require.NoError(t, err)

	solid := frame.NewSolid(red)
	require.NoError(t, d.SetEffect(solid))
	require.Eventually(t, func() bool { return len(f.get("a").Frames()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, r.Remove("a"))
	assert.False(t, d.Active())
	assert.False(t, solid.Active())
	assert.ErrorIs(t, r.Remove("a"), ErrDeviceNotFound)
	assert.Empty(t, r.List())
}

func TestRegistry_Reconfigure(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Create("a", config.TypeDDP, named("a"))
	require.NoError(t, err)

	cfg := named("a")
	cfg.MaxBrightness = 0.5
	require.NoError(t, r.Reconfigure("a", cfg))
	d, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 0.5, d.Config().MaxBrightness)

	assert.ErrorIs(t, r.Reconfigure("zz", cfg), ErrDeviceNotFound)
}

func TestRegistry_ClearAllEffects(t *testing.T) {
	r, f := newTestRegistry(t)
	for _, id := range []string{"a", "b"} {
		d, err := r.Create(id, config.TypeDDP, named(id))
		require.NoError(t, err)
		require.NoError(t, d.SetEffect(frame.NewSolid(red)))
	}
	require.Eventually(t, func() bool {
		return len(f.get("a").Frames()) > 0 && len(f.get("b").Frames()) > 0
	}, time.Second, time.Millisecond)

	r.ClearAllEffects()
	require.Eventually(t, func() bool {
		for _, d := range r.List() {
			if d.Active() {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)
}

func TestRegistry_Shutdown(t *testing.T) {
	r, f := newTestRegistry(t)
	var effects []*frame.Solid
	for _, id := range []string{"a", "b"} {
		d, err := r.Create(id, config.TypeDDP, named(id))
		require.NoError(t, err)
		solid := frame.NewSolid(red)
		effects = append(effects, solid)
		require.NoError(t, d.SetEffect(solid))
	}
	require.Eventually(t, func() bool {
		return len(f.get("a").Frames()) > 0 && len(f.get("b").Frames()) > 0
	}, time.Second, time.Millisecond)

	r.Shutdown()

	for _, id := range []string{"a", "b"} {
		tr := f.get(id)
		frames := tr.Frames()
		assert.Equal(t, make([]byte, 9), frames[len(frames)-1], id)
		events := tr.Events()
		assert.Equal(t, "deactivate", events[len(events)-1], id)
	}

	for _, solid := range effects {
		assert.False(t, solid.Active(), "effects are unbound on shutdown")
	}
	for _, d := range r.List() {
		assert.False(t, d.Status().Effect, d.ID())
	}

	d, err := r.Get("a")
	require.NoError(t, err)
	assert.ErrorIs(t, d.Activate(), ErrShutdown)
	r.Shutdown()
}

func TestRegistry_SlowDeviceDoesNotStallOthers(t *testing.T) {
	f := &fakes{byDev: make(map[string]*fakeTransport), delay: map[string]time.Duration{"slow": 200 * time.Millisecond}}
	r := NewRegistry(logger.Discard(), pubsub.New(), 0, map[string]TransportFactory{
		config.TypeDDP: f.factory,
	})
	t.Cleanup(r.Shutdown)

	for _, id := range []string{"slow", "fast"} {
		cfg := named(id)
		cfg.RefreshRate = 100
		cfg.ForceRefresh = true
		d, err := r.Create(id, config.TypeDDP, cfg)
		require.NoError(t, err)
		require.NoError(t, d.SetEffect(frame.NewSolid(red)))
	}
	time.Sleep(500 * time.Millisecond)
	r.Shutdown()

	// 50 ticks at 10ms while the other device spends 200ms in every send
	assert.GreaterOrEqual(t, len(f.get("fast").Frames()), 40)
	assert.LessOrEqual(t, len(f.get("slow").Frames()), 6)
}

func TestDefaultFactories(t *testing.T) {
	factories := DefaultFactories()

	for _, deviceType := range []string{
		config.TypeUDP, config.TypeUDPRealtime, config.TypeDDP, config.TypeArtNet,
		config.TypeE131, config.TypeAdalight, config.TypeOpenRGB, config.TypeWLED,
	} {
		t.Run(deviceType, func(t *testing.T) {
			build, ok := factories[deviceType]
			require.True(t, ok)

			cfg := config.DefaultDeviceConfig(deviceType)
			cfg.Name = deviceType
			cfg.PixelCount = 10
			cfg.IPAddress = "127.0.0.1"
			if cfg.Port == 0 {
				cfg.Port = 7777
			}
			cfg.SerialPort = "/dev/ttyUSB0"

			tr, err := build(cfg, logger.Discard())
			require.NoError(t, err)
			assert.NotNil(t, tr)

			cfg.PixelCount = 0
			tr, err = build(cfg, logger.Discard())
			assert.ErrorIs(t, err, config.ErrInvalidDevice)
			assert.Nil(t, tr)
		})
	}
	assert.Len(t, factories, 8)
}

func TestDefaultFactories_WLEDSyncMode(t *testing.T) {
	build := DefaultFactories()[config.TypeWLED]

	tests := []struct {
		syncMode string
		want     output.Transport
	}{
		{config.SyncDDP, &output.DDPTransport{}},
		{config.SyncUDP, &output.RealtimeTransport{}},
		{config.SyncE131, &output.E131Transport{}},
	}
	for _, tt := range tests {
		t.Run(tt.syncMode, func(t *testing.T) {
			cfg := config.DefaultDeviceConfig(config.TypeWLED)
			cfg.Name = "matrix"
			cfg.PixelCount = 256
			cfg.IPAddress = "127.0.0.1"
			cfg.SyncMode = tt.syncMode

			tr, err := build(cfg, logger.Discard())
			require.NoError(t, err)
			assert.IsType(t, tt.want, tr)
		})
	}

	cfg := config.DefaultDeviceConfig(config.TypeWLED)
	cfg.PixelCount = 10
	cfg.IPAddress = "127.0.0.1"
	cfg.SyncMode = "SERIAL"
	_, err := build(cfg, logger.Discard())
	assert.ErrorIs(t, err, config.ErrInvalidDevice)
}
