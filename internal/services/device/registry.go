package device

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
)

// Registry owns every device and the shutdown broadcast they share.
type Registry struct {
	mu        sync.RWMutex
	devices   map[string]*Device
	factories map[string]TransportFactory

	log       *logger.Log
	baseLog   logger.Logger
	pub       Publisher
	crossfade time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewRegistry creates an empty registry. factories maps device types to
// transport constructors, usually DefaultFactories().
func NewRegistry(log logger.Logger, pub Publisher, crossfade time.Duration, factories map[string]TransportFactory) *Registry {
	return &Registry{
		devices:   make(map[string]*Device),
		factories: factories,
		log:       log.With(logger.Fields{"module": "registry"}),
		baseLog:   log,
		pub:       pub,
		crossfade: crossfade,
		shutdown:  make(chan struct{}),
	}
}

// Create validates cfg and registers an inactive device.
func (r *Registry) Create(id, deviceType string, cfg config.DeviceConfig) (*Device, error) {
	factory, ok := r.factories[deviceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, deviceType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, id)
	}
	d, err := New(id, deviceType, cfg, factory, Options{
		Log:       r.baseLog,
		Publisher: r.pub,
		Crossfade: r.crossfade,
		Shutdown:  r.shutdown,
	})
	if err != nil {
		return nil, err
	}
	r.devices[id] = d
	r.log.Infof("created %s device %s (%d pixels)", deviceType, id, cfg.PixelCount)
	return d, nil
}

// Get returns a device by id.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d, nil
}

// List returns every device ordered by id.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	list := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		list = append(list, d)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}

// Remove deactivates a device, drops its effects and unregisters it.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	d, ok := r.devices[id]
	delete(r.devices, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	d.Deactivate()
	d.mu.Lock()
	d.clearEffects()
	d.mu.Unlock()
	r.log.Infof("removed device %s", id)
	return nil
}

// Reconfigure replaces a device's configuration.
func (r *Registry) Reconfigure(id string, cfg config.DeviceConfig) error {
	d, err := r.Get(id)
	if err != nil {
		return err
	}
	return d.Reconfigure(cfg)
}

// ClearAllEffects fades out every device.
func (r *Registry) ClearAllEffects() {
	for _, d := range r.List() {
		d.ClearEffect()
	}
}

// Shutdown broadcasts shutdown and waits until every device has sent its
// final black frame, released its transport and unbound its effects.
func (r *Registry) Shutdown() {
	r.shutdownOnce.Do(func() {
		close(r.shutdown)
	})

	var wg sync.WaitGroup
	for _, d := range r.List() {
		wg.Add(1)
		go func(d *Device) {
			defer wg.Done()
			d.Deactivate()
			d.mu.Lock()
			d.clearEffects()
			d.mu.Unlock()
		}(d)
	}
	wg.Wait()
	r.log.Info("all devices stopped")
}
