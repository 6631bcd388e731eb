// Package health tracks device reachability and reports online/offline
// transitions once each, however many frames fail in between.
package health

import (
	"sync"
	"time"

	"github.com/bbernstein/lacylights-pixels/internal/logger"
)

// State is a device's connection state.
type State int

const (
	// StateDisconnected means the transport is not open.
	StateDisconnected State = iota
	// StateConnecting means the transport is open but nothing was sent yet.
	StateConnecting
	// StateOnline means the last send succeeded.
	StateOnline
	// StateOffline means the last activation or send failed.
	StateOffline
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateOnline:
		return "ONLINE"
	case StateOffline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// NotifyFunc receives online/offline transitions.
type NotifyFunc func(deviceID string, online bool)

// Tracker follows one device's connection state. Its update methods are
// called from the device loop; State may be read from anywhere.
type Tracker struct {
	mu       sync.Mutex
	deviceID string
	log      *logger.Log
	notify   NotifyFunc
	now      func() time.Time

	state    State
	reported *bool // last value passed to notify
	failures int
	since    time.Time
}

// NewTracker creates a tracker in StateDisconnected. notify may be nil.
func NewTracker(deviceID string, log logger.Logger, notify NotifyFunc) *Tracker {
	return &Tracker{
		deviceID: deviceID,
		log:      log.With(logger.Fields{"module": "health", "device": deviceID}),
		notify:   notify,
		now:      time.Now,
	}
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Online reports whether the device is online.
func (t *Tracker) Online() bool {
	return t.State() == StateOnline
}

// Failures returns the number of failures in the current outage.
func (t *Tracker) Failures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures
}

// Connecting records that the transport was opened.
func (t *Tracker) Connecting() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateDisconnected {
		t.state = StateConnecting
	}
}

// Success records a successful send.
func (t *Tracker) Success() {
	t.mu.Lock()
	if t.state == StateOnline {
		t.mu.Unlock()
		return
	}
	prev := t.state
	failures := t.failures
	down := t.now().Sub(t.since)
	t.state = StateOnline
	t.failures = 0
	t.since = t.now()
	notify := t.report(true)
	t.mu.Unlock()

	if prev == StateOffline {
		t.log.Infof("device back online after %d failed attempts (%s)", failures, down.Round(time.Millisecond))
	} else {
		t.log.Debug("device online")
	}
	notify()
}

// Failure records a failed activation or send. Only the first failure of an
// outage is logged.
func (t *Tracker) Failure(err error) {
	t.mu.Lock()
	t.failures++
	if t.state == StateOffline {
		t.mu.Unlock()
		return
	}
	t.state = StateOffline
	t.since = t.now()
	notify := t.report(false)
	t.mu.Unlock()

	t.log.WithError(err).Warn("device offline, retrying every frame")
	notify()
}

// Disconnected records that the transport was released. A device that was
// online is reported offline.
func (t *Tracker) Disconnected() {
	t.mu.Lock()
	wasOnline := t.state == StateOnline
	t.state = StateDisconnected
	t.failures = 0
	notify := func() {}
	if wasOnline {
		notify = t.report(false)
	}
	t.reported = nil
	t.mu.Unlock()

	notify()
}

// report returns the notification to fire for online, or a no-op when the
// value was already reported. Called with mu held; the returned func is
// called without it.
func (t *Tracker) report(online bool) func() {
	if t.reported != nil && *t.reported == online {
		return func() {}
	}
	t.reported = &online
	if t.notify == nil {
		return func() {}
	}
	id := t.deviceID
	fn := t.notify
	return func() { fn(id, online) }
}
