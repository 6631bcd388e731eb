// Package pubsub fans device notifications out to preview and telemetry
// consumers without ever blocking the publisher.
package pubsub

import (
	"sync"

	"github.com/lucsky/cuid"

	"github.com/bbernstein/lacylights-pixels/internal/services/frame"
)

// Topic represents a subscription topic.
type Topic string

const (
	// TopicFrameUpdated carries a FrameUpdate for every frame a device produces.
	TopicFrameUpdated Topic = "FRAME_UPDATED"
	// TopicDeviceState carries a StateChange on online/offline transitions.
	TopicDeviceState Topic = "DEVICE_STATE_CHANGED"
)

// FrameUpdate is published once per assembled frame, including preview-only devices.
type FrameUpdate struct {
	DeviceID string
	Pixels   frame.Pixels
}

// StateChange is published when a device goes online or offline.
type StateChange struct {
	DeviceID string
	Online   bool
}

// Subscriber represents a subscription channel.
type Subscriber struct {
	ID      string
	Topic   Topic
	Filter  string // device id, empty for all devices
	Channel chan interface{}
}

// PubSub manages subscriptions and message distribution.
type PubSub struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*Subscriber
	closed      bool
}

// New creates a new PubSub instance.
func New() *PubSub {
	return &PubSub{
		subscribers: make(map[Topic][]*Subscriber),
	}
}

// Subscribe creates a new subscription for a topic. After Close the returned
// channel is already closed.
func (ps *PubSub) Subscribe(topic Topic, filter string, bufferSize int) *Subscriber {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub := &Subscriber{
		ID:      cuid.New(),
		Topic:   topic,
		Filter:  filter,
		Channel: make(chan interface{}, bufferSize),
	}
	if ps.closed {
		close(sub.Channel)
		return sub
	}

	ps.subscribers[topic] = append(ps.subscribers[topic], sub)
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (ps *PubSub) Unsubscribe(sub *Subscriber) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	subs := ps.subscribers[sub.Topic]
	for i, s := range subs {
		if s.ID == sub.ID {
			close(s.Channel)
			ps.subscribers[sub.Topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish sends a message to all subscribers of a topic.
// If filter is non-empty, only sends to subscribers with matching filter or empty filter.
// Subscribers with a full channel miss the message.
func (ps *PubSub) Publish(topic Topic, filter string, message interface{}) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, sub := range ps.subscribers[topic] {
		if sub.Filter == "" || filter == "" || sub.Filter == filter {
			select {
			case sub.Channel <- message:
			default:
			}
		}
	}
}

// PublishFrame publishes a frame update for a device.
func (ps *PubSub) PublishFrame(deviceID string, pixels frame.Pixels) {
	ps.Publish(TopicFrameUpdated, deviceID, FrameUpdate{DeviceID: deviceID, Pixels: pixels})
}

// PublishState publishes a connection state change for a device.
func (ps *PubSub) PublishState(deviceID string, online bool) {
	ps.Publish(TopicDeviceState, deviceID, StateChange{DeviceID: deviceID, Online: online})
}

// SubscriberCount returns the number of subscribers for a topic.
func (ps *PubSub) SubscriberCount(topic Topic) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}

// Close closes every subscriber channel. Later publishes are dropped.
func (ps *PubSub) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return
	}
	ps.closed = true
	for topic, subs := range ps.subscribers {
		for _, s := range subs {
			close(s.Channel)
		}
		delete(ps.subscribers, topic)
	}
}
