// Package telemetry mirrors device connection state onto an MQTT broker.
//
// Each transition is published retained to <prefix>/<device>/online with a
// payload of "true" or "false", so late subscribers see the current state.
// The service itself announces <prefix>/status as "online" and leaves an
// "offline" will behind.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bbernstein/lacylights-pixels/internal/config"
	"github.com/bbernstein/lacylights-pixels/internal/logger"
	"github.com/bbernstein/lacylights-pixels/internal/services/pubsub"
)

const (
	qos            = 1
	publishTimeout = 2 * time.Second
	bufferSize     = 64
	statusTopic    = "status"
)

// ErrNotConnected is returned by Start when the broker could not be reached.
var ErrNotConnected = errors.New("telemetry: not connected")

// ClientOptions builds the paho options for the configured broker.
func ClientOptions(cfg *config.Config, lg logger.Logger) *mqtt.ClientOptions {
	l := lg.With(logger.Fields{"module": "mqtt"})
	prefix := strings.TrimSuffix(cfg.MQTTTopicPrefix, "/")

	if lg.GetLevel() == "debug" {
		mqtt.ERROR = log.New(os.Stdout, "[ERROR] ", 0)
		mqtt.CRITICAL = log.New(os.Stdout, "[CRIT] ", 0)
		mqtt.WARN = log.New(os.Stdout, "[WARN]  ", 0)
	}

	return mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetUsername(cfg.MQTTUsername).
		SetPassword(cfg.MQTTPassword).
		SetWill(prefix+"/"+statusTopic, "offline", qos, true).
		SetOnConnectHandler(func(_ mqtt.Client) {
			l.Info("client connected to broker")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			l.Errorf("broker connection lost: %v", err)
		}).
		SetOrderMatters(false).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetKeepAlive(30 * time.Second)
}

// Publisher forwards device state changes to MQTT.
type Publisher struct {
	client mqtt.Client
	prefix string
	log    *logger.Log

	started bool
	done    chan struct{}
}

// New wraps an MQTT client. prefix is the topic root, e.g. "lacylights/devices".
func New(client mqtt.Client, prefix string, log logger.Logger) *Publisher {
	return &Publisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		log:    log.With(logger.Fields{"module": "telemetry"}),
		done:   make(chan struct{}),
	}
}

// Topic returns the retained state topic for a device.
func (p *Publisher) Topic(deviceID string) string {
	return p.prefix + "/" + deviceID + "/online"
}

// Start connects to the broker, giving up when ctx is cancelled, and then
// forwards state changes from ps until ps is closed.
func (p *Publisher) Start(ctx context.Context, ps *pubsub.PubSub) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	p.publish(p.prefix+"/"+statusTopic, "online")

	sub := ps.Subscribe(pubsub.TopicDeviceState, "", bufferSize)
	p.started = true
	go func() {
		defer close(p.done)
		defer ps.Unsubscribe(sub)
		for m := range sub.Channel {
			change := m.(pubsub.StateChange)
			p.publish(p.Topic(change.DeviceID), strconv.FormatBool(change.Online))
		}
	}()
	return nil
}

// Stop waits for the forwarding loop to drain, marks the service offline and
// disconnects. Close the pubsub first. Stop must not run concurrently with
// Start.
func (p *Publisher) Stop() {
	if !p.started {
		return
	}
	<-p.done
	if p.client.IsConnected() {
		p.publish(p.prefix+"/"+statusTopic, "offline")
		p.client.Disconnect(500)
	}
}

func (p *Publisher) publish(topic, payload string) {
	token := p.client.Publish(topic, qos, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.log.Warnf("publish to %s timed out", topic)
		return
	}
	if err := token.Error(); err != nil {
		p.log.WithError(err).Errorf("publish to %s failed", topic)
		return
	}
	p.log.Debugf("published %s = %s", topic, payload)
}
