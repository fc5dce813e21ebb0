// Playwatch
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Playwatch.
//
// Playwatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Playwatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Playwatch.  If not, see <http://www.gnu.org/licenses/>.

// Package publishers forwards session notifications to external systems.
package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/ZaparooProject/playwatch/pkg/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTopic = "playwatch/events"

	subscriberBuffer  = 32
	disconnectQuiesce = 250
	publishTimeout    = 5 * time.Second
)

var ErrNoBroker = errors.New("mqtt broker address not set")

// Envelope is the MQTT message body.
type Envelope struct {
	Method string          `json:"method"`
	Device string          `json:"device"`
	Params json.RawMessage `json:"params"`
}

// Subscriber is the part of the notification broker a publisher needs.
type Subscriber interface {
	Subscribe(bufferSize int, methods ...string) (<-chan models.Notification, int)
	Unsubscribe(id int)
}

// MQTTPublisher publishes each notification to <topic>/<method>. Stop
// events use QoS 1 so a session end survives a broker hiccup.
type MQTTPublisher struct {
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	stopCh    chan struct{}
	done      chan struct{}
	broker    string
	topic     string
	deviceID  string
	filter    []string
}

func NewMQTTPublisher(cfg config.MQTTPublisher, deviceID string) *MQTTPublisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTPublisher{
		newClient: mqtt.NewClient,
		broker:    cfg.Broker,
		topic:     topic,
		deviceID:  deviceID,
		filter:    slices.Clone(cfg.Filter),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (p *MQTTPublisher) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + p.broker)
	opts.SetClientID(config.AppName + "-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Str("broker", p.broker).Msg("mqtt: connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", p.broker).Msg("mqtt: connection lost")
	}
	return opts
}

// Start connects and forwards notifications until Stop is called or the
// channel closes.
func (p *MQTTPublisher) Start(notifications <-chan models.Notification) error {
	if p.broker == "" {
		return ErrNoBroker
	}

	p.client = p.newClient(p.options())
	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	go p.run(notifications)
	return nil
}

func (p *MQTTPublisher) run(notifications <-chan models.Notification) {
	defer close(p.done)
	for {
		select {
		case <-p.stopCh:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if err := p.publish(n); err != nil {
				log.Error().Err(err).Str("method", n.Method).Msg("mqtt: publish failed")
			}
		}
	}
}

func (p *MQTTPublisher) matches(method string) bool {
	return len(p.filter) == 0 || slices.Contains(p.filter, method)
}

func (p *MQTTPublisher) publish(n models.Notification) error {
	if !p.matches(n.Method) {
		return nil
	}

	body, err := json.Marshal(Envelope{Method: n.Method, Device: p.deviceID, Params: n.Params})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	var qos byte
	if n.Method == models.NotificationGameStopped {
		qos = 1
	}
	token := p.client.Publish(p.topic+"/"+n.Method, qos, false, body)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// Stop ends forwarding and disconnects. It is safe to call more than once.
func (p *MQTTPublisher) Stop() {
	select {
	case <-p.stopCh:
		return
	default:
		close(p.stopCh)
	}
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesce)
	}
}

// StartMQTTPublishers starts one publisher per enabled config entry, each
// with its own broker subscription. Publishers that fail to connect are
// logged and skipped.
func StartMQTTPublishers(
	cfgs []config.MQTTPublisher,
	deviceID string,
	sub Subscriber,
) []*MQTTPublisher {
	var started []*MQTTPublisher
	for _, c := range cfgs {
		if c.Enabled != nil && !*c.Enabled {
			continue
		}
		p := NewMQTTPublisher(c, deviceID)
		ch, id := sub.Subscribe(subscriberBuffer, p.filter...)
		if err := p.Start(ch); err != nil {
			log.Error().Err(err).Str("broker", c.Broker).Msg("mqtt: failed to start publisher")
			sub.Unsubscribe(id)
			continue
		}
		started = append(started, p)
	}
	return started
}
