package events

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

// MQTTSink publishes events to "<prefix>/<event type with dots as slashes>".
type MQTTSink struct {
	conn      mqtt.Client
	prefix    string
	connected atomic.Bool
	log       zerolog.Logger
}

// ConnectMQTT connects to the broker and returns a sink. The client
// reconnects on its own after the initial connection succeeds.
func ConnectMQTT(opts MQTTOptions) (*MQTTSink, error) {
	s := &MQTTSink{
		prefix: strings.Trim(opts.TopicPrefix, "/"),
		log:    opts.Log.With().Str("component", "mqtt").Logger(),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	s.conn = mqtt.NewClient(clientOpts)
	token := s.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.BrokerURL, err)
	}
	return s, nil
}

// Topic returns the topic an event type is published under.
func (s *MQTTSink) Topic(eventType string) string {
	return topicFor(s.prefix, eventType)
}

// Send publishes an encoded event at QoS 0 without waiting for the broker.
func (s *MQTTSink) Send(e Event) {
	payload, err := jsonEvent(e)
	if err != nil {
		s.log.Warn().Err(err).Str("event", e.Type).Msg("failed to encode event for mqtt")
		return
	}
	s.conn.Publish(s.Topic(e.Type), 0, false, payload)
}

func (s *MQTTSink) onConnect(_ mqtt.Client) {
	s.connected.Store(true)
	s.log.Info().Str("prefix", s.prefix).Msg("mqtt connected")
}

func (s *MQTTSink) onConnectionLost(_ mqtt.Client, err error) {
	s.connected.Store(false)
	s.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// IsConnected reports the last known connection state.
func (s *MQTTSink) IsConnected() bool {
	return s.connected.Load()
}

// Close disconnects, allowing a second for in-flight messages.
func (s *MQTTSink) Close() {
	s.log.Info().Msg("disconnecting mqtt client")
	s.conn.Disconnect(1000)
}

func topicFor(prefix, eventType string) string {
	t := strings.ReplaceAll(eventType, ".", "/")
	if prefix == "" {
		return t
	}
	return prefix + "/" + t
}
