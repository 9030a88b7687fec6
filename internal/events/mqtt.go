package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"gate-service/internal/domain/anpr"
)

const (
	mqttQoS            = 1
	mqttConnectTimeout = 30 * time.Second
	mqttPublishTimeout = 10 * time.Second
)

var ErrNotConnected = errors.New("not connected")

type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// MQTTPublisher publishes each event as JSON to <topic>/<event type>.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	log    zerolog.Logger
}

// ConnectMQTT dials the broker and keeps reconnecting in the background.
func ConnectMQTT(ctx context.Context, opts MQTTOptions, log zerolog.Logger) (*MQTTPublisher, error) {
	log = log.With().Str("component", "mqtt").Str("broker", opts.Broker).Logger()

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Msg("connected to MQTT broker")
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("connection to MQTT broker lost")
	})

	client := mqtt.NewClient(co)
	token := client.Connect()
	if err := wait(ctx, token, mqttConnectTimeout); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
	}
	return NewMQTTPublisher(client, opts.Topic, log), nil
}

func NewMQTTPublisher(client mqtt.Client, topic string, log zerolog.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, log: log}
}

func (p *MQTTPublisher) Publish(ctx context.Context, event anpr.GateEvent) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt: %w", ErrNotConnected)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	topic := p.topic + "/" + string(event.Type)
	if err := wait(ctx, p.client.Publish(topic, mqttQoS, false, payload), mqttPublishTimeout); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	p.log.Debug().Str("topic", topic).Str("plate", event.Plate).Msg("event published")
	return nil
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New("timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}
