package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttPublishTimeout = 5 * time.Second

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher pushes events to display hardware subscribed to <prefix>/<type>.
type MQTTPublisher struct {
	client mqttClient
	prefix string
}

func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", token.Error())
	}
	return newMQTTPublisher(client, cfg.TopicPrefix), nil
}

func newMQTTPublisher(client mqttClient, prefix string) *MQTTPublisher {
	if prefix == "" {
		prefix = "qms"
	}
	return &MQTTPublisher{client: client, prefix: strings.TrimSuffix(prefix, "/")}
}

func (p *MQTTPublisher) Topic(eventType string) string {
	return p.prefix + "/" + strings.ReplaceAll(eventType, ".", "/")
}

func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	topic := p.Topic(event.Type)
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
