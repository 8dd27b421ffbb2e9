package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/coldsnap-io/coldsnap/internal/rules"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttQoS            = 1
)

// mqttMessage is the JSON document published per alert.
type mqttMessage struct {
	RuleID      string        `json:"rule_id"`
	Title       string        `json:"title"`
	Message     string        `json:"message"`
	Priority    int           `json:"priority"`
	Sensor      rules.Reading `json:"sensor"`
	TriggeredAt string        `json:"triggered_at"`
}

// MQTTProvider publishes alert payloads to the deployment's MQTT broker, the
// same transport the sensor readings arrive on. The target is a topic segment
// appended to the configured prefix, e.g. prefix "coldsnap/alerts" and target
// "kitchen" publish to "coldsnap/alerts/kitchen".
type MQTTProvider struct {
	client mqtt.Client
	prefix string
}

// NewMQTTProvider connects to the broker and returns the provider. The
// connection auto-reconnects; a broker outage surfaces as per-send failures,
// not as a process fault.
func NewMQTTProvider(brokerURL, clientID, topicPrefix string) (*MQTTProvider, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return &MQTTProvider{
		client: client,
		prefix: strings.TrimRight(topicPrefix, "/"),
	}, nil
}

// Name implements Provider.
func (m *MQTTProvider) Name() string { return "mqtt" }

// ValidateTarget implements Provider: the target must be a publishable topic
// segment — no subscription wildcards, no reserved "$" prefix.
func (m *MQTTProvider) ValidateTarget(target string) bool {
	if target == "" || len(target) > 128 {
		return false
	}
	if strings.ContainsAny(target, "+#\x00") {
		return false
	}
	return !strings.HasPrefix(target, "$")
}

// Send implements Provider.
func (m *MQTTProvider) Send(ctx context.Context, p Payload) Result {
	if !m.ValidateTarget(p.Target) {
		return failure("mqtt: invalid topic %q", p.Target)
	}

	body, err := json.Marshal(mqttMessage{
		RuleID:      p.Meta.RuleID,
		Title:       p.Title,
		Message:     p.Message,
		Priority:    p.Priority,
		Sensor:      p.Meta.Sensor,
		TriggeredAt: p.Meta.TriggeredAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return failure("mqtt: encode payload: %v", err)
	}

	topic := p.Target
	if m.prefix != "" {
		topic = m.prefix + "/" + p.Target
	}

	token := m.client.Publish(topic, mqttQoS, false, body)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return failure("mqtt: publish to %q timed out", topic)
	}
	if err := token.Error(); err != nil {
		return failure("mqtt: publish to %q failed: %v", topic, err)
	}

	return Result{Success: true}
}

// Close disconnects from the broker, waiting briefly for in-flight messages.
func (m *MQTTProvider) Close() {
	m.client.Disconnect(250)
}
