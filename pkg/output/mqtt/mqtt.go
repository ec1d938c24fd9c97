package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/fsr-logger/pkg/config"
	"github.com/ericogr/fsr-logger/pkg/output"
	"github.com/ericogr/fsr-logger/pkg/record"
)

const (
	// defaults
	DefaultServer      = "tcp://localhost:1883"
	DefaultClientID    = "fsr-logger"
	DefaultStateTopic  = "fsr-logger/force"
	DefaultStatusTopic = "fsr-logger/status"
	connectTimeout     = 10 * time.Second
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	unitGrams              = "g"
	deviceClassWeight      = "weight"
	stateClassMeasurement  = "measurement"
	valueTemplateForce     = "{{ value_json.force }}"
)

type MQTTOutput struct {
	client      mqtt.Client
	stateTopic  string
	statusTopic string
	session     string
}

// NewMQTT connects to the broker and, when a discovery topic is configured,
// announces the force sensor to Home Assistant.
func NewMQTT(cfg config.MQTTConfig, session string) (output.Output, error) {
	cfg = withDefaults(cfg, session)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: timed out after %s", cfg.Server, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic, statusTopic: cfg.StatusTopic, session: session}

	if cfg.DiscoveryTopic != "" {
		payload := baseDiscoveryPayload(discoveryName(cfg), cfg.StateTopic, discoveryUniqueID(cfg))
		if err := publishJSON(client, cfg.DiscoveryTopic, true, payload); err != nil {
			slog.Warn("mqtt discovery publish failed", "topic", cfg.DiscoveryTopic, "err", err)
		}
	}
	return m, nil
}

func (m *MQTTOutput) Publish(r record.Reading, max float64) error {
	return publishJSON(m.client, m.stateTopic, false, readingPayload(r, max, m.session))
}

func (m *MQTTOutput) Status(lines ...string) error {
	payload := map[string]interface{}{
		"status":  strings.Join(lines, " "),
		"session": m.session,
		"time":    time.Now().Format(time.RFC3339),
	}
	return publishJSON(m.client, m.statusTopic, true, payload)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

func withDefaults(cfg config.MQTTConfig, session string) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
		if session != "" {
			cfg.ClientID = fmt.Sprintf("%s-%.8s", DefaultClientID, session)
		}
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	if cfg.StatusTopic == "" {
		cfg.StatusTopic = DefaultStatusTopic
	}
	return cfg
}

func readingPayload(r record.Reading, max float64, session string) map[string]interface{} {
	return map[string]interface{}{
		"id":        r.ID,
		"timestamp": r.Timestamp.Format(record.TimeLayout),
		"raw":       r.Raw,
		"force":     r.Force,
		"max":       max,
		"session":   session,
	}
}

// helper: build a human-friendly discovery name
func discoveryName(cfg config.MQTTConfig) string {
	if cfg.DiscoveryName != "" {
		return cfg.DiscoveryName
	}
	return fmt.Sprintf("Force sensor %s", cfg.ClientID)
}

// helper: build a unique id for discovery
func discoveryUniqueID(cfg config.MQTTConfig) string {
	if cfg.DiscoveryUniqueID != "" {
		return cfg.DiscoveryUniqueID
	}
	return cfg.ClientID
}

// helper: base discovery payload map
func baseDiscoveryPayload(name, stateTopic, uniqueID string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   unitGrams,
		keyDeviceClass:         deviceClassWeight,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateForce,
		keyJSONAttributesTopic: stateTopic,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// publishTimeout bounds how long a publish may hold up the caller, which is
// the acquisition loop for readings.
var publishTimeout = 100 * time.Millisecond

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	return token.Error()
}
