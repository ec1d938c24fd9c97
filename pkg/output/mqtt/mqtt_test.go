package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/fsr-logger/pkg/config"
	"github.com/ericogr/fsr-logger/pkg/record"
)

func TestWithDefaults(t *testing.T) {
	cfg := withDefaults(config.MQTTConfig{}, "0123456789abcdef")
	assert.Equal(t, DefaultServer, cfg.Server)
	assert.Equal(t, "fsr-logger-01234567", cfg.ClientID)
	assert.Equal(t, DefaultStateTopic, cfg.StateTopic)
	assert.Equal(t, DefaultStatusTopic, cfg.StatusTopic)

	cfg = withDefaults(config.MQTTConfig{ClientID: "bench", StateTopic: "lab/fsr"}, "")
	assert.Equal(t, "bench", cfg.ClientID)
	assert.Equal(t, "lab/fsr", cfg.StateTopic)
}

func TestDiscoveryPayload(t *testing.T) {
	cfg := config.MQTTConfig{ClientID: "bench"}
	p := baseDiscoveryPayload(discoveryName(cfg), "lab/fsr", discoveryUniqueID(cfg))
	assert.Equal(t, "Force sensor bench", p[keyName])
	assert.Equal(t, "lab/fsr", p[keyStateTopic])
	assert.Equal(t, unitGrams, p[keyUnitOfMeasurement])
	assert.Equal(t, "bench", p[keyUniqueID])

	p = baseDiscoveryPayload("n", "t", "")
	_, ok := p[keyUniqueID]
	assert.False(t, ok)
}

func TestReadingPayload(t *testing.T) {
	r := record.Reading{ID: 9, Raw: 2048, Force: 12.5, Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b, err := json.Marshal(readingPayload(r, 20, "s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":9,"timestamp":"2024-01-01 00:00:00.000000","raw":2048,"force":12.5,"max":20,"session":"s1"}`, string(b))
}

type stalledToken struct{}

func (stalledToken) Wait() bool                     { select {} }
func (stalledToken) WaitTimeout(time.Duration) bool { return false }
func (stalledToken) Done() <-chan struct{}          { return make(chan struct{}) }
func (stalledToken) Error() error                   { return nil }

// stalledClient accepts publishes that never complete.
type stalledClient struct {
	mqttlib.Client
	topics []string
}

func (c *stalledClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqttlib.Token {
	c.topics = append(c.topics, topic)
	return stalledToken{}
}

func TestPublishDoesNotWaitOnStalledBroker(t *testing.T) {
	client := &stalledClient{}
	out := &MQTTOutput{client: client, stateTopic: "lab/fsr", statusTopic: "lab/status", session: "s"}

	err := out.Publish(record.Reading{ID: 1, Raw: 100, Force: 2}, 2)
	require.ErrorIs(t, err, ErrPublishTimeout)
	err = out.Status("Starting...")
	require.ErrorIs(t, err, ErrPublishTimeout)
	assert.Equal(t, []string{"lab/fsr", "lab/status"}, client.topics)
}
