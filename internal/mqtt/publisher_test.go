package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"drain-guard/internal/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }

func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient records publishes and subscriptions; other methods are unused
type fakeClient struct {
	mqtt.Client

	mu         sync.Mutex
	published  []published
	subscribed []string
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return &doneToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return &doneToken{}
}

func (c *fakeClient) snapshot() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

func TestPublisher_PublishesStatus(t *testing.T) {
	client := &fakeClient{}
	statusChan := make(chan *models.InferenceResponse, 2)
	p := NewPublisher(client, PublisherConfig{StatusTopic: "drain/{device_id}/status"}, statusChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	// no device id, nothing to route
	statusChan <- &models.InferenceResponse{RequestID: "r-0", Status: models.StatusNormal}
	statusChan <- &models.InferenceResponse{RequestID: "r-1", DeviceID: "drain-3", Status: models.StatusBlocked}

	require.Eventually(t, func() bool { return len(client.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	msg := client.snapshot()[0]
	assert.Equal(t, "drain/drain-3/status", msg.topic)
	assert.True(t, msg.retained)

	var resp models.InferenceResponse
	require.NoError(t, json.Unmarshal(msg.payload, &resp))
	assert.Equal(t, models.StatusBlocked, resp.Status)
	assert.Equal(t, "r-1", resp.RequestID)
}

func TestSubscriber_SubscribeAll(t *testing.T) {
	client := &fakeClient{}
	s := NewSubscriber(client, SubscriberConfig{ReadingTopic: "drain/+/reading", SensorTopic: "sensor/+/+"}, nil, nil)

	require.NoError(t, s.SubscribeAll())
	assert.Equal(t, []string{"drain/+/reading", "sensor/+/+"}, client.subscribed)

	// an empty topic is skipped
	client = &fakeClient{}
	s = NewSubscriber(client, SubscriberConfig{ReadingTopic: "drain/+/reading"}, nil, nil)
	require.NoError(t, s.SubscribeAll())
	assert.Equal(t, []string{"drain/+/reading"}, client.subscribed)
}
