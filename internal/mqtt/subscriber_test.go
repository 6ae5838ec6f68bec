package mqtt

import (
	"testing"
	"time"

	"drain-guard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func newTestSubscriber() *Subscriber {
	return NewSubscriber(nil, SubscriberConfig{},
		make(chan *models.InferenceRequest, 1),
		make(chan *models.FieldUpdate, 1))
}

func TestHandleReading(t *testing.T) {
	s := newTestSubscriber()

	s.handleReading(nil, &fakeMessage{
		topic:   "drain/drain-007/reading",
		payload: []byte(`{"features":{"gas_value":0,"rain_value":1,"temp_value":"hot","water_dist":540,"wf_value":true}}`),
	})

	select {
	case req := <-s.RequestChan:
		assert.Equal(t, "drain-007", req.DeviceID)
		assert.Equal(t, "mqtt", req.Source)
		assert.False(t, req.Timestamp.IsZero())
		// values stay untyped for the normalizer to judge
		assert.Equal(t, "hot", req.Features["temp_value"])
		assert.Equal(t, 540.0, req.Features["water_dist"])
		assert.Equal(t, true, req.Features["wf_value"])
	case <-time.After(time.Second):
		t.Fatal("no request emitted")
	}
}

func TestHandleReading_PayloadDeviceWins(t *testing.T) {
	s := newTestSubscriber()

	s.handleReading(nil, &fakeMessage{
		topic:   "drain/from-topic/reading",
		payload: []byte(`{"device_id":"from-payload","values":[0,0,25,792,1]}`),
	})

	req := <-s.RequestChan
	assert.Equal(t, "from-payload", req.DeviceID)
	assert.Len(t, req.Values, 5)
}

func TestHandleReading_BadJSON(t *testing.T) {
	s := newTestSubscriber()

	s.handleReading(nil, &fakeMessage{topic: "drain/x/reading", payload: []byte(`{not json`)})

	assert.Empty(t, s.RequestChan)
}

func TestHandleSensor(t *testing.T) {
	s := newTestSubscriber()

	s.handleSensor(nil, &fakeMessage{topic: "sensor/drain-002/water_dist", payload: []byte(" 412.5\n")})

	update := <-s.FieldChan
	require.NotNil(t, update)
	assert.Equal(t, "drain-002", update.DeviceID)
	assert.Equal(t, models.FeatureWaterDistance, update.Feature)
	assert.Equal(t, 412.5, update.Value)

	s.handleSensor(nil, &fakeMessage{topic: "sensor/drain-002/wf_value", payload: []byte("ON")})
	update = <-s.FieldChan
	assert.Equal(t, 1.0, update.Value)

	s.handleSensor(nil, &fakeMessage{topic: "sensor/drain-002/temp_value", payload: []byte("warm")})
	s.handleSensor(nil, &fakeMessage{topic: "sensor/drain-002/temp_value", payload: []byte("NaN")})
	s.handleSensor(nil, &fakeMessage{topic: "sensor-only", payload: []byte("1")})
	assert.Empty(t, s.FieldChan)
}

func TestTopicHelpers(t *testing.T) {
	assert.Equal(t, "drain-001", extractDeviceID("sensor/drain-001/temp_value"))
	assert.Equal(t, "", extractDeviceID("sensor"))
	assert.Equal(t, "temp_value", extractFeature("sensor/drain-001/temp_value"))
	assert.Equal(t, "", extractFeature("sensor/drain-001"))
	assert.Equal(t, "drain/drain-001/status", formatTopic("drain/{device_id}/status", "drain-001"))
}
