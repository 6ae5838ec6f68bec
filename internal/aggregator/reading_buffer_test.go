package aggregator

import (
	"context"
	"testing"
	"time"

	"drain-guard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timer struct {
	after time.Duration
	fire  func()
}

// fakeClock also collects scheduled callbacks instead of running them
type fakeClock struct {
	t      time.Time
	timers []timer
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func (c *fakeClock) schedule(d time.Duration, f func()) {
	c.timers = append(c.timers, timer{after: d, fire: f})
}

func newTestAggregator() (*ReadingAggregator, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	ra := NewReadingAggregator(models.DefaultFeatureOrder(), DefaultChangeThresholds())
	ra.now = clock.now
	ra.schedule = clock.schedule
	return ra, clock
}

func field(device, feature string, value float64) *models.FieldUpdate {
	return &models.FieldUpdate{DeviceID: device, Feature: feature, Value: value, Timestamp: time.Now()}
}

// fill sends every feature except the last and returns the last update
func fill(t *testing.T, ra *ReadingAggregator, device string) *models.FieldUpdate {
	t.Helper()
	for _, u := range []*models.FieldUpdate{
		field(device, models.FeatureGas, 0),
		field(device, models.FeatureRain, 0),
		field(device, models.FeatureTemperature, 25),
		field(device, models.FeatureWaterDistance, 792),
	} {
		require.Nil(t, ra.Update(u))
	}
	return field(device, models.FeatureWaterFlow, 1)
}

func TestAggregator_FirstCompleteReading(t *testing.T) {
	ra, _ := newTestAggregator()

	req := ra.Update(fill(t, ra, "drain-1"))
	require.NotNil(t, req)
	assert.Equal(t, "drain-1", req.DeviceID)
	assert.Equal(t, "aggregator", req.Source)
	assert.Len(t, req.Features, 5)
	assert.Equal(t, 792.0, req.Features[models.FeatureWaterDistance])
	assert.Equal(t, 1.0, req.Features[models.FeatureWaterFlow])
}

func TestAggregator_SmallChangesIgnored(t *testing.T) {
	ra, clock := newTestAggregator()
	require.NotNil(t, ra.Update(fill(t, ra, "drain-1")))

	clock.advance(time.Minute)
	assert.Nil(t, ra.Update(field("drain-1", models.FeatureTemperature, 25.3)))
	assert.Nil(t, ra.Update(field("drain-1", models.FeatureWaterDistance, 780)))
	assert.Nil(t, ra.Update(field("drain-1", models.FeatureWaterFlow, 1)))
}

func TestAggregator_SignificantChanges(t *testing.T) {
	tests := []struct {
		name   string
		update *models.FieldUpdate
	}{
		{"temperature", field("drain-1", models.FeatureTemperature, 25.5)},
		{"distance", field("drain-1", models.FeatureWaterDistance, 700)},
		{"flow stops", field("drain-1", models.FeatureWaterFlow, 0)},
		{"gas detected", field("drain-1", models.FeatureGas, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ra, clock := newTestAggregator()
			require.NotNil(t, ra.Update(fill(t, ra, "drain-1")))

			clock.advance(time.Minute)
			req := ra.Update(tt.update)
			require.NotNil(t, req)
			assert.Equal(t, tt.update.Value, req.Features[tt.update.Feature])
		})
	}
}

func TestAggregator_DriftAccumulatesAgainstLastEmitted(t *testing.T) {
	ra, clock := newTestAggregator()
	require.NotNil(t, ra.Update(fill(t, ra, "drain-1")))

	clock.advance(time.Minute)
	assert.Nil(t, ra.Update(field("drain-1", models.FeatureWaterDistance, 780)))
	assert.NotNil(t, ra.Update(field("drain-1", models.FeatureWaterDistance, 770)))
}

func TestAggregator_RateLimited(t *testing.T) {
	ra, clock := newTestAggregator()
	require.NotNil(t, ra.Update(fill(t, ra, "drain-1")))

	clock.advance(time.Second)
	assert.Nil(t, ra.Update(field("drain-1", models.FeatureWaterFlow, 0)))

	// the pending change is picked up once the interval has passed
	clock.advance(5 * time.Second)
	req := ra.Update(field("drain-1", models.FeatureRain, 0))
	require.NotNil(t, req)
	assert.Equal(t, 0.0, req.Features[models.FeatureWaterFlow])
}

func TestAggregator_TrailingEmit(t *testing.T) {
	ra, clock := newTestAggregator()
	ra.RequestChan = make(chan *models.InferenceRequest, 1)
	require.NotNil(t, ra.Update(fill(t, ra, "drain-1")))

	clock.advance(2 * time.Second)
	assert.Nil(t, ra.Update(field("drain-1", models.FeatureWaterFlow, 0)))
	assert.Nil(t, ra.Update(field("drain-1", models.FeatureWaterDistance, 400)))

	// one timer for the rest of the interval, however many changes arrive
	require.Len(t, clock.timers, 1)
	assert.Equal(t, 3*time.Second, clock.timers[0].after)

	// the device goes quiet
	clock.advance(3 * time.Second)
	clock.timers[0].fire()

	select {
	case req := <-ra.RequestChan:
		assert.Equal(t, "drain-1", req.DeviceID)
		assert.Equal(t, 0.0, req.Features[models.FeatureWaterFlow])
		assert.Equal(t, 400.0, req.Features[models.FeatureWaterDistance])
		assert.Equal(t, clock.t, req.Timestamp)
	default:
		t.Fatal("pending change was not emitted")
	}

	// nothing new since then
	clock.advance(time.Minute)
	assert.Nil(t, ra.Update(field("drain-1", models.FeatureWaterFlow, 0)))
}

func TestAggregator_TrailingEmitSkippedAfterUpdate(t *testing.T) {
	ra, clock := newTestAggregator()
	ra.RequestChan = make(chan *models.InferenceRequest, 1)
	require.NotNil(t, ra.Update(fill(t, ra, "drain-1")))

	clock.advance(time.Second)
	assert.Nil(t, ra.Update(field("drain-1", models.FeatureWaterFlow, 0)))
	require.Len(t, clock.timers, 1)

	// the device reports again after the interval and the change goes out then
	clock.advance(5 * time.Second)
	require.NotNil(t, ra.Update(field("drain-1", models.FeatureRain, 0)))

	clock.timers[0].fire()
	assert.Empty(t, ra.RequestChan)
}

func TestAggregator_DevicesAreIndependent(t *testing.T) {
	ra, _ := newTestAggregator()

	require.NotNil(t, ra.Update(fill(t, ra, "drain-1")))
	require.NotNil(t, ra.Update(fill(t, ra, "drain-2")))

	assert.ElementsMatch(t, []string{"drain-1", "drain-2"}, ra.GetAllDevices())
	assert.Len(t, ra.GetDeviceState("drain-2").Snapshot(), 5)
	assert.Nil(t, ra.GetDeviceState("drain-3"))
}

func TestAggregator_UnknownFeatureIgnored(t *testing.T) {
	ra, _ := newTestAggregator()

	assert.Nil(t, ra.Update(field("drain-1", "humidity", 40)))
	assert.Empty(t, ra.GetAllDevices())
}

func TestAggregator_Start(t *testing.T) {
	ra, _ := newTestAggregator()
	ra.FieldChan = make(chan *models.FieldUpdate, 10)
	ra.RequestChan = make(chan *models.InferenceRequest, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		ra.Start(ctx)
		close(done)
	}()

	for _, f := range models.DefaultFeatureOrder() {
		ra.FieldChan <- field("drain-9", f, 1)
	}

	select {
	case req := <-ra.RequestChan:
		assert.Equal(t, "drain-9", req.DeviceID)
	case <-time.After(2 * time.Second):
		t.Fatal("no request emitted")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("aggregator did not stop")
	}
}
