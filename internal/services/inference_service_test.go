package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"drain-guard/internal/ml"
	"drain-guard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu          sync.Mutex
	predictions []*models.InferenceResponse
	devices     []*models.Device
	saveErr     error
}

func (s *fakeStore) SavePrediction(_ context.Context, _ *models.InferenceRequest, resp *models.InferenceResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.predictions = append(s.predictions, resp)
	return nil
}

func (s *fakeStore) UpsertDevice(_ context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices, device)
	return nil
}

func newTestService(t *testing.T, store PredictionStore) *InferenceService {
	t.Helper()
	scalerPath, modelPath, err := ml.CreateSampleArtifacts(t.TempDir())
	require.NoError(t, err)

	p, err := ml.LoadPredictor(scalerPath, modelPath)
	require.NoError(t, err)

	return NewInferenceService(p, store, InferenceServiceConfig{ChannelSize: 4})
}

func normalReading() map[string]any {
	return models.SensorReading{Temperature: 25, WaterDistance: 792, WaterFlowing: true}.Features()
}

func TestInfer_Named(t *testing.T) {
	store := &fakeStore{}
	is := newTestService(t, store)

	resp, err := is.Infer(context.Background(), &models.InferenceRequest{
		DeviceID: "drain-1",
		Features: normalReading(),
		Source:   "http",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusNormal, resp.Status)
	assert.NotEmpty(t, resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
	require.NotNil(t, resp.Confidence)
	assert.GreaterOrEqual(t, *resp.Confidence, 0.5)
	assert.Equal(t, "sample-1", resp.ModelVersion)
	assert.Equal(t, 792.0, resp.FeaturesUsed[models.FeatureWaterDistance])

	require.Len(t, store.predictions, 1)
	require.Len(t, store.devices, 1)
	assert.Equal(t, "drain-1", store.devices[0].DeviceID)
	assert.Equal(t, models.StatusNormal, store.devices[0].LastStatus)
}

func TestInfer_Positional(t *testing.T) {
	is := newTestService(t, nil)

	resp, err := is.Infer(context.Background(), &models.InferenceRequest{
		RequestID: "4b6f1c2e-8d3a-4f57-9a0e-2c1d5e6f7a8b",
		Values:    []any{1, 1, 30.0, 50.0, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusBlocked, resp.Status)
	assert.Equal(t, "4b6f1c2e-8d3a-4f57-9a0e-2c1d5e6f7a8b", resp.RequestID)
}

func TestInfer_Errors(t *testing.T) {
	is := newTestService(t, nil)

	tests := []struct {
		name string
		req  *models.InferenceRequest
		want error
	}{
		{"nil request", nil, ml.ErrInvalidInput},
		{"no features", &models.InferenceRequest{DeviceID: "drain-1"}, ml.ErrInvalidInput},
		{"both forms", &models.InferenceRequest{Features: normalReading(), Values: []any{0, 0, 25, 792, 1}}, ml.ErrInvalidInput},
		{"bad request id", &models.InferenceRequest{RequestID: "abc", Values: []any{0, 0, 25, 792, 1}}, ml.ErrInvalidInput},
		{"wildcard device id", &models.InferenceRequest{DeviceID: "drain/+", Values: []any{0, 0, 25, 792, 1}}, ml.ErrInvalidInput},
		{"non-numeric", &models.InferenceRequest{Values: []any{0, 0, "warm", 792, 1}}, ml.ErrInvalidInput},
		{"short vector", &models.InferenceRequest{Values: []any{0, 0, 25}}, ml.ErrSchemaMismatch},
		{"extra feature", &models.InferenceRequest{Features: map[string]any{
			models.FeatureGas: 0, models.FeatureRain: 0, models.FeatureTemperature: 25,
			models.FeatureWaterDistance: 792, models.FeatureWaterFlow: 1, "humidity": 40,
		}}, ml.ErrSchemaMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := is.Infer(context.Background(), tt.req)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInfer_NotLoaded(t *testing.T) {
	is := NewInferenceService(nil, nil, DefaultInferenceServiceConfig())

	_, err := is.Infer(context.Background(), &models.InferenceRequest{Values: []any{0, 0, 25, 792, 1}})
	assert.ErrorIs(t, err, ml.ErrModelUnavailable)
}

func TestInfer_StoreFailureDoesNotFailPrediction(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("clickhouse down")}
	is := newTestService(t, store)

	resp, err := is.Infer(context.Background(), &models.InferenceRequest{DeviceID: "drain-1", Features: normalReading()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNormal, resp.Status)
	assert.Empty(t, store.predictions)
}

func TestInfer_RegisteredAtIsStable(t *testing.T) {
	store := &fakeStore{}
	is := newTestService(t, store)

	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := is.Infer(context.Background(), &models.InferenceRequest{
			DeviceID:  "drain-1",
			Timestamp: first.Add(time.Duration(i) * time.Minute),
			Features:  normalReading(),
		})
		require.NoError(t, err)
	}

	require.Len(t, store.devices, 3)
	for _, d := range store.devices {
		assert.Equal(t, first, d.RegisteredAt)
	}
	assert.Equal(t, first.Add(2*time.Minute), store.devices[2].LastSeen)
}

func TestInferenceService_Start(t *testing.T) {
	is := newTestService(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		is.Start(ctx)
		close(done)
	}()

	// a bad request is logged and skipped
	is.RequestChan <- &models.InferenceRequest{DeviceID: "drain-1", Values: []any{1}}
	is.RequestChan <- &models.InferenceRequest{DeviceID: "drain-2", Features: normalReading()}

	select {
	case resp := <-is.StatusChan:
		assert.Equal(t, "drain-2", resp.DeviceID)
		assert.Equal(t, models.StatusNormal, resp.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no status produced")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestForward(t *testing.T) {
	is := NewInferenceService(nil, nil, InferenceServiceConfig{ChannelSize: 1})
	resp := &models.InferenceResponse{RequestID: "r-1", DeviceID: "drain-4", Status: models.StatusBlocked}

	// no publisher yet
	assert.False(t, is.Forward(resp))
	assert.Empty(t, is.StatusChan)

	is.EnableStatusForwarding()
	assert.False(t, is.Forward(&models.InferenceResponse{RequestID: "r-0", Status: models.StatusNormal}))
	assert.False(t, is.Forward(nil))

	require.True(t, is.Forward(resp))
	// channel is full, the call must not block
	assert.False(t, is.Forward(resp))

	assert.Same(t, resp, <-is.StatusChan)
}
