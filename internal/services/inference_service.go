package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"drain-guard/internal/metrics"
	"drain-guard/internal/ml"
	"drain-guard/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// PredictionStore persists predictions and keeps the device registry current
type PredictionStore interface {
	SavePrediction(ctx context.Context, req *models.InferenceRequest, resp *models.InferenceResponse) error
	UpsertDevice(ctx context.Context, device *models.Device) error
}

// InferenceService runs the drain status model for incoming readings
type InferenceService struct {
	predictor *ml.Predictor
	store     PredictionStore // optional
	validate  *validator.Validate

	// Input channel (written by the MQTT subscriber and the aggregator)
	RequestChan chan *models.InferenceRequest

	// Output channel (read by the MQTT publisher)
	StatusChan chan *models.InferenceResponse

	// set once a publisher drains StatusChan
	forwarding atomic.Bool

	mu        sync.Mutex
	firstSeen map[string]time.Time

	now func() time.Time
}

// InferenceServiceConfig holds configuration for inference service
type InferenceServiceConfig struct {
	ChannelSize int // Size of request and status channels
}

// DefaultInferenceServiceConfig returns default configuration
func DefaultInferenceServiceConfig() InferenceServiceConfig {
	return InferenceServiceConfig{
		ChannelSize: 100,
	}
}

// NewInferenceService creates a new inference service. store may be nil.
func NewInferenceService(predictor *ml.Predictor, store PredictionStore, config InferenceServiceConfig) *InferenceService {
	return &InferenceService{
		predictor:   predictor,
		store:       store,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		RequestChan: make(chan *models.InferenceRequest, config.ChannelSize),
		StatusChan:  make(chan *models.InferenceResponse, config.ChannelSize),
		firstSeen:   make(map[string]time.Time),
		now:         time.Now,
	}
}

// Predictor returns the loaded predictor
func (is *InferenceService) Predictor() *ml.Predictor {
	return is.predictor
}

// Infer validates req, runs the model and records the outcome
func (is *InferenceService) Infer(ctx context.Context, req *models.InferenceRequest) (*models.InferenceResponse, error) {
	if req == nil {
		err := fmt.Errorf("%w: empty request", ml.ErrInvalidInput)
		metrics.ObserveError(ml.ErrorKind(err))
		return nil, err
	}

	if err := is.validate.Struct(req); err != nil {
		err = fmt.Errorf("%w: %w", ml.ErrInvalidInput, err)
		metrics.ObserveError(ml.ErrorKind(err))
		return nil, err
	}

	start := time.Now()

	var (
		prediction *ml.Prediction
		err        error
	)
	if req.Features != nil {
		prediction, err = is.predictor.PredictNamed(req.Features)
	} else {
		prediction, err = is.predictor.Predict(req.Values)
	}
	elapsed := time.Since(start)

	if err != nil {
		metrics.ObserveError(ml.ErrorKind(err))
		return nil, err
	}

	metrics.ObservePrediction(prediction.Status, req.Source, prediction.OutOfRange, elapsed)

	resp := is.buildResponse(req, prediction, elapsed)

	if len(resp.OutOfRange) > 0 {
		log.Printf("InferenceService: %s has values outside the training range: %v", displayID(resp), resp.OutOfRange)
	}

	is.persist(ctx, req, resp)

	return resp, nil
}

// EnableStatusForwarding makes Forward hand responses to StatusChan.
// Call it once a consumer for StatusChan is running.
func (is *InferenceService) EnableStatusForwarding() {
	is.forwarding.Store(true)
}

// Forward offers a response produced outside Start (an HTTP prediction) to
// StatusChan without blocking. It reports whether the response was queued.
// Responses without a device id have no status topic and are not forwarded.
func (is *InferenceService) Forward(resp *models.InferenceResponse) bool {
	if resp == nil || resp.DeviceID == "" || !is.forwarding.Load() {
		return false
	}

	select {
	case is.StatusChan <- resp:
		return true
	default:
		log.Printf("InferenceService: Warning - status channel full, not forwarding %s", displayID(resp))
		return false
	}
}

// Start consumes RequestChan until the context is cancelled or the channel is closed
func (is *InferenceService) Start(ctx context.Context) {
	log.Println("InferenceService: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("InferenceService: Shutting down...")
			return

		case req, ok := <-is.RequestChan:
			if !ok {
				log.Println("InferenceService: Request channel closed, shutting down...")
				return
			}

			resp, err := is.Infer(ctx, req)
			if err != nil {
				log.Printf("InferenceService: Inference failed for device %s (%s): %v",
					req.DeviceID, ml.ErrorKind(err), err)
				continue
			}

			log.Printf("InferenceService: Device %s is %s (confidence=%.3f, %.2fms)",
				resp.DeviceID, resp.Status, confidenceValue(resp), resp.InferenceTimeMs)

			select {
			case is.StatusChan <- resp:
			case <-time.After(1 * time.Second):
				log.Printf("InferenceService: Warning - status channel full, dropping status for %s", resp.DeviceID)
			}
		}
	}
}

func (is *InferenceService) buildResponse(req *models.InferenceRequest, p *ml.Prediction, elapsed time.Duration) *models.InferenceResponse {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = is.now()
	}

	confidence := p.Confidence

	return &models.InferenceResponse{
		RequestID:       requestID,
		DeviceID:        req.DeviceID,
		Timestamp:       timestamp,
		Status:          p.Status,
		Confidence:      &confidence,
		OutOfRange:      p.OutOfRange,
		FeaturesUsed:    p.Features,
		ModelVersion:    is.predictor.Version(),
		InferenceTimeMs: float64(elapsed.Microseconds()) / 1000.0,
	}
}

// persist writes the prediction to the store. Failures are logged only.
func (is *InferenceService) persist(ctx context.Context, req *models.InferenceRequest, resp *models.InferenceResponse) {
	if is.store == nil {
		return
	}

	if err := is.store.SavePrediction(ctx, req, resp); err != nil {
		metrics.ObserveStoreError()
		log.Printf("InferenceService: Error saving prediction %s: %v", resp.RequestID, err)
	}

	if resp.DeviceID == "" {
		return
	}

	device := &models.Device{
		DeviceID:     resp.DeviceID,
		Name:         resp.DeviceID,
		RegisteredAt: is.registeredAt(resp.DeviceID, resp.Timestamp),
		LastSeen:     resp.Timestamp,
		LastStatus:   resp.Status,
		IsActive:     true,
	}
	if err := is.store.UpsertDevice(ctx, device); err != nil {
		metrics.ObserveStoreError()
		log.Printf("InferenceService: Error updating device %s: %v", resp.DeviceID, err)
	}
}

func (is *InferenceService) registeredAt(deviceID string, seen time.Time) time.Time {
	is.mu.Lock()
	defer is.mu.Unlock()

	if t, ok := is.firstSeen[deviceID]; ok {
		return t
	}
	is.firstSeen[deviceID] = seen
	return seen
}

func confidenceValue(resp *models.InferenceResponse) float64 {
	if resp.Confidence == nil {
		return 0
	}
	return *resp.Confidence
}

func displayID(resp *models.InferenceResponse) string {
	if resp.DeviceID != "" {
		return "device " + resp.DeviceID
	}
	return "request " + resp.RequestID
}
