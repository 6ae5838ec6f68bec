package aggregator

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"drain-guard/internal/models"
)

// ChangeThresholds defines thresholds for detecting significant changes.
// Features without a delta are treated as binary: any change triggers.
type ChangeThresholds struct {
	TemperatureDelta float64       // Celsius
	DistanceDelta    float64       // mm
	MinInterval      time.Duration // per-device rate limit
}

// DefaultChangeThresholds returns default thresholds
func DefaultChangeThresholds() ChangeThresholds {
	return ChangeThresholds{
		TemperatureDelta: 0.5,
		DistanceDelta:    20,
		MinInterval:      5 * time.Second,
	}
}

// DeviceState holds the latest value of every feature seen for a device
type DeviceState struct {
	DeviceID string

	mu                sync.Mutex
	values            map[string]float64
	lastEmitted       map[string]float64 // values sent with the last request
	lastInferenceTime time.Time
	trailing          bool // a flush is scheduled for the end of the interval
}

// Snapshot returns a copy of the latest values
func (d *DeviceState) Snapshot() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]float64, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// ReadingAggregator assembles per-feature updates into full readings
type ReadingAggregator struct {
	features   []string
	thresholds ChangeThresholds

	mu      sync.RWMutex
	devices map[string]*DeviceState

	// Input channel from the MQTT subscriber
	FieldChan chan *models.FieldUpdate

	// Output channel to the inference service
	RequestChan chan *models.InferenceRequest

	now      func() time.Time
	schedule func(time.Duration, func())
}

// NewReadingAggregator creates an aggregator for the given feature schema
func NewReadingAggregator(features []string, thresholds ChangeThresholds) *ReadingAggregator {
	return &ReadingAggregator{
		features:   append([]string(nil), features...),
		thresholds: thresholds,
		devices:    make(map[string]*DeviceState),
		now:        time.Now,
		schedule:   afterFunc,
	}
}

func afterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Start consumes FieldChan until the context is cancelled or the channel is closed
func (ra *ReadingAggregator) Start(ctx context.Context) {
	log.Println("ReadingAggregator: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("ReadingAggregator: Shutting down...")
			return

		case update, ok := <-ra.FieldChan:
			if !ok {
				log.Println("ReadingAggregator: Field channel closed, shutting down...")
				return
			}

			if req := ra.Update(update); req != nil {
				ra.send(req)
			}
		}
	}
}

func (ra *ReadingAggregator) send(req *models.InferenceRequest) {
	if ra.RequestChan == nil {
		return
	}

	select {
	case ra.RequestChan <- req:
	case <-time.After(1 * time.Second):
		log.Printf("ReadingAggregator: Warning - request channel full, dropping reading for %s", req.DeviceID)
	}
}

// Update records one feature value and returns a request when the
// device's reading is complete and has changed significantly
func (ra *ReadingAggregator) Update(update *models.FieldUpdate) *models.InferenceRequest {
	if !ra.known(update.Feature) {
		log.Printf("ReadingAggregator: Ignoring unknown feature %q from %s", update.Feature, update.DeviceID)
		return nil
	}

	device := ra.getOrCreateDevice(update.DeviceID)

	device.mu.Lock()
	defer device.mu.Unlock()

	device.values[update.Feature] = update.Value

	if len(device.values) < len(ra.features) {
		return nil
	}

	reason := ra.changeReason(device)
	if reason == "" {
		return nil
	}

	now := ra.now()
	if wait := ra.remaining(device, now); wait > 0 {
		log.Printf("ReadingAggregator: Rate limiting inference for %s (last inference was %.1fs ago)",
			device.DeviceID, now.Sub(device.lastInferenceTime).Seconds())
		ra.scheduleTrailing(device, wait)
		return nil
	}

	log.Printf("ReadingAggregator: Triggering inference for %s (reason: %s)", device.DeviceID, reason)
	return ra.emit(device, now, update.Timestamp)
}

// remaining is how long the device is still rate limited. Caller holds device.mu.
func (ra *ReadingAggregator) remaining(device *DeviceState, now time.Time) time.Duration {
	if device.lastInferenceTime.IsZero() {
		return 0
	}
	return ra.thresholds.MinInterval - now.Sub(device.lastInferenceTime)
}

// scheduleTrailing arranges one flush for when the rate limit ends, so a
// change is not held back until the device happens to send again.
// Caller holds device.mu.
func (ra *ReadingAggregator) scheduleTrailing(device *DeviceState, wait time.Duration) {
	if device.trailing || ra.schedule == nil {
		return
	}
	device.trailing = true
	ra.schedule(wait, func() { ra.flush(device) })
}

// flush emits the device's pending change, if it still has one
func (ra *ReadingAggregator) flush(device *DeviceState) {
	req := ra.flushRequest(device)
	if req == nil {
		return
	}
	ra.send(req)
}

func (ra *ReadingAggregator) flushRequest(device *DeviceState) *models.InferenceRequest {
	device.mu.Lock()
	defer device.mu.Unlock()

	device.trailing = false

	reason := ra.changeReason(device)
	if reason == "" {
		// already emitted by a later update
		return nil
	}

	now := ra.now()
	if wait := ra.remaining(device, now); wait > 0 {
		ra.scheduleTrailing(device, wait)
		return nil
	}

	log.Printf("ReadingAggregator: Triggering delayed inference for %s (reason: %s)", device.DeviceID, reason)
	return ra.emit(device, now, now)
}

// emit records the current values as sent and builds the request.
// Caller holds device.mu.
func (ra *ReadingAggregator) emit(device *DeviceState, now, timestamp time.Time) *models.InferenceRequest {
	features := make(map[string]any, len(device.values))
	emitted := make(map[string]float64, len(device.values))
	for k, v := range device.values {
		features[k] = v
		emitted[k] = v
	}
	device.lastEmitted = emitted
	device.lastInferenceTime = now

	return &models.InferenceRequest{
		DeviceID:  device.DeviceID,
		Timestamp: timestamp,
		Features:  features,
		Source:    "aggregator",
	}
}

// changeReason compares the current values with the last emitted ones.
// Caller holds device.mu.
func (ra *ReadingAggregator) changeReason(device *DeviceState) string {
	if device.lastEmitted == nil {
		return "first_complete_reading"
	}

	for _, name := range ra.features {
		current, previous := device.values[name], device.lastEmitted[name]
		delta := math.Abs(current - previous)

		switch name {
		case models.FeatureTemperature:
			if delta >= ra.thresholds.TemperatureDelta {
				return "temperature_change"
			}
		case models.FeatureWaterDistance:
			if delta >= ra.thresholds.DistanceDelta {
				return "distance_change"
			}
		default:
			if delta > 0 {
				return name + "_change"
			}
		}
	}
	return ""
}

func (ra *ReadingAggregator) known(feature string) bool {
	for _, name := range ra.features {
		if name == feature {
			return true
		}
	}
	return false
}

func (ra *ReadingAggregator) getOrCreateDevice(deviceID string) *DeviceState {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	if device, exists := ra.devices[deviceID]; exists {
		return device
	}

	device := &DeviceState{
		DeviceID: deviceID,
		values:   make(map[string]float64),
	}
	ra.devices[deviceID] = device
	return device
}

// GetDeviceState returns the current state of a device
func (ra *ReadingAggregator) GetDeviceState(deviceID string) *DeviceState {
	ra.mu.RLock()
	defer ra.mu.RUnlock()
	return ra.devices[deviceID]
}

// GetAllDevices returns all device IDs
func (ra *ReadingAggregator) GetAllDevices() []string {
	ra.mu.RLock()
	defer ra.mu.RUnlock()

	devices := make([]string, 0, len(ra.devices))
	for deviceID := range ra.devices {
		devices = append(devices, deviceID)
	}
	return devices
}
