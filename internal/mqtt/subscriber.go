package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"drain-guard/internal/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscriber handles MQTT subscriptions and writes messages to channels
type Subscriber struct {
	client mqtt.Client

	// Output channels (written by subscriber, read by services)
	RequestChan chan *models.InferenceRequest
	FieldChan   chan *models.FieldUpdate

	readingTopic string
	sensorTopic  string
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	ReadingTopic string // e.g., "drain/+/reading"
	SensorTopic  string // e.g., "sensor/+/+"
}

// NewSubscriber creates a new MQTT subscriber with channels
func NewSubscriber(
	client mqtt.Client,
	config SubscriberConfig,
	requestChan chan *models.InferenceRequest,
	fieldChan chan *models.FieldUpdate,
) *Subscriber {
	return &Subscriber{
		client:       client,
		RequestChan:  requestChan,
		FieldChan:    fieldChan,
		readingTopic: config.ReadingTopic,
		sensorTopic:  config.SensorTopic,
	}
}

// SubscribeAll subscribes to all configured topics
func (s *Subscriber) SubscribeAll() error {
	if s.readingTopic != "" {
		if err := s.subscribeToTopic(s.readingTopic, s.handleReading); err != nil {
			return fmt.Errorf("failed to subscribe to reading topic: %w", err)
		}
		log.Printf("Subscribed to reading topic: %s", s.readingTopic)
	}

	if s.sensorTopic != "" {
		if err := s.subscribeToTopic(s.sensorTopic, s.handleSensor); err != nil {
			return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
		}
		log.Printf("Subscribed to sensor topic: %s", s.sensorTopic)
	}

	return nil
}

func (s *Subscriber) subscribeToTopic(topic string, handler mqtt.MessageHandler) error {
	token := s.client.Subscribe(topic, 1, handler)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// handleReading processes a full reading (drain/{device_id}/reading)
func (s *Subscriber) handleReading(client mqtt.Client, msg mqtt.Message) {
	var req models.InferenceRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		log.Printf("Error unmarshaling reading from %s: %v", msg.Topic(), err)
		return
	}

	if req.DeviceID == "" {
		req.DeviceID = extractDeviceID(msg.Topic())
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
	req.Source = "mqtt"

	log.Printf("Received reading from %s", req.DeviceID)

	select {
	case s.RequestChan <- &req:
	case <-time.After(1 * time.Second):
		log.Printf("Warning: Request channel full, dropping reading from %s", req.DeviceID)
	}
}

// handleSensor processes one feature value (sensor/{device_id}/{feature})
func (s *Subscriber) handleSensor(client mqtt.Client, msg mqtt.Message) {
	deviceID := extractDeviceID(msg.Topic())
	feature := extractFeature(msg.Topic())
	if deviceID == "" || feature == "" {
		log.Printf("Could not extract device ID and feature from topic: %s", msg.Topic())
		return
	}

	value, err := parseScalar(msg.Payload())
	if err != nil {
		log.Printf("Error parsing %s value from %s: %v", feature, deviceID, err)
		return
	}

	update := &models.FieldUpdate{
		Timestamp: time.Now(),
		DeviceID:  deviceID,
		Feature:   feature,
		Value:     value,
	}

	select {
	case s.FieldChan <- update:
	case <-time.After(1 * time.Second):
		log.Printf("Warning: Field channel full, dropping %s from %s", feature, deviceID)
	}
}

// parseScalar accepts a bare number or a boolean flag as published by the nodes
func parseScalar(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	switch strings.ToLower(s) {
	case "true", "on":
		return 1, nil
	case "false", "off":
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %q is not finite", s)
	}
	return v, nil
}

// extractDeviceID extracts device ID from MQTT topic
// Example: "sensor/drain-001/temp_value" -> "drain-001"
// Example: "drain/drain-001/reading" -> "drain-001"
func extractDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

// extractFeature returns the last topic segment of a three-level sensor topic
// Example: "sensor/drain-001/water_dist" -> "water_dist"
func extractFeature(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 {
		return parts[len(parts)-1]
	}
	return ""
}
