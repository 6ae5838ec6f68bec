package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"drain-guard/internal/metrics"
	"drain-guard/internal/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher drains status responses from a channel onto MQTT
type Publisher struct {
	client mqtt.Client

	// Input channel (written by the inference service)
	StatusChan chan *models.InferenceResponse

	statusTopic string // e.g., "drain/{device_id}/status"
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	StatusTopic string
}

// NewPublisher creates a new MQTT publisher reading from statusChan
func NewPublisher(
	client mqtt.Client,
	config PublisherConfig,
	statusChan chan *models.InferenceResponse,
) *Publisher {
	return &Publisher{
		client:      client,
		StatusChan:  statusChan,
		statusTopic: config.StatusTopic,
	}
}

// Start publishes responses until the context is cancelled or the channel is closed
func (p *Publisher) Start(ctx context.Context) {
	log.Println("MQTT Publisher: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT Publisher: Context cancelled, shutting down...")
			return

		case resp, ok := <-p.StatusChan:
			if !ok {
				log.Println("MQTT Publisher: Status channel closed, shutting down...")
				return
			}

			err := p.publishStatus(resp)
			metrics.ObservePublish(err)
			if err != nil {
				log.Printf("MQTT Publisher: Error publishing status: %v", err)
			}
		}
	}
}

func (p *Publisher) publishStatus(resp *models.InferenceResponse) error {
	if resp.DeviceID == "" {
		// nowhere to route it
		return nil
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	topic := formatTopic(p.statusTopic, resp.DeviceID)

	// retained, so a dashboard that connects later sees the last status
	token := p.client.Publish(topic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish status: %w", token.Error())
	}

	log.Printf("MQTT Publisher: Published %s for device %s to topic: %s", resp.Status, resp.DeviceID, topic)
	return nil
}

// formatTopic replaces {device_id} placeholder with actual device ID
func formatTopic(topicPattern, deviceID string) string {
	return strings.ReplaceAll(topicPattern, "{device_id}", deviceID)
}
