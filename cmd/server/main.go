package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drain-guard/internal/aggregator"
	"drain-guard/internal/api"
	"drain-guard/internal/database"
	"drain-guard/internal/ml"
	"drain-guard/internal/models"
	"drain-guard/internal/mqtt"
	"drain-guard/internal/services"
	"drain-guard/pkg/config"
)

func main() {
	log.Println("Starting Drain Guard inference service...")

	// Load configuration
	cfg := config.Load()

	// Artifacts are loaded once; nothing can be served without them
	predictor, err := ml.LoadPredictor(cfg.ScalerPath, cfg.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load model artifacts (%s): %v", ml.ErrorKind(err), err)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Optional ClickHouse store ===
	var store services.PredictionStore
	if cfg.ClickHouseEnabled {
		db, err := database.NewClickHouseDB(ctx,
			cfg.ClickHouseAddr,
			cfg.ClickHouseDB,
			cfg.ClickHouseUser,
			cfg.ClickHousePass,
		)
		if err != nil {
			log.Fatalf("Failed to initialize ClickHouse: %v", err)
		}
		defer db.Close()
		store = db
	} else {
		log.Println("ClickHouse disabled, predictions will not be stored")
	}

	// === Initialize Inference Service ===
	log.Println("Initializing inference service...")
	inferenceService := services.NewInferenceService(predictor, store, services.DefaultInferenceServiceConfig())
	go inferenceService.Start(ctx)

	// === Optional MQTT transport ===
	if cfg.MQTTEnabled {
		mqttClient := startMQTT(ctx, cfg, predictor, inferenceService)
		defer mqttClient.Close()
	} else {
		log.Println("MQTT disabled, serving HTTP only")
	}

	// === HTTP API ===
	server := api.NewServer(cfg.HTTPAddr, inferenceService)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// === Log startup info ===
	log.Println("=== Drain Guard is running ===")
	log.Printf("Model: %s/%s version=%q", predictor.ScalerKind(), predictor.ModelKind(), predictor.Version())
	log.Printf("Features: %s", predictor.Schema())
	log.Printf("HTTP API: %s", cfg.HTTPAddr)
	log.Println("Press Ctrl+C to exit...")

	// === Wait for interrupt signal ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// === Graceful shutdown ===
	log.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete. Goodbye!")
}

// startMQTT wires subscriber -> aggregator -> inference service -> publisher
func startMQTT(ctx context.Context, cfg *config.Config, predictor *ml.Predictor, inferenceService *services.InferenceService) *mqtt.Client {
	log.Println("Connecting to MQTT broker...")
	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,

		PresenceTopic: cfg.MQTTTopicPresence,
	})
	if err != nil {
		log.Fatalf("Failed to initialize MQTT client: %v", err)
	}

	// Per-feature topics are assembled into full readings first
	fieldChan := make(chan *models.FieldUpdate, 100)
	readingAggregator := aggregator.NewReadingAggregator(predictor.Schema().Features(), aggregator.ChangeThresholds{
		TemperatureDelta: cfg.TemperatureThreshold,
		DistanceDelta:    cfg.DistanceThreshold,
		MinInterval:      cfg.InferenceMinInterval,
	})
	readingAggregator.FieldChan = fieldChan
	readingAggregator.RequestChan = inferenceService.RequestChan
	go readingAggregator.Start(ctx)

	subscriber := mqtt.NewSubscriber(
		mqttClient.GetNativeClient(),
		mqtt.SubscriberConfig{
			ReadingTopic: cfg.MQTTTopicReading,
			SensorTopic:  cfg.MQTTTopicSensor,
		},
		inferenceService.RequestChan,
		fieldChan,
	)
	if err := subscriber.SubscribeAll(); err != nil {
		log.Fatalf("Failed to subscribe to MQTT topics: %v", err)
	}
	mqttClient.OnReconnect(func() {
		if err := subscriber.SubscribeAll(); err != nil {
			log.Printf("MQTT: Failed to restore subscriptions: %v", err)
		}
	})

	publisher := mqtt.NewPublisher(
		mqttClient.GetNativeClient(),
		mqtt.PublisherConfig{StatusTopic: cfg.MQTTTopicStatus},
		inferenceService.StatusChan,
	)
	go publisher.Start(ctx)
	// HTTP predictions for a known device also go out on its status topic
	inferenceService.EnableStatusForwarding()

	log.Printf("MQTT Topics:")
	log.Printf("  - Readings: %s", cfg.MQTTTopicReading)
	log.Printf("  - Sensors:  %s", cfg.MQTTTopicSensor)
	log.Printf("  - Status:   %s", cfg.MQTTTopicStatus)

	return mqttClient
}
