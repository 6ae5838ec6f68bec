package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP API
	HTTPAddr string

	// Artifacts
	ScalerPath string
	ModelPath  string

	// MQTT Configuration
	MQTTEnabled  bool
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// Topics
	MQTTTopicReading  string // full readings, JSON
	MQTTTopicSensor   string // one scalar per feature
	MQTTTopicStatus   string // predictions out, {device_id} placeholder
	MQTTTopicPresence string // service online/offline, retained

	// ClickHouse Configuration
	ClickHouseEnabled bool
	ClickHouseAddr    string
	ClickHouseDB      string
	ClickHouseUser    string
	ClickHousePass    string

	// Change Detection Thresholds
	TemperatureThreshold float64
	DistanceThreshold    float64
	InferenceMinInterval time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		ScalerPath: getEnv("SCALER_PATH", "./artifacts/scaler.json"),
		ModelPath:  getEnv("MODEL_PATH", "./artifacts/drain_status_model.json"),

		// MQTT Configuration
		MQTTEnabled:  getEnvBool("MQTT_ENABLED", false),
		MQTTBroker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "drain-guard"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		MQTTTopicReading:  getEnv("MQTT_TOPIC_READING", "drain/+/reading"),
		MQTTTopicSensor:   getEnv("MQTT_TOPIC_SENSOR", "sensor/+/+"),
		MQTTTopicStatus:   getEnv("MQTT_TOPIC_STATUS", "drain/{device_id}/status"),
		MQTTTopicPresence: getEnvOptional("MQTT_TOPIC_PRESENCE", "drain-guard/presence"),

		// ClickHouse Configuration
		ClickHouseEnabled: getEnvBool("CLICKHOUSE_ENABLED", false),
		ClickHouseAddr:    getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:      getEnv("CLICKHOUSE_DB", "drainguard"),
		ClickHouseUser:    getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass:    getEnv("CLICKHOUSE_PASS", ""),

		// Change Detection Thresholds
		TemperatureThreshold: getEnvFloat("TEMPERATURE_THRESHOLD", 0.5),
		DistanceThreshold:    getEnvFloat("DISTANCE_THRESHOLD", 20.0),
		InferenceMinInterval: getEnvDuration("INFERENCE_MIN_INTERVAL", 5*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvOptional is getEnv for settings that an explicit empty value switches off
func getEnvOptional(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: failed to parse %s as float, using default: %v", key, err)
		return defaultValue
	}
	return floatValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return d
}
