package database

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"drain-guard/internal/models"
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(ctx context.Context, addr, database, username, password string) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("Connected to ClickHouse at %s", addr)

	db := &ClickHouseDB{conn: conn}

	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// SavePrediction saves one prediction together with the raw features it was made from
func (db *ClickHouseDB) SavePrediction(ctx context.Context, req *models.InferenceRequest, resp *models.InferenceResponse) error {
	names, values := flattenFeatures(resp.FeaturesUsed)

	query := `
		INSERT INTO drain_predictions (timestamp, device_id, request_id, source, status, confidence,
			feature_names, feature_values, out_of_range, inference_time_ms, model_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	outOfRange := resp.OutOfRange
	if outOfRange == nil {
		outOfRange = []string{}
	}

	err := db.conn.Exec(ctx, query,
		resp.Timestamp,
		resp.DeviceID,
		resp.RequestID,
		req.Source,
		string(resp.Status),
		resp.Confidence,
		names,
		values,
		outOfRange,
		resp.InferenceTimeMs,
		resp.ModelVersion,
	)

	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	return nil
}

// UpsertDevice inserts or updates a device in the registry.
// ReplacingMergeTree keeps the row with the latest last_seen.
func (db *ClickHouseDB) UpsertDevice(ctx context.Context, device *models.Device) error {
	query := `
		INSERT INTO device_registry (device_id, name, location, registered_at, last_seen, last_status, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		device.DeviceID,
		device.Name,
		device.Location,
		device.RegisteredAt,
		device.LastSeen,
		string(device.LastStatus),
		device.IsActive,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}

	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		log.Println("ClickHouse connection closed")
	}
	return nil
}

// flattenFeatures splits the feature map into name-sorted parallel arrays
func flattenFeatures(features map[string]float64) ([]string, []float64) {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]float64, len(names))
	for i, name := range names {
		values[i] = features[name]
	}
	return names, values
}
