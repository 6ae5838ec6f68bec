package database

// SQL schemas for all ClickHouse tables

const (
	// DrainPredictionsTableSQL creates the drain_predictions table.
	// Feature values are stored as parallel arrays so schema changes in the
	// artifacts do not need a migration.
	DrainPredictionsTableSQL = `
		CREATE TABLE IF NOT EXISTS drain_predictions (
			timestamp DateTime64(3),
			device_id String,
			request_id String,
			source LowCardinality(String),
			status LowCardinality(String),
			confidence Nullable(Float64),
			feature_names Array(String),
			feature_values Array(Float64),
			out_of_range Array(String),
			inference_time_ms Float64,
			model_version String
		) ENGINE = MergeTree()
		ORDER BY (device_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// DeviceRegistryTableSQL creates the device_registry table
	DeviceRegistryTableSQL = `
		CREATE TABLE IF NOT EXISTS device_registry (
			device_id String,
			name String,
			location String,
			registered_at DateTime64(3),
			last_seen DateTime64(3),
			last_status LowCardinality(String),
			is_active Bool
		) ENGINE = ReplacingMergeTree(last_seen)
		ORDER BY device_id
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		DrainPredictionsTableSQL,
		DeviceRegistryTableSQL,
	}
}
