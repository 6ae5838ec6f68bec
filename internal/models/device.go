package models

import "time"

// Device represents a drain sensor node in the registry
type Device struct {
	DeviceID     string    `json:"device_id"`
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
	LastStatus   Status    `json:"last_status,omitempty"`
	IsActive     bool      `json:"is_active"`
}
