package model

import (
	"encoding/json"
	"time"
)

// Destination is a configured publish endpoint. TechnicalName is the routing
// key; Type selects the strategy. Config may contain credential references
// (fields suffixed "Ref") resolved lazily at publish time and never persisted
// resolved.
type Destination struct {
	ID            string          `db:"id"`
	Name          string          `db:"name"`
	TechnicalName string          `db:"technical_name"`
	Type          string          `db:"type"`
	Active        bool            `db:"is_active"`
	Config        json.RawMessage `db:"config"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     *time.Time      `db:"updated_at"`
}

// ConfigMap decodes the destination configuration document.
func (d Destination) ConfigMap() map[string]any {
	if len(d.Config) == 0 {
		return map[string]any{}
	}

	var cfg map[string]any
	if err := json.Unmarshal(d.Config, &cfg); err != nil || cfg == nil {
		return map[string]any{}
	}
	return cfg
}

// Route maps an event-name glob pattern to an ordered list of destination
// technical names. Lower priority sorts earlier.
type Route struct {
	ID           string
	Name         string
	EventPattern string
	Priority     int
	Active       bool
	TargetKeys   []string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}
