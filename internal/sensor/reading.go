package sensor

import "encoding/json"

// Reading is a single inbound telemetry submission. It is transient:
// validated and, if valid, handed to the ingestion sinks — never stored
// by the gateway itself.
type Reading struct {
	SensorID  string          `json:"sensor_id"`
	Type      string          `json:"type"`
	Value     float64         `json:"value"`
	Timestamp int64           `json:"timestamp"`
	Unit      string          `json:"unit,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}
