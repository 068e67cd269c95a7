package tsdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading records a validated sensor reading as a telemetry point.
//
// The write is non-blocking; points are batched and sent asynchronously.
// The reading's own timestamp is used so delayed submissions land at the
// correct point in the series.
func (c *Client) WriteSensorReading(sensorID, sensorType, unit string, value float64, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"sensor_id": sensorID,
			"type":      sensorType,
			"unit":      unit,
		},
		map[string]interface{}{
			"value": value,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteGatewayStats records gateway-level counters (connections, sessions,
// registry size) for operational dashboards.
func (c *Client) WriteGatewayStats(fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"gateway_stats",
		map[string]string{},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
