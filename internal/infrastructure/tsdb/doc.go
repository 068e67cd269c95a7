// Package tsdb records sensor telemetry in InfluxDB.
//
// Each validated reading becomes a point in the sensor_readings
// measurement, tagged by sensor, type, and unit. Writes are batched and
// asynchronous; failures surface through the SetOnError callback rather
// than blocking the ingestion path. The sink is optional and controlled
// by the influxdb section of config.yaml.
package tsdb
