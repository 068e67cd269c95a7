package mqtt

import "fmt"

// topicPrefix is the root of all gateway MQTT topics.
const topicPrefix = "sensors"

// Topics builds the MQTT topic strings used by the gateway.
//
// Topic layout:
//
//	sensors/data/{type}/{sensor_id}   validated readings, one topic per sensor
//	sensors/system/status             gateway online/offline status (retained)
type Topics struct{}

// SensorData returns the data topic for a validated reading.
// Example: sensors/data/temperature/temp_sensor_001
func (Topics) SensorData(sensorType, sensorID string) string {
	return fmt.Sprintf("%s/data/%s/%s", topicPrefix, sensorType, sensorID)
}

// SystemStatus returns the gateway status topic.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}
