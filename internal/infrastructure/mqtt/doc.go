// Package mqtt publishes validated sensor readings to an MQTT broker.
//
// The gateway acts purely as a publisher: each reading that passes
// validation is forwarded to a per-sensor data topic, and a retained
// status topic announces gateway availability (with a Last Will message
// covering crashes). Connection management, reconnect backoff, and TLS
// are configured from the mqtt section of config.yaml.
package mqtt
