// Package config loads and validates the sensor gateway configuration.
//
// Configuration is read from a YAML file, with hardcoded defaults applied
// first and environment variable overrides (SENSORGATE_*) applied last.
// Validation runs after loading and rejects configurations that would leave
// the gateway unable to authenticate anyone or listen for connections.
package config
