// Package sensor defines the inbound telemetry reading and its validator.
//
// Validation is a pure function of the reading plus static type/unit
// tables: each sensor type accepts a fixed set of units and a plausible
// value range, values must be finite, timestamps must be non-negative and
// no further in the future than a configured skew tolerance. Nothing in
// this package touches the network or storage.
package sensor
