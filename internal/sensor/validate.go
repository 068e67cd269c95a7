package sensor

import (
	"errors"
	"math"
	"regexp"
	"time"
)

// Sentinel errors for reading validation. The gateway surfaces the error
// text verbatim in its response, so these strings are part of the wire
// contract.
var (
	ErrInvalidSensorID  = errors.New("invalid sensor ID")
	ErrUnknownType      = errors.New("unknown sensor type")
	ErrInvalidUnit      = errors.New("invalid unit")
	ErrValueOutOfRange  = errors.New("value out of range")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// sensorIDPattern defines the valid format for sensor IDs:
// alphanumeric, hyphens, underscores.
var sensorIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// typeRule describes the units and plausible value range for one sensor type.
type typeRule struct {
	units    []string
	min, max float64
}

// typeRules is the static table of accepted sensor types. Ranges are
// plausibility bounds, not physical limits: a reading outside them is
// far more likely a fault than a measurement.
var typeRules = map[string]typeRule{
	"temperature": {units: []string{"celsius", "fahrenheit", "kelvin"}, min: -100, max: 150},
	"humidity":    {units: []string{"percent"}, min: 0, max: 100},
	"pressure":    {units: []string{"pascal", "hpa"}, min: 0, max: 200000},
	"light":       {units: []string{"lux"}, min: 0, max: 200000},
	"motion":      {units: []string{""}, min: 0, max: 1}, // unitless presence flag
	"sound":       {units: []string{"db"}, min: 0, max: 200},
	"air_quality": {units: []string{"ppm"}, min: 0, max: 1000000},
	"voltage":     {units: []string{"volt"}, min: -1000, max: 1000},
	"current":     {units: []string{"ampere"}, min: -1000, max: 1000},
}

// Validator checks readings against the static type tables and a
// configured future-timestamp skew tolerance.
//
// Thread Safety:
//   - Safe for concurrent use; holds no mutable state.
type Validator struct {
	skew time.Duration

	// now is injectable for tests.
	now func() time.Time
}

// NewValidator creates a validator accepting timestamps up to
// skewSeconds in the future.
func NewValidator(skewSeconds int) *Validator {
	return &Validator{
		skew: time.Duration(skewSeconds) * time.Second,
		now:  time.Now,
	}
}

// Validate checks a reading against the type/unit/range tables.
//
// Checks run in a fixed order and the first failure wins: sensor ID
// format, type, unit-for-type, finite value, value range, timestamp.
// Returns nil for a valid reading.
func (v *Validator) Validate(r Reading) error {
	if r.SensorID == "" || !sensorIDPattern.MatchString(r.SensorID) {
		return ErrInvalidSensorID
	}

	rule, ok := typeRules[r.Type]
	if !ok {
		return ErrUnknownType
	}

	if !unitAllowed(rule.units, r.Unit) {
		return ErrInvalidUnit
	}

	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return ErrValueOutOfRange
	}
	if r.Value < rule.min || r.Value > rule.max {
		return ErrValueOutOfRange
	}

	if r.Timestamp < 0 {
		return ErrInvalidTimestamp
	}
	if r.Timestamp > v.now().Add(v.skew).Unix() {
		return ErrInvalidTimestamp
	}

	return nil
}

func unitAllowed(units []string, unit string) bool {
	for _, u := range units {
		if u == unit {
			return true
		}
	}
	return false
}

// ValidTypes returns the accepted sensor type names, for diagnostics.
func ValidTypes() []string {
	types := make([]string, 0, len(typeRules))
	for t := range typeRules {
		types = append(types, t)
	}
	return types
}
