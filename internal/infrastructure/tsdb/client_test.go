package tsdb

import (
	"context"
	"testing"
	"time"

	"github.com/chloestaris/iot-sensor/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if err != ErrDisabled {
		t.Errorf("Connect() with disabled config = %v, want ErrDisabled", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); err != ErrNotConnected {
		t.Errorf("HealthCheck() on disconnected client = %v, want ErrNotConnected", err)
	}
}

func TestWrite_NotConnectedIsNoOp(t *testing.T) {
	c := &Client{}
	// Must not panic when disconnected.
	c.WriteSensorReading("s1", "temperature", "celsius", 21.5, time.Now())
	c.WriteGatewayStats(map[string]interface{}{"connections": 3})
	c.Flush()
}

func TestClose_NilClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client = %v, want nil", err)
	}
}
