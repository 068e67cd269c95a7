package api

import (
	"net"

	"github.com/chloestaris/iot-sensor/internal/infrastructure/config"
	"github.com/chloestaris/iot-sensor/internal/ratelimit"
)

// dosGuard limits connection attempts per source IP. It runs before the
// WebSocket upgrade, so a flooding host is refused at the HTTP layer
// without ever reaching a session.
//
// The guard reuses the fixed-window limiter keyed by IP instead of by
// client ID; connection attempts are just another admission decision.
type dosGuard struct {
	enabled bool
	limiter *ratelimit.Limiter
}

func newDoSGuard(cfg config.DoSProtectionConfig) (*dosGuard, error) {
	if !cfg.Enabled {
		return &dosGuard{}, nil
	}
	limiter, err := ratelimit.New(ratelimit.Limit{
		MaxRequests:   cfg.MaxConnections,
		WindowSeconds: cfg.WindowSeconds,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &dosGuard{enabled: true, limiter: limiter}, nil
}

// allow reports whether a connection attempt from remoteAddr may proceed.
func (g *dosGuard) allow(remoteAddr string) bool {
	if !g.enabled {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return g.limiter.Admit(host)
}
