// Package api provides the HTTP and WebSocket front end of the sensor
// gateway.
//
// It exposes a health endpoint and the WebSocket ingestion endpoint, and
// owns connection-level concerns: upgrade, per-IP DoS guarding, the hub
// of live connections, and the read/write pumps that drive one gateway
// session per connection.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chloestaris/iot-sensor/internal/gateway"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/config"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/database"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/logging"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/mqtt"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/tsdb"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.ServerConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Version  string

	// Gateway carries the shared session components. The server fills in
	// the Connections counter from its hub.
	Gateway gateway.Deps

	// Optional, used by the health endpoint.
	DB       *database.DB
	MQTT     *mqtt.Client
	InfluxDB *tsdb.Client
}

// Server is the HTTP front end of the sensor gateway.
//
// It manages the HTTP listener, routes, middleware, WebSocket hub, and
// DoS guard. The server is created with New() and started with Start().
type Server struct {
	cfg      config.ServerConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	version  string
	gwDeps   gateway.Deps
	db       *database.DB
	mqtt     *mqtt.Client
	influxdb *tsdb.Client

	server   *http.Server
	hub      *Hub
	dosGuard *dosGuard
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, gateway components)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if deps.Gateway.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if deps.Gateway.Validator == nil {
		return nil, fmt.Errorf("sensor validator is required")
	}
	if deps.Gateway.Registry == nil {
		return nil, fmt.Errorf("user registry is required")
	}

	guard, err := newDoSGuard(deps.Security.DoSProtection)
	if err != nil {
		return nil, fmt.Errorf("creating DoS guard: %w", err)
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		version:  deps.Version,
		gwDeps:   deps.Gateway,
		db:       deps.DB,
		mqtt:     deps.MQTT,
		influxdb: deps.InfluxDB,
		dosGuard: guard,
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.logger)
	go s.hub.Run(srvCtx)

	// system_stats reads the live connection count from the hub.
	s.gwDeps.Connections = s.hub.ClientCount

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server.
//
// It disconnects all WebSocket sessions, then waits up to 10 seconds for
// in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("server not started")
	}
	return nil
}
