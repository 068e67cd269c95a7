// Sensorgate - IoT sensor ingestion gateway
//
// This is the main entry point for the sensor gateway. It accepts
// WebSocket connections from sensor clients, authenticates them by API
// key, enforces per-client rate limits and permission scoping, validates
// telemetry, and forwards accepted readings to MQTT and InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/chloestaris/iot-sensor/migrations"

	"github.com/chloestaris/iot-sensor/internal/api"
	"github.com/chloestaris/iot-sensor/internal/audit"
	"github.com/chloestaris/iot-sensor/internal/auth"
	"github.com/chloestaris/iot-sensor/internal/gateway"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/config"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/database"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/logging"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/mqtt"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/tsdb"
	"github.com/chloestaris/iot-sensor/internal/ratelimit"
	"github.com/chloestaris/iot-sensor/internal/registry"
	"github.com/chloestaris/iot-sensor/internal/sensor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit // linear startup sequence
	log := logging.Default()
	log.Info("starting sensorgate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	// Open database and run migrations.
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// User registry: persisted entries first, then config-declared seeds.
	userRegistry := registry.New(registry.NewRepository(db.DB))
	if loadErr := userRegistry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading user registry: %w", loadErr)
	}
	if seedErr := seedRegistry(ctx, userRegistry, cfg.Security.APIKeys); seedErr != nil {
		return fmt.Errorf("seeding user registry: %w", seedErr)
	}
	log.Info("user registry initialised", "users", userRegistry.Size())

	// Credential store resolves regular principals through the registry.
	credentials, err := auth.NewCredentialStore(keyEntries(cfg.Security.APIKeys), userRegistry)
	if err != nil {
		return fmt.Errorf("building credential store: %w", err)
	}
	log.Info("credential store initialised", "keys", credentials.Len())

	// Rate limiter with persisted per-client overrides.
	limiter, err := ratelimit.New(ratelimit.Limit{
		MaxRequests:   cfg.Security.RateLimit.MaxRequests,
		WindowSeconds: cfg.Security.RateLimit.WindowSeconds,
	}, ratelimit.NewRepository(db.DB))
	if err != nil {
		return fmt.Errorf("building rate limiter: %w", err)
	}
	if restoreErr := limiter.Restore(ctx); restoreErr != nil {
		return fmt.Errorf("restoring rate limits: %w", restoreErr)
	}

	// Connect to MQTT broker (optional ingestion sink).
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional telemetry sink).
	var influxClient *tsdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = tsdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the API server.
	server, err := api.New(api.Deps{
		Config:   cfg.Server,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Version:  version,
		Gateway: gateway.Deps{
			Credentials: credentials,
			Limiter:     limiter,
			Validator:   sensor.NewValidator(cfg.Security.Validation.TimestampSkew),
			Registry:    userRegistry,
			Audit:       audit.NewSQLiteRepository(db.DB),
			Sink:        buildSink(mqttClient, influxClient),
			Stats:       buildStats(influxClient),
			Logger:      log.Logger,
		},
		DB:       db,
		MQTT:     mqttClient,
		InfluxDB: influxClient,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("sensorgate stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SENSORGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SENSORGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// keyEntries converts config API key entries into credential entries.
func keyEntries(entries []config.APIKeyEntry) []auth.KeyEntry {
	out := make([]auth.KeyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, auth.KeyEntry{
			Key:            e.Key,
			Role:           auth.Role(e.Role),
			UserID:         e.UserID,
			Permissions:    toPermissions(e.Permissions),
			AllowedSensors: e.AllowedSensors,
		})
	}
	return out
}

// seedRegistry creates registry entries for config-declared regular
// users that do not exist yet. Existing entries keep their runtime
// grants.
func seedRegistry(ctx context.Context, reg *registry.Registry, entries []config.APIKeyEntry) error {
	for _, e := range entries {
		if e.Role != string(auth.RoleRegular) || e.UserID == "" {
			continue
		}
		if err := reg.Seed(ctx, e.UserID, toPermissions(e.Permissions), e.AllowedSensors); err != nil {
			return err
		}
	}
	return nil
}

func toPermissions(names []string) []auth.Permission {
	perms := make([]auth.Permission, 0, len(names))
	for _, n := range names {
		perms = append(perms, auth.Permission(n))
	}
	return perms
}

// buildStats exports system_stats snapshots to InfluxDB when the
// telemetry sink is enabled.
func buildStats(influxClient *tsdb.Client) func(map[string]any) {
	if influxClient == nil {
		return nil
	}
	return influxClient.WriteGatewayStats
}

// buildSink fans validated readings out to the configured sinks: the
// MQTT topic tree for downstream consumers and InfluxDB for telemetry
// dashboards. Either may be nil.
func buildSink(mqttClient *mqtt.Client, influxClient *tsdb.Client) gateway.Sink {
	return gateway.SinkFunc(func(_ context.Context, r sensor.Reading) error {
		if influxClient != nil {
			influxClient.WriteSensorReading(r.SensorID, r.Type, r.Unit, r.Value, time.Unix(r.Timestamp, 0))
		}
		if mqttClient != nil {
			payload, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encoding reading: %w", err)
			}
			if err := mqttClient.PublishReading(r.Type, r.SensorID, payload); err != nil {
				return fmt.Errorf("publishing reading: %w", err)
			}
		}
		return nil
	})
}
