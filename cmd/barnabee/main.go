// Barnabee Assistant - Function Execution Core
//
// This is the main entry point for the Barnabee assistant core. It hosts
// the function-execution engine that turns the conversation model's tool
// calls into real actions: service calls against the home backend,
// history and statistics queries, automation registration, and memory
// logging. The HTTP API exposes the engine to the conversation layer and
// relays live events over WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/trfife/barnabee-assistant/migrations"

	"github.com/trfife/barnabee-assistant/internal/api"
	"github.com/trfife/barnabee-assistant/internal/audit"
	"github.com/trfife/barnabee-assistant/internal/automation"
	"github.com/trfife/barnabee-assistant/internal/engine"
	"github.com/trfife/barnabee-assistant/internal/entity"
	"github.com/trfife/barnabee-assistant/internal/homectl"
	"github.com/trfife/barnabee-assistant/internal/infrastructure/config"
	"github.com/trfife/barnabee-assistant/internal/infrastructure/database"
	"github.com/trfife/barnabee-assistant/internal/infrastructure/influxdb"
	"github.com/trfife/barnabee-assistant/internal/infrastructure/logging"
	"github.com/trfife/barnabee-assistant/internal/infrastructure/mqtt"
	"github.com/trfife/barnabee-assistant/internal/memory"
	"github.com/trfife/barnabee-assistant/internal/recorder"
	"github.com/trfife/barnabee-assistant/internal/user"
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

// maintenanceInterval is how often the recorder compiles hourly
// statistics and prunes expired state rows.
const maintenanceInterval = time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo,maintidx // composition root: sequential wiring of every subsystem
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Barnabee assistant core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the main database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise entity registry
	entityRepo := entity.NewSQLiteRepository(db.DB)
	entityRegistry := entity.NewRegistry(entityRepo)
	entityRegistry.SetLogger(log)

	if refreshErr := entityRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading entity registry: %w", refreshErr)
	}
	log.Info("entity registry initialised", "exposed", len(entityRegistry.ExposedEntities()))

	// User and invocation audit repositories share the main database
	userRepo := user.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditRepo.SetLogger(log)

	// Open the recorder database (state history and statistics)
	recStore, err := recorder.Open(cfg.Recorder.Path)
	if err != nil {
		return fmt.Errorf("opening recorder: %w", err)
	}
	defer func() {
		log.Info("closing recorder")
		if closeErr := recStore.Close(); closeErr != nil {
			log.Error("error closing recorder", "error", closeErr)
		}
	}()
	recStore.SetLogger(log)
	log.Info("recorder opened", "path", recStore.Path())

	go recorderMaintenance(ctx, recStore, cfg.Recorder.RetentionDays, log)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Feed incoming entity state updates into the registry and recorder
	if err := subscribeEntityStates(mqttClient, entityRegistry, recStore, log); err != nil {
		return fmt.Errorf("subscribing to entity states: %w", err)
	}

	// Service caller bridges engine service calls onto the MQTT bus
	serviceCaller := homectl.New(mqttClient)
	serviceCaller.SetLogger(log)
	if err := serviceCaller.Start(); err != nil {
		return fmt.Errorf("starting service caller: %w", err)
	}
	log.Info("service caller started")

	// Automation store (optional: empty path disables add_automation persistence)
	var automationStore *automation.FileStore
	if cfg.Automations.Path != "" {
		automationStore, err = automation.NewFileStore(cfg.Automations.Path)
		if err != nil {
			return fmt.Errorf("opening automation store: %w", err)
		}
		automationStore.SetLogger(log)
		automationStore.SetNotifier(&coreEventNotifier{client: mqttClient, log: log})
		log.Info("automation store loaded", "path", cfg.Automations.Path)
	} else {
		log.Info("automation store disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Memory sink (optional)
	var memorySink engine.MemorySink
	if cfg.Memory.Enabled {
		memClient := memory.New(cfg.Memory.URL, cfg.GetMemoryTimeout())
		memClient.SetLogger(log)
		memorySink = memClient
		log.Info("memory sink enabled", "url", cfg.Memory.URL)
	} else {
		log.Info("memory sink disabled")
	}

	// Assemble the function engine
	caps := engine.Capabilities{
		States:       entityRegistry,
		Services:     serviceCaller,
		History:      recStore,
		Statistics:   recStore,
		Energy:       recStore,
		Users:        userRepo,
		Memory:       memorySink,
		RecorderPath: recStore.Path(),
		Logger:       log,
	}
	if automationStore != nil {
		caps.Automations = automationStore
	}
	engRegistry := engine.NewRegistry(caps)

	catalog := engine.NewCatalog(engRegistry, log)
	if _, statErr := os.Stat(cfg.Functions.Path); statErr == nil {
		if loadErr := catalog.LoadFile(cfg.Functions.Path); loadErr != nil {
			return fmt.Errorf("loading function catalog: %w", loadErr)
		}
		log.Info("function catalog loaded",
			"path", cfg.Functions.Path,
			"functions", len(catalog.Specs()),
		)
	} else {
		log.Warn("function catalog missing, starting with built-ins only", "path", cfg.Functions.Path)
	}

	eng := engine.New(engRegistry, catalog, log)
	eng.SetTelemetry(buildTelemetry(auditRepo, influxClient,
		&invocationEventSink{client: mqttClient, log: log}))

	// Start the HTTP API
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Engine:      eng,
		Entities:    entityRegistry,
		Automations: automationStore,
		MQTT:        mqttClient,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, recStore, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Recorder
	// 5. Database

	log.Info("Barnabee assistant core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses BARNABEE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BARNABEE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// subscribeEntityStates wires incoming state publications into the entity
// registry (live state and adoption) and the recorder (history).
func subscribeEntityStates(client *mqtt.Client, registry *entity.Registry, store *recorder.Store, log *logging.Logger) error {
	topics := mqtt.Topics{}

	return client.Subscribe(topics.AllEntityStates(), 1, func(topic string, payload []byte) error {
		entityID := strings.TrimPrefix(topic, topics.EntityState(""))
		if entityID == "" || entityID == topic {
			return nil
		}
		ctx := context.Background()

		prev, _ := registry.Get(ctx, entityID) //nolint:errcheck // unknown entity means no prior state

		if err := registry.HandleStateUpdate(ctx, entityID, payload); err != nil {
			log.Warn("state update rejected", "entity_id", entityID, "error", err)
			return nil
		}

		cur, err := registry.Get(ctx, entityID)
		if err != nil {
			return nil
		}

		changed := prev == nil || prev.State != cur.State
		if err := store.RecordState(ctx, entityID, cur.State, cur.Attributes, changed); err != nil {
			log.Warn("recorder write failed", "entity_id", entityID, "error", err)
		}
		return nil
	})
}

// recorderMaintenance periodically compiles hourly statistics and prunes
// state rows past the retention window.
func recorderMaintenance(ctx context.Context, store *recorder.Store, retentionDays int, log *logging.Logger) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()

			hourEnd := now.Truncate(time.Hour)
			hourStart := hourEnd.Add(-time.Hour)
			if err := store.CompileHourlyStatistics(ctx, hourStart, hourEnd); err != nil {
				log.Warn("statistics compilation failed", "error", err)
			}

			if retentionDays > 0 {
				cutoff := now.AddDate(0, 0, -retentionDays)
				pruned, err := store.PruneBefore(ctx, cutoff)
				if err != nil {
					log.Warn("recorder prune failed", "error", err)
				} else if pruned > 0 {
					log.Info("recorder pruned", "rows", pruned, "cutoff", cutoff)
				}
			}
		}
	}
}

// buildTelemetry assembles the telemetry sinks: the local invocation
// audit trail always records; InfluxDB joins when configured.
func buildTelemetry(auditRepo *audit.SQLiteRepository, influxClient *influxdb.Client, events *invocationEventSink) engine.Telemetry {
	fan := &telemetryFan{sinks: []engine.Telemetry{auditRepo}}
	if influxClient != nil {
		fan.sinks = append(fan.sinks, influxClient)
	}
	if events != nil {
		fan.sinks = append(fan.sinks, events)
	}
	return fan
}

// telemetryFan forwards each invocation record to every sink.
type telemetryFan struct {
	sinks []engine.Telemetry
}

// RecordInvocation implements engine.Telemetry.
func (f *telemetryFan) RecordInvocation(function, kind string, duration time.Duration, outcome string) {
	for _, sink := range f.sinks {
		sink.RecordInvocation(function, kind, duration, outcome)
	}
}

// invocationEventSink publishes each invocation as a core event so
// WebSocket clients can watch function activity live.
type invocationEventSink struct {
	client *mqtt.Client
	log    *logging.Logger
}

// RecordInvocation implements engine.Telemetry.
func (s *invocationEventSink) RecordInvocation(function, kind string, duration time.Duration, outcome string) {
	topics := mqtt.Topics{}
	payload := fmt.Sprintf(`{"function":%q,"kind":%q,"duration_ms":%.3f,"outcome":%q}`,
		function, kind, float64(duration.Microseconds())/1000.0, outcome)
	if err := s.client.PublishString(topics.CoreEvent("function.invoked"), payload, 0, false); err != nil {
		s.log.Warn("failed to publish invocation event", "function", function, "error", err)
	}
}

// coreEventNotifier publishes automation registrations as core events so
// WebSocket clients see them in real time.
type coreEventNotifier struct {
	client *mqtt.Client
	log    *logging.Logger
}

// AutomationRegistered implements automation.Notifier.
func (n *coreEventNotifier) AutomationRegistered(id string) {
	topics := mqtt.Topics{}
	payload := fmt.Sprintf(`{"automation_id":%q}`, id)
	if err := n.client.PublishString(topics.CoreEvent("automation.registered"), payload, 1, false); err != nil {
		n.log.Warn("failed to publish automation event", "automation_id", id, "error", err)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, store *recorder.Store, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("recorder: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
