package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/trfife/barnabee-assistant/internal/automation"
	"github.com/trfife/barnabee-assistant/internal/engine"
	"github.com/trfife/barnabee-assistant/internal/entity"
	"github.com/trfife/barnabee-assistant/internal/infrastructure/config"
	"github.com/trfife/barnabee-assistant/internal/infrastructure/logging"
	"github.com/trfife/barnabee-assistant/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Engine      *engine.Engine
	Entities    *entity.Registry
	Automations *automation.FileStore
	MQTT        *mqtt.Client // optional: enables WebSocket event relay
	Version     string
}

// Server is the HTTP API server for Barnabee.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	engine      *engine.Engine
	entities    *entity.Registry
	automations *automation.FileStore
	mqtt        *mqtt.Client
	version     string
	server      *http.Server
	hub         *Hub
	tickets     *ticketStore
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Entities == nil {
		return nil, fmt.Errorf("entity registry is required")
	}
	// MQTT is optional; without it the WebSocket relay stays silent

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		engine:      deps.Engine,
		entities:    deps.Entities,
		automations: deps.Automations,
		mqtt:        deps.MQTT,
		version:     deps.Version,
		tickets:     newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to MQTT
// event topics for real-time WebSocket broadcast, and launches the HTTP
// listener in a background goroutine. The server can be stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	if err := s.subscribeEvents(); err != nil {
		s.logger.Warn("failed to subscribe to events for WebSocket", "error", err)
	}

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
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// subscribeEvents wires MQTT traffic into the WebSocket hub: entity
// state updates broadcast on "entity.state_changed" and core events on
// their own type.
func (s *Server) subscribeEvents() error {
	if s.mqtt == nil {
		return nil // MQTT not configured; WebSocket relay disabled
	}

	topics := mqtt.Topics{}

	err := s.mqtt.Subscribe(topics.AllEntityStates(), 1, func(topic string, payload []byte) error {
		if s.hub == nil {
			return nil
		}
		var state map[string]any
		if err := json.Unmarshal(payload, &state); err != nil {
			s.logger.Warn("failed to parse state message for WebSocket broadcast", "error", err)
			return nil
		}
		state["entity_id"] = entityIDFromTopic(topic)
		s.hub.Broadcast("entity.state_changed", state)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to entity states: %w", err)
	}

	err = s.mqtt.Subscribe(topics.AllCoreEvents(), 1, func(topic string, payload []byte) error {
		if s.hub == nil {
			return nil
		}
		var event map[string]any
		if err := json.Unmarshal(payload, &event); err != nil {
			event = map[string]any{"raw": string(payload)}
		}
		s.hub.Broadcast(eventTypeFromTopic(topic), event)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to core events: %w", err)
	}

	return nil
}

// entityIDFromTopic extracts the entity id from barnabee/state/{entityID}.
func entityIDFromTopic(topic string) string {
	const prefix = "barnabee/state/"
	if len(topic) > len(prefix) {
		return topic[len(prefix):]
	}
	return ""
}

// eventTypeFromTopic extracts the event type from barnabee/core/event/{type}.
func eventTypeFromTopic(topic string) string {
	const prefix = "barnabee/core/event/"
	if len(topic) > len(prefix) {
		return topic[len(prefix):]
	}
	return ""
}
