package homectl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trfife/barnabee-assistant/internal/engine"
	"github.com/trfife/barnabee-assistant/internal/infrastructure/mqtt"
)

// defaultCallTimeout bounds a call when the caller's context has no
// deadline of its own.
const defaultCallTimeout = 10 * time.Second

// Logger defines the logging interface used by the Caller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bus is the slice of the MQTT client the caller needs.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// commandPayload is the JSON body published for one service command.
type commandPayload struct {
	RequestID string         `json:"request_id"`
	Service   string         `json:"service"`
	Data      map[string]any `json:"data,omitempty"`
}

// resultPayload is the JSON body the backend answers with.
type resultPayload struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
}

// Caller issues service calls to the home backend over the message bus
// and tracks the backend's advertised service table. It satisfies the
// execution engine's service caller contract.
//
// All public methods are thread-safe.
type Caller struct {
	bus     Bus
	topics  mqtt.Topics
	timeout time.Duration
	logger  Logger

	// services is the backend's advertised table: domain -> service set.
	// nil until the first announcement arrives.
	services   map[string]map[string]struct{}
	servicesMu sync.RWMutex

	// pending maps request ids to result channels.
	pending   map[string]chan resultPayload
	pendingMu sync.Mutex
}

// New creates a caller over the given bus.
func New(bus Bus) *Caller {
	return &Caller{
		bus:     bus,
		timeout: defaultCallTimeout,
		logger:  noopLogger{},
		pending: make(map[string]chan resultPayload),
	}
}

// SetLogger sets the logger for the caller.
func (c *Caller) SetLogger(logger Logger) {
	c.logger = logger
}

// SetTimeout overrides the default per-call timeout.
func (c *Caller) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Start subscribes to the service table and result topics. Call once
// after the bus is connected.
func (c *Caller) Start() error {
	if err := c.bus.Subscribe(c.topics.ServicesAnnounce(), 1, c.handleServices); err != nil {
		return fmt.Errorf("subscribing to service table: %w", err)
	}
	if err := c.bus.Subscribe(c.topics.AllServiceResults(), 1, c.handleResult); err != nil {
		return fmt.Errorf("subscribing to results: %w", err)
	}
	return nil
}

// handleServices ingests the retained service table: a JSON object of
// domain to service-name list.
func (c *Caller) handleServices(_ string, payload []byte) error {
	var table map[string][]string
	if err := json.Unmarshal(payload, &table); err != nil {
		c.logger.Warn("malformed service table", "error", err)
		return fmt.Errorf("parsing service table: %w", err)
	}

	services := make(map[string]map[string]struct{}, len(table))
	count := 0
	for domain, names := range table {
		set := make(map[string]struct{}, len(names))
		for _, name := range names {
			set[name] = struct{}{}
			count++
		}
		services[domain] = set
	}

	c.servicesMu.Lock()
	c.services = services
	c.servicesMu.Unlock()

	c.logger.Info("service table updated", "domains", len(services), "services", count)
	return nil
}

// handleResult routes a result payload to the waiting call, keyed by the
// request id in the topic. Results for unknown requests (late answers
// after a timeout) are dropped.
func (c *Caller) handleResult(topic string, payload []byte) error {
	requestID := topic[strings.LastIndex(topic, "/")+1:]

	c.pendingMu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("dropping unexpected result", "request_id", requestID)
		return nil
	}

	var result resultPayload
	if err := json.Unmarshal(payload, &result); err != nil {
		result = resultPayload{Success: false, Error: fmt.Sprintf("unparseable result: %v", err)}
	}
	ch <- result
	return nil
}

// HasService reports whether the backend knows the given service.
// Before the first table announcement arrives the answer is true, so a
// slow retained delivery cannot brick every call at startup; the backend
// still rejects genuinely unknown services itself.
func (c *Caller) HasService(domain, service string) bool {
	c.servicesMu.RLock()
	defer c.servicesMu.RUnlock()

	if c.services == nil {
		return true
	}
	set, ok := c.services[domain]
	if !ok {
		return false
	}
	_, ok = set[service]
	return ok
}

// Call publishes one service command and waits for its result. The
// response map may be nil for services without a response payload.
func (c *Caller) Call(ctx context.Context, call engine.ServiceCall) (map[string]any, error) {
	requestID := uuid.NewString()

	payload, err := json.Marshal(commandPayload{
		RequestID: requestID,
		Service:   call.Service,
		Data:      call.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling command: %w", err)
	}

	ch := make(chan resultPayload, 1)
	c.pendingMu.Lock()
	c.pending[requestID] = ch
	c.pendingMu.Unlock()

	topic := c.topics.ServiceCommand(call.Domain, requestID)
	if err := c.bus.Publish(topic, payload, 1, false); err != nil {
		c.abandon(requestID)
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	c.logger.Debug("service command published",
		"domain", call.Domain, "service", call.Service, "request_id", requestID)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		if !result.Success {
			return nil, fmt.Errorf("%w: %s.%s: %s", ErrCallRejected, call.Domain, call.Service, result.Error)
		}
		return result.Result, nil
	case <-ctx.Done():
		c.abandon(requestID)
		return nil, ctx.Err()
	case <-timer.C:
		c.abandon(requestID)
		return nil, fmt.Errorf("%w: %s.%s after %s", ErrCallTimeout, call.Domain, call.Service, c.timeout)
	}
}

// abandon forgets a pending request.
func (c *Caller) abandon(requestID string) {
	c.pendingMu.Lock()
	delete(c.pending, requestID)
	c.pendingMu.Unlock()
}
