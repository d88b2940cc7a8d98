package engine

import (
	"context"
	"net/http"
	"time"
)

// Logger defines the logging interface used by the engine.
// This allows different logging implementations to be used.
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

// StateStore supplies live entity state. The exposure guard treats a lookup
// error as "no live state" for the existence half of its check.
type StateStore interface {
	// Lookup returns the current state for the entity id.
	Lookup(ctx context.Context, entityID string) (EntityState, error)
}

// ServiceCall describes one service invocation against the home backend.
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]any
}

// ServiceCaller performs side-effecting service calls.
type ServiceCaller interface {
	// HasService reports whether the backend knows the given service.
	HasService(domain, service string) bool

	// Call issues the service call and returns the backend response,
	// which may be nil for services without a response payload.
	Call(ctx context.Context, call ServiceCall) (map[string]any, error)
}

// HistoryOptions control the shape of a history query.
type HistoryOptions struct {
	IncludeStartTimeState  bool
	SignificantChangesOnly bool
	MinimalResponse        bool
	NoAttributes           bool
}

// HistoryProvider serves time-ranged state history reads.
// The result is one slice of state snapshots per requested entity.
type HistoryProvider interface {
	History(ctx context.Context, entityIDs []string, start, end time.Time, opts HistoryOptions) ([][]map[string]any, error)
}

// StatisticsRequest describes an aggregate statistics query.
type StatisticsRequest struct {
	StatisticIDs []string
	Start        time.Time
	End          time.Time
	Period       string
	Units        map[string]string
	Types        []string
}

// StatisticsProvider serves aggregate statistics reads.
type StatisticsProvider interface {
	Statistics(ctx context.Context, req StatisticsRequest) (map[string][]map[string]any, error)
}

// EnergyProvider returns the current aggregate energy-manager state.
type EnergyProvider interface {
	EnergySummary(ctx context.Context) (map[string]any, error)
}

// UserResolver resolves a display name for a user id.
type UserResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// AutomationStore persists new automation definitions. Implementations own
// schema validation, storage append, subsystem reload and the registered
// notification.
type AutomationStore interface {
	// Add validates and persists the automation config, returning its id.
	Add(ctx context.Context, config map[string]any) (string, error)
}

// MemoryEntry is one record forwarded to the external memory sink.
type MemoryEntry struct {
	Information    string    `json:"information"`
	Category       string    `json:"category"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// MemorySink forwards conversation memories to an external store.
// Failures must never block the conversation; the native executor degrades
// them to an apologetic result.
type MemorySink interface {
	Log(ctx context.Context, entry MemoryEntry) error
}

// Telemetry records invocation metrics. Implementations must be
// non-blocking; the engine calls RecordInvocation on the invocation path.
type Telemetry interface {
	RecordInvocation(function, kind string, duration time.Duration, outcome string)
}

// Capabilities holds the injected backend handles the executors operate
// through. The engine receives these explicitly — there is no ambient
// global registry. Nil capabilities disable the operations that need them;
// invoking such an operation returns an error rather than panicking.
type Capabilities struct {
	States      StateStore
	Services    ServiceCaller
	History     HistoryProvider
	Statistics  StatisticsProvider
	Energy      EnergyProvider
	Users       UserResolver
	Automations AutomationStore
	Memory      MemorySink

	// HTTPClient is used by the rest and scrape executors. A default
	// client with a conservative timeout is installed when nil.
	HTTPClient *http.Client

	// RecorderPath is the filesystem path of the default database the
	// sqlite executor queries when a function config names none.
	RecorderPath string

	Logger Logger
}
