package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/trfife/barnabee-assistant/internal/engine"
	"github.com/trfife/barnabee-assistant/internal/entity"
	"github.com/trfife/barnabee-assistant/internal/infrastructure/config"
	"github.com/trfife/barnabee-assistant/internal/infrastructure/logging"
)

// stubServices is a ServiceCaller that accepts every call.
type stubServices struct{}

func (stubServices) HasService(string, string) bool { return true }

func (stubServices) Call(_ context.Context, _ engine.ServiceCall) (map[string]any, error) {
	return nil, nil
}

// testCatalogYAML is a minimal catalog with one template function.
const testCatalogYAML = `
- spec:
    name: say_hello
    description: Greets by name.
  function:
    type: template
    value_template: "Hello {{.name}}"
`

// setupTestDB creates an in-memory SQLite database with the entities table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE entities (
			entity_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			domain TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'unknown',
			attributes TEXT NOT NULL DEFAULT '{}',
			aliases TEXT NOT NULL DEFAULT '[]',
			exposed INTEGER NOT NULL DEFAULT 0,
			last_changed TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			last_updated TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// testServer creates a Server with a real entity registry backed by
// in-memory SQLite and an engine with a one-function catalog.
func testServer(t *testing.T) (*Server, *entity.Registry) {
	t.Helper()
	ctx := context.Background()

	db := setupTestDB(t)
	repo := entity.NewSQLiteRepository(db)
	registry := entity.NewRegistry(repo)

	seed := []*entity.Entity{
		{EntityID: "light.kitchen", Name: "Kitchen Light", Domain: "light", State: "on",
			Attributes: map[string]any{"friendly_name": "Kitchen Light", "brightness": float64(128)}, Exposed: true},
		{EntityID: "light.bedroom", Name: "Bedroom Light", Domain: "light", State: "off",
			Attributes: map[string]any{"friendly_name": "Bedroom Light"}, Exposed: true},
		{EntityID: "switch.hidden", Name: "Hidden Switch", Domain: "switch", State: "on",
			Attributes: map[string]any{}, Exposed: false},
	}
	for _, e := range seed {
		if err := registry.Create(ctx, e); err != nil {
			t.Fatalf("Create(%s): %v", e.EntityID, err)
		}
	}
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	engRegistry := engine.NewRegistry(engine.Capabilities{
		States:   registry,
		Services: stubServices{},
	})
	catalog := engine.NewCatalog(engRegistry, nil)
	if err := catalog.Load([]byte(testCatalogYAML)); err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	eng := engine.New(engRegistry, catalog, nil)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         "test-secret-key-at-least-32-characters-long",
				AccessTokenTTL: 15,
			},
		},
		Logger:   log,
		Engine:   eng,
		Entities: registry,
		MQTT:     nil,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(context.Background())

	return srv, registry
}

// authToken logs in as the dev user and returns a bearer token.
func authToken(t *testing.T, router http.Handler) string {
	t.Helper()

	body := `{"username": "admin", "password": "admin"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	return resp.AccessToken
}

// authedRequest builds a request carrying a valid bearer token.
func authedRequest(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+authToken(t, router))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

func TestLogin_InvalidCredentials(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"username": "admin", "password": "wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestProtectedRoute_NoToken(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/functions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestProtectedRoute_BadToken(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/functions", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := authedRequest(t, router, http.MethodPost, "/api/v1/auth/ws-ticket", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	ticket, ok := resp["ticket"].(string)
	if !ok || ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}

	entry, valid := srv.validateTicket(ticket)
	if !valid {
		t.Error("ticket should be valid on first use")
	}
	if entry.userID != "admin" {
		t.Errorf("ticket userID = %q, want admin", entry.userID)
	}

	if _, valid := srv.validateTicket(ticket); valid {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	srv, _ := testServer(t)

	ticket := generateTicket()
	srv.tickets.mu.Lock()
	srv.tickets.tickets[ticket] = ticketEntry{
		expiresAt: time.Now().Add(-1 * time.Second),
	}
	srv.tickets.mu.Unlock()

	if _, valid := srv.validateTicket(ticket); valid {
		t.Error("expired ticket should not be valid")
	}
}

// ─── Function Surface Tests ────────────────────────────────────────

func TestListFunctions(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := authedRequest(t, router, http.MethodGet, "/api/v1/functions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Functions []engine.FunctionSpec `json:"functions"`
		Count     int                   `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Functions[0].Name != "say_hello" {
		t.Errorf("function name = %q, want say_hello", resp.Functions[0].Name)
	}
}

func TestInvoke(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"function": "say_hello", "arguments": {"name": "Ada"}}`
	w := authedRequest(t, router, http.MethodPost, "/api/v1/invoke", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["result"] != "Hello Ada" {
		t.Errorf("result = %v, want %q", resp["result"], "Hello Ada")
	}
}

func TestInvoke_UnknownFunction(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"function": "does_not_exist"}`
	w := authedRequest(t, router, http.MethodPost, "/api/v1/invoke", body)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusNotFound, w.Body.String())
	}
}

func TestInvoke_MissingFunction(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := authedRequest(t, router, http.MethodPost, "/api/v1/invoke", `{"arguments": {}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestStatusQuery(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"query": "is the kitchen light on?"}`
	w := authedRequest(t, router, http.MethodPost, "/api/v1/status-query", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	reply, ok := resp["reply"].(string)
	if !ok || reply == "" {
		t.Fatalf("expected a non-empty reply, got %v", resp["reply"])
	}
	if !strings.Contains(reply, "Kitchen Light") {
		t.Errorf("reply = %q, want mention of Kitchen Light", reply)
	}
}

func TestStatusQuery_MissingQuery(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := authedRequest(t, router, http.MethodPost, "/api/v1/status-query", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── Entity Endpoint Tests ─────────────────────────────────────────

func TestListEntities(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := authedRequest(t, router, http.MethodGet, "/api/v1/entities", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if int(resp["count"].(float64)) != 3 {
		t.Errorf("count = %v, want 3", resp["count"])
	}
}

func TestSetExposure(t *testing.T) {
	srv, registry := testServer(t)
	router := srv.buildRouter()

	w := authedRequest(t, router, http.MethodPut, "/api/v1/entities/switch.hidden/exposure", `{"exposed": true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var updated entity.Entity
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !updated.Exposed {
		t.Error("expected entity to be exposed after update")
	}

	// The exposure change must widen the conversation's entity set.
	found := false
	for _, e := range registry.ExposedEntities() {
		if e.ID == "switch.hidden" {
			found = true
		}
	}
	if !found {
		t.Error("switch.hidden missing from exposed entities after update")
	}
}

func TestSetExposure_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := authedRequest(t, router, http.MethodPut, "/api/v1/entities/light.nope/exposure", `{"exposed": true}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Automation Endpoint Tests ─────────────────────────────────────

func TestListAutomations_NoStore(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := authedRequest(t, router, http.MethodGet, "/api/v1/automations", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 0 {
		t.Errorf("count = %v, want 0", resp["count"])
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func TestHub_BroadcastToSubscribed(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"entity.state_changed": {}},
	}
	hub.Register(client)

	hub.Broadcast("entity.state_changed", map[string]any{"entity_id": "light.kitchen", "state": "on"})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != "entity.state_changed" {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, "entity.state_changed")
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"automation.registered": {}},
	}
	hub.Register(client)

	hub.Broadcast("entity.state_changed", map[string]any{"entity_id": "light.kitchen"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
		// OK — no message received
	}
}

func TestHub_ClientCount(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

// ─── Topic Helper Tests ────────────────────────────────────────────

func TestEntityIDFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"barnabee/state/light.kitchen", "light.kitchen"},
		{"barnabee/state/", ""},
		{"barnabee/state", ""},
	}
	for _, tt := range tests {
		if got := entityIDFromTopic(tt.topic); got != tt.want {
			t.Errorf("entityIDFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestEventTypeFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"barnabee/core/event/automation.registered", "automation.registered"},
		{"barnabee/core/event/", ""},
	}
	for _, tt := range tests {
		if got := eventTypeFromTopic(tt.topic); got != tt.want {
			t.Errorf("eventTypeFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}
