package homectl

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trfife/barnabee-assistant/internal/engine"
)

// fakeBus is an in-process Bus that loops published commands back
// through registered handlers.
type fakeBus struct {
	mu       sync.Mutex
	handlers map[string]func(topic string, payload []byte) error
	commands []string // topics published to
	respond  func(topic string, payload []byte)
	pubErr   error
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]func(string, []byte) error)}
}

func (b *fakeBus) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if b.pubErr != nil {
		return b.pubErr
	}
	b.mu.Lock()
	b.commands = append(b.commands, topic)
	respond := b.respond
	b.mu.Unlock()

	if respond != nil {
		go respond(topic, payload)
	}
	return nil
}

func (b *fakeBus) Subscribe(topic string, _ byte, handler func(string, []byte) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

// deliver invokes the handler registered for the subscription pattern.
func (b *fakeBus) deliver(pattern, topic string, payload []byte) error {
	b.mu.Lock()
	handler := b.handlers[pattern]
	b.mu.Unlock()
	if handler == nil {
		return errors.New("no handler for " + pattern)
	}
	return handler(topic, payload)
}

// backendFor wires the fake bus to answer every command with the given
// result payload.
func backendFor(t *testing.T, bus *fakeBus, result resultPayload) {
	t.Helper()
	bus.respond = func(topic string, payload []byte) {
		var cmd commandPayload
		if err := json.Unmarshal(payload, &cmd); err != nil {
			t.Errorf("backend got malformed command: %v", err)
			return
		}
		body, _ := json.Marshal(result)
		resultTopic := "barnabee/result/" + cmd.RequestID
		if err := bus.deliver("barnabee/result/+", resultTopic, body); err != nil {
			t.Errorf("delivering result: %v", err)
		}
	}
}

func startedCaller(t *testing.T, bus *fakeBus) *Caller {
	t.Helper()
	caller := New(bus)
	if err := caller.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return caller
}

func TestCallRoundTrip(t *testing.T) {
	bus := newFakeBus()
	caller := startedCaller(t, bus)
	backendFor(t, bus, resultPayload{
		Success: true,
		Result:  map[string]any{"entity_id": "light.kitchen"},
	})

	resp, err := caller.Call(context.Background(), engine.ServiceCall{
		Domain:  "light",
		Service: "turn_on",
		Data:    map[string]any{"entity_id": "light.kitchen"},
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp["entity_id"] != "light.kitchen" {
		t.Errorf("result = %v", resp)
	}

	// Command went out on the domain topic
	if len(bus.commands) != 1 || !strings.HasPrefix(bus.commands[0], "barnabee/command/light/") {
		t.Errorf("command topics = %v", bus.commands)
	}
}

func TestCallRejected(t *testing.T) {
	bus := newFakeBus()
	caller := startedCaller(t, bus)
	backendFor(t, bus, resultPayload{Success: false, Error: "entity unavailable"})

	_, err := caller.Call(context.Background(), engine.ServiceCall{
		Domain:  "light",
		Service: "turn_on",
	})
	if !errors.Is(err, ErrCallRejected) {
		t.Fatalf("Call() error = %v, want ErrCallRejected", err)
	}
	if !strings.Contains(err.Error(), "entity unavailable") {
		t.Errorf("error %v does not carry the backend message", err)
	}
}

func TestCallTimeout(t *testing.T) {
	bus := newFakeBus() // never answers
	caller := startedCaller(t, bus)
	caller.SetTimeout(50 * time.Millisecond)

	_, err := caller.Call(context.Background(), engine.ServiceCall{
		Domain:  "light",
		Service: "turn_on",
	})
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("Call() error = %v, want ErrCallTimeout", err)
	}

	// The pending entry was abandoned
	caller.pendingMu.Lock()
	pending := len(caller.pending)
	caller.pendingMu.Unlock()
	if pending != 0 {
		t.Errorf("pending requests = %d after timeout, want 0", pending)
	}
}

func TestCallContextCancelled(t *testing.T) {
	bus := newFakeBus()
	caller := startedCaller(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := caller.Call(ctx, engine.ServiceCall{Domain: "light", Service: "turn_on"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Call() error = %v, want context.Canceled", err)
	}
}

func TestCallPublishFailure(t *testing.T) {
	bus := newFakeBus()
	bus.pubErr = errors.New("broker gone")
	caller := startedCaller(t, bus)

	_, err := caller.Call(context.Background(), engine.ServiceCall{Domain: "light", Service: "turn_on"})
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("Call() error = %v, want ErrPublishFailed", err)
	}
}

func TestHasService(t *testing.T) {
	bus := newFakeBus()
	caller := startedCaller(t, bus)

	// Before any announcement the caller is permissive
	if !caller.HasService("light", "turn_on") {
		t.Error("HasService() = false before table announcement, want true")
	}

	table, _ := json.Marshal(map[string][]string{
		"light":   {"turn_on", "turn_off", "toggle"},
		"climate": {"set_temperature"},
	})
	if err := bus.deliver("barnabee/services", "barnabee/services", table); err != nil {
		t.Fatalf("delivering service table: %v", err)
	}

	tests := []struct {
		domain, service string
		want            bool
	}{
		{"light", "turn_on", true},
		{"climate", "set_temperature", true},
		{"light", "set_temperature", false},
		{"vacuum", "start", false},
	}
	for _, tt := range tests {
		if got := caller.HasService(tt.domain, tt.service); got != tt.want {
			t.Errorf("HasService(%s, %s) = %v, want %v", tt.domain, tt.service, got, tt.want)
		}
	}
}

func TestHandleServicesMalformed(t *testing.T) {
	bus := newFakeBus()
	caller := startedCaller(t, bus)

	if err := bus.deliver("barnabee/services", "barnabee/services", []byte("not json")); err == nil {
		t.Error("malformed table accepted")
	}

	// Table stays permissive
	if !caller.HasService("light", "turn_on") {
		t.Error("HasService() = false after malformed table, want true")
	}
}

func TestLateResultDropped(t *testing.T) {
	bus := newFakeBus()
	caller := startedCaller(t, bus)

	body, _ := json.Marshal(resultPayload{Success: true})
	err := bus.deliver("barnabee/result/+", "barnabee/result/req-unknown", body)
	if err != nil {
		t.Errorf("late result returned error = %v, want nil", err)
	}
	_ = caller
}
