package memory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trfife/barnabee-assistant/internal/engine"
)

func testEntry() engine.MemoryEntry {
	return engine.MemoryEntry{
		Information:    "prefers the lights warm in the evening",
		Category:       "preference",
		UserID:         "user-1",
		ConversationID: "conv-42",
		Timestamp:      time.Date(2026, 8, 30, 20, 0, 0, 0, time.UTC),
	}
}

func TestLog(t *testing.T) {
	var received sinkPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	if err := client.Log(context.Background(), testEntry()); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	if received.Type != "memory_log" {
		t.Errorf("type = %q, want memory_log", received.Type)
	}
	if received.Information != "prefers the lights warm in the evening" {
		t.Errorf("information = %q", received.Information)
	}
	if received.Category != "preference" {
		t.Errorf("category = %q", received.Category)
	}
}

func TestLogServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "storage full", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	err := client.Log(context.Background(), testEntry())
	if !errors.Is(err, ErrSinkUnavailable) {
		t.Fatalf("Log() error = %v, want ErrSinkUnavailable", err)
	}
}

func TestLogUnreachable(t *testing.T) {
	client := New("http://127.0.0.1:1", time.Second)
	err := client.Log(context.Background(), testEntry())
	if !errors.Is(err, ErrSinkUnavailable) {
		t.Fatalf("Log() error = %v, want ErrSinkUnavailable", err)
	}
}

func TestLogContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := New(srv.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := client.Log(ctx, testEntry()); err == nil {
		t.Fatal("Log() with cancelled context should fail")
	}
}
