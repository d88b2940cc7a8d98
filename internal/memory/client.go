package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/trfife/barnabee-assistant/internal/engine"
)

// maxErrorBody bounds how much of an error response gets logged.
const maxErrorBody = 512

// ErrSinkUnavailable is returned when the memory service rejects or
// cannot receive an entry.
var ErrSinkUnavailable = errors.New("memory: sink unavailable")

// Logger defines the logging interface used by the Client.
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

// Client posts memory entries to the external memory service.
type Client struct {
	url    string
	http   *http.Client
	logger Logger
}

// New creates a client for the memory service at url. The timeout bounds
// each request end to end.
func New(url string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// sinkPayload is the wire shape the memory service routes on. The type
// discriminator is fixed: the service dispatches on it.
type sinkPayload struct {
	Type string `json:"type"`
	engine.MemoryEntry
}

// Log posts one entry to the memory service. It satisfies the execution
// engine's memory sink contract.
func (c *Client) Log(ctx context.Context, entry engine.MemoryEntry) error {
	body, err := json.Marshal(sinkPayload{Type: "memory_log", MemoryEntry: entry})
	if err != nil {
		return fmt.Errorf("marshalling memory entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building memory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("memory sink rejected entry",
			"status", resp.StatusCode, "body", string(snippet))
		return fmt.Errorf("%w: status %d", ErrSinkUnavailable, resp.StatusCode)
	}

	c.logger.Debug("memory entry stored",
		"category", entry.Category, "conversation_id", entry.ConversationID)
	return nil
}
