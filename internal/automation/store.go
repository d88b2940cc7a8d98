package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Logger defines the logging interface used by the FileStore.
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

// Notifier is told about every accepted automation. The MQTT wiring
// forwards the notification as a core event so the home backend reloads
// its automation set.
type Notifier interface {
	AutomationRegistered(id string)
}

// noopNotifier is a notifier that does nothing.
type noopNotifier struct{}

func (noopNotifier) AutomationRegistered(string) {}

// FileStore persists automation definitions to a YAML file: a top-level
// list of definition mappings, the format the home backend consumes.
//
// The file is the source of truth. Mutations rewrite the whole file
// atomically (write to a temp file, then rename) and refresh the
// in-memory copy. All public methods are thread-safe.
type FileStore struct {
	path     string
	mu       sync.RWMutex
	cached   []map[string]any
	logger   Logger
	notifier Notifier
}

// NewFileStore opens the automations file at path and loads its
// contents. A missing file loads as an empty set; it is created on the
// first Add.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:     path,
		logger:   noopLogger{},
		notifier: noopNotifier{},
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetLogger sets the logger for the store.
func (s *FileStore) SetLogger(logger Logger) {
	s.logger = logger
}

// SetNotifier sets the notifier told about accepted automations.
func (s *FileStore) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// Reload re-reads the automations file into memory. A missing file loads
// as an empty set.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.cached = nil
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("%w: reading %s: %v", ErrStoreFailed, s.path, err)
	}

	var defs []map[string]any
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrStoreFailed, s.path, err)
	}

	s.mu.Lock()
	s.cached = defs
	s.mu.Unlock()

	s.logger.Debug("automations reloaded", "count", len(defs), "path", s.path)
	return nil
}

// List returns the parsed view of every stored automation.
func (s *FileStore) List() []Automation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Automation, 0, len(s.cached))
	for _, cfg := range s.cached {
		out = append(out, fromConfig(cfg))
	}
	return out
}

// Get returns the parsed view of one automation by id.
func (s *FileStore) Get(id string) (Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cfg := range s.cached {
		a := fromConfig(cfg)
		if a.ID == id {
			return a, nil
		}
	}
	return Automation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Add validates the definition, appends it to the automations file and
// announces it. Returns the automation's id. It satisfies the execution
// engine's automation store contract.
func (s *FileStore) Add(ctx context.Context, cfg map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateConfig(cfg); err != nil {
		return "", err
	}

	id := cfg["id"].(string)

	s.mu.Lock()
	for _, existing := range s.cached {
		if fromConfig(existing).ID == id {
			s.mu.Unlock()
			return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
	}
	updated := append(append([]map[string]any{}, s.cached...), cfg)
	if err := s.write(updated); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.cached = updated
	s.mu.Unlock()

	s.logger.Info("automation added", "id", id, "alias", cfg["alias"])
	s.notifier.AutomationRegistered(id)
	return id, nil
}

// Remove deletes an automation by id and rewrites the file.
func (s *FileStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := make([]map[string]any, 0, len(s.cached))
	found := false
	for _, cfg := range s.cached {
		if fromConfig(cfg).ID == id {
			found = true
			continue
		}
		updated = append(updated, cfg)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := s.write(updated); err != nil {
		return err
	}
	s.cached = updated

	s.logger.Info("automation removed", "id", id)
	return nil
}

// write marshals the definitions and replaces the file atomically.
// Callers hold the write lock.
func (s *FileStore) write(defs []map[string]any) error {
	data, err := yaml.Marshal(defs)
	if err != nil {
		return fmt.Errorf("%w: marshalling automations: %v", ErrStoreFailed, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrStoreFailed, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".automations-*.yaml")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrStoreFailed, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: writing %s: %v", ErrStoreFailed, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: closing %s: %v", ErrStoreFailed, tmpPath, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replacing %s: %v", ErrStoreFailed, s.path, err)
	}
	return nil
}
