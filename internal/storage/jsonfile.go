package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/models"
)

// namespaces is the file layout: namespace -> value
type namespaces map[string]json.RawMessage

// JSONFile keeps the queue in a JSON document keyed by namespace
type JSONFile struct {
	mu   sync.Mutex
	path string
}

func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

func (s *JSONFile) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	return s.write(namespaces{})
}

func (s *JSONFile) Load(ctx context.Context) (models.QueueState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.read()
	if err != nil {
		return models.QueueState{}, err
	}
	raw, ok := ns[constants.QueueNamespace]
	if !ok {
		return models.QueueState{}, nil
	}
	var state models.QueueState
	if err := json.Unmarshal(raw, &state); err != nil {
		return models.QueueState{}, fmt.Errorf("failed to parse queue state: %w", err)
	}
	return state, nil
}

func (s *JSONFile) Save(ctx context.Context, state models.QueueState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.read()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode queue state: %w", err)
	}
	ns[constants.QueueNamespace] = raw
	return s.write(ns)
}

func (s *JSONFile) Close() error { return nil }

func (s *JSONFile) Location() string { return s.path }

func (s *JSONFile) read() (namespaces, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return namespaces{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage: %w", err)
	}
	ns := namespaces{}
	if len(data) == 0 {
		return ns, nil
	}
	if err := json.Unmarshal(data, &ns); err != nil {
		return nil, fmt.Errorf("failed to parse storage: %w", err)
	}
	return ns, nil
}

// write replaces the file atomically via rename
func (s *JSONFile) write(ns namespaces) error {
	data, err := json.MarshalIndent(ns, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode storage: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".queue-*.json")
	if err != nil {
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write storage: %w", err)
	}
	return nil
}
