package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Store owns the process-wide configuration that can change at runtime.
// Every mutation goes through one synchronized persist call; handlers never
// touch the config file themselves.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

func NewStore(path string, cfg Config) *Store {
	return &Store{path: path, cfg: cfg}
}

func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Store) DefaultGateway() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Payments.DefaultGateway
}

// SetDefaultGateway updates the default gateway and persists the whole
// configuration document. The caller validates the gateway name.
func (s *Store) SetDefaultGateway(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("gateway name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.cfg.Payments.DefaultGateway
	s.cfg.Payments.DefaultGateway = name
	if err := s.persistLocked(); err != nil {
		s.cfg.Payments.DefaultGateway = previous
		return err
	}
	return nil
}

func (s *Store) persistLocked() error {
	if strings.TrimSpace(s.path) == "" {
		return nil
	}

	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("marshal config yaml: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp := filepath.Join(dir, ".config."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config tmp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}
