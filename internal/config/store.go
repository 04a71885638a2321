package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
)

// Store persists player configurations to a YAML file. The file is a
// top-level mapping from player name to PlayerConfig and is rewritten in
// full on every Save. There is no atomic-replace step; a crash mid-write
// can leave a truncated file (kept to match the historical behavior).
type Store struct {
	mu       sync.Mutex
	path     string
	players  map[string]PlayerConfig
	validate *validator.Validate
}

// NewStore creates a store backed by the YAML file at path and loads any
// existing configuration. A missing file is not an error.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	s := &Store{
		path:     path,
		players:  make(map[string]PlayerConfig),
		validate: validator.New(),
	}

	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the configuration file, replacing the in-memory player map.
// An unreadable or unparseable file leaves the store empty rather than
// failing startup.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info().Str("path", s.path).Msg("Config file does not exist, starting fresh")
			s.players = make(map[string]PlayerConfig)
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	players := make(map[string]PlayerConfig)
	if err := yaml.Unmarshal(data, &players); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Invalid config file, starting fresh")
		s.players = make(map[string]PlayerConfig)
		return nil
	}

	s.players = players
	log.Debug().Int("players", len(players)).Str("path", s.path).Msg("Loaded player config")
	return nil
}

// Save writes the full player map back to the configuration file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(s.players)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	log.Debug().Int("players", len(s.players)).Str("path", s.path).Msg("Saved player config")
	return nil
}

// Get returns the configuration for a player.
func (s *Store) Get(name string) (PlayerConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.players[name]
	return cfg, ok
}

// Set stores a player configuration in memory. Call Save to persist.
func (s *Store) Set(name string, cfg PlayerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.players[name] = cfg
}

// Delete removes a player from the in-memory map. Call Save to persist.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[name]; !ok {
		return false
	}
	delete(s.players, name)
	return true
}

// Rename changes a player's key, keeping its configuration. It fails when
// the old name does not exist or the new name is already taken.
func (s *Store) Rename(oldName, newName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.players[oldName]
	if !ok {
		return false
	}
	if _, taken := s.players[newName]; taken && oldName != newName {
		return false
	}

	cfg.Name = newName
	delete(s.players, oldName)
	s.players[newName] = cfg
	return true
}

// Exists reports whether a player name is configured.
func (s *Store) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.players[name]
	return ok
}

// Names returns all configured player names, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.players))
	for name := range s.players {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the full player map.
func (s *Store) All() map[string]PlayerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]PlayerConfig, len(s.players))
	for name, cfg := range s.players {
		out[name] = cfg
	}
	return out
}

// Count returns the number of configured players.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.players)
}

// Validate runs schema-level validation on a player configuration. Provider
// specific rules are applied separately by the provider.
func (s *Store) Validate(cfg PlayerConfig) error {
	if err := s.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{
				Field:  strings.ToLower(fe.Field()),
				Reason: fmt.Sprintf("failed %q validation", fe.Tag()),
			}
		}
		return err
	}

	if strings.ContainsAny(cfg.Name, "/\\") || strings.ContainsRune(cfg.Name, 0) {
		return &ValidationError{Field: "name", Reason: "contains invalid characters"}
	}
	return nil
}
