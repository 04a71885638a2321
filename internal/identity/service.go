// Package identity manages the persistent identity of this backend instance
// so controllers can tell multiple multiroom hosts apart on the network.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Info contains the host identity information.
type Info struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Service manages the host identity, generating and persisting it on first
// run.
type Service struct {
	mu         sync.RWMutex
	configPath string
	info       Info
}

// NewService creates an identity service backed by configPath. An existing
// identity file is loaded; otherwise a new identity is generated and saved.
func NewService(configPath string) (*Service, error) {
	svc := &Service{configPath: configPath}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create identity directory: %w", err)
	}

	if err := svc.load(); err != nil {
		log.Debug().Err(err).Msg("No existing host identity, generating a new one")
		svc.info.UUID = uuid.New().String()
		svc.info.Name = defaultHostName()

		if err := svc.save(); err != nil {
			return nil, fmt.Errorf("failed to save host identity: %w", err)
		}
	}

	log.Info().
		Str("uuid", svc.info.UUID).
		Str("name", svc.info.Name).
		Msg("Host identity initialized")

	return svc, nil
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		return err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("invalid identity format: %w", err)
	}
	if info.UUID == "" {
		return fmt.Errorf("identity missing UUID")
	}
	if info.Name == "" {
		info.Name = defaultHostName()
	}

	s.info = info
	return nil
}

func (s *Service) save() error {
	data, err := json.MarshalIndent(s.info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.configPath, data, 0o644)
}

// GetInfo returns the current host identity.
func (s *Service) GetInfo() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// GetUUID returns just the host UUID.
func (s *Service) GetUUID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.UUID
}

// SetName updates the host name and persists it.
func (s *Service) SetName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info.Name = name
	return s.save()
}

func defaultHostName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "multiroom-audio"
	}
	return hostname
}
