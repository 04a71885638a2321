package provider

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/soundmesh/multiroom-audio-backend/internal/config"
)

// Info summarizes a registered provider for API consumers.
type Info struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Binary      string `json:"binary"`
	Available   bool   `json:"available"`
}

// Registry holds the provider instances and resolves the right one for a
// player configuration. The set of providers is fixed at startup; lookups
// after that are read-only, so no locking is needed.
type Registry struct {
	providers   map[string]Provider
	order       []string
	defaultType string
}

// NewRegistry creates an empty registry with the standard default provider.
func NewRegistry() *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		defaultType: config.DefaultProvider,
	}
}

// Register adds a provider instance. Registration order is preserved for
// availability fallback.
func (r *Registry) Register(p Provider) {
	if _, exists := r.providers[p.Type()]; !exists {
		r.order = append(r.order, p.Type())
	}
	r.providers[p.Type()] = p
	log.Debug().Str("provider", p.Type()).Msg("Registered provider")
}

// Get returns the provider registered under a type.
func (r *Registry) Get(providerType string) (Provider, error) {
	p, ok := r.providers[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerType)
	}
	return p, nil
}

// ForPlayer resolves the provider for a player configuration, using the
// default type when the config omits the provider field.
func (r *Registry) ForPlayer(cfg config.PlayerConfig) (Provider, error) {
	return r.Get(cfg.ProviderType())
}

// Types returns all registered provider types, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultAvailableType returns the default provider type when its binary is
// present, otherwise the first registered provider whose binary is present.
// The second return is false when no provider is available at all.
func (r *Registry) DefaultAvailableType() (string, bool) {
	if p, ok := r.providers[r.defaultType]; ok && p.Available() {
		return r.defaultType, true
	}
	for _, t := range r.order {
		if r.providers[t].Available() {
			return t, true
		}
	}
	return "", false
}

// ProviderInfo returns information about registered providers. When
// availableOnly is set, providers whose binary is missing are omitted.
func (r *Registry) ProviderInfo(availableOnly bool) []Info {
	infos := make([]Info, 0, len(r.order))
	for _, t := range r.order {
		p := r.providers[t]
		available := p.Available()
		if availableOnly && !available {
			continue
		}
		infos = append(infos, Info{
			Type:        p.Type(),
			DisplayName: p.DisplayName(),
			Binary:      p.BinaryName(),
			Available:   available,
		})
	}
	return infos
}

// ValidateConfig validates a player configuration with its provider.
func (r *Registry) ValidateConfig(cfg config.PlayerConfig) error {
	p, err := r.ForPlayer(cfg)
	if err != nil {
		return err
	}
	return p.ValidateConfig(cfg)
}

// PrepareConfig fills provider defaults and generated identifiers. An
// unknown provider type returns the config unchanged.
func (r *Registry) PrepareConfig(cfg config.PlayerConfig) config.PlayerConfig {
	p, err := r.ForPlayer(cfg)
	if err != nil {
		return cfg
	}
	return p.PrepareConfig(cfg)
}
