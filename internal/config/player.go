// Package config provides player configuration persistence and validation.
package config

// Provider type identifiers for the supported player backends.
const (
	ProviderSqueezelite = "squeezelite"
	ProviderSendspin    = "sendspin"

	// DefaultProvider is used when a player config omits the provider field.
	DefaultProvider = ProviderSqueezelite

	// DefaultVolume is the initial volume for new players.
	DefaultVolume = 75

	// MaxNameLength is the maximum allowed player name length.
	MaxNameLength = 64
)

// PlayerConfig describes one configured player. A player wraps exactly one
// backend process (squeezelite or sendspin) on one audio output device.
type PlayerConfig struct {
	Name      string `yaml:"name" json:"name" validate:"required,max=64"`
	Device    string `yaml:"device" json:"device"`
	Provider  string `yaml:"provider" json:"provider" validate:"omitempty,oneof=squeezelite sendspin"`
	Volume    int    `yaml:"volume" json:"volume" validate:"min=0,max=100"`
	Autostart bool   `yaml:"autostart" json:"autostart"`
	Enabled   bool   `yaml:"enabled" json:"enabled"`

	// Squeezelite-specific fields.
	MACAddress string `yaml:"mac_address,omitempty" json:"mac_address,omitempty"`
	ServerIP   string `yaml:"server_ip,omitempty" json:"server_ip,omitempty"`

	// Sendspin-specific fields.
	ClientID  string `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ServerURL string `yaml:"server_url,omitempty" json:"server_url,omitempty"`
	DelayMS   int    `yaml:"delay_ms,omitempty" json:"delay_ms,omitempty"`
	LogLevel  string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

// ProviderType returns the configured provider, falling back to the default
// when the field is empty.
func (p PlayerConfig) ProviderType() string {
	if p.Provider == "" {
		return DefaultProvider
	}
	return p.Provider
}
