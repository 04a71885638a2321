// Package provider implements the player backend variants (squeezelite,
// sendspin) behind a common capability interface, plus the registry that
// resolves the right variant for a player configuration.
package provider

import (
	"errors"
	"os/exec"

	"github.com/soundmesh/multiroom-audio-backend/internal/config"
)

var (
	// ErrUnknownProvider is returned when a player config names a provider
	// type that is not registered.
	ErrUnknownProvider = errors.New("unknown provider type")
)

// Provider is the capability set one player backend implements.
type Provider interface {
	// Type is the provider identifier stored in player configs.
	Type() string

	// DisplayName is the human-readable backend name.
	DisplayName() string

	// BinaryName is the executable this provider launches.
	BinaryName() string

	// BuildCommand returns the argv for launching a player.
	BuildCommand(cfg config.PlayerConfig, logPath string) []string

	// BuildFallbackCommand returns the argv for the device-fallback launch,
	// or nil when the backend has no fallback mechanism.
	BuildFallbackCommand(cfg config.PlayerConfig, logPath string) []string

	// SupportsFallback reports whether BuildFallbackCommand is meaningful.
	SupportsFallback() bool

	// ValidateConfig applies backend-specific configuration rules.
	ValidateConfig(cfg config.PlayerConfig) error

	// PrepareConfig fills defaults and auto-generates identifiers.
	PrepareConfig(cfg config.PlayerConfig) config.PlayerConfig

	// GetVolume returns the player's current volume percentage.
	GetVolume(cfg config.PlayerConfig) int

	// SetVolume sets the player's volume and returns a result message.
	SetVolume(cfg config.PlayerConfig, volume int) (string, error)

	// RequiredFields lists the config fields this backend requires.
	RequiredFields() []string

	// Available reports whether the backend binary is present on the host.
	Available() bool
}

// lookPath resolves a binary on PATH. A variable so tests can stub
// availability without installing real player binaries.
var lookPath = exec.LookPath

func binaryAvailable(name string) bool {
	_, err := lookPath(name)
	return err == nil
}
