package provider

import (
	"crypto/md5"
	"fmt"
	"strings"

	"github.com/soundmesh/multiroom-audio-backend/internal/audio"
	"github.com/soundmesh/multiroom-audio-backend/internal/config"
)

// Default squeezelite audio parameters.
const (
	defaultBufferSize   = "80"
	defaultBufferParams = "500:2000"
	defaultCloseTimeout = "5"
	defaultSampleRate   = "44100"

	// NullDevice is the silent output used for device fallback.
	NullDevice = "null"
)

// Squeezelite runs the squeezelite Squeezebox emulator. It connects players
// to a Logitech Media Server; volume control is delegated entirely to the
// ALSA mixer via the audio controller.
type Squeezelite struct {
	audio        *audio.Controller
	bufferSize   string
	bufferParams string
}

// NewSqueezelite creates the squeezelite provider. Buffer settings come
// from the environment-derived settings so containers can tune them.
func NewSqueezelite(ctrl *audio.Controller, settings config.Settings) *Squeezelite {
	bufSize := settings.BufferSize
	if bufSize == "" {
		bufSize = defaultBufferSize
	}
	bufParams := settings.BufferParams
	if bufParams == "" {
		bufParams = defaultBufferParams
	}
	return &Squeezelite{audio: ctrl, bufferSize: bufSize, bufferParams: bufParams}
}

func (s *Squeezelite) Type() string        { return config.ProviderSqueezelite }
func (s *Squeezelite) DisplayName() string { return "Squeezelite" }
func (s *Squeezelite) BinaryName() string  { return "squeezelite" }

// BuildCommand builds the squeezelite launch argv. The null device needs an
// explicit sample rate or squeezelite refuses to open it.
func (s *Squeezelite) BuildCommand(cfg config.PlayerConfig, logPath string) []string {
	return s.buildFor(cfg, cfg.Device, logPath)
}

// BuildFallbackCommand builds the same command forced onto the null device,
// keeping the player registered with the server when its audio device is
// unavailable.
func (s *Squeezelite) BuildFallbackCommand(cfg config.PlayerConfig, logPath string) []string {
	return s.buildFor(cfg, NullDevice, logPath)
}

func (s *Squeezelite) buildFor(cfg config.PlayerConfig, device, logPath string) []string {
	cmd := []string{
		s.BinaryName(),
		"-n", cfg.Name,
		"-o", device,
		"-m", cfg.MACAddress,
	}

	if cfg.ServerIP != "" {
		cmd = append(cmd, "-s", cfg.ServerIP)
	}

	cmd = append(cmd, "-f", logPath)
	cmd = append(cmd,
		"-a", s.bufferSize,
		"-b", s.bufferParams,
		"-C", defaultCloseTimeout,
	)

	if device == NullDevice {
		cmd = append(cmd, "-r", defaultSampleRate)
	}

	return cmd
}

func (s *Squeezelite) SupportsFallback() bool { return true }

// ValidateConfig checks the squeezelite-specific requirements: name and
// device are mandatory, and the name must be usable as a log file name.
func (s *Squeezelite) ValidateConfig(cfg config.PlayerConfig) error {
	if cfg.Name == "" {
		return &config.ValidationError{Field: "name", Reason: "player name is required"}
	}
	if cfg.Device == "" {
		return &config.ValidationError{Field: "device", Reason: "audio device is required"}
	}
	if len(cfg.Name) > config.MaxNameLength {
		return &config.ValidationError{Field: "name", Reason: "player name too long (max 64 characters)"}
	}
	if strings.ContainsAny(cfg.Name, "/\\") || strings.ContainsRune(cfg.Name, 0) {
		return &config.ValidationError{Field: "name", Reason: "player name contains invalid characters"}
	}
	return nil
}

// PrepareConfig fills defaults and derives a MAC address from the player
// name when none is supplied. Volume is left alone; zero is a valid level
// and the transport layer applies the default when the field is absent.
func (s *Squeezelite) PrepareConfig(cfg config.PlayerConfig) config.PlayerConfig {
	cfg.Provider = config.ProviderSqueezelite
	if cfg.Device == "" {
		cfg.Device = "default"
	}
	if cfg.MACAddress == "" && cfg.Name != "" {
		cfg.MACAddress = GenerateMACAddress(cfg.Name)
	}
	return cfg
}

// GetVolume reads the hardware volume for the player's device.
func (s *Squeezelite) GetVolume(cfg config.PlayerConfig) int {
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	return s.audio.GetVolume(device)
}

// SetVolume writes the hardware volume for the player's device.
func (s *Squeezelite) SetVolume(cfg config.PlayerConfig, volume int) (string, error) {
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	return s.audio.SetVolume(device, volume)
}

func (s *Squeezelite) RequiredFields() []string { return []string{"name", "device"} }

func (s *Squeezelite) Available() bool { return binaryAvailable(s.BinaryName()) }

// GenerateMACAddress derives a stable MAC address from a player name. The
// first octet gets the locally-administered bit set and the multicast bit
// cleared, so the result is always a valid unicast address.
func GenerateMACAddress(name string) string {
	sum := md5.Sum([]byte(name))

	octets := sum[:6]
	octets[0] = (octets[0] | 0x02) &^ 0x01

	parts := make([]string, len(octets))
	for i, b := range octets {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}
