package provider

import (
	"crypto/md5"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/soundmesh/multiroom-audio-backend/internal/audio"
	"github.com/soundmesh/multiroom-audio-backend/internal/config"
)

const (
	// Default sendspin log level.
	defaultSendspinLogLevel = "INFO"

	// Prefix for auto-generated client ids.
	clientIDPrefix = "sendspin"

	// Maximum length of the sanitized name segment inside a client id.
	clientIDNameLimit = 20
)

// Sendspin runs the sendspin synchronized multi-room audio client. The
// backend discovers its server over mDNS unless a server URL is configured.
// Volume is still delegated to the ALSA mixer; the protocol has native
// volume control but this provider does not use it yet.
type Sendspin struct {
	audio *audio.Controller
}

// NewSendspin creates the sendspin provider.
func NewSendspin(ctrl *audio.Controller) *Sendspin {
	return &Sendspin{audio: ctrl}
}

func (s *Sendspin) Type() string        { return config.ProviderSendspin }
func (s *Sendspin) DisplayName() string { return "Sendspin" }
func (s *Sendspin) BinaryName() string  { return "sendspin" }

// BuildCommand builds the sendspin launch argv. Sendspin's audio layer is
// PortAudio, not ALSA: hw:X,Y style device ids cannot be passed through and
// are skipped with a warning, leaving the system default device.
func (s *Sendspin) BuildCommand(cfg config.PlayerConfig, logPath string) []string {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = GenerateClientID(cfg.Name)
	}

	cmd := []string{
		s.BinaryName(),
		"--headless",
		"--name", cfg.Name,
		"--id", clientID,
	}

	device := cfg.Device
	if device != "" && device != "default" && device != NullDevice {
		if strings.HasPrefix(device, "hw:") || strings.HasPrefix(device, "plughw:") {
			log.Warn().Str("player", cfg.Name).Str("device", device).
				Msg("ALSA device id is not compatible with PortAudio, using system default audio device")
		} else {
			cmd = append(cmd, "--audio-device", device)
		}
	}

	if cfg.ServerURL != "" {
		cmd = append(cmd, "--url", cfg.ServerURL)
	}

	if cfg.DelayMS != 0 {
		cmd = append(cmd, "--static-delay-ms", strconv.Itoa(cfg.DelayMS))
	}

	logLevel := cfg.LogLevel
	if logLevel == "" {
		logLevel = defaultSendspinLogLevel
	}
	cmd = append(cmd, "--log-level", logLevel)

	return cmd
}

// BuildFallbackCommand returns nil; sendspin has no device fallback.
func (s *Sendspin) BuildFallbackCommand(cfg config.PlayerConfig, logPath string) []string {
	return nil
}

func (s *Sendspin) SupportsFallback() bool { return false }

// ValidateConfig checks the sendspin-specific requirements. Only the name
// is mandatory; the server URL, when given, must be a websocket URL.
func (s *Sendspin) ValidateConfig(cfg config.PlayerConfig) error {
	if cfg.Name == "" {
		return &config.ValidationError{Field: "name", Reason: "player name is required"}
	}
	if len(cfg.Name) > config.MaxNameLength {
		return &config.ValidationError{Field: "name", Reason: "player name too long (max 64 characters)"}
	}
	if strings.ContainsAny(cfg.Name, "/\\") || strings.ContainsRune(cfg.Name, 0) {
		return &config.ValidationError{Field: "name", Reason: "player name contains invalid characters"}
	}
	if cfg.ServerURL != "" && !strings.HasPrefix(cfg.ServerURL, "ws://") && !strings.HasPrefix(cfg.ServerURL, "wss://") {
		return &config.ValidationError{Field: "server_url", Reason: "server URL must start with ws:// or wss://"}
	}
	return nil
}

// PrepareConfig fills defaults and derives a client id from the player
// name when none is supplied.
func (s *Sendspin) PrepareConfig(cfg config.PlayerConfig) config.PlayerConfig {
	cfg.Provider = config.ProviderSendspin
	if cfg.Device == "" {
		cfg.Device = "default"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultSendspinLogLevel
	}
	if cfg.ClientID == "" && cfg.Name != "" {
		cfg.ClientID = GenerateClientID(cfg.Name)
	}
	return cfg
}

// GetVolume reads the hardware volume for the player's device. Protocol
// native volume is an open gap; see the provider doc comment.
func (s *Sendspin) GetVolume(cfg config.PlayerConfig) int {
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	return s.audio.GetVolume(device)
}

// SetVolume writes the hardware volume for the player's device.
func (s *Sendspin) SetVolume(cfg config.PlayerConfig, volume int) (string, error) {
	device := cfg.Device
	if device == "" {
		device = "default"
	}
	return s.audio.SetVolume(device, volume)
}

func (s *Sendspin) RequiredFields() []string { return []string{"name"} }

func (s *Sendspin) Available() bool { return binaryAvailable(s.BinaryName()) }

// GenerateClientID derives a stable client id from a player name:
// "sendspin-<sanitized name>-<hash suffix>". The name segment is lowercased,
// spaces become dashes, and it is clipped to a bounded length.
func GenerateClientID(name string) string {
	sum := md5.Sum([]byte(name))
	suffix := fmt.Sprintf("%x", sum)[:8]

	safe := strings.ReplaceAll(strings.ToLower(name), " ", "-")
	if runes := []rune(safe); len(runes) > clientIDNameLimit {
		safe = string(runes[:clientIDNameLimit])
	}

	return fmt.Sprintf("%s-%s-%s", clientIDPrefix, safe, suffix)
}
