package config

import (
	"os"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Settings holds process-wide configuration resolved from the environment.
// Invalid values never abort startup; they log a warning and fall back to
// the documented default.
type Settings struct {
	Port         int
	ConfigDir    string
	LogDir       string
	BufferSize   string
	BufferParams string
	WindowsMode  bool
}

const (
	defaultPort         = 8080
	defaultConfigDir    = "/app/config"
	defaultLogDir       = "/app/logs"
	defaultBufferSize   = "80"
	defaultBufferParams = "500:2000"
)

var bufferParamsPattern = regexp.MustCompile(`^\d+:\d+$`)

// LoadSettings reads settings from the environment, first merging any .env
// file in the working directory. A missing .env file is not an error.
func LoadSettings() Settings {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	return Settings{
		Port:         intFromEnv("MULTIROOM_PORT", defaultPort, 1, 65535),
		ConfigDir:    stringFromEnv("MULTIROOM_CONFIG_DIR", defaultConfigDir),
		LogDir:       stringFromEnv("MULTIROOM_LOG_DIR", defaultLogDir),
		BufferSize:   stringFromEnv("MULTIROOM_BUFFER_SIZE", defaultBufferSize),
		BufferParams: bufferParamsFromEnv("MULTIROOM_BUFFER_PARAMS", defaultBufferParams),
		WindowsMode:  boolFromEnv("MULTIROOM_WINDOWS_MODE", false),
	}
}

// ConfigFile returns the path of the player configuration file.
func (s Settings) ConfigFile() string {
	return s.ConfigDir + "/players.yaml"
}

// StateFile returns the path of the player state snapshot file.
func (s Settings) StateFile() string {
	return s.ConfigDir + "/player_states.yaml"
}

func stringFromEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def, minVal, maxVal int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("var", key).Str("value", raw).Int("default", def).
			Msg("Invalid integer value, using default")
		return def
	}
	if v < minVal || v > maxVal {
		log.Warn().Str("var", key).Int("value", v).Int("min", minVal).Int("max", maxVal).
			Int("default", def).Msg("Value out of range, using default")
		return def
	}
	return v
}

func boolFromEnv(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	switch raw {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	log.Warn().Str("var", key).Str("value", raw).Bool("default", def).
		Msg("Invalid boolean value, using default")
	return def
}

// bufferParamsFromEnv validates the "stream:output" buffer specification
// passed through to squeezelite's -b flag.
func bufferParamsFromEnv(key, def string) string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if !bufferParamsPattern.MatchString(raw) {
		log.Warn().Str("var", key).Str("value", raw).Str("default", def).
			Msg("Buffer params must be in stream:output form, using default")
		return def
	}
	return raw
}
