// Package audio provides ALSA device enumeration and hardware volume control.
package audio

import (
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Device describes one audio output device.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Card string `json:"card"`
	Sub  string `json:"device"`
}

// Default fallback when no controls can be detected.
var defaultMixerControls = []string{"Master", "PCM"}

// Controls to try when reading volume. Capture is included so status
// reporting works on cards that only expose an input level.
var volumeReadControls = []string{"Master", "PCM", "Speaker", "Headphone", "Digital", "Capture"}

// Controls to try when setting volume. Capture is excluded; it adjusts
// input levels, not playback.
var volumeWriteControls = []string{"Master", "PCM", "Speaker", "Headphone", "Digital"}

// Virtual devices have no hardware mixer behind them.
var virtualDevices = map[string]bool{
	"null":    true,
	"pulse":   true,
	"dmix":    true,
	"default": true,
}

// DefaultVolumePercent is returned for virtual devices and when hardware
// volume detection fails.
const DefaultVolumePercent = 75

// Patterns for parsing aplay/amixer text output. The tool output format is
// not a stable API; these match only the documented fragments and every
// parse failure degrades to a default.
var (
	// "hw:0,0" -> card "0", "plughw:2,0" -> card "2"
	cardNumberPattern = regexp.MustCompile(`hw:([0-9]+)`)

	// "Simple mixer control 'Master',0" -> "Master"
	controlNamePattern = regexp.MustCompile(`'([^']+)'`)

	// "Front Left: Playback 65 [75%] [-16.50dB] [on]" -> "75"
	volumePercentPattern = regexp.MustCompile(`\[([0-9]+)%\]`)
)

// CommandRunner executes an external tool and returns its stdout. Stderr
// is carried inside the returned error. It exists so tests can substitute
// canned tool output.
type CommandRunner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return out, fmt.Errorf("%v: %s", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return out, err
	}
	return out, nil
}

// Controller enumerates audio devices and reads/writes mixer volume by
// invoking the ALSA command line tools (aplay, amixer). All tool failures
// degrade to safe defaults; only SetVolume can report an error. In simulate
// mode (development hosts without ALSA) no tools are invoked and every
// device behaves like a virtual one.
type Controller struct {
	run      CommandRunner
	simulate bool
}

// NewController creates a controller using the real external tools. With
// simulate set, all devices are treated as virtual and no tools run.
func NewController(simulate bool) *Controller {
	if simulate {
		log.Warn().Msg("Audio controller in simulate mode, hardware access disabled")
	}
	return &Controller{run: execRunner, simulate: simulate}
}

// NewControllerWithRunner creates a controller with a custom command runner.
func NewControllerWithRunner(run CommandRunner) *Controller {
	return &Controller{run: run}
}

// IsVirtualDevice reports whether a device has no hardware mixer.
func IsVirtualDevice(device string) bool {
	return virtualDevices[device]
}

// ListDevices returns all known output devices. The three virtual devices
// (null, default, dmix) are always present and listed first, in stable
// order; hardware devices parsed from `aplay -l` follow. The call never
// fails: any tool or parse error yields the virtual-only list.
func (c *Controller) ListDevices() []Device {
	fallback := []Device{
		{ID: "null", Name: "Null Audio Device (Silent)", Card: "null", Sub: "0"},
		{ID: "default", Name: "Default Audio Device", Card: "0", Sub: "0"},
		{ID: "dmix", Name: "Software Mixing Device", Card: "dmix", Sub: "0"},
	}

	if c.simulate {
		log.Debug().Msg("Simulate mode, returning virtual devices only")
		return fallback
	}

	out, err := c.run("aplay", "-l")
	if err != nil {
		log.Warn().Err(err).Msg("Could not list hardware audio devices, using fallback devices only")
		return fallback
	}

	var hardware []Device
	for _, line := range strings.Split(string(out), "\n") {
		dev, ok := parseDeviceLine(line)
		if !ok {
			continue
		}
		hardware = append(hardware, dev)
		log.Debug().Str("id", dev.ID).Str("name", dev.Name).Msg("Found hardware device")
	}

	if len(hardware) == 0 {
		log.Warn().Msg("No hardware audio devices found in aplay output")
		return fallback
	}

	log.Info().Int("count", len(hardware)).Msg("Found hardware audio devices")
	return append(fallback, hardware...)
}

// parseDeviceLine parses one `aplay -l` device line, for example:
//
//	card 0: PCH [HDA Intel PCH], device 0: ALC887-VD Analog [ALC887-VD Analog]
//
// Malformed lines are skipped, never fatal.
func parseDeviceLine(line string) (Device, bool) {
	if !strings.Contains(line, "card") || !strings.Contains(line, ":") {
		return Device{}, false
	}

	parts := strings.SplitN(line, ":", 2)
	cardFields := strings.Fields(parts[0])
	if len(cardFields) < 2 || cardFields[0] != "card" {
		return Device{}, false
	}
	cardNum := cardFields[1]
	if _, err := strconv.Atoi(cardNum); err != nil {
		return Device{}, false
	}

	_, deviceSide, ok := strings.Cut(line, "device")
	if !ok {
		return Device{}, false
	}
	deviceNum, _, ok := strings.Cut(deviceSide, ":")
	if !ok {
		return Device{}, false
	}
	deviceNum = strings.TrimSpace(deviceNum)
	if _, err := strconv.Atoi(deviceNum); err != nil {
		return Device{}, false
	}

	name := strings.TrimSpace(parts[1])
	if idx := strings.Index(name, "["); idx >= 0 {
		name = strings.TrimSpace(name[:idx])
	}

	id := fmt.Sprintf("hw:%s,%s", cardNum, deviceNum)
	return Device{
		ID:   id,
		Name: fmt.Sprintf("%s (%s)", name, id),
		Card: cardNum,
		Sub:  deviceNum,
	}, true
}

// MixerControls returns the simple mixer control names for a device.
// Virtual devices and device ids without a card number return the default
// pair without touching the mixer tool.
func (c *Controller) MixerControls(device string) []string {
	if c.simulate || IsVirtualDevice(device) {
		return append([]string(nil), defaultMixerControls...)
	}

	card, ok := cardNumber(device)
	if !ok {
		return append([]string(nil), defaultMixerControls...)
	}

	out, err := c.run("amixer", "-c", card, "scontrols")
	if err != nil {
		log.Warn().Err(err).Str("device", device).Msg("Could not get mixer controls")
		return append([]string(nil), defaultMixerControls...)
	}

	controls := parseControlNames(string(out))
	if len(controls) == 0 {
		return append([]string(nil), defaultMixerControls...)
	}
	return controls
}

// parseControlNames extracts quoted control names from amixer scontrols
// output ("Simple mixer control 'Master',0" -> "Master").
func parseControlNames(out string) []string {
	var controls []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "Simple mixer control") {
			continue
		}
		if m := controlNamePattern.FindStringSubmatch(line); m != nil {
			controls = append(controls, m[1])
		}
	}
	return controls
}

// GetVolume reads the current volume percentage for a device. Virtual
// devices report the default percentage. Hardware devices probe the read
// control list in order and return the first parseable percentage;
// exhausting the list returns the default rather than an error.
func (c *Controller) GetVolume(device string) int {
	if c.simulate || IsVirtualDevice(device) {
		log.Debug().Str("device", device).Msg("Virtual device, returning default volume")
		return DefaultVolumePercent
	}

	card, ok := cardNumber(device)
	if !ok {
		log.Debug().Str("device", device).Msg("No card number in device id, returning default volume")
		return DefaultVolumePercent
	}

	for _, control := range volumeReadControls {
		out, err := c.run("amixer", "-c", card, "sget", control)
		if err != nil {
			continue
		}
		m := volumePercentPattern.FindStringSubmatch(string(out))
		if m == nil {
			continue
		}
		vol, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		log.Debug().Str("device", device).Str("control", control).Int("volume", vol).Msg("Got volume")
		return vol
	}

	log.Warn().Str("device", device).Msg("Could not find working volume control")
	return DefaultVolumePercent
}

// SetVolume sets the volume percentage for a device and returns a
// human-readable result message. Out-of-range values are rejected before
// any tool invocation. Virtual devices succeed without doing anything.
// Hardware devices probe the write control list in order; exhausting the
// list is a failure carrying the last tool error.
func (c *Controller) SetVolume(device string, volume int) (string, error) {
	if volume < 0 || volume > 100 {
		return "", fmt.Errorf("volume must be between 0 and 100")
	}

	if c.simulate || IsVirtualDevice(device) {
		log.Info().Str("device", device).Int("volume", volume).Msg("Virtual device, volume stored only")
		return fmt.Sprintf("Volume set to %d%% (virtual device)", volume), nil
	}

	card, ok := cardNumber(device)
	if !ok {
		log.Debug().Str("device", device).Msg("No card number in device id, storing volume only")
		return fmt.Sprintf("Volume set to %d%% (no hardware control)", volume), nil
	}

	var lastErr error
	for _, control := range volumeWriteControls {
		_, err := c.run("amixer", "-c", card, "sset", control, fmt.Sprintf("%d%%", volume))
		if err != nil {
			log.Debug().Err(err).Str("device", device).Str("control", control).Msg("Control failed")
			lastErr = err
			continue
		}
		log.Info().Str("device", device).Str("control", control).Int("volume", volume).Msg("Set volume")
		return fmt.Sprintf("Volume set to %d%% (%s)", volume, control), nil
	}

	log.Warn().Str("device", device).Msg("Could not find working volume control")
	if lastErr != nil {
		return "", fmt.Errorf("no working volume controls found for device %s: %w", device, lastErr)
	}
	return "", fmt.Errorf("no working volume controls found for device %s", device)
}

// cardNumber extracts the ALSA card number from a device id like "hw:0,0".
func cardNumber(device string) (string, bool) {
	m := cardNumberPattern.FindStringSubmatch(device)
	if m == nil {
		return "", false
	}
	return m[1], true
}
