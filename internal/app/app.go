// Package app wires the services together and implements the player
// lifecycle operations the transports expose.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/soundmesh/multiroom-audio-backend/internal/audio"
	"github.com/soundmesh/multiroom-audio-backend/internal/config"
	"github.com/soundmesh/multiroom-audio-backend/internal/identity"
	"github.com/soundmesh/multiroom-audio-backend/internal/metadata"
	"github.com/soundmesh/multiroom-audio-backend/internal/provider"
	"github.com/soundmesh/multiroom-audio-backend/internal/state"
	"github.com/soundmesh/multiroom-audio-backend/internal/supervisor"
)

// Timing for startup restore and background state saving.
const (
	restoreDelay      = 3 * time.Second
	restoreSpacing    = 1 * time.Second
	stateSaveInterval = 30 * time.Second
)

// PlayerStatus is the full status of one player as reported to clients.
type PlayerStatus struct {
	Name       string              `json:"name"`
	Running    bool                `json:"running"`
	PID        int                 `json:"pid,omitempty"`
	Fallback   bool                `json:"fallback,omitempty"`
	Config     config.PlayerConfig `json:"config"`
	NowPlaying *metadata.Track     `json:"now_playing,omitempty"`
}

// App is the service container behind the REST and socket transports.
type App struct {
	Settings config.Settings
	Store    *config.Store
	Audio    *audio.Controller
	Registry *provider.Registry
	Super    *supervisor.Supervisor
	Metadata *metadata.Manager
	State    *state.Store
	Identity *identity.Service
}

// New assembles the application from its parts.
func New(settings config.Settings, store *config.Store, ctrl *audio.Controller,
	registry *provider.Registry, super *supervisor.Supervisor,
	meta *metadata.Manager, st *state.Store, id *identity.Service) *App {
	return &App{
		Settings: settings,
		Store:    store,
		Audio:    ctrl,
		Registry: registry,
		Super:    super,
		Metadata: meta,
		State:    st,
		Identity: id,
	}
}

// StartPlayer launches a configured player. Backends with a metadata
// endpoint get a metadata client attached after a successful start.
func (a *App) StartPlayer(name string) error {
	cfg, ok := a.Store.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", config.ErrPlayerNotFound, name)
	}

	prov, err := a.Registry.ForPlayer(cfg)
	if err != nil {
		return err
	}

	if err := a.Super.Start(cfg, prov); err != nil {
		return err
	}

	if cfg.ProviderType() == config.ProviderSendspin && cfg.ServerURL != "" {
		a.Metadata.Attach(name, cfg.ServerURL)
	}

	a.saveState()
	return nil
}

// StopPlayer stops a running player and tears down its metadata client.
func (a *App) StopPlayer(name string) error {
	if !a.Store.Exists(name) {
		return fmt.Errorf("%w: %s", config.ErrPlayerNotFound, name)
	}

	err := a.Super.Stop(name)
	a.Metadata.Detach(name)
	if err != nil {
		return err
	}

	a.saveState()
	return nil
}

// CreatePlayer validates, prepares and persists a new player configuration.
func (a *App) CreatePlayer(cfg config.PlayerConfig) (config.PlayerConfig, error) {
	if a.Store.Exists(cfg.Name) {
		return config.PlayerConfig{}, fmt.Errorf("%w: %s", config.ErrPlayerExists, cfg.Name)
	}

	if err := a.Store.Validate(cfg); err != nil {
		return config.PlayerConfig{}, err
	}
	if err := a.Registry.ValidateConfig(cfg); err != nil {
		return config.PlayerConfig{}, err
	}

	cfg = a.Registry.PrepareConfig(cfg)
	a.Store.Set(cfg.Name, cfg)
	if err := a.Store.Save(); err != nil {
		a.Store.Delete(cfg.Name)
		return config.PlayerConfig{}, err
	}

	log.Info().Str("player", cfg.Name).Str("provider", cfg.ProviderType()).Msg("Player created")
	return cfg, nil
}

// UpdatePlayer replaces a player's configuration. A running player is
// stopped first and restarted with the new configuration afterwards; a
// rename moves the config under the new name.
func (a *App) UpdatePlayer(name string, cfg config.PlayerConfig) (config.PlayerConfig, error) {
	if !a.Store.Exists(name) {
		return config.PlayerConfig{}, fmt.Errorf("%w: %s", config.ErrPlayerNotFound, name)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	if cfg.Name != name && a.Store.Exists(cfg.Name) {
		return config.PlayerConfig{}, fmt.Errorf("%w: %s", config.ErrPlayerExists, cfg.Name)
	}

	if err := a.Store.Validate(cfg); err != nil {
		return config.PlayerConfig{}, err
	}
	if err := a.Registry.ValidateConfig(cfg); err != nil {
		return config.PlayerConfig{}, err
	}

	wasRunning := a.Super.IsRunning(name)
	if wasRunning {
		if err := a.StopPlayer(name); err != nil {
			return config.PlayerConfig{}, err
		}
	}

	cfg = a.Registry.PrepareConfig(cfg)
	if cfg.Name != name {
		a.Store.Rename(name, cfg.Name)
	}
	a.Store.Set(cfg.Name, cfg)
	if err := a.Store.Save(); err != nil {
		return config.PlayerConfig{}, err
	}

	if wasRunning {
		if err := a.StartPlayer(cfg.Name); err != nil {
			log.Warn().Err(err).Str("player", cfg.Name).
				Msg("Player did not restart after update")
		}
	}

	log.Info().Str("player", cfg.Name).Msg("Player updated")
	return cfg, nil
}

// DeletePlayer stops a player if needed and removes its configuration.
func (a *App) DeletePlayer(name string) error {
	if !a.Store.Exists(name) {
		return fmt.Errorf("%w: %s", config.ErrPlayerNotFound, name)
	}

	if a.Super.IsRunning(name) {
		if err := a.Super.Stop(name); err != nil {
			log.Warn().Err(err).Str("player", name).Msg("Could not stop player before delete")
		}
	}
	a.Metadata.Detach(name)

	a.Store.Delete(name)
	if err := a.Store.Save(); err != nil {
		return err
	}

	a.saveState()
	log.Info().Str("player", name).Msg("Player deleted")
	return nil
}

// Status returns the status of one player.
func (a *App) Status(name string) (PlayerStatus, error) {
	cfg, ok := a.Store.Get(name)
	if !ok {
		return PlayerStatus{}, fmt.Errorf("%w: %s", config.ErrPlayerNotFound, name)
	}
	return a.statusFor(cfg), nil
}

// Statuses returns the status of every configured player, sorted by name.
func (a *App) Statuses() []PlayerStatus {
	names := a.Store.Names()
	statuses := make([]PlayerStatus, 0, len(names))
	for _, name := range names {
		cfg, ok := a.Store.Get(name)
		if !ok {
			continue
		}
		statuses = append(statuses, a.statusFor(cfg))
	}
	return statuses
}

func (a *App) statusFor(cfg config.PlayerConfig) PlayerStatus {
	st := a.Super.StatusOf(cfg.Name)
	ps := PlayerStatus{
		Name:     cfg.Name,
		Running:  st.Running,
		PID:      st.PID,
		Fallback: st.Fallback,
		Config:   cfg,
	}
	if track, ok := a.Metadata.Track(cfg.Name); ok && !track.IsStale() {
		ps.NowPlaying = &track
	}
	return ps
}

// NowPlaying returns the current track for a player. Stale snapshots read
// as nothing playing.
func (a *App) NowPlaying(name string) (metadata.Track, error) {
	if !a.Store.Exists(name) {
		return metadata.Track{}, fmt.Errorf("%w: %s", config.ErrPlayerNotFound, name)
	}

	track, ok := a.Metadata.Track(name)
	if !ok || track.IsStale() {
		return metadata.Track{}, nil
	}
	return track, nil
}

// PlayerVolume reads the player's hardware volume through its provider.
func (a *App) PlayerVolume(name string) (int, error) {
	cfg, ok := a.Store.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", config.ErrPlayerNotFound, name)
	}

	prov, err := a.Registry.ForPlayer(cfg)
	if err != nil {
		return 0, err
	}
	return prov.GetVolume(cfg), nil
}

// SetPlayerVolume sets the player's hardware volume and records it in the
// configuration. The stored volume is updated even when the hardware write
// fails, so the intent survives for devices without a working mixer.
func (a *App) SetPlayerVolume(name string, volume int) (string, error) {
	cfg, ok := a.Store.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", config.ErrPlayerNotFound, name)
	}
	if volume < 0 || volume > 100 {
		return "", &config.ValidationError{Field: "volume", Reason: "must be between 0 and 100"}
	}

	prov, err := a.Registry.ForPlayer(cfg)
	if err != nil {
		return "", err
	}

	msg, setErr := prov.SetVolume(cfg, volume)

	cfg.Volume = volume
	a.Store.Set(name, cfg)
	if err := a.Store.Save(); err != nil {
		log.Warn().Err(err).Str("player", name).Msg("Could not persist volume")
	}

	return msg, setErr
}

// RestoreState restarts players from the saved snapshot plus any players
// marked autostart. Starts are spaced out so a board full of players does
// not thrash the audio layer at boot.
func (a *App) RestoreState(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(restoreDelay):
	}

	toStart := make(map[string]bool)
	for _, name := range a.State.Restorable() {
		toStart[name] = true
	}
	for name, cfg := range a.Store.All() {
		if cfg.Autostart && cfg.Enabled {
			toStart[name] = true
		}
	}

	first := true
	for _, name := range a.Store.Names() {
		if !toStart[name] {
			continue
		}
		if !first {
			select {
			case <-ctx.Done():
				return
			case <-time.After(restoreSpacing):
			}
		}
		first = false

		if err := a.StartPlayer(name); err != nil {
			log.Warn().Err(err).Str("player", name).Msg("Could not restore player")
		} else {
			log.Info().Str("player", name).Msg("Restored player")
		}
	}
}

// PeriodicStateSave saves the runtime state on an interval until the
// context is cancelled.
func (a *App) PeriodicStateSave(ctx context.Context) {
	ticker := time.NewTicker(stateSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.saveState()
		}
	}
}

func (a *App) saveState() {
	if err := a.State.Save(a.Super.RunningPlayers(), a.Store.Count()); err != nil {
		log.Warn().Err(err).Msg("Could not save runtime state")
	}
}

// Shutdown stops all players and metadata clients and saves a final state
// snapshot.
func (a *App) Shutdown() {
	a.saveState()
	if err := a.Super.StopAll(); err != nil {
		log.Error().Err(err).Msg("Errors while stopping players")
	}
	a.Metadata.StopAll()
}
