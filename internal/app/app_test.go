package app_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/soundmesh/multiroom-audio-backend/internal/app"
	"github.com/soundmesh/multiroom-audio-backend/internal/audio"
	"github.com/soundmesh/multiroom-audio-backend/internal/config"
	"github.com/soundmesh/multiroom-audio-backend/internal/metadata"
	"github.com/soundmesh/multiroom-audio-backend/internal/provider"
	"github.com/soundmesh/multiroom-audio-backend/internal/state"
	"github.com/soundmesh/multiroom-audio-backend/internal/supervisor"
)

// shellProvider registers as squeezelite but launches a shell one-liner, so
// lifecycle paths run without the real player binary.
type shellProvider struct {
	script string
}

func (p *shellProvider) Type() string        { return config.ProviderSqueezelite }
func (p *shellProvider) DisplayName() string { return "Shell" }
func (p *shellProvider) BinaryName() string  { return "sh" }

func (p *shellProvider) BuildCommand(cfg config.PlayerConfig, logPath string) []string {
	return []string{"/bin/sh", "-c", p.script}
}

func (p *shellProvider) BuildFallbackCommand(cfg config.PlayerConfig, logPath string) []string {
	return nil
}

func (p *shellProvider) SupportsFallback() bool { return false }

func (p *shellProvider) ValidateConfig(cfg config.PlayerConfig) error {
	if cfg.Name == "" {
		return &config.ValidationError{Field: "name", Reason: "player name is required"}
	}
	return nil
}

func (p *shellProvider) PrepareConfig(cfg config.PlayerConfig) config.PlayerConfig {
	cfg.Provider = config.ProviderSqueezelite
	return cfg
}

func (p *shellProvider) GetVolume(cfg config.PlayerConfig) int { return 42 }
func (p *shellProvider) SetVolume(cfg config.PlayerConfig, volume int) (string, error) {
	return fmt.Sprintf("Volume set to %d%%", volume), nil
}
func (p *shellProvider) RequiredFields() []string { return []string{"name"} }
func (p *shellProvider) Available() bool          { return true }

func newTestApp(t *testing.T) *app.App {
	t.Helper()

	dir := t.TempDir()
	settings := config.Settings{
		Port:      8080,
		ConfigDir: dir,
		LogDir:    filepath.Join(dir, "logs"),
	}

	store, err := config.NewStore(settings.ConfigFile())
	if err != nil {
		t.Fatalf("config store: %v", err)
	}

	ctrl := audio.NewControllerWithRunner(func(name string, args ...string) ([]byte, error) {
		return nil, fmt.Errorf("no tools in tests")
	})

	registry := provider.NewRegistry()
	registry.Register(&shellProvider{script: "sleep 60"})

	super := supervisor.New(supervisor.Options{
		LogDir:      settings.LogDir,
		GracePeriod: 50 * time.Millisecond,
		StopTimeout: 500 * time.Millisecond,
		KillTimeout: 500 * time.Millisecond,
	})

	a := app.New(settings, store, ctrl, registry, super,
		metadata.NewManager(), state.NewStore(settings.StateFile()), nil)
	t.Cleanup(a.Shutdown)
	return a
}

func TestCreatePlayer(t *testing.T) {
	a := newTestApp(t)

	t.Run("fills defaults and persists", func(t *testing.T) {
		created, err := a.CreatePlayer(config.PlayerConfig{Name: "office", Device: "default", Volume: config.DefaultVolume})
		if err != nil {
			t.Fatalf("CreatePlayer failed: %v", err)
		}
		if created.Provider != config.ProviderSqueezelite {
			t.Errorf("provider = %q", created.Provider)
		}
		if !a.Store.Exists("office") {
			t.Error("player should be in the store")
		}
	})

	t.Run("explicit zero volume survives", func(t *testing.T) {
		created, err := a.CreatePlayer(config.PlayerConfig{Name: "quiet-room", Device: "default", Volume: 0})
		if err != nil {
			t.Fatalf("CreatePlayer failed: %v", err)
		}
		if created.Volume != 0 {
			t.Errorf("volume = %d, want 0", created.Volume)
		}
		if cfg, _ := a.Store.Get("quiet-room"); cfg.Volume != 0 {
			t.Errorf("stored volume = %d, want 0", cfg.Volume)
		}
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		_, err := a.CreatePlayer(config.PlayerConfig{Name: "office", Device: "default"})
		if !errors.Is(err, config.ErrPlayerExists) {
			t.Errorf("error = %v, want ErrPlayerExists", err)
		}
	})

	t.Run("invalid config rejected", func(t *testing.T) {
		_, err := a.CreatePlayer(config.PlayerConfig{Device: "default"})
		if err == nil {
			t.Error("empty name should be rejected")
		}
	})
}

func TestStartStopLifecycle(t *testing.T) {
	a := newTestApp(t)

	if _, err := a.CreatePlayer(config.PlayerConfig{Name: "office", Device: "default"}); err != nil {
		t.Fatal(err)
	}

	if err := a.StartPlayer("office"); err != nil {
		t.Fatalf("StartPlayer failed: %v", err)
	}

	status, err := a.Status("office")
	if err != nil {
		t.Fatal(err)
	}
	if !status.Running || status.PID == 0 {
		t.Errorf("status = %+v, want running with PID", status)
	}

	// State snapshot reflects the running player.
	snap := a.State.Load()
	if len(snap.RunningPlayers) != 1 || snap.RunningPlayers[0] != "office" {
		t.Errorf("state snapshot = %+v", snap)
	}

	if err := a.StopPlayer("office"); err != nil {
		t.Fatalf("StopPlayer failed: %v", err)
	}
	status, _ = a.Status("office")
	if status.Running {
		t.Error("player should be stopped")
	}
}

func TestStartUnknownPlayer(t *testing.T) {
	a := newTestApp(t)

	err := a.StartPlayer("ghost")
	if !errors.Is(err, config.ErrPlayerNotFound) {
		t.Errorf("error = %v, want ErrPlayerNotFound", err)
	}
}

func TestUpdatePlayerRename(t *testing.T) {
	a := newTestApp(t)

	if _, err := a.CreatePlayer(config.PlayerConfig{Name: "old", Device: "default"}); err != nil {
		t.Fatal(err)
	}

	updated, err := a.UpdatePlayer("old", config.PlayerConfig{Name: "new", Device: "default", Volume: 30})
	if err != nil {
		t.Fatalf("UpdatePlayer failed: %v", err)
	}
	if updated.Name != "new" {
		t.Errorf("name = %q", updated.Name)
	}
	if a.Store.Exists("old") {
		t.Error("old name should be gone")
	}
	if !a.Store.Exists("new") {
		t.Error("new name should exist")
	}
}

func TestUpdatePlayerRenameCollision(t *testing.T) {
	a := newTestApp(t)

	for _, name := range []string{"a", "b"} {
		if _, err := a.CreatePlayer(config.PlayerConfig{Name: name, Device: "default"}); err != nil {
			t.Fatal(err)
		}
	}

	_, err := a.UpdatePlayer("a", config.PlayerConfig{Name: "b", Device: "default"})
	if !errors.Is(err, config.ErrPlayerExists) {
		t.Errorf("error = %v, want ErrPlayerExists", err)
	}
}

func TestUpdateRestartsRunningPlayer(t *testing.T) {
	a := newTestApp(t)

	if _, err := a.CreatePlayer(config.PlayerConfig{Name: "office", Device: "default"}); err != nil {
		t.Fatal(err)
	}
	if err := a.StartPlayer("office"); err != nil {
		t.Fatal(err)
	}

	if _, err := a.UpdatePlayer("office", config.PlayerConfig{Name: "office", Device: "null"}); err != nil {
		t.Fatalf("UpdatePlayer failed: %v", err)
	}

	status, _ := a.Status("office")
	if !status.Running {
		t.Error("player should be running again after update")
	}
	if cfg, _ := a.Store.Get("office"); cfg.Device != "null" {
		t.Errorf("device = %q, want null", cfg.Device)
	}
}

func TestDeletePlayer(t *testing.T) {
	a := newTestApp(t)

	if _, err := a.CreatePlayer(config.PlayerConfig{Name: "office", Device: "default"}); err != nil {
		t.Fatal(err)
	}
	if err := a.StartPlayer("office"); err != nil {
		t.Fatal(err)
	}

	if err := a.DeletePlayer("office"); err != nil {
		t.Fatalf("DeletePlayer failed: %v", err)
	}
	if a.Store.Exists("office") {
		t.Error("player should be removed")
	}
	if a.Super.IsRunning("office") {
		t.Error("process should be stopped on delete")
	}

	if err := a.DeletePlayer("office"); !errors.Is(err, config.ErrPlayerNotFound) {
		t.Errorf("second delete error = %v, want ErrPlayerNotFound", err)
	}
}

func TestSetPlayerVolumePersists(t *testing.T) {
	a := newTestApp(t)

	if _, err := a.CreatePlayer(config.PlayerConfig{Name: "office", Device: "default"}); err != nil {
		t.Fatal(err)
	}

	msg, err := a.SetPlayerVolume("office", 33)
	if err != nil {
		t.Fatalf("SetPlayerVolume failed: %v", err)
	}
	if msg == "" {
		t.Error("expected a result message")
	}

	if cfg, _ := a.Store.Get("office"); cfg.Volume != 33 {
		t.Errorf("stored volume = %d, want 33", cfg.Volume)
	}
}

func TestSetPlayerVolumeRange(t *testing.T) {
	a := newTestApp(t)

	if _, err := a.CreatePlayer(config.PlayerConfig{Name: "office", Device: "default"}); err != nil {
		t.Fatal(err)
	}

	var verr *config.ValidationError
	if _, err := a.SetPlayerVolume("office", 150); !errors.As(err, &verr) {
		t.Errorf("error = %v, want ValidationError", err)
	}
}

func TestStatusesSorted(t *testing.T) {
	a := newTestApp(t)

	for _, name := range []string{"zeta", "alpha"} {
		if _, err := a.CreatePlayer(config.PlayerConfig{Name: name, Device: "default"}); err != nil {
			t.Fatal(err)
		}
	}

	statuses := a.Statuses()
	if len(statuses) != 2 || statuses[0].Name != "alpha" || statuses[1].Name != "zeta" {
		t.Errorf("statuses = %+v", statuses)
	}
}

func TestNowPlayingWithoutClient(t *testing.T) {
	a := newTestApp(t)

	if _, err := a.CreatePlayer(config.PlayerConfig{Name: "office", Device: "default"}); err != nil {
		t.Fatal(err)
	}

	track, err := a.NowPlaying("office")
	if err != nil {
		t.Fatalf("NowPlaying failed: %v", err)
	}
	if track.Title != "" || track.Playing {
		t.Errorf("expected empty track, got %+v", track)
	}

	if _, err := a.NowPlaying("ghost"); !errors.Is(err, config.ErrPlayerNotFound) {
		t.Errorf("error = %v, want ErrPlayerNotFound", err)
	}
}
