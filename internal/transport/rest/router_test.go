package rest_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundmesh/multiroom-audio-backend/internal/app"
	"github.com/soundmesh/multiroom-audio-backend/internal/audio"
	"github.com/soundmesh/multiroom-audio-backend/internal/config"
	"github.com/soundmesh/multiroom-audio-backend/internal/metadata"
	"github.com/soundmesh/multiroom-audio-backend/internal/provider"
	"github.com/soundmesh/multiroom-audio-backend/internal/state"
	"github.com/soundmesh/multiroom-audio-backend/internal/supervisor"
	"github.com/soundmesh/multiroom-audio-backend/internal/transport/rest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *app.App) {
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
	registry.Register(provider.NewSqueezelite(ctrl, settings))
	registry.Register(provider.NewSendspin(ctrl))

	super := supervisor.New(supervisor.Options{
		LogDir:      settings.LogDir,
		GracePeriod: 50 * time.Millisecond,
		StopTimeout: 500 * time.Millisecond,
		KillTimeout: 500 * time.Millisecond,
	})

	a := app.New(settings, store, ctrl, registry, super,
		metadata.NewManager(), state.NewStore(settings.StateFile()), nil)
	t.Cleanup(a.Shutdown)

	return rest.NewRouter(a), a
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestCreatePlayerEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("creates with defaults", func(t *testing.T) {
		// No volume key in the body; the default must be applied.
		rec := do(t, router, http.MethodPost, "/api/players",
			map[string]any{"name": "office", "device": "default"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var created config.PlayerConfig
		if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
			t.Fatal(err)
		}
		if created.Volume != config.DefaultVolume {
			t.Errorf("volume = %d, want default", created.Volume)
		}
		if created.MACAddress == "" {
			t.Error("MAC should be generated")
		}
	})

	t.Run("explicit zero volume is kept", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/players",
			map[string]any{"name": "quiet-room", "device": "default", "volume": 0})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var created config.PlayerConfig
		if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
			t.Fatal(err)
		}
		if created.Volume != 0 {
			t.Errorf("volume = %d, want 0", created.Volume)
		}
	})

	t.Run("duplicate name gives 409", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/players",
			config.PlayerConfig{Name: "office", Device: "default"})
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("missing name gives 400", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/players",
			config.PlayerConfig{Device: "default"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("malformed body gives 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/players", bytes.NewReader([]byte("{broken")))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestPlayerNotFoundResponses(t *testing.T) {
	router, _ := newTestRouter(t)

	paths := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/players/ghost/status", nil},
		{http.MethodPost, "/api/players/ghost/start", nil},
		{http.MethodPost, "/api/players/ghost/stop", nil},
		{http.MethodGet, "/api/players/ghost/volume", nil},
		{http.MethodGet, "/api/players/ghost/now-playing", nil},
		{http.MethodDelete, "/api/players/ghost", nil},
		{http.MethodPut, "/api/players/ghost", config.PlayerConfig{Name: "ghost"}},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rec := do(t, router, p.method, p.path, p.body)
			if rec.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListPlayersEndpoint(t *testing.T) {
	router, a := newTestRouter(t)

	for _, name := range []string{"b", "a"} {
		if _, err := a.CreatePlayer(config.PlayerConfig{Name: name, Device: "default"}); err != nil {
			t.Fatal(err)
		}
	}

	rec := do(t, router, http.MethodGet, "/api/players", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Players []app.PlayerStatus `json:"players"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Players) != 2 || body.Players[0].Name != "a" {
		t.Errorf("players = %+v", body.Players)
	}
}

func TestStartPlayerBinaryMissing(t *testing.T) {
	router, a := newTestRouter(t)

	if _, err := exec.LookPath("squeezelite"); err == nil {
		t.Skip("squeezelite installed on this host")
	}

	// Without the binary a start attempt surfaces as 503.
	if _, err := a.CreatePlayer(config.PlayerConfig{Name: "office", Device: "default"}); err != nil {
		t.Fatal(err)
	}

	rec := do(t, router, http.MethodPost, "/api/players/office/start", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestVolumeEndpoints(t *testing.T) {
	router, a := newTestRouter(t)

	if _, err := a.CreatePlayer(config.PlayerConfig{Name: "office", Device: "default"}); err != nil {
		t.Fatal(err)
	}

	t.Run("get returns virtual default", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/players/office/volume", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var body map[string]int
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body["volume"] != audio.DefaultVolumePercent {
			t.Errorf("volume = %d, want %d", body["volume"], audio.DefaultVolumePercent)
		}
	})

	t.Run("set persists in config", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/players/office/volume",
			map[string]int{"volume": 20})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		if cfg, _ := a.Store.Get("office"); cfg.Volume != 20 {
			t.Errorf("stored volume = %d, want 20", cfg.Volume)
		}
	})

	t.Run("out of range gives 400", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/players/office/volume",
			map[string]int{"volume": 150})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestDevicesEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/devices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Devices []audio.Device `json:"devices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	// Tool calls fail in tests, so only the virtual fallbacks appear.
	if len(body.Devices) != 3 {
		t.Errorf("devices = %+v", body.Devices)
	}
}

func TestMixerControlsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/devices/null/mixer-controls", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Device   string   `json:"device"`
		Controls []string `json:"controls"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Device != "null" || len(body.Controls) != 2 {
		t.Errorf("body = %+v", body)
	}
}

func TestProvidersEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/providers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Providers []provider.Info `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Providers) != 2 {
		t.Errorf("providers = %+v", body.Providers)
	}
}

func TestStateEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	if rec := do(t, router, http.MethodPost, "/api/state/save", nil); rec.Code != http.StatusOK {
		t.Fatalf("save status = %d", rec.Code)
	}

	rec := do(t, router, http.MethodGet, "/api/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	var snap state.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Timestamp.IsZero() {
		t.Error("saved snapshot should carry a timestamp")
	}
}

func TestVersionEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/v1/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["version"] == "" {
		t.Error("version missing")
	}
}

func TestCORSHeaders(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("set on normal responses", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/health", nil)
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("CORS origin header missing")
		}
	})

	t.Run("preflight answered directly", func(t *testing.T) {
		rec := do(t, router, http.MethodOptions, "/api/players", nil)
		if rec.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", rec.Code)
		}
	})

	t.Run("set on error responses", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/players/ghost/status", nil)
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("CORS origin header missing on error")
		}
	})
}
