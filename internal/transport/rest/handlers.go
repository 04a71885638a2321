package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundmesh/multiroom-audio-backend/internal/app"
	"github.com/soundmesh/multiroom-audio-backend/internal/config"
	"github.com/soundmesh/multiroom-audio-backend/internal/supervisor"
	"github.com/soundmesh/multiroom-audio-backend/internal/version"
)

type handlers struct {
	app *app.App
}

// fail maps service errors onto HTTP status codes and writes the standard
// error body.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var verr *config.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, config.ErrPlayerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, config.ErrPlayerExists):
		status = http.StatusConflict
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, supervisor.ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, supervisor.ErrBinaryNotFound):
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"players": h.app.Store.Count(),
		"running": len(h.app.Super.RunningPlayers()),
	})
}

func (h *handlers) listPlayers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"players": h.app.Statuses()})
}

// playerRequest wraps PlayerConfig so an explicit volume of 0 can be told
// apart from an omitted volume key. The outer pointer field shadows the
// embedded int during JSON binding.
type playerRequest struct {
	config.PlayerConfig
	Volume *int `json:"volume"`
}

// toConfig resolves the volume: an omitted key falls back to the default,
// an explicit value (zero included) is kept.
func (r playerRequest) toConfig() config.PlayerConfig {
	cfg := r.PlayerConfig
	if r.Volume != nil {
		cfg.Volume = *r.Volume
	} else {
		cfg.Volume = config.DefaultVolume
	}
	return cfg
}

func (h *handlers) createPlayer(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	created, err := h.app.CreatePlayer(req.toConfig())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *handlers) updatePlayer(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	updated, err := h.app.UpdatePlayer(c.Param("name"), req.toConfig())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *handlers) deletePlayer(c *gin.Context) {
	if err := h.app.DeletePlayer(c.Param("name")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "player deleted"})
}

func (h *handlers) startPlayer(c *gin.Context) {
	name := c.Param("name")
	if err := h.app.StartPlayer(name); err != nil {
		fail(c, err)
		return
	}

	status, err := h.app.Status(name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *handlers) stopPlayer(c *gin.Context) {
	if err := h.app.StopPlayer(c.Param("name")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "player stopped"})
}

func (h *handlers) playerStatus(c *gin.Context) {
	status, err := h.app.Status(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *handlers) getVolume(c *gin.Context) {
	vol, err := h.app.PlayerVolume(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"volume": vol})
}

type volumeRequest struct {
	Volume int `json:"volume"`
}

func (h *handlers) setVolume(c *gin.Context) {
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	msg, err := h.app.SetPlayerVolume(c.Param("name"), req.Volume)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "volume": req.Volume})
}

func (h *handlers) nowPlaying(c *gin.Context) {
	track, err := h.app.NowPlaying(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, track)
}

func (h *handlers) listDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"devices": h.app.Audio.ListDevices()})
}

func (h *handlers) mixerControls(c *gin.Context) {
	device := c.Param("device")
	c.JSON(http.StatusOK, gin.H{
		"device":   device,
		"controls": h.app.Audio.MixerControls(device),
	})
}

func (h *handlers) listProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.app.Registry.ProviderInfo(false)})
}

func (h *handlers) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.app.State.Load())
}

func (h *handlers) saveState(c *gin.Context) {
	if err := h.app.State.Save(h.app.Super.RunningPlayers(), h.app.Store.Count()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "state saved"})
}

func (h *handlers) version(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetInfo())
}
