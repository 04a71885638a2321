// Package rest exposes the player operations over HTTP using gin.
package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundmesh/multiroom-audio-backend/internal/app"
)

// corsMiddleware sets CORS headers on all responses, including errors, so
// browser frontends on another origin can call the API without CORB issues.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// NewRouter builds the gin engine with all API routes registered.
func NewRouter(a *app.App) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	h := &handlers{app: a}

	router.GET("/health", h.health)

	api := router.Group("/api")
	{
		api.GET("/players", h.listPlayers)
		api.POST("/players", h.createPlayer)
		api.PUT("/players/:name", h.updatePlayer)
		api.DELETE("/players/:name", h.deletePlayer)

		api.POST("/players/:name/start", h.startPlayer)
		api.POST("/players/:name/stop", h.stopPlayer)
		api.GET("/players/:name/status", h.playerStatus)
		api.GET("/players/:name/volume", h.getVolume)
		api.POST("/players/:name/volume", h.setVolume)
		api.GET("/players/:name/now-playing", h.nowPlaying)

		api.GET("/devices", h.listDevices)
		api.GET("/devices/:device/mixer-controls", h.mixerControls)
		api.GET("/providers", h.listProviders)

		api.GET("/state", h.getState)
		api.POST("/state/save", h.saveState)

		api.GET("/v1/version", h.version)
	}

	return router
}
