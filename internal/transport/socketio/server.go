// Package socketio pushes player status snapshots to connected frontends
// over Socket.io.
package socketio

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/soundmesh/multiroom-audio-backend/internal/app"
)

// broadcastInterval is how often the status snapshot goes out to all
// connected clients.
const broadcastInterval = 2 * time.Second

// Server handles Socket.io connections and status broadcasting.
type Server struct {
	io  *socket.Server
	app *app.App

	mu      sync.RWMutex
	clients map[string]*socket.Socket
}

// NewServer creates a Socket.io server bound to the application services.
func NewServer(a *app.App) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:      socket.NewServer(nil, opts),
		app:     a,
		clients: make(map[string]*socket.Socket),
	}

	s.setupHandlers()

	return s, nil
}

func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		log.Info().Str("id", clientID).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		// Send the current snapshot right away so the UI is not blank
		// until the next broadcast tick.
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushStatus(client)
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("get_status", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("get_status")
			s.pushStatus(client)
		})
	})
}

// pushStatus sends the current status snapshot to one client.
func (s *Server) pushStatus(client *socket.Socket) {
	client.Emit("status_update", s.app.Statuses())
}

// BroadcastStatus sends the status snapshot to all connected clients.
func (s *Server) BroadcastStatus() {
	s.mu.RLock()
	clientCount := len(s.clients)
	s.mu.RUnlock()

	if clientCount == 0 {
		return
	}

	s.io.Emit("status_update", s.app.Statuses())
	log.Debug().Int("clients", clientCount).Msg("Broadcast status")
}

// StartStatusMonitor broadcasts the status snapshot on an interval until
// the context is cancelled.
func (s *Server) StartStatusMonitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(broadcastInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.BroadcastStatus()
			}
		}
	}()
}

// ServeHTTP implements http.Handler for the Socket.io endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close shuts the Socket.io server down.
func (s *Server) Close() error {
	s.io.Close(nil)
	return nil
}
