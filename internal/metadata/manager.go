package metadata

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager owns the metadata clients, one per player. Clients are created
// lazily when a player with a metadata-capable backend starts and torn down
// when the player stops or its server URL changes.
type Manager struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{clients: make(map[string]*Client)}
}

// Attach ensures a running client exists for the player against the given
// server URL. An existing client pointed at a different URL is stopped and
// replaced; one pointed at the same URL is kept as is.
func (m *Manager) Attach(playerName, url string) *Client {
	m.mu.Lock()
	existing, ok := m.clients[playerName]
	if ok && existing.URL() == url {
		m.mu.Unlock()
		return existing
	}
	delete(m.clients, playerName)
	m.mu.Unlock()

	if ok {
		log.Info().Str("player", playerName).Str("url", url).
			Msg("Metadata server URL changed, replacing client")
		existing.Stop()
	}

	client := NewClient(playerName, url)
	client.Start()

	m.mu.Lock()
	m.clients[playerName] = client
	m.mu.Unlock()
	return client
}

// Detach stops and removes the player's client, if any.
func (m *Manager) Detach(playerName string) {
	m.mu.Lock()
	client, ok := m.clients[playerName]
	delete(m.clients, playerName)
	m.mu.Unlock()

	if ok {
		client.Stop()
	}
}

// Track returns the player's now-playing snapshot. The second return is
// false when the player has no metadata client.
func (m *Manager) Track(playerName string) (Track, bool) {
	m.mu.Lock()
	client, ok := m.clients[playerName]
	m.mu.Unlock()

	if !ok {
		return Track{}, false
	}
	return client.Track(), true
}

// StopAll tears down every client, used at shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		c.Stop()
	}
}
