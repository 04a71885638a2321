// Package metadata maintains now-playing information for players whose
// backend exposes a metadata websocket endpoint. One client per player
// connects to the player's server, keeps the latest track state, and
// reconnects on its own when the link drops.
package metadata

import (
	"sync"
	"time"
)

// StaleThreshold is how old a track update may be before it no longer
// counts as "now playing".
const StaleThreshold = 30 * time.Second

// Track is the now-playing snapshot for one player.
type Track struct {
	Title      string    `json:"title,omitempty"`
	Artist     string    `json:"artist,omitempty"`
	Album      string    `json:"album,omitempty"`
	ArtworkURL string    `json:"artwork_url,omitempty"`
	Year       int       `json:"year,omitempty"`
	TrackNum   int       `json:"track,omitempty"`
	Progress   float64   `json:"progress,omitempty"`
	Duration   float64   `json:"duration,omitempty"`
	Playing    bool      `json:"playing"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// IsStale reports whether the snapshot is too old to trust.
func (t Track) IsStale() bool {
	if t.UpdatedAt.IsZero() {
		return true
	}
	return time.Since(t.UpdatedAt) > StaleThreshold
}

// ProgressPercent returns playback position as a 0-100 percentage, or 0
// when the duration is unknown.
func (t Track) ProgressPercent() float64 {
	if t.Duration <= 0 {
		return 0
	}
	pct := t.Progress / t.Duration * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// trackState is the shared mutable snapshot behind one client.
type trackState struct {
	mu    sync.RWMutex
	track Track
}

func (s *trackState) get() Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.track
}

func (s *trackState) set(t Track) {
	s.mu.Lock()
	s.track = t
	s.mu.Unlock()
}
