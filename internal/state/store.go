// Package state persists which players were running so they can be
// restored after a restart.
package state

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
)

// MaxAge is how old a saved snapshot may be and still be restored. Stale
// snapshots usually mean the host was down for a while and the desired
// player set is no longer trustworthy.
const MaxAge = 5 * time.Minute

// Snapshot records the running player set at one point in time.
type Snapshot struct {
	Timestamp      time.Time `yaml:"timestamp" json:"timestamp"`
	RunningPlayers []string  `yaml:"running_players" json:"running_players"`
	TotalPlayers   int       `yaml:"total_players" json:"total_players"`
}

// Store reads and writes the runtime state file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store writing to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes a snapshot of the running players.
func (s *Store) Save(running []string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Timestamp:      time.Now(),
		RunningPlayers: running,
		TotalPlayers:   total,
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return err
	}

	log.Debug().Int("running", len(running)).Str("path", s.path).Msg("Saved runtime state")
	return nil
}

// Load reads the saved snapshot. A missing file returns an empty snapshot
// and no error; an unreadable or corrupt file is logged and treated the
// same, never blocking startup.
func (s *Store) Load() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("Could not read state file")
		}
		return Snapshot{}
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Corrupt state file, ignoring")
		return Snapshot{}
	}
	return snap
}

// Restorable returns the players worth restarting from the saved snapshot.
// Snapshots older than MaxAge yield nothing.
func (s *Store) Restorable() []string {
	snap := s.Load()
	if len(snap.RunningPlayers) == 0 {
		return nil
	}
	if age := time.Since(snap.Timestamp); age > MaxAge {
		log.Info().Dur("age", age).Msg("Saved state too old, skipping player restore")
		return nil
	}
	return snap.RunningPlayers
}
