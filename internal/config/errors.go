package config

import "errors"

var (
	// ErrPlayerNotFound is returned when a player name is not in the store.
	ErrPlayerNotFound = errors.New("player not found")

	// ErrPlayerExists is returned when creating or renaming a player would
	// collide with an existing name.
	ErrPlayerExists = errors.New("player with this name already exists")

	// ErrPersist is returned when the configuration file cannot be written.
	ErrPersist = errors.New("could not persist configuration")
)

// ValidationError reports a config field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}
