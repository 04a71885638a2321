package supervisor

import "errors"

var (
	// ErrAlreadyRunning is returned when starting a player that has a live
	// supervised process.
	ErrAlreadyRunning = errors.New("player already running")

	// ErrNotRunning is returned when stopping a player with no live process.
	ErrNotRunning = errors.New("player not running")

	// ErrBinaryNotFound is returned when the provider binary is not on PATH.
	ErrBinaryNotFound = errors.New("player binary not found")

	// ErrStartFailed is returned when the player process could not be
	// launched or exited immediately after launch.
	ErrStartFailed = errors.New("player failed to start")
)
