// Package supervisor owns the lifecycle of player processes: spawning them
// in their own process groups, detecting early exits, retrying on a fallback
// device, and escalating termination from SIGTERM to SIGKILL.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/soundmesh/multiroom-audio-backend/internal/config"
	"github.com/soundmesh/multiroom-audio-backend/internal/provider"
)

// Timing defaults for process lifecycle management.
const (
	// DefaultGracePeriod is how long a freshly spawned process must survive
	// before the start is considered successful.
	DefaultGracePeriod = 500 * time.Millisecond

	// DefaultStopTimeout is how long to wait after SIGTERM before escalating.
	DefaultStopTimeout = 5 * time.Second

	// DefaultKillTimeout is how long to wait after SIGKILL before giving up.
	DefaultKillTimeout = 2 * time.Second

	// errTailLimit bounds how much captured stderr a start error carries.
	errTailLimit = 1024
)

// tailBuffer keeps the last errTailLimit bytes written through it. Stderr is
// teed into one of these next to the log file so a failed start can report
// what the process printed.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > errTailLimit {
		b.buf = b.buf[len(b.buf)-errTailLimit:]
	}
	b.mu.Unlock()
	return len(p), nil
}

// Tail returns the captured output collapsed onto one line.
func (b *tailBuffer) Tail() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(strings.Fields(string(b.buf)), " ")
}

// Options configures a Supervisor. Zero-value durations fall back to the
// package defaults.
type Options struct {
	LogDir      string
	GracePeriod time.Duration
	StopTimeout time.Duration
	KillTimeout time.Duration
}

// Status is the externally visible state of one supervised player.
type Status struct {
	Name     string `json:"name"`
	Running  bool   `json:"running"`
	PID      int    `json:"pid,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// handle tracks one spawned process. done is closed by the wait goroutine
// when the process exits, so observers can poll or block without racing
// cmd.Wait.
type handle struct {
	cmd      *exec.Cmd
	pgid     int
	fallback bool
	logFile  *os.File
	done     chan struct{}
	waitErr  error
}

func (h *handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Supervisor spawns and stops player processes. Each player name maps to at
// most one live process. Processes run in their own process group so that
// termination signals reach any children the player binary forks.
type Supervisor struct {
	mu       sync.Mutex
	procs    map[string]*handle
	starting map[string]bool

	logDir      string
	gracePeriod time.Duration
	stopTimeout time.Duration
	killTimeout time.Duration
}

// New creates a supervisor writing player logs under opts.LogDir.
func New(opts Options) *Supervisor {
	grace := opts.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}
	stop := opts.StopTimeout
	if stop == 0 {
		stop = DefaultStopTimeout
	}
	kill := opts.KillTimeout
	if kill == 0 {
		kill = DefaultKillTimeout
	}
	return &Supervisor{
		procs:       make(map[string]*handle),
		starting:    make(map[string]bool),
		logDir:      opts.LogDir,
		gracePeriod: grace,
		stopTimeout: stop,
		killTimeout: kill,
	}
}

// LogPath returns the log file path for a player.
func (s *Supervisor) LogPath(name string) string {
	return filepath.Join(s.logDir, name+".log")
}

// Start launches a player process. The process must survive the grace
// period; an exit within it is treated as a failed start. When the provider
// supports a device fallback, a failed primary launch is retried once on the
// fallback command. Returns ErrAlreadyRunning when the player already has a
// live process and ErrBinaryNotFound when the provider binary is missing.
func (s *Supervisor) Start(cfg config.PlayerConfig, prov provider.Provider) error {
	name := cfg.Name

	// Reserve the slot before spawning so concurrent starts of the same
	// player cannot both pass the running check.
	s.mu.Lock()
	if h, ok := s.procs[name]; ok && !h.exited() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	if s.starting[name] {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	s.starting[name] = true
	delete(s.procs, name)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.starting, name)
		s.mu.Unlock()
	}()

	logPath := s.LogPath(name)
	argv := prov.BuildCommand(cfg, logPath)
	if len(argv) == 0 {
		return fmt.Errorf("%w: %s produced an empty command", ErrStartFailed, name)
	}

	h, err := s.spawn(name, argv, logPath, false)
	if err == nil {
		s.mu.Lock()
		s.procs[name] = h
		s.mu.Unlock()
		log.Info().Str("player", name).Int("pid", h.cmd.Process.Pid).Msg("Player started")
		return nil
	}

	if errors.Is(err, ErrBinaryNotFound) || !prov.SupportsFallback() {
		return err
	}

	fallbackArgv := prov.BuildFallbackCommand(cfg, logPath)
	if len(fallbackArgv) == 0 {
		return err
	}

	log.Warn().Err(err).Str("player", name).
		Msg("Player failed to start, retrying on fallback device")

	h, fbErr := s.spawn(name, fallbackArgv, logPath, true)
	if fbErr != nil {
		return fmt.Errorf("%w: fallback also failed: %v (primary: %v)", ErrStartFailed, fbErr, err)
	}

	s.mu.Lock()
	s.procs[name] = h
	s.mu.Unlock()
	log.Info().Str("player", name).Int("pid", h.cmd.Process.Pid).
		Msg("Player started on fallback device")
	return nil
}

// spawn launches argv in a new process group, redirects its output to the
// player log file with stderr teed into a bounded tail, and verifies it
// survives the grace period.
func (s *Supervisor) spawn(name string, argv []string, logPath string, fallback bool) (*handle, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("player", name).Msg("Could not open player log file")
		logFile = nil
	}

	tail := &tailBuffer{}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = tail
	if logFile != nil {
		cmd.Stdout = logFile
		cmd.Stderr = io.MultiWriter(logFile, tail)
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBinaryNotFound, argv[0])
		}
		return nil, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		pgid = cmd.Process.Pid
	}

	h := &handle{
		cmd:      cmd,
		pgid:     pgid,
		fallback: fallback,
		logFile:  logFile,
		done:     make(chan struct{}),
	}
	go func() {
		h.waitErr = cmd.Wait()
		if h.logFile != nil {
			h.logFile.Close()
		}
		close(h.done)
	}()

	select {
	case <-h.done:
		if msg := tail.Tail(); msg != "" {
			return nil, fmt.Errorf("%w: exited immediately (%v): %s",
				ErrStartFailed, h.waitErr, msg)
		}
		return nil, fmt.Errorf("%w: exited immediately (%v), check %s",
			ErrStartFailed, h.waitErr, logPath)
	case <-time.After(s.gracePeriod):
		return h, nil
	}
}

// Stop terminates a player process. SIGTERM goes to the whole process group;
// if the process is still alive after the stop timeout, SIGKILL follows.
// Returns ErrNotRunning when the player has no live process.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	h, ok := s.procs[name]
	if ok && h.exited() {
		delete(s.procs, name)
		ok = false
	}
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	delete(s.procs, name)
	s.mu.Unlock()

	if err := syscall.Kill(-h.pgid, syscall.SIGTERM); err != nil {
		log.Debug().Err(err).Str("player", name).Msg("SIGTERM delivery failed")
	}

	select {
	case <-h.done:
		log.Info().Str("player", name).Msg("Player stopped")
		return nil
	case <-time.After(s.stopTimeout):
	}

	log.Warn().Str("player", name).Msg("Player did not exit on SIGTERM, sending SIGKILL")
	if err := syscall.Kill(-h.pgid, syscall.SIGKILL); err != nil {
		log.Debug().Err(err).Str("player", name).Msg("SIGKILL delivery failed")
	}

	// Force stop is degraded success, not failure: the handle is gone and
	// the kernel will reap the group even if the final wait timed out.
	select {
	case <-h.done:
		log.Info().Str("player", name).Msg("Player killed")
	case <-time.After(s.killTimeout):
		log.Error().Str("player", name).Msg("Player did not exit after SIGKILL")
	}
	return nil
}

// IsRunning reports whether a player has a live supervised process. Exited
// processes are pruned as a side effect, so a crashed player reads as
// stopped on the next status query.
func (s *Supervisor) IsRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.procs[name]
	if !ok {
		return false
	}
	if h.exited() {
		log.Warn().Str("player", name).AnErr("exit", h.waitErr).
			Msg("Player process exited unexpectedly")
		delete(s.procs, name)
		return false
	}
	return true
}

// PID returns the process id of a running player, or 0.
func (s *Supervisor) PID(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.procs[name]; ok && !h.exited() {
		return h.cmd.Process.Pid
	}
	return 0
}

// OnFallback reports whether a running player was started on its fallback
// device.
func (s *Supervisor) OnFallback(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.procs[name]; ok && !h.exited() {
		return h.fallback
	}
	return false
}

// RunningPlayers returns the names of all players with live processes,
// sorted. Exited processes are pruned.
func (s *Supervisor) RunningPlayers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.procs))
	for name, h := range s.procs {
		if h.exited() {
			delete(s.procs, name)
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatusOf returns the status of one player.
func (s *Supervisor) StatusOf(name string) Status {
	st := Status{Name: name}
	if s.IsRunning(name) {
		st.Running = true
		st.PID = s.PID(name)
		st.Fallback = s.OnFallback(name)
	}
	return st
}

// StopAll stops every running player, continuing past individual failures.
// Returns the first error encountered.
func (s *Supervisor) StopAll() error {
	var firstErr error
	for _, name := range s.RunningPlayers() {
		if err := s.Stop(name); err != nil && !errors.Is(err, ErrNotRunning) {
			log.Error().Err(err).Str("player", name).Msg("Failed to stop player")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
