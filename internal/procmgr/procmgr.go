// Package procmgr runs a local twin-lucky process in the background and
// tracks it with a pid file in the client state directory.
package procmgr

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// PidFileName is written inside the state directory while a twin runs.
const PidFileName = "twin.pid.json"

// ErrAlreadyRunning is returned by Start when the tracked twin is alive.
var ErrAlreadyRunning = errors.New("twin is already running")

// Entry tracks a running twin process.
type Entry struct {
	PID    int    `json:"pid"`
	Port   int    `json:"port"`
	Binary string `json:"binary"`
	Log    string `json:"log"`
}

// Options describes how to launch the twin.
type Options struct {
	Binary   string
	Port     int
	SeedFile string
	Verbose  bool
	// Env is appended to the inherited environment.
	Env    []string
	LogDir string
}

// Manager starts and stops the twin whose pid file lives in dir.
type Manager struct {
	dir string
}

// New returns a Manager keeping its pid file in stateDir.
func New(stateDir string) *Manager {
	return &Manager{dir: stateDir}
}

func (m *Manager) pidPath() string {
	return filepath.Join(m.dir, PidFileName)
}

// Load reads the pid file. ok is false when no twin is tracked.
func (m *Manager) Load() (e Entry, ok bool, err error) {
	data, err := os.ReadFile(m.pidPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("parsing %s: %w", PidFileName, err)
	}
	return e, true, nil
}

func (m *Manager) save(e Entry) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.pidPath(), data, 0o644)
}

// Start launches the twin binary as a background process with output
// redirected to a log file, and records it in the pid file.
func (m *Manager) Start(opts Options) (Entry, error) {
	if prev, ok, err := m.Load(); err != nil {
		return Entry{}, err
	} else if ok && IsRunning(prev.PID) {
		return prev, ErrAlreadyRunning
	}

	binary, err := exec.LookPath(opts.Binary)
	if err != nil {
		return Entry{}, fmt.Errorf("twin binary: %w", err)
	}
	if binary, err = filepath.Abs(binary); err != nil {
		return Entry{}, fmt.Errorf("resolving binary path: %w", err)
	}

	args := []string{"--port", strconv.Itoa(opts.Port)}
	if opts.Verbose {
		args = append(args, "--verbose")
	}
	if opts.SeedFile != "" {
		seedPath, err := filepath.Abs(opts.SeedFile)
		if err != nil {
			return Entry{}, fmt.Errorf("resolving seed path: %w", err)
		}
		args = append(args, "--seed-file", seedPath)
	}

	cmd := exec.Command(binary, args...)
	cmd.Env = append(os.Environ(), opts.Env...)

	logDir := opts.LogDir
	if logDir == "" {
		logDir = m.dir
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("creating log dir: %w", err)
	}
	logPath := filepath.Join(logDir, "twin-lucky.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("creating log file: %w", err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	// Own process group so a Ctrl-C in the terminal doesn't reach the twin.
	setDetachedProcessAttrs(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return Entry{}, fmt.Errorf("starting twin: %w", err)
	}
	go func() {
		cmd.Wait()
		logFile.Close()
	}()

	e := Entry{PID: cmd.Process.Pid, Port: opts.Port, Binary: binary, Log: logPath}
	if err := m.save(e); err != nil {
		return e, fmt.Errorf("writing pid file: %w", err)
	}
	return e, nil
}

// Stop sends SIGTERM to the tracked twin and waits up to five seconds for it
// to exit before killing it. The pid file is removed either way. stopped is
// false when nothing was running.
func (m *Manager) Stop() (stopped bool, err error) {
	e, ok, err := m.Load()
	if err != nil || !ok {
		return false, err
	}
	defer os.Remove(m.pidPath())

	if !IsRunning(e.PID) {
		return false, nil
	}
	proc, err := os.FindProcess(e.PID)
	if err != nil {
		return false, nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return false, nil // already gone
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !IsRunning(e.PID) {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	proc.Signal(syscall.SIGKILL)
	time.Sleep(100 * time.Millisecond)
	return true, nil
}

// IsRunning checks if a process with the given PID is still alive.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds. Signal 0 probes existence.
	return proc.Signal(syscall.Signal(0)) == nil
}
