package app

import (
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// BinaryWatcher polls the running executable and reports when a newer build
// replaces it on disk. Development convenience: recompile, get prompted to
// restart.
type BinaryWatcher struct {
	execPath string
	baseline time.Time
	interval time.Duration
	stopCh   chan struct{}

	onNewBinary func()
}

// NewBinaryWatcher watches the current executable. Returns nil if its path
// cannot be determined.
func NewBinaryWatcher(interval time.Duration) *BinaryWatcher {
	execPath, err := os.Executable()
	if err != nil {
		return nil
	}
	// go build writes a new file; follow the symlink so we stat that file,
	// not the link.
	if real, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = real
	}
	info, err := os.Stat(execPath)
	if err != nil {
		return nil
	}
	return &BinaryWatcher{
		execPath: execPath,
		baseline: info.ModTime(),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// OnNewBinary sets the callback for a detected rebuild. It runs on the
// watcher goroutine.
func (w *BinaryWatcher) OnNewBinary(callback func()) {
	w.onNewBinary = callback
}

// Start begins polling in a background goroutine. The watcher fires at most
// once per Start.
func (w *BinaryWatcher) Start() {
	w.stopCh = make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopCh:
				return
			case <-ticker.C:
				if w.updated() {
					if w.onNewBinary != nil {
						w.onNewBinary()
					}
					return
				}
			}
		}
	}()
}

// Stop stops the watcher goroutine.
func (w *BinaryWatcher) Stop() {
	close(w.stopCh)
}

// ResetBaseline accepts the current on-disk binary as the running version.
// Call when the user declines a restart to avoid repeated prompts.
func (w *BinaryWatcher) ResetBaseline() {
	if info, err := os.Stat(w.execPath); err == nil {
		w.baseline = info.ModTime()
	}
}

// ExecPath returns the watched executable path.
func (w *BinaryWatcher) ExecPath() string {
	return w.execPath
}

func (w *BinaryWatcher) updated() bool {
	info, err := os.Stat(w.execPath)
	if err != nil {
		return false
	}
	return info.ModTime().After(w.baseline)
}

// Restart replaces the current process with the new binary, preserving
// arguments and environment. Does not return on success.
func (w *BinaryWatcher) Restart() error {
	return syscall.Exec(w.execPath, os.Args, os.Environ())
}
