// Package killswitch implements the process-wide KillSwitch:
// a sentinel file whose presence halts message processing across every
// monitor sharing its data directory, without stopping polling.
package killswitch

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultFileName is the conventional sentinel name under a data
// directory, grounded on scripts/kill_switch.py.
const defaultFileName = "KILL_SWITCH"

// KillSwitch watches a sentinel file and caches its presence in an
// atomic flag so Active() never blocks on a stat() call from the hot
// processing loop.
type KillSwitch struct {
	path   string
	active atomic.Bool
	watcher *fsnotify.Watcher
	log    *zap.Logger
}

// Open watches dataDir for the sentinel file and returns a KillSwitch
// reflecting its current state. Callers must call Close when done.
func Open(dataDir string, log *zap.Logger) (*KillSwitch, error) {
	path := filepath.Join(dataDir, defaultFileName)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dataDir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	k := &KillSwitch{path: path, watcher: watcher, log: log}
	k.refresh()

	go k.watchLoop()

	return k, nil
}

func (k *KillSwitch) refresh() {
	_, err := os.Stat(k.path)
	k.active.Store(err == nil)
}

func (k *KillSwitch) watchLoop() {
	for {
		select {
		case event, ok := <-k.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == filepath.Clean(k.path) {
				k.refresh()
				k.log.Info("kill switch state changed", zap.Bool("active", k.active.Load()))
			}
		case err, ok := <-k.watcher.Errors:
			if !ok {
				return
			}
			k.log.Warn("kill switch watcher error", zap.Error(err))
		}
	}
}

// Active reports whether the kill switch is currently engaged.
func (k *KillSwitch) Active() bool {
	return k.active.Load()
}

// Activate creates the sentinel file, halting processing process-wide.
func (k *KillSwitch) Activate() error {
	f, err := os.Create(k.path)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	k.active.Store(true)
	return nil
}

// Deactivate removes the sentinel file, resuming processing.
func (k *KillSwitch) Deactivate() error {
	if err := os.Remove(k.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	k.active.Store(false)
	return nil
}

// Close stops the filesystem watch.
func (k *KillSwitch) Close() error {
	return k.watcher.Close()
}
