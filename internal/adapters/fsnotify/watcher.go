// Package fsnotify implements the ports.Watcher interface using github.com/fsnotify/fsnotify.
// It watches a single directory, filters out editor and hidden temp files,
// and debounces rapid events (appenders often trigger several writes per line).
package fsnotify

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// File suffixes to ignore.
var ignoreSuffixes = []string{
	".swp",
	".swx",
	".tmp",
	"~",
}

// DebounceInterval is the minimum gap between two callbacks for one file.
const DebounceInterval = 50 * time.Millisecond

// Watcher implements ports.Watcher using fsnotify.
type Watcher struct {
	fw      *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	stopped bool
	mu      sync.Mutex
}

// NewWatcher creates a new file system watcher.
func NewWatcher() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fw:   fw,
		done: make(chan struct{}),
	}, nil
}

// Watch starts monitoring dir. Subdirectories are not followed.
// onChange is called with the absolute path of each changed file.
func (w *Watcher) Watch(dir string, onChange func(filePath string)) error {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "watch", Path: absPath, Err: os.ErrInvalid}
	}
	if err := w.fw.Add(absPath); err != nil {
		return err
	}

	// Debounce state: track last event time per file
	debounce := make(map[string]time.Time)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event, ok := <-w.fw.Events:
				if !ok {
					return
				}
				path := event.Name
				if shouldIgnorePath(path) {
					continue
				}

				now := time.Now()
				if last, seen := debounce[path]; seen && now.Sub(last) < DebounceInterval {
					continue
				}
				debounce[path] = now

				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					onChange(path)
				}

			case _, ok := <-w.fw.Errors:
				if !ok {
					return
				}
				// Errors are swallowed; callers keep a poll fallback.

			case <-w.done:
				return
			}
		}
	}()

	return nil
}

// Stop ends monitoring, waits for the event loop, and releases all resources.
// Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.done)
	w.mu.Unlock()

	w.wg.Wait()
	return w.fw.Close()
}

// shouldIgnorePath returns true if the file path should not trigger onChange.
func shouldIgnorePath(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	for _, s := range ignoreSuffixes {
		if strings.HasSuffix(base, s) {
			return true
		}
	}
	return false
}
