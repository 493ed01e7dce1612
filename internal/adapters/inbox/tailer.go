// Package inbox tails the live message feed: a JSONL file that an external
// gateway appends one message per line to. Each complete line is parsed and
// handed to a callback as a ports.LiveMessage.
package inbox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corey/thoughts/internal/adapters/corpus"
	"github.com/corey/thoughts/internal/ports"
)

// DefaultPollInterval is the fallback re-check period when no watcher event
// arrives.
const DefaultPollInterval = time.Second

// maxLine caps a single inbox line. Longer lines are skipped and reported.
const maxLine = 512 * 1024

// ErrLineTooLong is reported through OnError for skipped oversized lines.
var ErrLineTooLong = errors.New("inbox line too long")

// Tailer follows the inbox file and emits parsed messages.
//
// It seeks to the end on start (no replay of old messages), reads only
// complete lines, and restarts from the beginning if the file is truncated
// or replaced by a shorter one.
//
// Thread-safe: Start/Stop can be called from any goroutine.
type Tailer struct {
	path         string
	pollInterval time.Duration
	watcher      ports.Watcher

	callback func(ports.LiveMessage)
	onError  func(error)

	mu     sync.Mutex
	offset int64

	wake    chan struct{}
	done    chan struct{}
	started chan struct{} // closed after the initial seek
	wg      sync.WaitGroup
}

// Config holds parameters for creating a Tailer.
type Config struct {
	// Path is the inbox file. It does not need to exist yet.
	Path string

	// Watcher, if set, watches the inbox directory so appends are picked up
	// without waiting for the poll ticker. The tailer owns it and stops it.
	Watcher ports.Watcher

	// PollInterval is how often to check for new lines. Default: 1s.
	PollInterval time.Duration

	// Callback is called for each successfully parsed message. Must be non-nil.
	Callback func(ports.LiveMessage)

	// OnError is called when a line fails to parse. Optional.
	OnError func(error)
}

// New creates a Tailer. Does not start tailing until Start() is called.
func New(cfg Config) *Tailer {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tailer{
		path:         cfg.Path,
		pollInterval: interval,
		watcher:      cfg.Watcher,
		callback:     cfg.Callback,
		onError:      cfg.OnError,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		started:      make(chan struct{}),
	}
}

// Start creates the inbox directory if needed, attaches the watcher, and
// begins the tailing loop in a background goroutine.
func (t *Tailer) Start() error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("inbox dir: %w", err)
	}
	if t.watcher != nil {
		target := filepath.Base(t.path)
		err := t.watcher.Watch(dir, func(changed string) {
			if filepath.Base(changed) == target {
				t.poke()
			}
		})
		if err != nil {
			return fmt.Errorf("watch inbox: %w", err)
		}
	}
	t.wg.Add(1)
	go t.loop()
	return nil
}

// Stop terminates the tailing loop and waits for it to finish.
// Safe to call multiple times.
func (t *Tailer) Stop() {
	t.mu.Lock()
	select {
	case <-t.done:
		t.mu.Unlock()
		return
	default:
		close(t.done)
	}
	t.mu.Unlock()

	if t.watcher != nil {
		t.watcher.Stop()
	}
	t.wg.Wait()
}

// Path returns the inbox file being tailed.
func (t *Tailer) Path() string {
	return t.path
}

// Offset returns the byte offset of the next unread line.
func (t *Tailer) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Started returns a channel that closes after the initial seek completes.
// Useful for tests that need to wait for the tailer to be ready before writing.
func (t *Tailer) Started() <-chan struct{} {
	return t.started
}

func (t *Tailer) poke() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Tailer) loop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	if info, err := os.Stat(t.path); err == nil {
		t.setOffset(info.Size())
	}
	close(t.started)

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.readNewLines()
		case <-t.wake:
			t.readNewLines()
		}
	}
}

func (t *Tailer) setOffset(n int64) {
	t.mu.Lock()
	t.offset = n
	t.mu.Unlock()
}

// readNewLines reads complete lines appended since the last read.
// Uses ReadBytes('\n') to track exact byte offsets (bufio.Scanner
// reads ahead and corrupts file position tracking).
func (t *Tailer) readNewLines() {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Recreated files are read from the start.
			t.setOffset(0)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return
	}
	offset := t.Offset()
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		t.setOffset(offset)
		return
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return
	}

	reader := bufio.NewReaderSize(f, 64*1024)
	for {
		select {
		case <-t.done:
			t.setOffset(offset)
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			// A partial trailing line stays unread until its newline lands.
			break
		}
		offset += int64(len(line))

		line = trimNewline(line)
		if len(line) == 0 {
			continue
		}
		if len(line) > maxLine {
			t.reportError(fmt.Errorf("%w: %d bytes at offset %d", ErrLineTooLong, len(line), offset))
			continue
		}

		msg, perr := corpus.ParseLiveLine(line)
		if perr != nil {
			t.reportError(perr)
			continue
		}
		if t.callback != nil {
			t.callback(msg)
		}
	}
	t.setOffset(offset)
}

func (t *Tailer) reportError(err error) {
	if t.onError != nil {
		t.onError(err)
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
