// Package ledger implements the thought-ledger mutation algebra.
//
// Every mutation is a full read-modify-write against the LedgerStore:
// Load the whole document, change one author's ThoughtMap, Save it back.
// The engine never keeps a ledger copy between calls.
//
// Concurrency: all read-modify-write cycles are serialized by one engine-wide
// mutex. The document is saved whole, so locking per author would still let
// two authors' writes overwrite each other; one lock for the document does not.
// The engine must therefore be the only writer of its store.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/corey/thoughts/internal/ports"
	"go.uber.org/zap"
)

// ErrEmptyPhrase is returned when a phrase is empty after trimming.
var ErrEmptyPhrase = errors.New("empty phrase")

// Engine applies mutations to the persisted ledger.
type Engine struct {
	store ports.LedgerStore
	log   *zap.Logger
	mu    sync.Mutex
}

// NewEngine creates an engine over store. A nil logger disables logging.
func NewEngine(store ports.LedgerStore, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, log: log}
}

// load reads the ledger, failing closed. Caller holds e.mu.
func (e *Engine) load() ports.Ledger {
	l, err := e.store.Load()
	if err != nil {
		e.log.Warn("ledger load failed, using empty ledger", zap.Error(err))
		return ports.Ledger{}
	}
	if l == nil {
		return ports.Ledger{}
	}
	return l
}

// update runs fn inside one Load -> mutate -> Save cycle.
func (e *Engine) update(fn func(l ports.Ledger) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	l := e.load()
	if err := fn(l); err != nil {
		return err
	}
	if err := e.store.Save(l); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

func cleanPhrase(phrase string) (string, error) {
	p := strings.TrimSpace(phrase)
	if p == "" {
		return "", ErrEmptyPhrase
	}
	return p, nil
}

// RecordOccurrence adds one occurrence of phrase for author, creating the
// author's map and the entry as needed. Returns the new count.
func (e *Engine) RecordOccurrence(author ports.AuthorID, phrase string) (int, error) {
	p, err := cleanPhrase(phrase)
	if err != nil {
		return 0, err
	}
	var count int
	err = e.update(func(l ports.Ledger) error {
		count = l.Ensure(author).Add(p, 1)
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.log.Debug("recorded occurrence",
		zap.String("author", string(author)),
		zap.String("phrase", p),
		zap.Int("count", count))
	return count, nil
}

// RemoveOneOccurrence decrements phrase for author. A count that reaches
// zero deletes the entry; an author left with no entries is dropped from the
// ledger. Absent phrases are a no-op: removed is false and no write happens.
func (e *Engine) RemoveOneOccurrence(author ports.AuthorID, phrase string) (remaining int, removed bool, err error) {
	p, err := cleanPhrase(phrase)
	if err != nil {
		return 0, false, err
	}
	err = e.update(func(l ports.Ledger) error {
		tm := l.Get(author)
		if !tm.Has(p) {
			return errNoop
		}
		remaining = tm.Add(p, -1)
		removed = true
		if tm.Len() == 0 {
			delete(l, author)
		}
		return nil
	})
	if errors.Is(err, errNoop) {
		return 0, false, nil
	}
	return remaining, removed, err
}

// RenameAndMerge moves oldPhrase's count onto newPhrase, adding to any
// existing count of newPhrase. Renaming a phrase onto itself keeps its count.
// An absent oldPhrase is a no-op (merged is 0).
func (e *Engine) RenameAndMerge(author ports.AuthorID, oldPhrase, newPhrase string) (merged int, err error) {
	from, err := cleanPhrase(oldPhrase)
	if err != nil {
		return 0, err
	}
	to, err := cleanPhrase(newPhrase)
	if err != nil {
		return 0, err
	}
	err = e.update(func(l ports.Ledger) error {
		tm := l.Get(author)
		if !tm.Has(from) {
			return errNoop
		}
		if from == to {
			merged = tm.Count(from)
			return errNoop
		}
		n := tm.Delete(from)
		merged = tm.Add(to, n)
		return nil
	})
	if errors.Is(err, errNoop) {
		return merged, nil
	}
	if err != nil {
		return 0, err
	}
	e.log.Debug("renamed phrase",
		zap.String("author", string(author)),
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("count", merged))
	return merged, nil
}

// ResetAuthorSegment replaces author's map with an empty one and persists it.
// Only the scan coordinator calls this, right before replaying history.
func (e *Engine) ResetAuthorSegment(author ports.AuthorID) (*ports.ThoughtMap, error) {
	err := e.update(func(l ports.Ledger) error {
		l[author] = ports.NewThoughtMap()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ports.NewThoughtMap(), nil
}

// Snapshot returns a copy of author's map (empty if unknown).
func (e *Engine) Snapshot(author ports.AuthorID) *ports.ThoughtMap {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load().Get(author).Clone()
}

// Ledger returns a copy of the whole ledger.
func (e *Engine) Ledger() ports.Ledger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load().Clone()
}

// errNoop aborts update without saving.
var errNoop = errors.New("noop")

// Wipe deletes the persisted ledger.
func (e *Engine) Wipe() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Wipe()
}
