// Package workflow implements the interactive remove/replace session over
// one author's ledger entries.
//
// A Session takes a point-in-time snapshot when it is created and pages over
// it; navigation never re-reads the ledger. Only the actor who opened the
// session may use it, and it expires after an idle timeout.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/corey/thoughts/internal/domain/ledger"
	"github.com/corey/thoughts/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PageSize is the number of entries shown per page.
const PageSize = 25

// DefaultTimeout is the idle period after which a session expires.
const DefaultTimeout = 60 * time.Second

var (
	ErrSessionExpired    = errors.New("session expired")
	ErrUnauthorizedActor = errors.New("you can't use this menu")
	ErrUnknownPhrase     = errors.New("phrase not in this menu")
	ErrNoPendingRename   = errors.New("no rename pending")
	ErrEmptyReplacement  = errors.New("replacement phrase is empty")
	ErrAlreadyRemoved    = errors.New("no longer recorded")
)

// Action is what selecting an entry does.
type Action string

const (
	ActionRemove  Action = "remove"
	ActionReplace Action = "replace"
)

// ParseAction validates a user-supplied action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionRemove, ActionReplace:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Pending describes what a selection left outstanding.
type Pending int

const (
	// PendingNone means the selection was applied immediately.
	PendingNone Pending = iota
	// PendingRename means Submit must be called with the replacement phrase.
	PendingRename
)

// Mutator applies ledger mutations. *ledger.Engine satisfies it through
// EngineMutator; the socket client satisfies it directly.
type Mutator interface {
	// RemoveOne reports removed=false when phrase was already absent.
	RemoveOne(ctx context.Context, author ports.AuthorID, phrase string) (removed bool, err error)
	Rename(ctx context.Context, author ports.AuthorID, oldPhrase, newPhrase string) error
}

// Publisher regenerates and republishes an author's summary after a
// successful mutation.
type Publisher interface {
	Publish(ctx context.Context, author ports.AuthorID) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, author ports.AuthorID) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, author ports.AuthorID) error {
	return f(ctx, author)
}

// Config describes a new session.
type Config struct {
	Owner    string         // actor allowed to interact
	Author   ports.AuthorID // whose entries are shown
	Action   Action
	Snapshot *ports.ThoughtMap

	Mutator   Mutator
	Publisher Publisher // optional
	Logger    *zap.Logger

	Timeout time.Duration    // zero means DefaultTimeout
	Now     func() time.Time // zero means time.Now
}

// Page is one slice of the snapshot.
type Page struct {
	Number  int           `json:"number"` // 1-based
	Count   int           `json:"count"`  // total pages, at least 1
	Entries []ports.Entry `json:"entries"`
	HasPrev bool          `json:"has_prev"`
	HasNext bool          `json:"has_next"`
	Total   int           `json:"total"`
}

// Session is one interactive remove/replace menu.
type Session struct {
	ID     string
	Owner  string
	Author ports.AuthorID
	Action Action

	entries   []ports.Entry
	mutator   Mutator
	publisher Publisher
	log       *zap.Logger
	timeout   time.Duration
	now       func() time.Time

	mu           sync.Mutex
	page         int
	lastActivity time.Time
	pending      string // phrase awaiting a replacement
}

// New creates a session over cfg.Snapshot sorted by descending count.
func New(cfg Config) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Owner:     cfg.Owner,
		Author:    cfg.Author,
		Action:    cfg.Action,
		entries:   ledger.Sorted(cfg.Snapshot),
		mutator:   cfg.Mutator,
		publisher: cfg.Publisher,
		log:       cfg.Logger,
		timeout:   cfg.Timeout,
		now:       cfg.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.timeout == 0 {
		s.timeout = DefaultTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.lastActivity = s.now()
	s.log = s.log.With(zap.String("session", s.ID), zap.String("author", string(s.Author)))
	return s
}

// Empty reports whether the snapshot has no entries.
func (s *Session) Empty() bool {
	return len(s.entries) == 0
}

func (s *Session) pageCount() int {
	if len(s.entries) == 0 {
		return 1
	}
	return (len(s.entries) + PageSize - 1) / PageSize
}

// Page returns the current page. Reading a page is not an interaction and
// does not extend the session.
func (s *Session) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageLocked()
}

func (s *Session) pageLocked() Page {
	start := s.page * PageSize
	end := min(start+PageSize, len(s.entries))
	entries := make([]ports.Entry, end-start)
	copy(entries, s.entries[start:end])
	return Page{
		Number:  s.page + 1,
		Count:   s.pageCount(),
		Entries: entries,
		HasPrev: s.page > 0,
		HasNext: end < len(s.entries),
		Total:   len(s.entries),
	}
}

// Expired reports whether the idle timeout has elapsed.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiredLocked()
}

func (s *Session) expiredLocked() bool {
	return s.now().Sub(s.lastActivity) >= s.timeout
}

// Deadline returns when the session expires unless touched again.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity.Add(s.timeout)
}

// PendingPhrase returns the phrase awaiting a replacement, if any.
func (s *Session) PendingPhrase() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, s.pending != ""
}

// admit checks expiry and ownership and records activity. Caller holds s.mu.
func (s *Session) admit(actor string) error {
	if s.expiredLocked() {
		return ErrSessionExpired
	}
	if actor != s.Owner {
		s.log.Debug("rejected interaction", zap.String("actor", actor))
		return ErrUnauthorizedActor
	}
	s.lastActivity = s.now()
	return nil
}

// Advance moves to the next page. Returns false if already on the last page.
func (s *Session) Advance(actor string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.admit(actor); err != nil {
		return false, err
	}
	if !s.pageLocked().HasNext {
		return false, nil
	}
	s.page++
	return true, nil
}

// Retreat moves to the previous page. Returns false if already on the first.
func (s *Session) Retreat(actor string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.admit(actor); err != nil {
		return false, err
	}
	if s.page == 0 {
		return false, nil
	}
	s.page--
	return true, nil
}

func (s *Session) onSnapshot(phrase string) bool {
	for _, e := range s.entries {
		if e.Phrase == phrase {
			return true
		}
	}
	return false
}

// Select chooses phrase from the menu. For ActionRemove one occurrence is
// removed immediately and the summary republished. For ActionReplace the
// phrase is held and PendingRename returned; call Submit next.
func (s *Session) Select(ctx context.Context, actor, phrase string) (Pending, error) {
	s.mu.Lock()
	if err := s.admit(actor); err != nil {
		s.mu.Unlock()
		return PendingNone, err
	}
	if len(s.entries) == 0 {
		s.mu.Unlock()
		return PendingNone, ports.ErrNoData
	}
	if !s.onSnapshot(phrase) {
		s.mu.Unlock()
		return PendingNone, fmt.Errorf("%w: %q", ErrUnknownPhrase, phrase)
	}
	if s.Action == ActionReplace {
		s.pending = phrase
		s.mu.Unlock()
		return PendingRename, nil
	}
	s.mu.Unlock()

	removed, err := s.mutator.RemoveOne(ctx, s.Author, phrase)
	if err != nil {
		return PendingNone, fmt.Errorf("remove %q: %w", phrase, err)
	}
	if !removed {
		s.log.Info("phrase already gone from the ledger", zap.String("phrase", phrase))
		return PendingNone, fmt.Errorf("%q %w", phrase, ErrAlreadyRemoved)
	}
	s.log.Info("removed one occurrence", zap.String("phrase", phrase))
	s.publish(ctx)
	return PendingNone, nil
}

// Submit completes a pending rename with replacement.
func (s *Session) Submit(ctx context.Context, actor, replacement string) error {
	s.mu.Lock()
	if err := s.admit(actor); err != nil {
		s.mu.Unlock()
		return err
	}
	old := s.pending
	if old == "" {
		s.mu.Unlock()
		return ErrNoPendingRename
	}
	repl := strings.TrimSpace(replacement)
	if repl == "" {
		s.mu.Unlock()
		return ErrEmptyReplacement
	}
	s.pending = ""
	s.mu.Unlock()

	if err := s.mutator.Rename(ctx, s.Author, old, repl); err != nil {
		return fmt.Errorf("replace %q: %w", old, err)
	}
	s.log.Info("replaced phrase", zap.String("from", old), zap.String("to", repl))
	s.publish(ctx)
	return nil
}

// Cancel drops a pending rename without mutating anything.
func (s *Session) Cancel(actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.admit(actor); err != nil {
		return err
	}
	s.pending = ""
	return nil
}

// publish failures are logged: the mutation already happened.
func (s *Session) publish(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, s.Author); err != nil {
		if errors.Is(err, ports.ErrNoData) {
			s.log.Info("nothing left to plot")
			return
		}
		s.log.Warn("publish failed", zap.Error(err))
	}
}

// EngineMutator adapts *ledger.Engine to Mutator.
type EngineMutator struct {
	Engine *ledger.Engine
}

// RemoveOne removes one occurrence of phrase.
func (m EngineMutator) RemoveOne(_ context.Context, author ports.AuthorID, phrase string) (bool, error) {
	_, removed, err := m.Engine.RemoveOneOccurrence(author, phrase)
	return removed, err
}

// Rename merges oldPhrase into newPhrase.
func (m EngineMutator) Rename(_ context.Context, author ports.AuthorID, oldPhrase, newPhrase string) error {
	_, err := m.Engine.RenameAndMerge(author, oldPhrase, newPhrase)
	return err
}
