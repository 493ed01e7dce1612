package ports

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoData is returned when an author has no ledger entries (or the whole
// ledger is empty). Callers treat it as "nothing to do", not as a failure.
var ErrNoData = errors.New("no data for user")

// ErrInvalidAuthorID is returned by NormalizeAuthorID for ids that are not
// a platform numeric identifier.
var ErrInvalidAuthorID = errors.New("invalid author id")

// AuthorID is the canonical decimal string form of a platform user id.
type AuthorID string

// NormalizeAuthorID converts raw user input ("42", " 042 ", "<@42>", "<@!42>")
// into the canonical AuthorID. Leading zeros are dropped so that every
// spelling of the same number maps to one ledger key.
func NormalizeAuthorID(raw string) (AuthorID, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "<@!")
	s = strings.TrimPrefix(s, "<@")
	s = strings.TrimSuffix(s, ">")
	if s == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAuthorID, raw)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidAuthorID, raw)
		}
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	return AuthorID(s), nil
}

// Entry is one phrase and its occurrence count.
type Entry struct {
	Phrase string `json:"phrase"`
	Count  int    `json:"count"`
}

// ThoughtMap maps a phrase to its positive occurrence count for one author.
//
// Insertion order is preserved (and round-trips through JSON) so that views
// ordered by count can break ties deterministically. A phrase whose count
// reaches zero is removed: absence is the zero state.
type ThoughtMap struct {
	order  []string
	counts map[string]int
}

// NewThoughtMap returns an empty map.
func NewThoughtMap() *ThoughtMap {
	return &ThoughtMap{counts: make(map[string]int)}
}

// Len returns the number of distinct phrases. Safe on a nil map.
func (m *ThoughtMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Count returns the count for phrase, 0 if absent.
func (m *ThoughtMap) Count(phrase string) int {
	if m == nil {
		return 0
	}
	return m.counts[phrase]
}

// Has reports whether phrase is present.
func (m *ThoughtMap) Has(phrase string) bool {
	if m == nil {
		return false
	}
	_, ok := m.counts[phrase]
	return ok
}

// Add adjusts phrase by delta and returns the resulting count.
// A new phrase is appended to the insertion order; a result <= 0 deletes it.
func (m *ThoughtMap) Add(phrase string, delta int) int {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	cur, ok := m.counts[phrase]
	next := cur + delta
	if next <= 0 {
		if ok {
			m.Delete(phrase)
		}
		return 0
	}
	if !ok {
		m.order = append(m.order, phrase)
	}
	m.counts[phrase] = next
	return next
}

// Delete removes phrase and returns its previous count (0 if absent).
func (m *ThoughtMap) Delete(phrase string) int {
	cur, ok := m.counts[phrase]
	if !ok {
		return 0
	}
	delete(m.counts, phrase)
	for i, p := range m.order {
		if p == phrase {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return cur
}

// Entries returns all phrases in insertion order.
func (m *ThoughtMap) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, Entry{Phrase: p, Count: m.counts[p]})
	}
	return out
}

// Total returns the sum of all counts.
func (m *ThoughtMap) Total() int {
	n := 0
	for _, e := range m.Entries() {
		n += e.Count
	}
	return n
}

// Clone returns a deep copy. Cloning nil yields an empty map.
func (m *ThoughtMap) Clone() *ThoughtMap {
	c := NewThoughtMap()
	if m == nil {
		return c
	}
	c.order = append(c.order, m.order...)
	for k, v := range m.counts {
		c.counts[k] = v
	}
	return c
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (m *ThoughtMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m.Entries() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Phrase)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		fmt.Fprintf(&buf, ":%d", e.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping document key order.
// Keys are trimmed; keys that trim to nothing and non-positive counts are
// dropped, and keys that trim to the same phrase are merged.
func (m *ThoughtMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("thought map: expected object, got %v", tok)
	}
	m.order = nil
	m.counts = make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		phrase, ok := tok.(string)
		if !ok {
			return fmt.Errorf("thought map: expected key, got %v", tok)
		}
		var n int
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("thought map: count for %q: %w", phrase, err)
		}
		phrase = strings.TrimSpace(phrase)
		if phrase == "" || n <= 0 {
			continue
		}
		if _, dup := m.counts[phrase]; !dup {
			m.order = append(m.order, phrase)
		}
		m.counts[phrase] += n
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// Ledger is the full persisted state: author -> ThoughtMap.
type Ledger map[AuthorID]*ThoughtMap

// Get returns the author's map or nil.
func (l Ledger) Get(id AuthorID) *ThoughtMap {
	return l[id]
}

// Ensure returns the author's map, creating an empty one if needed.
func (l Ledger) Ensure(id AuthorID) *ThoughtMap {
	tm := l[id]
	if tm == nil {
		tm = NewThoughtMap()
		l[id] = tm
	}
	return tm
}

// Authors returns author ids in numeric order.
func (l Ledger) Authors() []AuthorID {
	ids := make([]AuthorID, 0, len(l))
	for id := range l {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Empty reports whether no author has any entry.
func (l Ledger) Empty() bool {
	for _, tm := range l {
		if tm.Len() > 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (l Ledger) Clone() Ledger {
	c := make(Ledger, len(l))
	for id, tm := range l {
		c[id] = tm.Clone()
	}
	return c
}
