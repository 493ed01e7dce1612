package ledger

import (
	"sort"

	"github.com/corey/thoughts/internal/ports"
)

// Sorted returns tm's entries by descending count. Equal counts keep
// insertion order.
func Sorted(tm *ports.ThoughtMap) []ports.Entry {
	entries := tm.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries
}

// AuthorTotal is one author's aggregate used by combined views.
type AuthorTotal struct {
	Author  ports.AuthorID `json:"author"`
	Phrases int            `json:"phrases"`
	Total   int            `json:"total"`
}

// Totals summarizes every author with at least one entry, in author order.
func Totals(l ports.Ledger) []AuthorTotal {
	var out []AuthorTotal
	for _, id := range l.Authors() {
		tm := l.Get(id)
		if tm.Len() == 0 {
			continue
		}
		out = append(out, AuthorTotal{Author: id, Phrases: tm.Len(), Total: tm.Total()})
	}
	return out
}
