package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/corey/thoughts/internal/ports"
)

// importLegacy loads a flat thoughts.json document ({"<user id>": {"<phrase>":
// count}}) into an empty store, then renames the file so it is imported once.
// Returns the number of authors imported. A missing file, or a store that
// already holds data, imports nothing.
func importLegacy(path string, store ports.LedgerStore) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	current, err := store.Load()
	if err != nil {
		return 0, err
	}
	if !current.Empty() {
		return 0, nil
	}

	var raw map[string]*ports.ThoughtMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	l := ports.Ledger{}
	for key, tm := range raw {
		id, err := ports.NormalizeAuthorID(key)
		if err != nil || tm.Len() == 0 {
			continue
		}
		dst := l.Ensure(id)
		for _, e := range tm.Entries() {
			if p := strings.TrimSpace(e.Phrase); p != "" {
				dst.Add(p, e.Count)
			}
		}
	}
	if len(l) == 0 {
		return 0, nil
	}
	if err := store.Save(l); err != nil {
		return 0, err
	}
	if err := os.Rename(path, path+".imported"); err != nil {
		return len(l), fmt.Errorf("rename imported file: %w", err)
	}
	return len(l), nil
}
