// Package ports defines the interfaces (contracts) that adapters must implement.
// These are the boundaries of the hexagonal architecture. Domain logic depends
// only on these interfaces, never on concrete implementations.
package ports

// LedgerStore persists the whole Ledger as a single document.
// The backing store (bbolt) holds exactly one document; there is no per-author
// storage and no schema version.
//
// Concurrent Save calls are NOT serialized here: the ledger engine owns the
// read-modify-write cycle and must be the only writer.
type LedgerStore interface {
	// Load returns the persisted ledger. It fails closed: a missing or
	// malformed document yields an empty Ledger and a nil error. A non-nil
	// error means the medium itself failed (e.g. the database is closed).
	Load() (Ledger, error)

	// Save overwrites the persisted document with l. Atomic with respect to
	// a crash as far as the medium guarantees (one bbolt transaction).
	Save(l Ledger) error

	// Wipe removes the persisted document. Idempotent.
	Wipe() error

	// Close releases the underlying database.
	Close() error
}
