package model

import "github.com/trickpatty/hearthsync/pkg/domain/types"

// SyncOutcome is the ephemeral result of one provider fetch. It is folded
// into the connection's health fields by the scheduler and not persisted
// on its own.
type SyncOutcome struct {
	Added   int
	Updated int
	Removed int

	// Continuation is the new delta cursor or content fingerprint to store
	// for the next incremental fetch.
	Continuation string

	// FullReplace reports that the adapter discarded local incremental
	// state and fetched everything; subscribers need a full resync.
	FullReplace bool

	// RefreshedToken carries a rotated OAuth credential obtained during the
	// fetch. The scheduler persists it alongside the health writeback.
	RefreshedToken *TokenPair

	Err      error
	ErrClass types.FailureClass
}

// Failed reports whether the sync ended in error
func (o SyncOutcome) Failed() bool {
	return o.Err != nil
}

// Changed reports whether the fetch produced any item changes
func (o SyncOutcome) Changed() bool {
	return o.Added > 0 || o.Updated > 0 || o.Removed > 0
}
