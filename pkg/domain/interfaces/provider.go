package interfaces

import (
	"context"

	"github.com/trickpatty/hearthsync/pkg/domain/model"
)

// ValidationResult is the outcome of a pre-flight source check
type ValidationResult struct {
	Valid  bool
	Reason string
}

// ProviderAdapter is the capability port one external calendar kind
// implements. Adding a provider means adding an adapter; the scheduler
// never changes.
//
// FetchChanges must tolerate a stale or empty continuation token by falling
// back to a full fetch, and must never mutate the connection record. The
// scheduler owns all state transitions based on the returned outcome.
type ProviderAdapter interface {
	// Validate runs a pre-flight check of a source descriptor (e.g. an ICS
	// URL entered by an admin) before any record is created
	Validate(ctx context.Context, source string) (ValidationResult, error)

	// FetchChanges retrieves changed items since the continuation token
	FetchChanges(ctx context.Context, conn *model.Connection, continuation string) (model.SyncOutcome, error)
}

// Authorizer is the OAuth half of a provider adapter. ICS adapters do not
// implement it.
type Authorizer interface {
	// AuthCodeURL builds the provider consent URL for the given state value
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for a credential set
	Exchange(ctx context.Context, code string) (model.TokenPair, error)
}
