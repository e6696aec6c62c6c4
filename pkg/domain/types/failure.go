package types

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures across the sync pipeline. Adapters attach
// them, the scheduler maps them onto connection health transitions.
var (
	// ErrTagTransient marks network-level failures and timeouts. Retried
	// via exponential backoff.
	ErrTagTransient = goerr.NewTag("transient")

	// ErrTagAuthInvalid marks expired or revoked credentials. Automatic
	// retry stops; the user must re-authorize.
	ErrTagAuthInvalid = goerr.NewTag("auth_invalid")

	// ErrTagPermanent marks malformed or unsupported sources. Backed off
	// like transient failures rather than retried aggressively.
	ErrTagPermanent = goerr.NewTag("permanent")

	// ErrTagValidation marks input rejected before any record is persisted.
	ErrTagValidation = goerr.NewTag("validation")
)

// FailureClass is the scheduler-facing classification of a sync failure
type FailureClass string

const (
	FailureTransient   FailureClass = "transient"
	FailureAuthInvalid FailureClass = "auth_invalid"
	FailurePermanent   FailureClass = "permanent"
)

// ClassifyError maps an adapter error onto a FailureClass. Unclassified
// errors are treated as transient so an adapter bug degrades to backoff,
// never to dropped credentials.
func ClassifyError(err error) FailureClass {
	switch {
	case goerr.HasTag(err, ErrTagAuthInvalid):
		return FailureAuthInvalid
	case goerr.HasTag(err, ErrTagPermanent):
		return FailurePermanent
	default:
		return FailureTransient
	}
}
