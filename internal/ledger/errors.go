package ledger

import "errors"

var (
	// ErrNotFound is returned when a transaction, run or cursor does not exist
	ErrNotFound = errors.New("ledger: not found")

	// ErrMissingID is returned when a transaction has no canonical ID
	ErrMissingID = errors.New("ledger: missing canonical id")

	// ErrMissingSourceRef is returned when a transaction has no sighting
	ErrMissingSourceRef = errors.New("ledger: at least one source ref is required")

	// ErrInvalidSource is returned for an unknown connector source
	ErrInvalidSource = errors.New("ledger: invalid source")

	// ErrMissingExternalID is returned when a source ref has no external id
	ErrMissingExternalID = errors.New("ledger: missing external id")

	// ErrMissingCurrency is returned when a transaction has no currency
	ErrMissingCurrency = errors.New("ledger: missing currency")

	// ErrInvalidMatchStatus is returned for an unknown match status
	ErrInvalidMatchStatus = errors.New("ledger: invalid match status")

	// ErrUnknownCategory is returned when a rule references a category that is
	// not in the taxonomy
	ErrUnknownCategory = errors.New("ledger: unknown category")

	// ErrIdentityConflict is returned when an upsert would attach a second,
	// different (source, externalId) identity to an existing canonical ID.
	// Unreachable with stable hashing; treated as skip-and-log by callers.
	ErrIdentityConflict = errors.New("ledger: canonical id collision with different identity")
)
