package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors callers discriminate with errors.Is. Connect and submit
// failures are actionable (retry, approve in wallet); verification paths
// never surface these, they collapse them into an invalid result message.
var (
	// ErrProviderUnavailable means no wallet/session provider is present.
	ErrProviderUnavailable = errors.New("ledger provider unavailable")

	// ErrUserRejected means the wallet holder declined the request.
	ErrUserRejected = errors.New("request rejected by wallet holder")

	// ErrNoAccounts means the provider returned an empty account list.
	ErrNoAccounts = errors.New("wallet returned no accounts")

	// ErrTimeout means a submitted transaction was not included within
	// the configured bound.
	ErrTimeout = errors.New("transaction inclusion timed out")

	// ErrNotFound means the id has never been created on the ledger.
	ErrNotFound = errors.New("not found on ledger")

	// ErrUnknownIdentifier means a public identifier has no off-chain row.
	ErrUnknownIdentifier = errors.New("unknown identifier")

	// ErrMalformedIdentifier means scanned text decoded to no identifier.
	ErrMalformedIdentifier = errors.New("malformed identifier")
)

// RevertError is a contract-level rejection of a submitted transaction.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "transaction reverted"
	}
	return fmt.Sprintf("transaction reverted: %s", e.Reason)
}
