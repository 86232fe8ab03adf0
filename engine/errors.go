package engine

import "errors"

var (
	// Creation-time failures, returned synchronously to the merchant.
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrMissingField  = errors.New("missing required field")

	// ErrRateUnavailable wraps any Rate Source failure; no record is
	// created when the snapshot cannot be taken.
	ErrRateUnavailable = errors.New("conversion rate unavailable")

	// ErrLedgerUnavailable wraps ledger transport failures. Distinct from
	// the verification reason codes: the transaction was never judged.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrNotExpired rejects regeneration of a request that is still
	// payable. User-facing: "this payment is still valid".
	ErrNotExpired = errors.New("payment request is not expired")
)
