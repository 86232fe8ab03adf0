// Package ledger defines the engine's view of a distributed ledger: look up
// a claimed transaction and read a payer's token balance. The engine never
// submits transfers itself; payers do that with their own wallets.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrTxNotFound = errors.New("transaction not found on ledger")

// Transfer is one token movement observed inside a transaction, in token
// units (not base units).
type Transfer struct {
	From   string
	To     string
	Amount decimal.Decimal
}

// Transaction is the ledger's answer for a claimed transaction id.
// Transfers contains only movements of the engine's configured token.
type Transaction struct {
	TxID      string
	Finalized bool
	Transfers []Transfer
}

// Client is the external ledger collaborator.
type Client interface {
	// LookupTransaction returns the transaction's token transfers and
	// finality. Returns ErrTxNotFound if the ledger has never seen txID.
	LookupTransaction(ctx context.Context, txID string) (*Transaction, error)

	// TokenBalance returns the owner's balance of the configured token.
	TokenBalance(ctx context.Context, owner string) (decimal.Decimal, error)

	// TokenID identifies the token this client observes (contract address).
	TokenID() string
}
