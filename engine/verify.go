package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vorpalengineering/paylink-go/ledger"
	"github.com/vorpalengineering/paylink-go/store"
	"github.com/vorpalengineering/paylink-go/types"
)

// VerifySettlement checks a claimed transaction against the ledger and, on
// confirmation, settles the request. Failures never mutate state, so every
// outcome except success is safely retryable: a NotFinalized now can become
// Settled on a later call with no reconciliation step.
//
// The ledger lookup runs under its own timeout and never holds the
// reference lock; the lock is taken only for the final transition write.
func (e *Engine) VerifySettlement(ctx context.Context, reference, transactionID string) (*types.SettlementResult, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transactionId", ErrMissingField)
	}

	req, err := e.store.Get(reference)
	if err != nil {
		return nil, err
	}

	// Idempotent read-through: a repeat of the winning call returns the
	// stored settlement instead of re-transitioning.
	if req.Status == types.StatusSettled && req.Settlement != nil && req.Settlement.TransactionID == transactionID {
		return &types.SettlementResult{
			Settled:    true,
			Settlement: req.Settlement,
			Request:    req,
		}, nil
	}

	if req.Status != types.StatusPending {
		return &types.SettlementResult{
			Settled: false,
			Reason:  types.ReasonRequestNotPending,
			Request: req,
		}, nil
	}

	// Consult the ledger. This may block for finality; the store is not
	// locked while we wait.
	ledgerCtx, cancel := context.WithTimeout(ctx, e.config.Ledger.Timeout())
	defer cancel()
	tx, err := e.ledger.LookupTransaction(ledgerCtx, transactionID)
	if errors.Is(err, ledger.ErrTxNotFound) {
		return &types.SettlementResult{Settled: false, Reason: types.ReasonNotFound, Request: req}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	if !tx.Finalized {
		return &types.SettlementResult{Settled: false, Reason: types.ReasonNotFinalized, Request: req}, nil
	}

	// Sum everything the transaction moved to the requested recipient.
	paid := decimal.Zero
	found := false
	for _, tr := range tx.Transfers {
		if strings.EqualFold(tr.To, req.RecipientAddress) {
			paid = paid.Add(tr.Amount)
			found = true
		}
	}
	if !found {
		return &types.SettlementResult{Settled: false, Reason: types.ReasonRecipientMismatch, Request: req}, nil
	}

	// Over-payment is accepted; under-payment is not.
	if paid.LessThan(req.AmountToken) {
		return &types.SettlementResult{Settled: false, Reason: types.ReasonAmountMismatch, Request: req}, nil
	}

	settlement := &types.Settlement{
		TransactionID:      transactionID,
		SettledAt:          time.Now().UTC(),
		SettledAmountToken: paid,
	}

	updated, err := e.store.MarkSettled(reference, settlement)
	if errors.Is(err, store.ErrIllegalTransition) {
		// Lost a race. If a duplicate of this very verification won, hand
		// back its stored settlement; otherwise the record moved past
		// Pending and the caller must re-read.
		current, getErr := e.store.Get(reference)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == types.StatusSettled && current.Settlement != nil && current.Settlement.TransactionID == transactionID {
			return &types.SettlementResult{Settled: true, Settlement: current.Settlement, Request: current}, nil
		}
		return &types.SettlementResult{Settled: false, Reason: types.ReasonRequestNotPending, Request: current}, nil
	}
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"reference":   reference,
		"transaction": transactionID,
		"paid":        paid.String(),
		"required":    req.AmountToken.String(),
	}).Info("payment request settled")

	e.notifyTransition(updated)
	return &types.SettlementResult{
		Settled:    true,
		Settlement: updated.Settlement,
		Request:    updated,
	}, nil
}
