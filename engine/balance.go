package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vorpalengineering/paylink-go/types"
)

// CanSettle is the payer-side balance gate: a pure decision over an
// externally supplied balance and the request's token amount.
func CanSettle(payerBalance decimal.Decimal, req *types.PaymentRequest) types.GateResult {
	shortfall := req.AmountToken.Sub(payerBalance)
	if shortfall.Sign() <= 0 {
		return types.GateResult{Sufficient: true, Shortfall: decimal.Zero}
	}
	return types.GateResult{Sufficient: false, Shortfall: shortfall}
}

// EvaluateGate reads the payer's live token balance from the ledger and
// applies the gate for a request.
func (e *Engine) EvaluateGate(ctx context.Context, reference, payerAddress string) (*types.GateResult, error) {
	req, err := e.store.Get(reference)
	if err != nil {
		return nil, err
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, e.config.Ledger.Timeout())
	defer cancel()
	balance, err := e.ledger.TokenBalance(ledgerCtx, payerAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	result := CanSettle(balance, req)
	return &result, nil
}

// RequestTopUp delegates to the fiat rail. The rail is opaque to the
// engine: it only hands back a handle and later calls the completion
// callback, at which point the gate is re-evaluated.
func (e *Engine) RequestTopUp(ctx context.Context, payerAddress string, minAmountToken decimal.Decimal) (*types.TopUpHandle, error) {
	if payerAddress == "" {
		return nil, fmt.Errorf("%w: payerAddress", ErrMissingField)
	}
	if minAmountToken.Sign() <= 0 {
		return nil, fmt.Errorf("%w: minAmountToken %s", ErrInvalidAmount, minAmountToken)
	}

	railCtx, cancel := context.WithTimeout(ctx, e.config.TopUp.Timeout())
	defer cancel()
	handle, err := e.rail.RequestTopUp(railCtx, payerAddress, minAmountToken)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"topup":  handle.ID,
		"payer":  payerAddress,
		"amount": minAmountToken.String(),
	}).Info("top-up requested")
	return handle, nil
}

// CompleteTopUp handles the rail's completion callback: when the payer was
// underfunded for a specific request, the gate is re-evaluated against the
// credited balance so the client can immediately retry settlement.
func (e *Engine) CompleteTopUp(ctx context.Context, topUpID string, cb types.TopUpCallback) (*types.GateResult, error) {
	if cb.PayerAddress == "" {
		return nil, fmt.Errorf("%w: payerAddress", ErrMissingField)
	}

	e.logger.WithFields(logrus.Fields{
		"topup": topUpID,
		"payer": cb.PayerAddress,
	}).Info("top-up completed")

	// Without a reference there is no gate to re-evaluate; the credit is
	// simply acknowledged.
	if cb.Reference == "" {
		return nil, nil
	}
	return e.EvaluateGate(ctx, cb.Reference, cb.PayerAddress)
}
