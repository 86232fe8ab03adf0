package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vorpalengineering/paylink-go/types"
)

// tokenAmountPlaces is the precision of the derived token amount. Fixed at
// creation; never recomputed afterwards.
const tokenAmountPlaces = 6

// CreateRequest builds and persists a new Pending payment request. The
// conversion rate is snapshotted here and the token amount derived once;
// both are immutable for the life of the record.
func (e *Engine) CreateRequest(ctx context.Context, p types.CreateRequest) (*types.PaymentRequest, error) {
	if p.AmountUSD.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amountUsd %s", ErrInvalidAmount, p.AmountUSD)
	}
	if p.MerchantID == "" {
		return nil, fmt.Errorf("%w: merchantId", ErrMissingField)
	}
	if p.RecipientAddress == "" {
		return nil, fmt.Errorf("%w: recipientAddress", ErrMissingField)
	}

	window := e.config.Requests.ValidityWindow()
	if p.ValidityWindowSeconds > 0 {
		window = time.Duration(p.ValidityWindowSeconds) * time.Second
	}

	// Snapshot the conversion rate. No record is created if this fails.
	rateCtx, cancel := context.WithTimeout(ctx, e.config.Pricing.Timeout())
	defer cancel()
	snapshot, err := e.rates.Snapshot(rateCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	now := time.Now().UTC()
	req := &types.PaymentRequest{
		Reference:              uuid.NewString(),
		MerchantID:             p.MerchantID,
		RecipientAddress:       p.RecipientAddress,
		OrderID:                p.OrderID,
		Description:            p.Description,
		AmountUSD:              p.AmountUSD,
		ConversionRateSnapshot: snapshot,
		AmountToken:            p.AmountUSD.DivRound(snapshot, tokenAmountPlaces),
		Status:                 types.StatusPending,
		CreatedAt:              now,
		ExpiresAt:              now.Add(window),
		SuccessCallback:        p.SuccessCallback,
	}

	if err := e.store.Create(req); err != nil {
		return nil, fmt.Errorf("failed to persist payment request: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"reference":   req.Reference,
		"merchantId":  req.MerchantID,
		"amountUsd":   req.AmountUSD.String(),
		"amountToken": req.AmountToken.String(),
		"expiresAt":   req.ExpiresAt.Format(time.RFC3339),
	}).Info("payment request created")

	e.notifyTransition(req)
	return req, nil
}
