package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vorpalengineering/paylink-go/store"
	"github.com/vorpalengineering/paylink-go/types"
)

// Regenerate derives a fresh Pending request from an expired one. The
// successor carries the merchant/order linkage forward under a new
// reference, a freshly snapshotted rate, and a new validity window from
// now; the predecessor becomes Superseded and keeps its original pricing
// untouched for audit.
func (e *Engine) Regenerate(ctx context.Context, reference string) (*types.PaymentRequest, error) {
	predecessor, err := e.store.Get(reference)
	if err != nil {
		return nil, err
	}

	switch predecessor.Status {
	case types.StatusExpired:
		// regenerable
	case types.StatusSuperseded:
		// Already regenerated: return the existing successor instead of
		// minting another one.
		if predecessor.SupersededBy != "" {
			return e.store.Get(predecessor.SupersededBy)
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrNotExpired, reference, predecessor.Status)
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrNotExpired, reference, predecessor.Status)
	}

	// Price may have moved since the original was created.
	rateCtx, cancel := context.WithTimeout(ctx, e.config.Pricing.Timeout())
	defer cancel()
	snapshot, err := e.rates.Snapshot(rateCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	now := time.Now().UTC()
	successor := &types.PaymentRequest{
		Reference:              uuid.NewString(),
		MerchantID:             predecessor.MerchantID,
		RecipientAddress:       predecessor.RecipientAddress,
		OrderID:                predecessor.OrderID,
		Description:            predecessor.Description,
		AmountUSD:              predecessor.AmountUSD,
		ConversionRateSnapshot: snapshot,
		AmountToken:            predecessor.AmountUSD.DivRound(snapshot, tokenAmountPlaces),
		Status:                 types.StatusPending,
		CreatedAt:              now,
		ExpiresAt:              now.Add(e.config.Requests.ValidityWindow()),
		SuccessCallback:        predecessor.SuccessCallback,
	}

	superseded, err := e.store.Supersede(reference, successor)
	if err != nil {
		if errors.Is(err, store.ErrIllegalTransition) {
			// Another regeneration won the race; follow its link.
			current, getErr := e.store.Get(reference)
			if getErr == nil && current.Status == types.StatusSuperseded && current.SupersededBy != "" {
				return e.store.Get(current.SupersededBy)
			}
			return nil, fmt.Errorf("%w: %s", ErrNotExpired, reference)
		}
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"reference":   reference,
		"successor":   successor.Reference,
		"amountToken": successor.AmountToken.String(),
	}).Info("payment request regenerated")

	e.notifyTransition(superseded)
	e.notifyTransition(successor)
	return successor, nil
}
