package engine

import (
	"context"
	"errors"
	"time"

	"github.com/vorpalengineering/paylink-go/store"
)

// runExpiryMonitor sweeps Pending requests past their deadline on a fixed
// interval. It runs independently of any client connection: expiry happens
// even when nobody is polling.
func (e *Engine) runExpiryMonitor(ctx context.Context) {
	interval := e.config.Requests.SweepInterval()
	e.logger.WithField("interval", interval.String()).Info("expiry monitor started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("expiry monitor stopped")
			return
		case now := <-ticker.C:
			e.sweepExpired(now.UTC())
		}
	}
}

// sweepExpired flips every overdue Pending request to Expired and returns
// how many were flipped. Races with concurrent settlements are benign:
// whichever transition wins is correct, so IllegalTransition is only
// logged, never surfaced.
func (e *Engine) sweepExpired(now time.Time) int {
	refs, err := e.store.ListPendingBefore(now)
	if err != nil {
		e.logger.WithError(err).Error("expiry sweep failed to list requests")
		return 0
	}

	flipped := 0
	for _, ref := range refs {
		updated, err := e.store.MarkExpired(ref, now)
		if errors.Is(err, store.ErrIllegalTransition) {
			e.logger.WithField("reference", ref).Debug("expiry lost race, record already moved")
			continue
		}
		if err != nil {
			e.logger.WithError(err).WithField("reference", ref).Error("expiry transition failed")
			continue
		}
		if updated == nil {
			// Already Expired; nothing to announce.
			continue
		}
		flipped++
		e.notifyTransition(updated)
	}

	if flipped > 0 {
		e.logger.WithField("count", flipped).Info("expired payment requests swept")
	}
	return flipped
}
