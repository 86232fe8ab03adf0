// Package rate supplies the USD-per-token conversion rate snapshotted at
// request creation. The engine never owns a rate; it consumes one per call.
package rate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnavailable = errors.New("conversion rate unavailable")

// Source yields a point-in-time USD-per-token rate.
type Source interface {
	Snapshot(ctx context.Context) (decimal.Decimal, error)
}

// Static returns a fixed configured rate. Useful for pegged tokens and for
// development.
type Static struct {
	Rate decimal.Decimal
}

func (s Static) Snapshot(ctx context.Context) (decimal.Decimal, error) {
	if s.Rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: static rate must be positive, got %s", ErrUnavailable, s.Rate)
	}
	return s.Rate, nil
}

// HTTP fetches the rate from an external price endpoint returning
// {"usdPerToken": "<decimal>"}.
type HTTP struct {
	url        string
	httpClient *http.Client
}

func NewHTTP(url string, timeout time.Duration) *HTTP {
	return &HTTP{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rateResponse struct {
	USDPerToken decimal.Decimal `json:"usdPerToken"`
}

func (h *HTTP) Snapshot(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: unexpected status code %d", ErrUnavailable, resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if body.USDPerToken.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate %s", ErrUnavailable, body.USDPerToken)
	}
	return body.USDPerToken, nil
}
