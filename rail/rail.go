// Package rail is the fiat top-up collaborator: it converts a fiat payment
// into a token credit on the payer's balance. The engine treats it as an
// opaque balance-increasing operation and only cares about success/failure.
package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vorpalengineering/paylink-go/types"
)

var ErrRailUnavailable = errors.New("fiat top-up rail unavailable")

// Rail requests a token top-up for a payer.
type Rail interface {
	RequestTopUp(ctx context.Context, payerAddress string, minAmountToken decimal.Decimal) (*types.TopUpHandle, error)
}

// HTTPClient talks to an external rail over its JSON API.
type HTTPClient struct {
	railURL    string
	httpClient *http.Client
}

func NewHTTPClient(railURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		railURL:    railURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (rc *HTTPClient) RequestTopUp(ctx context.Context, payerAddress string, minAmountToken decimal.Decimal) (*types.TopUpHandle, error) {
	// Build topup endpoint url
	url := fmt.Sprintf("%s/topups", rc.railURL)

	// Encode request
	body, err := json.Marshal(types.TopUpRequest{
		PayerAddress:   payerAddress,
		MinAmountToken: minAmountToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Make request to the rail
	resp, err := rc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRailUnavailable, err)
	}
	defer resp.Body.Close()

	// Check response
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrRailUnavailable, resp.StatusCode)
	}

	// Decode response
	var handle types.TopUpHandle
	if err := json.NewDecoder(resp.Body).Decode(&handle); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &handle, nil
}
