// Package client is a thin HTTP client for the payment engine API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/vorpalengineering/paylink-go/types"
)

type EngineClient struct {
	engineURL  string
	httpClient *http.Client
}

func NewEngineClient(engineURL string) *EngineClient {
	return &EngineClient{
		engineURL:  engineURL,
		httpClient: &http.Client{},
	}
}

func (ec *EngineClient) Create(req *types.CreateRequest) (*types.PaymentRequest, error) {
	// Build create endpoint url
	endpoint := fmt.Sprintf("%s/requests", ec.engineURL)

	var created types.PaymentRequest
	if err := ec.post(endpoint, req, &created, http.StatusCreated); err != nil {
		return nil, err
	}
	return &created, nil
}

func (ec *EngineClient) Get(reference string) (*types.PaymentRequest, error) {
	// Build get endpoint url
	endpoint := fmt.Sprintf("%s/requests/%s", ec.engineURL, url.PathEscape(reference))

	var req types.PaymentRequest
	if err := ec.get(endpoint, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (ec *EngineClient) Pay(reference string) (*types.PayView, error) {
	// Build pay endpoint url
	endpoint := fmt.Sprintf("%s/pay/%s", ec.engineURL, url.PathEscape(reference))

	var view types.PayView
	if err := ec.get(endpoint, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (ec *EngineClient) Regenerate(reference string) (*types.PaymentRequest, error) {
	// Build regenerate endpoint url
	endpoint := fmt.Sprintf("%s/requests/%s/regenerate", ec.engineURL, url.PathEscape(reference))

	var successor types.PaymentRequest
	if err := ec.post(endpoint, struct{}{}, &successor, http.StatusCreated); err != nil {
		return nil, err
	}
	return &successor, nil
}

func (ec *EngineClient) Verify(reference, transactionID string) (*types.SettlementResult, error) {
	// Build verify endpoint url
	endpoint := fmt.Sprintf("%s/requests/%s/verify", ec.engineURL, url.PathEscape(reference))

	var result types.SettlementResult
	if err := ec.post(endpoint, &types.VerifyRequest{TransactionID: transactionID}, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

func (ec *EngineClient) Gate(reference, payerAddress string) (*types.GateResult, error) {
	// Build gate endpoint url
	endpoint := fmt.Sprintf("%s/requests/%s/gate?payer=%s",
		ec.engineURL, url.PathEscape(reference), url.QueryEscape(payerAddress))

	var result types.GateResult
	if err := ec.get(endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (ec *EngineClient) RequestTopUp(payerAddress string, minAmountToken decimal.Decimal) (*types.TopUpHandle, error) {
	// Build topup endpoint url
	endpoint := fmt.Sprintf("%s/topups", ec.engineURL)

	var handle types.TopUpHandle
	req := &types.TopUpRequest{PayerAddress: payerAddress, MinAmountToken: minAmountToken}
	if err := ec.post(endpoint, req, &handle, http.StatusCreated); err != nil {
		return nil, err
	}
	return &handle, nil
}

func (ec *EngineClient) get(endpoint string, out any) error {
	// Make request to engine
	resp, err := ec.httpClient.Get(endpoint)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// Check response
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// Decode response
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (ec *EngineClient) post(endpoint string, in, out any, wantStatus int) error {
	// Encode request
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	// Make request to engine
	resp, err := ec.httpClient.Post(endpoint, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// Check response
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// Decode response
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
