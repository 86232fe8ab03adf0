package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vorpalengineering/paylink-go/ledger"
	"github.com/vorpalengineering/paylink-go/notify"
	"github.com/vorpalengineering/paylink-go/rail"
	"github.com/vorpalengineering/paylink-go/rate"
	"github.com/vorpalengineering/paylink-go/store"
	"github.com/vorpalengineering/paylink-go/types"
)

const testTokenID = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

// fakeLedger serves canned transactions and balances.
type fakeLedger struct {
	mu      sync.Mutex
	txs     map[string]*ledger.Transaction
	balance decimal.Decimal
	err     error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{txs: make(map[string]*ledger.Transaction)}
}

func (f *fakeLedger) put(tx *ledger.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[tx.TxID] = tx
}

func (f *fakeLedger) LookupTransaction(ctx context.Context, txID string) (*ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	tx, ok := f.txs[txID]
	if !ok {
		return nil, ledger.ErrTxNotFound
	}
	return tx, nil
}

func (f *fakeLedger) TokenBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.balance, nil
}

func (f *fakeLedger) TokenID() string {
	return testTokenID
}

// fakeRail hands back a fixed top-up handle.
type fakeRail struct {
	handle *types.TopUpHandle
	err    error
}

func (f *fakeRail) RequestTopUp(ctx context.Context, payerAddress string, minAmountToken decimal.Decimal) (*types.TopUpHandle, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.handle != nil {
		return f.handle, nil
	}
	return &types.TopUpHandle{
		ID:             "topup-1",
		PayerAddress:   payerAddress,
		MinAmountToken: minAmountToken,
		Status:         "pending",
	}, nil
}

// failingRates always reports the rate source as down.
type failingRates struct{}

func (failingRates) Snapshot(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, fmt.Errorf("%w: upstream down", rate.ErrUnavailable)
}

type testEngine struct {
	*Engine
	ledger *fakeLedger
	rail   *fakeRail
}

func newTestEngine(t *testing.T, rates rate.Source) *testEngine {
	t.Helper()

	cfg := validTestConfig()
	cfg.Log.Level = "error"

	fl := newFakeLedger()
	fr := &fakeRail{}
	e := New(cfg, store.New(store.NewMemoryBackend()), rates, fl, fr)
	return &testEngine{Engine: e, ledger: fl, rail: fr}
}

func defaultRates() rate.Source {
	return rate.Static{Rate: decimal.RequireFromString("2")}
}

// seedPending inserts a Pending request directly into the store with an
// arbitrary deadline, bypassing the creation path.
func seedPending(t *testing.T, e *testEngine, reference string, expiresAt time.Time) *types.PaymentRequest {
	t.Helper()
	now := time.Now().UTC()
	req := &types.PaymentRequest{
		Reference:              reference,
		MerchantID:             "merchant-1",
		RecipientAddress:       "0xRecipient",
		AmountUSD:              decimal.RequireFromString("10"),
		ConversionRateSnapshot: decimal.RequireFromString("2"),
		AmountToken:            decimal.RequireFromString("5"),
		Status:                 types.StatusPending,
		CreatedAt:              now,
		ExpiresAt:              expiresAt,
	}
	if err := e.store.Create(req); err != nil {
		t.Fatalf("Failed to seed request: %v", err)
	}
	return req
}

func doJSON(t *testing.T, e *testEngine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestCreateEndpoint(t *testing.T) {
	e := newTestEngine(t, defaultRates())

	w := doJSON(t, e, http.MethodPost, "/requests", types.CreateRequest{
		MerchantID:       "merchant-1",
		RecipientAddress: "0xRecipient",
		AmountUSD:        decimal.RequireFromString("25.00"),
		OrderID:          "order-42",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created types.PaymentRequest
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if created.Reference == "" {
		t.Error("Expected a generated reference")
	}
	if created.Status != types.StatusPending {
		t.Errorf("Expected Pending, got %s", created.Status)
	}
	if !created.AmountToken.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("Expected amountToken 12.5, got %s", created.AmountToken)
	}

	// The record round-trips through GET.
	w = doJSON(t, e, http.MethodGet, "/requests/"+created.Reference, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
}

func TestCreateEndpointRejectsInvalidAmount(t *testing.T) {
	e := newTestEngine(t, defaultRates())

	w := doJSON(t, e, http.MethodPost, "/requests", types.CreateRequest{
		MerchantID:       "merchant-1",
		RecipientAddress: "0xRecipient",
		AmountUSD:        decimal.RequireFromString("-5"),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestCreateEndpointRateUnavailable(t *testing.T) {
	e := newTestEngine(t, failingRates{})

	w := doJSON(t, e, http.MethodPost, "/requests", types.CreateRequest{
		MerchantID:       "merchant-1",
		RecipientAddress: "0xRecipient",
		AmountUSD:        decimal.RequireFromString("10"),
	})
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetEndpointUnknownReference(t *testing.T) {
	e := newTestEngine(t, defaultRates())

	w := doJSON(t, e, http.MethodGet, "/requests/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestListEndpointFiltersByMerchant(t *testing.T) {
	e := newTestEngine(t, defaultRates())

	future := time.Now().UTC().Add(time.Hour)
	seedPending(t, e, "ref-a", future)
	seedPending(t, e, "ref-b", future)

	w := doJSON(t, e, http.MethodGet, "/requests?merchantId=merchant-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Requests []*types.PaymentRequest `json:"requests"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Requests) != 2 {
		t.Errorf("Expected 2 requests, got %d", len(resp.Requests))
	}

	w = doJSON(t, e, http.MethodGet, "/requests?merchantId=someone-else", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Requests) != 0 {
		t.Errorf("Expected no requests for unknown merchant, got %d", len(resp.Requests))
	}
}

func TestPayEndpoint(t *testing.T) {
	e := newTestEngine(t, defaultRates())
	seedPending(t, e, "pay-ref", time.Now().UTC().Add(time.Hour))

	w := doJSON(t, e, http.MethodGet, "/pay/pay-ref", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var view types.PayView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if view.ShareableLink != "/pay/pay-ref" {
		t.Errorf("Expected shareable link /pay/pay-ref, got %s", view.ShareableLink)
	}
	if view.DeepLink == nil {
		t.Fatal("Expected a deep link for a Pending request")
	}
	if view.DeepLink.TokenID != testTokenID {
		t.Errorf("Expected token %s, got %s", testTokenID, view.DeepLink.TokenID)
	}
	if view.DeepLinkURI == "" {
		t.Error("Expected a deep link URI")
	}
}

func TestPayEndpointOmitsDeepLinkWhenNotPending(t *testing.T) {
	e := newTestEngine(t, defaultRates())
	past := time.Now().UTC().Add(-time.Minute)
	seedPending(t, e, "stale-ref", past)
	if _, err := e.store.MarkExpired("stale-ref", time.Now().UTC()); err != nil {
		t.Fatalf("Failed to expire: %v", err)
	}

	w := doJSON(t, e, http.MethodGet, "/pay/stale-ref", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var view types.PayView
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.DeepLink != nil {
		t.Error("Expected no deep link for an Expired request")
	}
	if view.Request.Status != types.StatusExpired {
		t.Errorf("Expected Expired, got %s", view.Request.Status)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	e := newTestEngine(t, defaultRates())
	seedPending(t, e, "verify-ref", time.Now().UTC().Add(time.Hour))
	e.ledger.put(&ledger.Transaction{
		TxID:      "0xtx",
		Finalized: true,
		Transfers: []ledger.Transfer{
			{From: "0xPayer", To: "0xRecipient", Amount: decimal.RequireFromString("5")},
		},
	})

	w := doJSON(t, e, http.MethodPost, "/requests/verify-ref/verify", types.VerifyRequest{TransactionID: "0xtx"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result types.SettlementResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !result.Settled {
		t.Errorf("Expected settled, got reason %s", result.Reason)
	}
}

func TestRegenerateEndpointRejectsPending(t *testing.T) {
	e := newTestEngine(t, defaultRates())
	seedPending(t, e, "live-ref", time.Now().UTC().Add(time.Hour))

	w := doJSON(t, e, http.MethodPost, "/requests/live-ref/regenerate", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for regenerating a Pending request, got %d", w.Code)
	}
}

func TestGateEndpointRequiresPayer(t *testing.T) {
	e := newTestEngine(t, defaultRates())
	seedPending(t, e, "gate-ref", time.Now().UTC().Add(time.Hour))

	w := doJSON(t, e, http.MethodGet, "/requests/gate-ref/gate", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without payer, got %d", w.Code)
	}
}

func TestTopUpEndpoints(t *testing.T) {
	e := newTestEngine(t, defaultRates())
	seedPending(t, e, "topup-ref", time.Now().UTC().Add(time.Hour))
	e.ledger.balance = decimal.RequireFromString("100")

	w := doJSON(t, e, http.MethodPost, "/topups", types.TopUpRequest{
		PayerAddress:   "0xPayer",
		MinAmountToken: decimal.RequireFromString("5"),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var handle types.TopUpHandle
	if err := json.Unmarshal(w.Body.Bytes(), &handle); err != nil {
		t.Fatalf("Failed to decode handle: %v", err)
	}

	// Completion callback re-evaluates the gate against the credited balance.
	w = doJSON(t, e, http.MethodPost, "/topups/"+handle.ID+"/callback", types.TopUpCallback{
		PayerAddress: "0xPayer",
		Reference:    "topup-ref",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var gate types.GateResult
	if err := json.Unmarshal(w.Body.Bytes(), &gate); err != nil {
		t.Fatalf("Failed to decode gate result: %v", err)
	}
	if !gate.Sufficient {
		t.Errorf("Expected sufficient balance after top-up, got shortfall %s", gate.Shortfall)
	}
}

func TestVerifyEndpointLedgerDown(t *testing.T) {
	e := newTestEngine(t, defaultRates())
	seedPending(t, e, "down-ref", time.Now().UTC().Add(time.Hour))
	e.ledger.err = errors.New("rpc connection refused")

	w := doJSON(t, e, http.MethodPost, "/requests/down-ref/verify", types.VerifyRequest{TransactionID: "0xtx"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 for a ledger outage, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	e := newTestEngine(t, defaultRates())

	cases := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{ErrInvalidAmount, http.StatusBadRequest},
		{ErrMissingField, http.StatusBadRequest},
		{ErrNotExpired, http.StatusConflict},
		{store.ErrIllegalTransition, http.StatusConflict},
		{ErrRateUnavailable, http.StatusBadGateway},
		{ErrLedgerUnavailable, http.StatusBadGateway},
		{rail.ErrRailUnavailable, http.StatusBadGateway},
		// An unrecognized error is an internal fault, not an upstream one.
		{errors.New("corrupt amount_usd for ref-1"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(w)
		e.writeError(ctx, tc.err)
		if w.Code != tc.want {
			t.Errorf("Expected %d for %v, got %d", tc.want, tc.err, w.Code)
		}
	}
}

// recordingNotifier captures events fanned out by the engine.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(evt notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingNotifier) statuses(reference string) []types.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Status
	for _, evt := range r.events {
		if evt.Reference == reference {
			out = append(out, evt.Status)
		}
	}
	return out
}
