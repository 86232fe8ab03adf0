package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vorpalengineering/paylink-go/types"
)

func TestCreateAndGet(t *testing.T) {
	stored := &types.PaymentRequest{
		Reference:   "ref-1",
		MerchantID:  "merchant-1",
		AmountUSD:   decimal.RequireFromString("10"),
		AmountToken: decimal.RequireFromString("5"),
		Status:      types.StatusPending,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/requests":
			var req types.CreateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("Failed to decode create request: %v", err)
			}
			if req.MerchantID != "merchant-1" {
				t.Errorf("Expected merchant-1, got %s", req.MerchantID)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(stored)
		case r.Method == http.MethodGet && r.URL.Path == "/requests/ref-1":
			json.NewEncoder(w).Encode(stored)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewEngineClient(server.URL)

	created, err := c.Create(&types.CreateRequest{
		MerchantID:       "merchant-1",
		RecipientAddress: "0xRecipient",
		AmountUSD:        decimal.RequireFromString("10"),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Reference != "ref-1" {
		t.Errorf("Expected ref-1, got %s", created.Reference)
	}

	got, err := c.Get("ref-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.AmountToken.Equal(decimal.RequireFromString("5")) {
		t.Errorf("Expected amountToken 5, got %s", got.AmountToken)
	}
}

func TestGetNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewEngineClient(server.URL)
	if _, err := c.Get("nope"); err == nil {
		t.Error("Expected error for 404 response, got nil")
	}
}

func TestVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/requests/ref-1/verify" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var req types.VerifyRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.TransactionID != "0xtx" {
			t.Errorf("Expected 0xtx, got %s", req.TransactionID)
		}
		json.NewEncoder(w).Encode(types.SettlementResult{Settled: true})
	}))
	defer server.Close()

	c := NewEngineClient(server.URL)
	result, err := c.Verify("ref-1", "0xtx")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Settled {
		t.Error("Expected settled result")
	}
}
