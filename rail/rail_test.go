package rail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vorpalengineering/paylink-go/types"
)

func TestRequestTopUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/topups" {
			t.Errorf("Expected POST /topups, got %s %s", r.Method, r.URL.Path)
		}

		var req types.TopUpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode rail request: %v", err)
		}
		if req.PayerAddress != "0xpayer" {
			t.Errorf("Expected payer 0xpayer, got %s", req.PayerAddress)
		}
		if !req.MinAmountToken.Equal(decimal.RequireFromString("2")) {
			t.Errorf("Expected min amount 2, got %s", req.MinAmountToken)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(types.TopUpHandle{
			ID:             "topup-1",
			PayerAddress:   req.PayerAddress,
			MinAmountToken: req.MinAmountToken,
			Status:         "pending",
		})
	}))
	defer server.Close()

	rc := NewHTTPClient(server.URL, 5*time.Second)
	handle, err := rc.RequestTopUp(context.Background(), "0xpayer", decimal.RequireFromString("2"))
	if err != nil {
		t.Fatalf("RequestTopUp failed: %v", err)
	}
	if handle.ID != "topup-1" {
		t.Errorf("Expected handle topup-1, got %s", handle.ID)
	}
	if handle.Status != "pending" {
		t.Errorf("Expected status pending, got %s", handle.Status)
	}
}

func TestRequestTopUpRailDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	rc := NewHTTPClient(server.URL, 5*time.Second)
	if _, err := rc.RequestTopUp(context.Background(), "0xpayer", decimal.New(1, 0)); !errors.Is(err, ErrRailUnavailable) {
		t.Errorf("Expected ErrRailUnavailable, got %v", err)
	}
}
