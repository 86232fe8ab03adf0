package encode

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/vorpalengineering/paylink-go/types"
)

func testRequest() *types.PaymentRequest {
	return &types.PaymentRequest{
		Reference:        "ref-1",
		RecipientAddress: "0x1111111111111111111111111111111111111111",
		AmountToken:      decimal.RequireFromString("5.000000"),
		Status:           types.StatusPending,
	}
}

func TestToDeepLink(t *testing.T) {
	link, err := ToDeepLink(testRequest(), "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	if err != nil {
		t.Fatalf("ToDeepLink failed: %v", err)
	}
	if link.RecipientAddress != "0x1111111111111111111111111111111111111111" {
		t.Errorf("Unexpected recipient: %s", link.RecipientAddress)
	}
	if !link.AmountToken.Equal(decimal.RequireFromString("5")) {
		t.Errorf("Unexpected amount: %s", link.AmountToken)
	}
}

func TestToDeepLinkNilRequest(t *testing.T) {
	if _, err := ToDeepLink(nil, "0xtoken"); !errors.Is(err, ErrNilRequest) {
		t.Errorf("Expected ErrNilRequest, got %v", err)
	}
}

func TestToShareableLink(t *testing.T) {
	got, err := ToShareableLink(testRequest())
	if err != nil {
		t.Fatalf("ToShareableLink failed: %v", err)
	}
	if got != "/pay/ref-1" {
		t.Errorf("Expected /pay/ref-1, got %s", got)
	}
}

func TestToShareableLinkNilRequest(t *testing.T) {
	if _, err := ToShareableLink(nil); !errors.Is(err, ErrNilRequest) {
		t.Errorf("Expected ErrNilRequest, got %v", err)
	}
}

func TestDeepLinkURI(t *testing.T) {
	link, err := ToDeepLink(testRequest(), "0xtoken")
	if err != nil {
		t.Fatalf("ToDeepLink failed: %v", err)
	}

	uri := DeepLinkURI(link, "ethereum")
	if !strings.HasPrefix(uri, "ethereum:0x1111111111111111111111111111111111111111?") {
		t.Errorf("Unexpected URI prefix: %s", uri)
	}
	if !strings.Contains(uri, "token=0xtoken") {
		t.Errorf("URI missing token parameter: %s", uri)
	}
	if !strings.Contains(uri, "amount=5") {
		t.Errorf("URI missing amount parameter: %s", uri)
	}
}

func TestDeepLinkURINil(t *testing.T) {
	if got := DeepLinkURI(nil, "ethereum"); got != "" {
		t.Errorf("Expected empty URI for nil link, got %s", got)
	}
}
