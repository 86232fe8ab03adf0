// Package encode renders a payment request into its payer-facing forms: the
// shareable link and the wallet deep-link payload. All functions are pure.
package encode

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/vorpalengineering/paylink-go/types"
)

var ErrNilRequest = errors.New("nil payment request")

// ToDeepLink builds the structured payload a wallet needs to pay a request.
func ToDeepLink(req *types.PaymentRequest, tokenID string) (*types.DeepLink, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	return &types.DeepLink{
		RecipientAddress: req.RecipientAddress,
		TokenID:          tokenID,
		AmountToken:      req.AmountToken,
	}, nil
}

// ToShareableLink returns the stable external handle for a request. It is a
// path, not an absolute URL; the serving host is a deployment concern.
func ToShareableLink(req *types.PaymentRequest) (string, error) {
	if req == nil {
		return "", ErrNilRequest
	}
	return "/pay/" + url.PathEscape(req.Reference), nil
}

// DeepLinkURI renders the deep link in the scannable URI form
// <chain-scheme>:<recipientAddress>?token=<tokenId>&amount=<amountToken>.
func DeepLinkURI(link *types.DeepLink, chainScheme string) string {
	if link == nil {
		return ""
	}
	q := url.Values{}
	q.Set("token", link.TokenID)
	q.Set("amount", link.AmountToken.String())
	return fmt.Sprintf("%s:%s?%s", chainScheme, link.RecipientAddress, q.Encode())
}
