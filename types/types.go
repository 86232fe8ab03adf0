package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payment request.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusExpired    Status = "Expired"
	StatusSettled    Status = "Settled"
	StatusSuperseded Status = "Superseded"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusSuperseded
}

// Settlement records the confirmed on-ledger transfer that satisfied a request.
type Settlement struct {
	TransactionID      string          `json:"transactionId"`
	SettledAt          time.Time       `json:"settledAt"`
	SettledAmountToken decimal.Decimal `json:"settledAmountToken"`
}

// PaymentRequest is the central entity of the lifecycle engine.
//
// AmountToken and ConversionRateSnapshot are fixed at creation and never
// recomputed; the payer is billed the price they were shown.
type PaymentRequest struct {
	Reference              string          `json:"reference"`
	MerchantID             string          `json:"merchantId"`
	RecipientAddress       string          `json:"recipientAddress"`
	OrderID                string          `json:"orderId,omitempty"`
	Description            string          `json:"description,omitempty"`
	AmountUSD              decimal.Decimal `json:"amountUsd"`
	ConversionRateSnapshot decimal.Decimal `json:"conversionRateSnapshot"`
	AmountToken            decimal.Decimal `json:"amountToken"`
	Status                 Status          `json:"status"`
	CreatedAt              time.Time       `json:"createdAt"`
	ExpiresAt              time.Time       `json:"expiresAt"`
	SupersededBy           string          `json:"supersededBy,omitempty"`
	Settlement             *Settlement     `json:"settlement,omitempty"`
	SuccessCallback        string          `json:"successCallback,omitempty"`
}

// Clone returns an independent copy of the request.
func (p *PaymentRequest) Clone() *PaymentRequest {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Settlement != nil {
		st := *p.Settlement
		cp.Settlement = &st
	}
	return &cp
}

// DeepLink is the structured payload a wallet consumes to pay a request.
type DeepLink struct {
	RecipientAddress string          `json:"recipientAddress"`
	TokenID          string          `json:"tokenId"`
	AmountToken      decimal.Decimal `json:"amountToken"`
}

// Settlement verification reason codes. Empty means the settlement was
// accepted. All other values are user-facing and map to distinct
// remediation copy.
const (
	ReasonRequestNotPending = "RequestNotPending"
	ReasonAmountMismatch    = "AmountMismatch"
	ReasonRecipientMismatch = "RecipientMismatch"
	ReasonNotFinalized      = "NotFinalized"
	ReasonNotFound          = "NotFound"
)

// SettlementResult is the outcome of a verification attempt.
type SettlementResult struct {
	Settled    bool            `json:"settled"`
	Reason     string          `json:"reason,omitempty"`
	Settlement *Settlement     `json:"settlement,omitempty"`
	Request    *PaymentRequest `json:"request,omitempty"`
}

// GateResult is the Balance-Gate decision over a payer balance.
type GateResult struct {
	Sufficient bool            `json:"sufficient"`
	Shortfall  decimal.Decimal `json:"shortfall"`
}

// TopUpHandle identifies an in-flight fiat top-up at the rail.
type TopUpHandle struct {
	ID             string          `json:"id"`
	PayerAddress   string          `json:"payerAddress"`
	MinAmountToken decimal.Decimal `json:"minAmountToken"`
	Status         string          `json:"status"`
}

// API request/response shapes

type CreateRequest struct {
	MerchantID            string          `json:"merchantId"`
	RecipientAddress      string          `json:"recipientAddress"`
	AmountUSD             decimal.Decimal `json:"amountUsd"`
	OrderID               string          `json:"orderId,omitempty"`
	Description           string          `json:"description,omitempty"`
	SuccessCallback       string          `json:"successCallback,omitempty"`
	ValidityWindowSeconds int             `json:"validityWindowSeconds,omitempty"`
}

type VerifyRequest struct {
	TransactionID string `json:"transactionId"`
}

type TopUpRequest struct {
	PayerAddress   string          `json:"payerAddress"`
	MinAmountToken decimal.Decimal `json:"minAmountToken"`
}

type TopUpCallback struct {
	PayerAddress string `json:"payerAddress"`
	Reference    string `json:"reference,omitempty"`
}

// PayView is the shareable-link resolution response: the record plus the
// encoder fan-out, so a wallet needs a single round trip.
type PayView struct {
	Request       *PaymentRequest `json:"request"`
	DeepLink      *DeepLink       `json:"deepLink,omitempty"`
	DeepLinkURI   string          `json:"deepLinkUri,omitempty"`
	ShareableLink string          `json:"shareableLink"`
}
