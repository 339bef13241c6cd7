// Package order builds and signs exchange orders for a linked wallet.
package order

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

// Side is the canonical upper-case order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide upper-cases s and checks it is BUY or SELL.
func ParseSide(s string) (Side, error) {
	switch side := Side(strings.ToUpper(strings.TrimSpace(s))); side {
	case SideBuy, SideSell:
		return side, nil
	default:
		return "", fmt.Errorf("order: %w: unknown side %q", domain.ErrConfiguration, s)
	}
}

// Code is the on-chain side value: 0 for BUY, 1 for SELL.
func (s Side) Code() uint8 {
	if s == SideSell {
		return 1
	}
	return 0
}

// SignedOrder is an order ready for submission. Amounts and ids are decimal
// strings, as the exchange expects them.
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          Side   `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// OrderType is the time-in-force requested at submission.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC"
	OrderTypeGTD OrderType = "GTD"
	OrderTypeFOK OrderType = "FOK"
	OrderTypeFAK OrderType = "FAK"
)

// ParseOrderType upper-cases s; empty means GTC.
func ParseOrderType(s string) (OrderType, error) {
	switch t := OrderType(strings.ToUpper(strings.TrimSpace(s))); t {
	case "":
		return OrderTypeGTC, nil
	case OrderTypeGTC, OrderTypeGTD, OrderTypeFOK, OrderTypeFAK:
		return t, nil
	default:
		return "", fmt.Errorf("order: %w: unknown order type %q", domain.ErrConfiguration, s)
	}
}
