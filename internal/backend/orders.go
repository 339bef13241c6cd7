package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/escrow"
	"github.com/alanyoungcy/walletlink/internal/order"
)

// Order statuses reported on successful placement.
const (
	StatusLive    = "LIVE"
	StatusMatched = "MATCHED"
	StatusDelayed = "DELAYED"
)

// PlaceOrderRequest is the body of a placement call.
type PlaceOrderRequest struct {
	SignedOrder   order.SignedOrder          `json:"signedOrder"`
	OrderType     order.OrderType            `json:"orderType"`
	Credentials   domain.ExchangeCredentials `json:"credentials"`
	ClientOrderID string                     `json:"clientOrderId"`
	FeeAuth       *escrow.FeeAuthorization   `json:"feeAuth,omitempty"`
}

func (r PlaceOrderRequest) validate() error {
	switch {
	case r.SignedOrder.Signature == "":
		return fmt.Errorf("backend: %w: order is not signed", domain.ErrConfiguration)
	case r.ClientOrderID == "":
		return fmt.Errorf("backend: %w: client order id is required", domain.ErrConfiguration)
	case !r.Credentials.Valid():
		return fmt.Errorf("backend: %w", domain.ErrInvalidCredentials)
	}
	return nil
}

// PlaceOrderResult is the normalized placement outcome.
type PlaceOrderResult struct {
	OrderID           string   `json:"orderID"`
	Status            string   `json:"status"`
	TakingAmount      string   `json:"takingAmount,omitempty"`
	MakingAmount      string   `json:"makingAmount,omitempty"`
	TransactionHashes []string `json:"transactionsHashes,omitempty"`
	ErrorMsg          string   `json:"errorMsg,omitempty"`
}

type placeOrderResult struct {
	PlaceOrderResult
	Status json.RawMessage `json:"status"`
}

// PlaceOrder submits a signed order. A success envelope whose status is a
// number >= 400 is reported as *InconsistentEnvelopeError.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error) {
	if err := req.validate(); err != nil {
		return PlaceOrderResult{}, err
	}
	env, err := c.post(ctx, placeOrderPath, req)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	var raw placeOrderResult
	if err := decodeResult(placeOrderPath, env, &raw); err != nil {
		return PlaceOrderResult{}, err
	}
	out := raw.PlaceOrderResult
	if len(raw.Status) > 0 {
		var code int
		if err := json.Unmarshal(raw.Status, &code); err == nil {
			if code >= 400 {
				return PlaceOrderResult{}, &InconsistentEnvelopeError{Path: placeOrderPath, Status: code, Detail: out.ErrorMsg}
			}
			out.Status = strconv.Itoa(code)
		} else if err := json.Unmarshal(raw.Status, &out.Status); err != nil {
			return PlaceOrderResult{}, fmt.Errorf("backend: %s: decode status: %w", placeOrderPath, err)
		}
	}
	if env.Success != nil && !*env.Success {
		msg := out.ErrorMsg
		if msg == "" {
			msg = "order placement unsuccessful"
		}
		return PlaceOrderResult{}, &ApplicationError{Path: placeOrderPath, Message: msg}
	}

	c.logger.InfoContext(ctx, "order placed",
		slog.String("client_order_id", req.ClientOrderID),
		slog.String("order_id", out.OrderID),
		slog.String("status", out.Status),
	)
	return out, nil
}

// CancelOrderRequest is the body of a cancellation call.
type CancelOrderRequest struct {
	OrderID       string                     `json:"orderId"`
	SignerAddress string                     `json:"signerAddress"`
	Credentials   domain.ExchangeCredentials `json:"credentials"`
}

// EscrowRefund describes fees returned by the escrow for a canceled order.
type EscrowRefund struct {
	Amount string `json:"amount"`
	TxHash string `json:"txHash,omitempty"`
	Status string `json:"status,omitempty"`
}

// CancelOrderResult lists which orders were canceled.
type CancelOrderResult struct {
	Canceled     []string          `json:"canceled"`
	NotCanceled  map[string]string `json:"not_canceled,omitempty"`
	EscrowRefund *EscrowRefund     `json:"escrowRefund,omitempty"`
}

// CancelOrder cancels one order. success:false without an error message is
// reported as domain.ErrUnsuccessfulCancel.
func (c *Client) CancelOrder(ctx context.Context, req CancelOrderRequest) (CancelOrderResult, error) {
	if req.OrderID == "" || req.SignerAddress == "" {
		return CancelOrderResult{}, fmt.Errorf("backend: %w: order id and signer address are required", domain.ErrConfiguration)
	}
	if !req.Credentials.Valid() {
		return CancelOrderResult{}, fmt.Errorf("backend: %w", domain.ErrInvalidCredentials)
	}
	env, err := c.post(ctx, cancelOrderPath, req)
	if err != nil {
		return CancelOrderResult{}, err
	}
	if env.Success != nil && !*env.Success {
		return CancelOrderResult{}, fmt.Errorf("backend: cancel order %s: %w: %w", req.OrderID, domain.ErrUnsuccessfulCancel, domain.ErrRejected)
	}

	var out CancelOrderResult
	if err := decodeResult(cancelOrderPath, env, &out); err != nil {
		return CancelOrderResult{}, err
	}
	c.logger.InfoContext(ctx, "order canceled",
		slog.String("order_id", req.OrderID),
		slog.Int("canceled", len(out.Canceled)),
		slog.Int("not_canceled", len(out.NotCanceled)),
	)
	return out, nil
}
