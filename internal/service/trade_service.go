package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/walletlink/internal/backend"
	"github.com/alanyoungcy/walletlink/internal/blob/s3"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/escrow"
	"github.com/alanyoungcy/walletlink/internal/order"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

// Backend is the subset of *backend.Client the services call.
type Backend interface {
	PlaceOrder(ctx context.Context, req backend.PlaceOrderRequest) (backend.PlaceOrderResult, error)
	CancelOrder(ctx context.Context, req backend.CancelOrderRequest) (backend.CancelOrderResult, error)
	ClaimWinnings(ctx context.Context, req escrow.ClaimRequest) (backend.ClaimResult, error)
}

var _ Backend = (*backend.Client)(nil)

// TradeConfig carries the trading limits and fee schedule.
type TradeConfig struct {
	Fees escrow.FeeSchedule
	// OrdersPerWindow caps submissions per user; zero disables the limit.
	OrdersPerWindow int
	Window          time.Duration
}

// PlaceOrderInput is a caller's order. Size is in shares and Price in USDC
// per share.
type PlaceOrderInput struct {
	UserID     string          `json:"user_id"`
	WalletID   string          `json:"wallet_id,omitempty"`
	TokenID    string          `json:"token_id"`
	Side       string          `json:"side"`
	Size       decimal.Decimal `json:"size"`
	Price      decimal.Decimal `json:"price"`
	OrderType  string          `json:"order_type,omitempty"`
	Expiration int64           `json:"expiration,omitempty"`
	Nonce      int64           `json:"nonce,omitempty"`
	FeeRateBps int64           `json:"fee_rate_bps,omitempty"`
	NegRisk    bool            `json:"neg_risk,omitempty"`
}

// PlaceOrderOutput reports a submitted order.
type PlaceOrderOutput struct {
	ClientOrderID string                   `json:"client_order_id"`
	Order         order.SignedOrder        `json:"order"`
	FeeAuth       *escrow.FeeAuthorization `json:"fee_auth,omitempty"`
	Result        backend.PlaceOrderResult `json:"result"`
}

// TradeService signs orders for linked accounts and submits them to the
// backend.
type TradeService struct {
	builder    *order.Builder
	backend    Backend
	store      domain.CredentialStore
	wallets    Wallets
	limiter    domain.RateLimiter
	authorizer *escrow.Authorizer
	cfg        TradeConfig
	deps       Deps
	logger     *slog.Logger
}

// NewTradeService creates a TradeService. limiter and authorizer may be nil;
// without an authorizer orders carry no fee authorization.
func NewTradeService(
	builder *order.Builder,
	be Backend,
	store domain.CredentialStore,
	wallets Wallets,
	limiter domain.RateLimiter,
	authorizer *escrow.Authorizer,
	cfg TradeConfig,
	deps Deps,
) *TradeService {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &TradeService{
		builder:    builder,
		backend:    be,
		store:      store,
		wallets:    wallets,
		limiter:    limiter,
		authorizer: authorizer,
		cfg:        cfg,
		deps:       deps,
		logger:     deps.logger("trade_service"),
	}
}

// PlaceOrder builds, signs and submits an order for a linked account.
func (s *TradeService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (PlaceOrderOutput, error) {
	if in.UserID == "" {
		return PlaceOrderOutput{}, fmt.Errorf("service/trade: %w: user id is required", domain.ErrConfiguration)
	}
	orderType, err := order.ParseOrderType(in.OrderType)
	if err != nil {
		return PlaceOrderOutput{}, err
	}
	if err := s.allow(ctx, in.UserID); err != nil {
		return PlaceOrderOutput{}, err
	}

	account, sgn, err := resolveAccount(ctx, s.store, s.wallets, in.UserID, in.WalletID)
	if err != nil {
		return PlaceOrderOutput{}, err
	}

	signed, err := s.builder.Build(ctx, sgn, order.Request{
		TokenID:    in.TokenID,
		Side:       in.Side,
		Size:       in.Size,
		Price:      in.Price,
		FeeRateBps: in.FeeRateBps,
		Nonce:      in.Nonce,
		Expiration: in.Expiration,
		NegRisk:    in.NegRisk,
	}, order.Funding{
		Topology:            account.Topology,
		SmartAccountAddress: common.HexToAddress(account.SmartAccountAddress),
	})
	if err != nil {
		return PlaceOrderOutput{}, fmt.Errorf("service/trade: %w", err)
	}

	out := PlaceOrderOutput{ClientOrderID: s.builder.NewClientOrderID(), Order: signed}
	if out.FeeAuth, err = s.orderFee(ctx, sgn, signed); err != nil {
		return PlaceOrderOutput{}, err
	}

	out.Result, err = s.backend.PlaceOrder(ctx, backend.PlaceOrderRequest{
		SignedOrder:   signed,
		OrderType:     orderType,
		Credentials:   account.Credentials,
		ClientOrderID: out.ClientOrderID,
		FeeAuth:       out.FeeAuth,
	})
	detail := map[string]any{
		"client_order_id": out.ClientOrderID,
		"token_id":        signed.TokenID,
		"side":            string(signed.Side),
		"maker":           signed.Maker,
		"maker_amount":    signed.MakerAmount,
		"taker_amount":    signed.TakerAmount,
	}
	if err != nil {
		detail["error"] = err.Error()
		s.logger.WarnContext(ctx, "order rejected",
			slog.String("user_id", in.UserID),
			slog.String("client_order_id", out.ClientOrderID),
			slog.String("error", err.Error()),
		)
		s.deps.audit(ctx, s.logger, domain.AuditOrderRejected, in.UserID, detail)
		s.deps.notify(ctx, domain.AuditOrderRejected, "Order rejected",
			fmt.Sprintf("user %s order %s for %s USDC (fee %s USDC): %v",
				in.UserID, out.ClientOrderID, escrow.FormatUSDC(usdcLeg(signed)), escrow.FormatUSDC(out.FeeAuth.Total()), err))
		return out, err
	}

	detail["order_id"] = out.Result.OrderID
	detail["status"] = out.Result.Status
	s.deps.audit(ctx, s.logger, domain.AuditOrderPlaced, in.UserID, detail)
	s.deps.archive(ctx, s.logger, s3blob.KindOrder, out.ClientOrderID, out)
	if out.FeeAuth != nil {
		s.deps.archive(ctx, s.logger, s3blob.KindFeeAuth, out.FeeAuth.OrderID, out.FeeAuth)
	}
	return out, nil
}

// orderFee signs the escrow fee for o, or returns nil when no fee applies.
// The fee is charged on the USDC leg: the maker amount of a buy and the
// taker amount of a sell.
func (s *TradeService) orderFee(ctx context.Context, sgn signer.Signer, o order.SignedOrder) (*escrow.FeeAuthorization, error) {
	if s.authorizer == nil || s.cfg.Fees.FeeBps == 0 {
		return nil, nil
	}
	notional := usdcLeg(o)
	if notional == nil {
		return nil, fmt.Errorf("service/trade: %w: notional of order with maker amount %q", domain.ErrConfiguration, o.MakerAmount)
	}
	split, err := escrow.SplitFee(notional, s.cfg.Fees)
	if err != nil {
		return nil, err
	}
	if split.Total.Sign() == 0 {
		return nil, nil
	}
	id, err := escrow.OrderIDFor(o)
	if err != nil {
		return nil, err
	}
	auth, err := s.authorizer.SignOrderFee(ctx, sgn, common.HexToAddress(o.Maker), id, split)
	if err != nil {
		return nil, fmt.Errorf("service/trade: %w", err)
	}
	return &auth, nil
}

// usdcLeg returns the raw USDC amount of o, or nil if it does not parse.
func usdcLeg(o order.SignedOrder) *big.Int {
	leg := o.MakerAmount
	if o.Side == order.SideSell {
		leg = o.TakerAmount
	}
	n, ok := new(big.Int).SetString(leg, 10)
	if !ok {
		return nil
	}
	return n
}

// CancelOrder cancels orderID on behalf of a linked account.
func (s *TradeService) CancelOrder(ctx context.Context, userID, orderID string) (backend.CancelOrderResult, error) {
	if userID == "" || orderID == "" {
		return backend.CancelOrderResult{}, fmt.Errorf("service/trade: %w: user id and order id are required", domain.ErrConfiguration)
	}
	account, err := s.store.Get(ctx, userID)
	if err != nil {
		return backend.CancelOrderResult{}, fmt.Errorf("service/trade: load account: %w", err)
	}
	res, err := s.backend.CancelOrder(ctx, backend.CancelOrderRequest{
		OrderID:       orderID,
		SignerAddress: account.SignerAddress,
		Credentials:   account.Credentials,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "cancel failed",
			slog.String("user_id", userID),
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
		return res, err
	}

	detail := map[string]any{"order_id": orderID, "canceled": res.Canceled}
	if res.EscrowRefund != nil {
		detail["refund_amount"] = res.EscrowRefund.Amount
		detail["refund_tx"] = res.EscrowRefund.TxHash
	}
	s.deps.audit(ctx, s.logger, domain.AuditOrderCanceled, userID, detail)
	s.deps.archive(ctx, s.logger, s3blob.KindCancellation, orderID, res)
	return res, nil
}

func (s *TradeService) allow(ctx context.Context, userID string) error {
	if s.limiter == nil || s.cfg.OrdersPerWindow <= 0 {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "orders:"+userID, s.cfg.OrdersPerWindow, s.cfg.Window)
	if err != nil {
		return fmt.Errorf("service/trade: rate limiter: %w", err)
	}
	if !ok {
		return fmt.Errorf("service/trade: %w: %d orders per %s", domain.ErrRateLimited, s.cfg.OrdersPerWindow, s.cfg.Window)
	}
	return nil
}

// resolveAccount loads the account and checks the resolved signer is the one
// the account was linked with.
func resolveAccount(ctx context.Context, store domain.CredentialStore, wallets Wallets, userID, walletID string) (domain.LinkedAccount, signer.Signer, error) {
	account, err := store.Get(ctx, userID)
	if err != nil {
		return domain.LinkedAccount{}, nil, fmt.Errorf("service: load account: %w", err)
	}
	sgn, err := wallets.Signer(ctx, walletID)
	if err != nil {
		return domain.LinkedAccount{}, nil, fmt.Errorf("service: %w", err)
	}
	addr, err := sgn.GetAddress(ctx)
	if err != nil {
		return domain.LinkedAccount{}, nil, fmt.Errorf("service: resolve signer address: %w", err)
	}
	if addr != common.HexToAddress(account.SignerAddress) {
		return domain.LinkedAccount{}, nil, fmt.Errorf("service: %w: signer %s is not linked to user %s", domain.ErrPrecondition, addr.Hex(), userID)
	}
	return account, sgn, nil
}
