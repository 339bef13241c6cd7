package escrow

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

// FeeAuthorization is a signed, deadline-bound permission for the escrow to
// pull a fee from Payer. Exactly one of OrderID and PositionID is set.
type FeeAuthorization struct {
	OrderID     string `json:"orderId,omitempty"`
	PositionID  string `json:"positionId,omitempty"`
	Payer       string `json:"payer"`
	PlatformFee string `json:"platformFee,omitempty"`
	ReferrerFee string `json:"referrerFee,omitempty"`
	Fee         string `json:"fee,omitempty"`
	Deadline    int64  `json:"deadline"`
	ChainID     int64  `json:"chainId"`
	Signature   string `json:"signature"`
}

// Total is the raw amount a collects: the performance fee, or the sum of the
// platform and referrer shares. A nil authorization collects nothing.
func (a *FeeAuthorization) Total() *big.Int {
	total := new(big.Int)
	if a == nil {
		return total
	}
	for _, part := range []string{a.Fee, a.PlatformFee, a.ReferrerFee} {
		if n, ok := new(big.Int).SetString(part, 10); ok {
			total.Add(total, n)
		}
	}
	return total
}

// Authorizer signs fee authorizations for one escrow deployment.
type Authorizer struct {
	chainID  int64
	contract common.Address
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthorizer validates its inputs; ttl must be positive so every deadline
// lies in the future.
func NewAuthorizer(chainID int64, contract common.Address, ttl time.Duration) (*Authorizer, error) {
	if contract == (common.Address{}) {
		return nil, fmt.Errorf("escrow: %w: escrow contract address is required", domain.ErrConfiguration)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("escrow: %w: deadline ttl must be positive", domain.ErrConfiguration)
	}
	return &Authorizer{chainID: chainID, contract: contract, ttl: ttl, now: time.Now}, nil
}

func (a *Authorizer) domain() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              "PolyEscrow",
		Version:           "1",
		ChainId:           crypto.ChainID(a.chainID),
		VerifyingContract: a.contract.Hex(),
	}
}

// OrderFeeTypedData is the FeeAuthorization payload for an order.
func (a *Authorizer) OrderFeeTypedData(orderID common.Hash, payer common.Address, split FeeSplit, deadline int64) apitypes.TypedData {
	return crypto.NewTypedData(a.domain(), "FeeAuthorization", []apitypes.Type{
		{Name: "orderId", Type: "bytes32"},
		{Name: "payer", Type: "address"},
		{Name: "platformFee", Type: "uint256"},
		{Name: "referrerFee", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	}, apitypes.TypedDataMessage{
		"orderId":     orderID.Hex(),
		"payer":       payer.Hex(),
		"platformFee": crypto.Uint256(split.Platform),
		"referrerFee": crypto.Uint256(split.Referrer),
		"deadline":    crypto.Uint256(big.NewInt(deadline)),
	})
}

// PerformanceFeeTypedData is the PerformanceFeeAuthorization payload for a
// position.
func (a *Authorizer) PerformanceFeeTypedData(positionID common.Hash, payer common.Address, fee *big.Int, deadline int64) apitypes.TypedData {
	return crypto.NewTypedData(a.domain(), "PerformanceFeeAuthorization", []apitypes.Type{
		{Name: "positionId", Type: "bytes32"},
		{Name: "payer", Type: "address"},
		{Name: "fee", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	}, apitypes.TypedDataMessage{
		"positionId": positionID.Hex(),
		"payer":      payer.Hex(),
		"fee":        crypto.Uint256(fee),
		"deadline":   crypto.Uint256(big.NewInt(deadline)),
	})
}

// SignOrderFee authorizes the escrow to collect split from payer for orderID.
func (a *Authorizer) SignOrderFee(ctx context.Context, s signer.Signer, payer common.Address, orderID common.Hash, split FeeSplit) (FeeAuthorization, error) {
	if split.Platform == nil || split.Referrer == nil {
		return FeeAuthorization{}, fmt.Errorf("escrow: %w: fee split is incomplete", domain.ErrConfiguration)
	}
	deadline := a.deadline()
	sig, err := s.SignTypedData(ctx, a.OrderFeeTypedData(orderID, payer, split, deadline))
	if err != nil {
		return FeeAuthorization{}, fmt.Errorf("escrow: sign order fee: %w", err)
	}
	return FeeAuthorization{
		OrderID:     orderID.Hex(),
		Payer:       payer.Hex(),
		PlatformFee: split.Platform.String(),
		ReferrerFee: split.Referrer.String(),
		Deadline:    deadline,
		ChainID:     a.chainID,
		Signature:   hexutil.Encode(sig),
	}, nil
}

// SignPerformanceFee authorizes the escrow to collect fee from payer when
// positionID is redeemed.
func (a *Authorizer) SignPerformanceFee(ctx context.Context, s signer.Signer, payer common.Address, positionID common.Hash, fee *big.Int) (FeeAuthorization, error) {
	if fee == nil || fee.Sign() < 0 {
		return FeeAuthorization{}, fmt.Errorf("escrow: %w: fee must be non-negative", domain.ErrConfiguration)
	}
	deadline := a.deadline()
	sig, err := s.SignTypedData(ctx, a.PerformanceFeeTypedData(positionID, payer, fee, deadline))
	if err != nil {
		return FeeAuthorization{}, fmt.Errorf("escrow: sign performance fee: %w", err)
	}
	return FeeAuthorization{
		PositionID: positionID.Hex(),
		Payer:      payer.Hex(),
		Fee:        fee.String(),
		Deadline:   deadline,
		ChainID:    a.chainID,
		Signature:  hexutil.Encode(sig),
	}, nil
}

func (a *Authorizer) deadline() int64 {
	return a.now().Add(a.ttl).Unix()
}
