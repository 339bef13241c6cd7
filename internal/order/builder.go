package order

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/platform/polymarket"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

// maxSalt keeps salts within the integer range JavaScript clients can parse.
var maxSalt = big.NewInt(1 << 53)

// Request describes the order a caller wants. Size is in shares and Price in
// collateral per share.
type Request struct {
	TokenID    string
	Side       string
	Size       decimal.Decimal
	Price      decimal.Decimal
	FeeRateBps int64
	Nonce      int64
	Expiration int64
	NegRisk    bool
}

// Funding describes who backs the order.
type Funding struct {
	Topology            domain.Topology
	SmartAccountAddress common.Address
}

// Builder constructs and signs orders for one contract set.
type Builder struct {
	contracts polymarket.Contracts
	salt      func() (int64, error)
}

// NewBuilder returns a Builder for contracts.
func NewBuilder(contracts polymarket.Contracts) *Builder {
	return &Builder{contracts: contracts, salt: randomSalt}
}

// NewClientOrderID returns a fresh identifier for one submission attempt.
func (b *Builder) NewClientOrderID() string {
	return uuid.NewString()
}

// Build resolves maker and signature type from the funding topology, computes
// amounts and signs the order with s.
func (b *Builder) Build(ctx context.Context, s signer.Signer, req Request, funding Funding) (SignedOrder, error) {
	side, err := ParseSide(req.Side)
	if err != nil {
		return SignedOrder{}, err
	}
	tokenID, ok := new(big.Int).SetString(req.TokenID, 10)
	if !ok || tokenID.Sign() <= 0 {
		return SignedOrder{}, fmt.Errorf("order: %w: token id %q is not a positive integer", domain.ErrConfiguration, req.TokenID)
	}
	if !req.Size.IsPositive() || !req.Price.IsPositive() {
		return SignedOrder{}, fmt.Errorf("order: %w: size and price must be positive", domain.ErrConfiguration)
	}

	signerAddr, err := s.GetAddress(ctx)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("order: resolve signer address: %w", err)
	}
	maker, err := resolveMaker(signerAddr, funding)
	if err != nil {
		return SignedOrder{}, err
	}
	salt, err := b.salt()
	if err != nil {
		return SignedOrder{}, fmt.Errorf("order: generate salt: %w", err)
	}

	makerAmount, takerAmount := Amounts(side, req.Size, req.Price)
	if makerAmount.Sign() <= 0 || takerAmount.Sign() <= 0 {
		return SignedOrder{}, fmt.Errorf("order: %w: size %s at price %s rounds to a zero amount", domain.ErrConfiguration, req.Size, req.Price)
	}
	o := SignedOrder{
		Salt:          salt,
		Maker:         maker.Hex(),
		Signer:        signerAddr.Hex(),
		Taker:         common.Address{}.Hex(),
		TokenID:       tokenID.String(),
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    strconv.FormatInt(req.Expiration, 10),
		Nonce:         strconv.FormatInt(req.Nonce, 10),
		FeeRateBps:    strconv.FormatInt(req.FeeRateBps, 10),
		Side:          side,
		SignatureType: funding.Topology.SignatureType(),
	}

	td, err := b.TypedData(o, req.NegRisk)
	if err != nil {
		return SignedOrder{}, err
	}
	sig, err := s.SignTypedData(ctx, td)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("order: sign: %w", err)
	}
	o.Signature = hexutil.Encode(sig)
	return o, nil
}

// TypedData returns the EIP-712 payload for o, verified by the exchange or
// the neg-risk exchange.
func (b *Builder) TypedData(o SignedOrder, negRisk bool) (apitypes.TypedData, error) {
	ints := map[string]string{
		"tokenId":     o.TokenID,
		"makerAmount": o.MakerAmount,
		"takerAmount": o.TakerAmount,
		"expiration":  o.Expiration,
		"nonce":       o.Nonce,
		"feeRateBps":  o.FeeRateBps,
	}
	msg := apitypes.TypedDataMessage{
		"salt":          crypto.Uint256(big.NewInt(o.Salt)),
		"maker":         o.Maker,
		"signer":        o.Signer,
		"taker":         o.Taker,
		"side":          crypto.Uint256(big.NewInt(int64(o.Side.Code()))),
		"signatureType": crypto.Uint256(big.NewInt(int64(o.SignatureType))),
	}
	for k, v := range ints {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return apitypes.TypedData{}, fmt.Errorf("order: %w: %s %q is not an integer", domain.ErrConfiguration, k, v)
		}
		msg[k] = crypto.Uint256(n)
	}

	return crypto.NewTypedData(apitypes.TypedDataDomain{
		Name:              "Polymarket CTF Exchange",
		Version:           "1",
		ChainId:           crypto.ChainID(b.contracts.ChainID),
		VerifyingContract: b.contracts.ExchangeFor(negRisk).Hex(),
	}, "Order", []apitypes.Type{
		{Name: "salt", Type: "uint256"},
		{Name: "maker", Type: "address"},
		{Name: "signer", Type: "address"},
		{Name: "taker", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "makerAmount", Type: "uint256"},
		{Name: "takerAmount", Type: "uint256"},
		{Name: "expiration", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "feeRateBps", Type: "uint256"},
		{Name: "side", Type: "uint8"},
		{Name: "signatureType", Type: "uint8"},
	}, msg), nil
}

// Amounts converts size and price to raw 6-decimal maker and taker amounts,
// truncating sub-unit remainders. A buyer gives collateral for shares; a
// seller gives shares for collateral.
func Amounts(side Side, size, price decimal.Decimal) (maker, taker *big.Int) {
	shares := toRaw(size)
	notional := toRaw(size.Mul(price))
	if side == SideSell {
		return shares, notional
	}
	return notional, shares
}

func toRaw(d decimal.Decimal) *big.Int {
	return d.Shift(polymarket.CollateralDecimals).Truncate(0).BigInt()
}

func resolveMaker(signerAddr common.Address, funding Funding) (common.Address, error) {
	switch funding.Topology {
	case domain.TopologyDirect:
		return signerAddr, nil
	case domain.TopologySmartAccount:
		if funding.SmartAccountAddress == (common.Address{}) {
			return common.Address{}, fmt.Errorf("order: %w: smart account address is required", domain.ErrConfiguration)
		}
		return funding.SmartAccountAddress, nil
	default:
		return common.Address{}, fmt.Errorf("order: %w: unknown topology %q", domain.ErrConfiguration, funding.Topology)
	}
}

func randomSalt() (int64, error) {
	n, err := rand.Int(rand.Reader, maxSalt)
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
