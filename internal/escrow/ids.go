// Package escrow computes the deterministic identifiers, fee amounts and
// signed fee authorizations consumed by the escrow contract.
package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/order"
)

var (
	addressT = mustType("address")
	uint256T = mustType("uint256")
	uint8T   = mustType("uint8")
	bytes32T = mustType("bytes32")

	orderIDArgs    = abi.Arguments{{Type: addressT}, {Type: uint256T}, {Type: uint8T}, {Type: uint256T}, {Type: uint256T}, {Type: uint256T}}
	positionIDArgs = abi.Arguments{{Type: addressT}, {Type: bytes32T}, {Type: uint256T}}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// OrderIDInput holds the public fields an order id is derived from.
type OrderIDInput struct {
	Payer       common.Address
	TokenID     *big.Int
	Side        uint8
	MakerAmount *big.Int
	TakerAmount *big.Int
	Salt        *big.Int
}

// OrderID is keccak256(abi.encode(payer, tokenId, side, makerAmount,
// takerAmount, salt)). Anyone holding the order can recompute it.
func OrderID(in OrderIDInput) (common.Hash, error) {
	for name, v := range map[string]*big.Int{"token id": in.TokenID, "maker amount": in.MakerAmount, "taker amount": in.TakerAmount, "salt": in.Salt} {
		if v == nil || v.Sign() < 0 {
			return common.Hash{}, fmt.Errorf("escrow: %w: %s must be a non-negative integer", domain.ErrConfiguration, name)
		}
	}
	packed, err := orderIDArgs.Pack(in.Payer, in.TokenID, in.Side, in.MakerAmount, in.TakerAmount, in.Salt)
	if err != nil {
		return common.Hash{}, fmt.Errorf("escrow: encode order id: %w", err)
	}
	return ethcrypto.Keccak256Hash(packed), nil
}

// OrderIDFor derives the id of a signed order paid for by its maker.
func OrderIDFor(o order.SignedOrder) (common.Hash, error) {
	in := OrderIDInput{
		Payer: common.HexToAddress(o.Maker),
		Side:  o.Side.Code(),
		Salt:  big.NewInt(o.Salt),
	}
	var ok bool
	if in.TokenID, ok = new(big.Int).SetString(o.TokenID, 10); !ok {
		return common.Hash{}, fmt.Errorf("escrow: %w: token id %q", domain.ErrConfiguration, o.TokenID)
	}
	if in.MakerAmount, ok = new(big.Int).SetString(o.MakerAmount, 10); !ok {
		return common.Hash{}, fmt.Errorf("escrow: %w: maker amount %q", domain.ErrConfiguration, o.MakerAmount)
	}
	if in.TakerAmount, ok = new(big.Int).SetString(o.TakerAmount, 10); !ok {
		return common.Hash{}, fmt.Errorf("escrow: %w: taker amount %q", domain.ErrConfiguration, o.TakerAmount)
	}
	return OrderID(in)
}

// PositionID is keccak256(abi.encode(payer, conditionId, outcomeIndex)).
func PositionID(payer common.Address, conditionID common.Hash, outcomeIndex uint64) (common.Hash, error) {
	packed, err := positionIDArgs.Pack(payer, [32]byte(conditionID), new(big.Int).SetUint64(outcomeIndex))
	if err != nil {
		return common.Hash{}, fmt.Errorf("escrow: encode position id: %w", err)
	}
	return ethcrypto.Keccak256Hash(packed), nil
}
