// Package allowance reads and sets the token approvals an account needs
// before the exchange can move its collateral and outcome tokens.
package allowance

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/walletlink/internal/platform/polymarket"
)

// Kind is the approval mechanism of a token.
type Kind int

const (
	// KindERC20 approvals are amounts set with approve.
	KindERC20 Kind = iota
	// KindERC1155 approvals are operator flags set with setApprovalForAll.
	KindERC1155
)

func (k Kind) String() string {
	if k == KindERC1155 {
		return "erc1155"
	}
	return "erc20"
}

var (
	// MaxUint256 is the amount submitted for an unlimited ERC-20 approval.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// UnlimitedThreshold is the smallest allowance treated as unlimited:
	// 10^18 raw units, i.e. one trillion USDC at 6 decimals.
	UnlimitedThreshold = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// IsSufficient reports whether v is at or above UnlimitedThreshold.
func IsSufficient(v *big.Int) bool {
	return v != nil && v.Cmp(UnlimitedThreshold) >= 0
}

// Spender is a contract that must be allowed to move Token on the owner's
// behalf.
type Spender struct {
	Name    string
	Kind    Kind
	Token   common.Address
	Address common.Address
}

// Key identifies the spender within a result map.
func (s Spender) Key() string {
	return s.Kind.String() + ":" + strings.ToLower(s.Address.Hex())
}

// Status is the observed approval for one spender.
type Status struct {
	Spender    Spender
	Allowance  *big.Int
	Sufficient bool
}

// PolymarketSpenders returns the six approvals trading requires: collateral
// allowances and conditional-token operator rights for the exchange, the
// neg-risk exchange and the neg-risk adapter.
func PolymarketSpenders(c polymarket.Contracts) []Spender {
	targets := []struct {
		name string
		addr common.Address
	}{
		{"CTF Exchange", c.Exchange},
		{"Neg Risk CTF Exchange", c.NegRiskExchange},
		{"Neg Risk Adapter", c.NegRiskAdapter},
	}
	out := make([]Spender, 0, 2*len(targets))
	for _, t := range targets {
		out = append(out, Spender{Name: "USDC allowance for " + t.name, Kind: KindERC20, Token: c.Collateral, Address: t.addr})
	}
	for _, t := range targets {
		out = append(out, Spender{Name: "CTF operator for " + t.name, Kind: KindERC1155, Token: c.ConditionalTokens, Address: t.addr})
	}
	return out
}
