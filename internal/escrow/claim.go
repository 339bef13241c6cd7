package escrow

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/walletlink/internal/chain"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/platform/polymarket"
)

// WalletType selects how winnings are redeemed.
type WalletType string

const (
	// WalletDirect signers pre-sign the redeem transaction themselves.
	WalletDirect WalletType = "direct"
	// WalletCustodial redemption is built and sent by the custody provider.
	WalletCustodial WalletType = "custodial"
)

// ClaimRequest asks the backend to redeem a resolved position. It carries
// either SignedRedeemTx or the delegation fields PrivyWalletID, ConditionID
// and OutcomeIndex, never both.
type ClaimRequest struct {
	PositionID         string            `json:"positionId"`
	WalletType         WalletType        `json:"walletType"`
	PayerAddress       string            `json:"payerAddress"`
	SignerAddress      string            `json:"signerAddress"`
	PerformanceFeeAuth *FeeAuthorization `json:"performanceFeeAuth,omitempty"`
	SignedRedeemTx     string            `json:"signedRedeemTx,omitempty"`
	PrivyWalletID      string            `json:"privyWalletId,omitempty"`
	ConditionID        string            `json:"conditionId,omitempty"`
	OutcomeIndex       *int              `json:"outcomeIndex,omitempty"`
}

// Validate enforces the claim-mode rules without touching the network.
func (r ClaimRequest) Validate() error {
	if r.PositionID == "" {
		return fmt.Errorf("escrow: %w: position id is required", domain.ErrInvalidClaim)
	}
	if !common.IsHexAddress(r.PayerAddress) || !common.IsHexAddress(r.SignerAddress) {
		return fmt.Errorf("escrow: %w: payer and signer addresses are required", domain.ErrInvalidClaim)
	}

	signed := r.SignedRedeemTx != ""
	delegated := r.PrivyWalletID != "" || r.ConditionID != "" || r.OutcomeIndex != nil
	switch {
	case signed && delegated:
		return fmt.Errorf("escrow: %w: supply either signedRedeemTx or delegation fields, not both", domain.ErrInvalidClaim)
	case !signed && !delegated:
		return fmt.Errorf("escrow: %w: supply signedRedeemTx or privyWalletId, conditionId and outcomeIndex", domain.ErrInvalidClaim)
	case delegated && (r.PrivyWalletID == "" || r.ConditionID == "" || r.OutcomeIndex == nil):
		return fmt.Errorf("escrow: %w: privyWalletId, conditionId and outcomeIndex must all be set", domain.ErrInvalidClaim)
	case delegated && *r.OutcomeIndex < 0:
		return fmt.Errorf("escrow: %w: outcome index must be non-negative", domain.ErrInvalidClaim)
	}

	switch r.WalletType {
	case WalletDirect:
		if !signed {
			return fmt.Errorf("escrow: %w: direct wallets must supply signedRedeemTx", domain.ErrInvalidClaim)
		}
	case WalletCustodial:
		if !delegated {
			return fmt.Errorf("escrow: %w: custodial wallets must supply delegation fields", domain.ErrInvalidClaim)
		}
	default:
		return fmt.Errorf("escrow: %w: unknown wallet type %q", domain.ErrInvalidClaim, r.WalletType)
	}
	return nil
}

const redeemABI = `[{
	"inputs": [
		{"name": "collateralToken", "type": "address"},
		{"name": "parentCollectionId", "type": "bytes32"},
		{"name": "conditionId", "type": "bytes32"},
		{"name": "indexSets", "type": "uint256[]"}
	],
	"name": "redeemPositions",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// BuildRedeemCall returns the conditional-tokens redeemPositions call for the
// winning outcome of conditionID.
func BuildRedeemCall(c polymarket.Contracts, conditionID common.Hash, outcomeIndex int) (chain.Call, error) {
	if outcomeIndex < 0 || outcomeIndex > 255 {
		return chain.Call{}, fmt.Errorf("escrow: %w: outcome index %d out of range", domain.ErrConfiguration, outcomeIndex)
	}
	parsed, err := abi.JSON(strings.NewReader(redeemABI))
	if err != nil {
		return chain.Call{}, fmt.Errorf("escrow: parse redeem abi: %w", err)
	}
	indexSet := new(big.Int).Lsh(big.NewInt(1), uint(outcomeIndex))
	data, err := parsed.Pack("redeemPositions", c.Collateral, common.Hash{}, conditionID, []*big.Int{indexSet})
	if err != nil {
		return chain.Call{}, fmt.Errorf("escrow: pack redeemPositions: %w", err)
	}
	return chain.Call{To: c.ConditionalTokens, Data: data, Value: new(big.Int), Label: "redeem " + conditionID.Hex()}, nil
}
