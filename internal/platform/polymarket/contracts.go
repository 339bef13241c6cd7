package polymarket

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
)

// Supported chains.
const (
	ChainPolygon int64 = 137
	ChainAmoy    int64 = 80002
)

// CollateralDecimals is the precision of USDC and of conditional tokens.
const CollateralDecimals = 6

// Contracts is the set of addresses the linking and signing flows touch on a
// given chain.
type Contracts struct {
	ChainID           int64
	Exchange          common.Address
	NegRiskExchange   common.Address
	NegRiskAdapter    common.Address
	Collateral        common.Address
	ConditionalTokens common.Address
	SafeFactory       common.Address
	SafeInitCodeHash  common.Hash
	MultiSend         common.Address
}

var (
	safeFactory      = common.HexToAddress("0xaacFeEa03eb1561C4e67d661e40682Bd20E3541b")
	safeInitCodeHash = common.HexToHash("0x2bce2127ff07fb632d16c8347c4ebf501f4841168bed00d9e6ef715ddb6fcecf")
	multiSend        = common.HexToAddress("0xA238CBeb142c10Ef7Ad8442C6D1f9E89e07e7761")
)

// PolygonContracts are the mainnet deployments.
var PolygonContracts = Contracts{
	ChainID:           ChainPolygon,
	Exchange:          common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
	NegRiskExchange:   common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
	NegRiskAdapter:    common.HexToAddress("0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"),
	Collateral:        common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
	ConditionalTokens: common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"),
	SafeFactory:       safeFactory,
	SafeInitCodeHash:  safeInitCodeHash,
	MultiSend:         multiSend,
}

// AmoyContracts are the testnet deployments.
var AmoyContracts = Contracts{
	ChainID:           ChainAmoy,
	Exchange:          common.HexToAddress("0xdFE02Eb6733538f8Ea35D585af8DE5958AD99E40"),
	NegRiskExchange:   common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
	NegRiskAdapter:    common.HexToAddress("0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"),
	Collateral:        common.HexToAddress("0x9c4e1703476e875070ee25b56a58b008cfb8fa78"),
	ConditionalTokens: common.HexToAddress("0x69308FB512518e39F9b16112fA8d994F4e2Bf8bB"),
	SafeFactory:       safeFactory,
	SafeInitCodeHash:  safeInitCodeHash,
	MultiSend:         multiSend,
}

// ContractsFor returns the contract set for chainID.
func ContractsFor(chainID int64) (Contracts, error) {
	switch chainID {
	case ChainPolygon:
		return PolygonContracts, nil
	case ChainAmoy:
		return AmoyContracts, nil
	default:
		return Contracts{}, fmt.Errorf("polymarket: %w: unsupported chain id %d", domain.ErrConfiguration, chainID)
	}
}

// SafeAddress derives the Safe the proxy factory deploys for owner. The result
// is valid before the Safe exists.
func (c Contracts) SafeAddress(owner common.Address) common.Address {
	return crypto.DeriveSafeAddress(owner, c.SafeFactory, c.SafeInitCodeHash)
}

// ExchangeFor returns the exchange that verifies orders for the market kind.
func (c Contracts) ExchangeFor(negRisk bool) common.Address {
	if negRisk {
		return c.NegRiskExchange
	}
	return c.Exchange
}
