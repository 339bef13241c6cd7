// Package signer defines the wallet capability the linking and signing flows
// depend on, plus adapters for the supported wallet backends.
package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/walletlink/internal/crypto"
)

// Signer is satisfied by every wallet backend. SignTypedData returns a 65-byte
// r || s || v signature with v in {27,28}. Failures propagate unchanged; no
// adapter retries.
type Signer interface {
	GetAddress(ctx context.Context) (common.Address, error)
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// TxSigner is implemented by backends that can sign raw transactions locally.
type TxSigner interface {
	Signer
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Recover returns the address that produced sig over data.
func Recover(data apitypes.TypedData, sig []byte) (common.Address, error) {
	return crypto.RecoverTypedData(data, sig)
}
