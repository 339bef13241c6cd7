package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
)

// PrivateKeySigner signs with a secp256k1 key held in process memory.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ TxSigner = (*PrivateKeySigner)(nil)

// NewPrivateKeySigner wraps an already parsed key.
func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
	}
}

// FromHex parses a hex key with or without the 0x prefix.
func FromHex(keyHex string) (*PrivateKeySigner, error) {
	key, err := crypto.ParsePrivateKey(keyHex)
	if err != nil {
		return nil, fmt.Errorf("signer: %w: %v", domain.ErrConfiguration, err)
	}
	return NewPrivateKeySigner(key), nil
}

// FromKeyConfig resolves the key from a raw value or an encrypted key file.
func FromKeyConfig(cfg crypto.KeyConfig) (*PrivateKeySigner, error) {
	key, err := crypto.LoadKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("signer: %w: %v", domain.ErrConfiguration, err)
	}
	return NewPrivateKeySigner(key), nil
}

// GetAddress returns the key's address.
func (s *PrivateKeySigner) GetAddress(context.Context) (common.Address, error) {
	return s.address, nil
}

// SignTypedData hashes data per EIP-712 and signs the digest.
func (s *PrivateKeySigner) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	sig, err := crypto.SignTypedData(s.key, data)
	if err != nil {
		return nil, fmt.Errorf("signer/private_key: %w: %v", domain.ErrSigningFailed, err)
	}
	return sig, nil
}

// SignTx signs tx for chainID using the latest signer for that chain.
func (s *PrivateKeySigner) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("signer/private_key: sign tx: %w", err)
	}
	return signed, nil
}
