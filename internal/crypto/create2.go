package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DeriveSafeAddress computes the counterfactual address of the Safe that the
// proxy factory deploys for owner:
//
//	create2(factory, keccak256(abi.encode(owner)), initCodeHash)
//
// The result depends only on its inputs and is valid before deployment.
func DeriveSafeAddress(owner, factory common.Address, initCodeHash common.Hash) common.Address {
	salt := ethcrypto.Keccak256Hash(common.LeftPadBytes(owner.Bytes(), 32))
	return ethcrypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}
