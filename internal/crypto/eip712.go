package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// DomainFields returns the EIP712Domain type for the given domain, listing only
// the members that are set, in canonical order.
func DomainFields(d apitypes.TypedDataDomain) []apitypes.Type {
	var fields []apitypes.Type
	if d.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if d.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if d.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	return fields
}

// NewTypedData assembles a TypedData with the domain type filled in from d.
func NewTypedData(d apitypes.TypedDataDomain, primaryType string, fields []apitypes.Type, msg apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": DomainFields(d),
			primaryType:    fields,
		},
		PrimaryType: primaryType,
		Domain:      d,
		Message:     msg,
	}
}

// ChainID converts an integer chain id to the form apitypes expects.
func ChainID(id int64) *math.HexOrDecimal256 {
	return math.NewHexOrDecimal256(id)
}

// Uint256 converts a big integer to the form apitypes expects. Nil encodes as zero.
func Uint256(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		v = new(big.Int)
	}
	return (*math.HexOrDecimal256)(v)
}

// TypedDataDigest computes keccak256("\x19\x01" || domainSeparator || structHash).
func TypedDataDigest(td apitypes.TypedData) ([]byte, error) {
	domainSep, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("crypto/eip712: hash domain: %w", err)
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("crypto/eip712: hash %s: %w", td.PrimaryType, err)
	}
	raw := make([]byte, 0, 2+len(domainSep)+len(structHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSep...)
	raw = append(raw, structHash...)
	return ethcrypto.Keccak256(raw), nil
}

// SignDigest signs a 32-byte digest and returns r || s || v with v in {27,28}.
func SignDigest(key *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("crypto/eip712: sign digest: %w", err)
	}
	// go-ethereum returns v in {0,1}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// SignTypedData hashes td and signs it with key.
func SignTypedData(key *ecdsa.PrivateKey, td apitypes.TypedData) ([]byte, error) {
	digest, err := TypedDataDigest(td)
	if err != nil {
		return nil, err
	}
	return SignDigest(key, digest)
}

// RecoverTypedData returns the address that produced sig over td.
func RecoverTypedData(td apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("crypto/eip712: signature must be 65 bytes")
	}
	digest, err := TypedDataDigest(td)
	if err != nil {
		return common.Address{}, err
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/eip712: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
