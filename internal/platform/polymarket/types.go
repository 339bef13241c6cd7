package polymarket

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// --------------------------------------------------------------------------
// CLOB auth DTOs
// --------------------------------------------------------------------------

// apiKeyResponse is returned by both derive-api-key and api-key.
type apiKeyResponse struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// --------------------------------------------------------------------------
// Relayer DTOs
// --------------------------------------------------------------------------

// Relayer transaction types.
const (
	RelayerTypeSafe       = "SAFE"
	RelayerTypeSafeCreate = "SAFE-CREATE"
)

// Relayer transaction states.
const (
	StateNew       = "STATE_NEW"
	StateExecuted  = "STATE_EXECUTED"
	StateMined     = "STATE_MINED"
	StateConfirmed = "STATE_CONFIRMED"
	StateFailed    = "STATE_FAILED"
	StateInvalid   = "STATE_INVALID"
)

// SafeTransaction is a single call executed by a Safe.
type SafeTransaction struct {
	To        common.Address
	Operation uint8 // 0 = Call, 1 = DelegateCall
	Data      []byte
	Value     *big.Int
}

// TransactionRequest is the body posted to /submit.
type TransactionRequest struct {
	Type            string           `json:"type"`
	From            string           `json:"from"`
	To              string           `json:"to"`
	ProxyWallet     string           `json:"proxyWallet,omitempty"`
	Data            string           `json:"data"`
	Nonce           string           `json:"nonce,omitempty"`
	Signature       string           `json:"signature"`
	SignatureParams *SignatureParams `json:"signatureParams"`
	Metadata        string           `json:"metadata,omitempty"`
}

// SignatureParams carries the Safe gas parameters or the SAFE-CREATE payment
// parameters, depending on the request type.
type SignatureParams struct {
	GasPrice        string `json:"gasPrice,omitempty"`
	Operation       string `json:"operation,omitempty"`
	SafeTxnGas      string `json:"safeTxnGas,omitempty"`
	BaseGas         string `json:"baseGas,omitempty"`
	GasToken        string `json:"gasToken,omitempty"`
	RefundReceiver  string `json:"refundReceiver,omitempty"`
	PaymentToken    string `json:"paymentToken,omitempty"`
	Payment         string `json:"payment,omitempty"`
	PaymentReceiver string `json:"paymentReceiver,omitempty"`
}

// RelayerTransaction is the relayer's view of a submitted transaction.
type RelayerTransaction struct {
	ID              string `json:"transactionID"`
	TransactionHash string `json:"transactionHash"`
	State           string `json:"state"`
	ProxyAddress    string `json:"proxyAddress,omitempty"`
	Error           string `json:"error,omitempty"`
}

// UnmarshalJSON accepts both "transactionID" and the older "id" key.
func (t *RelayerTransaction) UnmarshalJSON(data []byte) error {
	type alias RelayerTransaction
	var raw struct {
		alias
		LegacyID string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = RelayerTransaction(raw.alias)
	if t.ID == "" {
		t.ID = raw.LegacyID
	}
	return nil
}

// Terminal reports whether the relayer will not change the state again.
func (t RelayerTransaction) Terminal() bool {
	switch t.State {
	case StateMined, StateConfirmed, StateFailed, StateInvalid:
		return true
	}
	return false
}

// Succeeded reports whether the transaction landed on chain.
func (t RelayerTransaction) Succeeded() bool {
	return t.State == StateMined || t.State == StateConfirmed
}

type nonceResponse struct {
	Nonce json.Number `json:"nonce"`
}

type deployedResponse struct {
	Deployed bool `json:"deployed"`
}
