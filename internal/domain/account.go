package domain

import (
	"fmt"
	"strings"
	"time"
)

// Topology describes how a wallet funds and signs orders.
type Topology string

const (
	// TopologyDirect is a single-key account that funds its own orders.
	TopologyDirect Topology = "direct"
	// TopologySmartAccount is a Safe owned by the signing key; the Safe funds orders.
	TopologySmartAccount Topology = "smart_account"
)

// Exchange signature type codes.
const (
	SignatureTypeEOA        = 0
	SignatureTypeGnosisSafe = 2
)

// ParseTopology accepts the canonical names plus a few common aliases.
func ParseTopology(s string) (Topology, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "eoa":
		return TopologyDirect, nil
	case "smart_account", "smart-account", "safe":
		return TopologySmartAccount, nil
	default:
		return "", fmt.Errorf("%w: unknown wallet topology %q", ErrConfiguration, s)
	}
}

// SignatureType returns the exchange signature type code for the topology.
func (t Topology) SignatureType() int {
	if t == TopologySmartAccount {
		return SignatureTypeGnosisSafe
	}
	return SignatureTypeEOA
}

// ExchangeCredentials are the L2 API credentials issued by the exchange.
type ExchangeCredentials struct {
	APIKey        string `json:"apiKey"`
	APISecret     string `json:"secret"`
	APIPassphrase string `json:"passphrase"`
}

// Valid reports whether every field is populated.
func (c ExchangeCredentials) Valid() bool {
	return c.APIKey != "" && c.APISecret != "" && c.APIPassphrase != ""
}

// String never prints the secret or passphrase.
func (c ExchangeCredentials) String() string {
	key := c.APIKey
	if len(key) > 4 {
		key = key[:4] + "****"
	}
	return fmt.Sprintf("ExchangeCredentials{key=%s}", key)
}

// LinkedAccount is the stored outcome of a successful link flow.
type LinkedAccount struct {
	UserID              string              `json:"user_id"`
	Topology            Topology            `json:"topology"`
	SignerAddress       string              `json:"signer_address"`
	SmartAccountAddress string              `json:"smart_account_address,omitempty"`
	Credentials         ExchangeCredentials `json:"credentials"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// FunderAddress is the address whose balance backs orders for this account.
func (a LinkedAccount) FunderAddress() string {
	if a.Topology == TopologySmartAccount {
		return a.SmartAccountAddress
	}
	return a.SignerAddress
}

// Validate checks the invariants a store must enforce before persisting.
func (a LinkedAccount) Validate() error {
	if a.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrConfiguration)
	}
	if !a.Credentials.Valid() {
		return ErrInvalidCredentials
	}
	if a.Topology == TopologySmartAccount && a.SmartAccountAddress == "" {
		return fmt.Errorf("%w: smart account address is required", ErrConfiguration)
	}
	return nil
}
