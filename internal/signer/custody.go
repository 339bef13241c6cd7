package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

// CustodyConfig configures access to the embedded-wallet custody API.
type CustodyConfig struct {
	BaseURL   string
	AppID     string
	AppSecret string
	Timeout   time.Duration
}

// CustodySigner delegates signing to a custodial wallet identified by
// walletID. The wallet address is fetched once and cached.
type CustodySigner struct {
	http     *resty.Client
	walletID string

	mu      sync.Mutex
	address common.Address
	cached  bool
}

var _ Signer = (*CustodySigner)(nil)

// NewCustodySigner builds a signer for one custodial wallet.
func NewCustodySigner(cfg CustodyConfig, walletID string) (*CustodySigner, error) {
	if cfg.BaseURL == "" || cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("signer/custody: %w: base url, app id and app secret are required", domain.ErrConfiguration)
	}
	if walletID == "" {
		return nil, fmt.Errorf("signer/custody: %w: wallet id is required", domain.ErrConfiguration)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetBasicAuth(cfg.AppID, cfg.AppSecret).
		SetHeader("privy-app-id", cfg.AppID).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &CustodySigner{http: client, walletID: walletID}, nil
}

type walletResponse struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	ChainType string `json:"chain_type"`
}

type rpcRequest struct {
	Method string    `json:"method"`
	Params rpcParams `json:"params"`
}

type rpcParams struct {
	TypedData typedDataPayload `json:"typed_data"`
}

type typedDataPayload struct {
	Domain      apitypes.TypedDataDomain  `json:"domain"`
	Types       apitypes.Types            `json:"types"`
	PrimaryType string                    `json:"primary_type"`
	Message     apitypes.TypedDataMessage `json:"message"`
}

type rpcResponse struct {
	Method string `json:"method"`
	Data   struct {
		Signature string `json:"signature"`
		Encoding  string `json:"encoding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GetAddress returns the custodial wallet's address.
func (s *CustodySigner) GetAddress(ctx context.Context) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached {
		return s.address, nil
	}

	var out walletResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetPathParam("id", s.walletID).
		Get("/v1/wallets/{id}")
	if err != nil {
		return common.Address{}, fmt.Errorf("signer/custody: get wallet: %w: %v", domain.ErrTransport, err)
	}
	if !resp.IsSuccess() {
		return common.Address{}, fmt.Errorf("signer/custody: get wallet (HTTP %d): %w: %s", resp.StatusCode(), domain.ErrTransport, resp.String())
	}
	if !common.IsHexAddress(out.Address) {
		return common.Address{}, fmt.Errorf("signer/custody: %w: wallet %s has no ethereum address", domain.ErrRejected, s.walletID)
	}

	s.address = common.HexToAddress(out.Address)
	s.cached = true
	return s.address, nil
}

// SignTypedData asks the custody provider to sign data with eth_signTypedData_v4.
func (s *CustodySigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	body := rpcRequest{
		Method: "eth_signTypedData_v4",
		Params: rpcParams{TypedData: typedDataPayload{
			Domain:      data.Domain,
			Types:       data.Types,
			PrimaryType: data.PrimaryType,
			Message:     data.Message,
		}},
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(body).
		SetPathParam("id", s.walletID).
		Post("/v1/wallets/{id}/rpc")
	if err != nil {
		return nil, fmt.Errorf("signer/custody: sign typed data: %w: %v", domain.ErrTransport, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("signer/custody: sign typed data (HTTP %d): %w: %s", resp.StatusCode(), domain.ErrTransport, resp.String())
	}

	var out rpcResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("signer/custody: decode rpc response: %w", err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return nil, fmt.Errorf("signer/custody: %w: %s", domain.ErrSigningFailed, out.Error.Message)
	}
	sig, err := hexutil.Decode(out.Data.Signature)
	if err != nil || len(sig) != 65 {
		return nil, fmt.Errorf("signer/custody: %w: malformed signature %q", domain.ErrSigningFailed, out.Data.Signature)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
