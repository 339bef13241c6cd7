package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/walletlink/internal/chain"
	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

// DefaultRelayerURL is the production relayer.
const DefaultRelayerURL = "https://relayer-v2.polymarket.com"

const multiSendABI = `[{"inputs":[{"internalType":"bytes","name":"transactions","type":"bytes"}],"name":"multiSend","outputs":[],"stateMutability":"payable","type":"function"}]`

// RelayerConfig configures a RelayerClient.
type RelayerConfig struct {
	BaseURL      string
	Builder      *crypto.HMACAuth
	PollInterval time.Duration
	Timeout      time.Duration
}

// RelayerClient deploys Safes and executes Safe transactions through the
// gasless relayer. The relayer pays gas; the owner only signs.
type RelayerClient struct {
	baseURL      string
	httpClient   *http.Client
	builder      *crypto.HMACAuth
	contracts    Contracts
	pollInterval time.Duration
}

// NewRelayerClient creates a relayer client for the given contract set.
func NewRelayerClient(cfg RelayerConfig, contracts Contracts) *RelayerClient {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultRelayerURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &RelayerClient{
		baseURL:      strings.TrimRight(base, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		builder:      cfg.Builder,
		contracts:    contracts,
		pollInterval: poll,
	}
}

// Contracts returns the contract set the client targets.
func (r *RelayerClient) Contracts() Contracts {
	return r.contracts
}

// IsDeployed reports whether a Safe exists at safe.
func (r *RelayerClient) IsDeployed(ctx context.Context, safe common.Address) (bool, error) {
	q := url.Values{"address": {safe.Hex()}, "type": {RelayerTypeSafe}}
	var out deployedResponse
	if err := r.get(ctx, "/deployed?"+q.Encode(), &out); err != nil {
		return false, fmt.Errorf("polymarket/relayer: deployed check: %w", err)
	}
	return out.Deployed, nil
}

// Nonce returns the next Safe nonce for owner.
func (r *RelayerClient) Nonce(ctx context.Context, owner common.Address) (*big.Int, error) {
	q := url.Values{"address": {owner.Hex()}, "type": {RelayerTypeSafe}}
	var out nonceResponse
	if err := r.get(ctx, "/nonce?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("polymarket/relayer: nonce: %w", err)
	}
	n, ok := new(big.Int).SetString(out.Nonce.String(), 10)
	if !ok {
		return nil, fmt.Errorf("polymarket/relayer: %w: malformed nonce %q", domain.ErrRejected, out.Nonce)
	}
	return n, nil
}

// SafeCreateTypedData is the factory payload an owner signs to have the
// relayer deploy its Safe at no cost.
func (r *RelayerClient) SafeCreateTypedData() apitypes.TypedData {
	zero := common.Address{}.Hex()
	return crypto.NewTypedData(apitypes.TypedDataDomain{
		Name:              "Polymarket Contract Proxy Factory",
		ChainId:           crypto.ChainID(r.contracts.ChainID),
		VerifyingContract: r.contracts.SafeFactory.Hex(),
	}, "CreateProxy", []apitypes.Type{
		{Name: "paymentToken", Type: "address"},
		{Name: "payment", Type: "uint256"},
		{Name: "paymentReceiver", Type: "address"},
	}, apitypes.TypedDataMessage{
		"paymentToken":    zero,
		"payment":         crypto.Uint256(nil),
		"paymentReceiver": zero,
	})
}

// SafeTxTypedData is the Safe transaction payload signed by the owner.
func (r *RelayerClient) SafeTxTypedData(safe, to common.Address, data []byte, operation uint8, nonce *big.Int) apitypes.TypedData {
	zero := common.Address{}.Hex()
	return crypto.NewTypedData(apitypes.TypedDataDomain{
		ChainId:           crypto.ChainID(r.contracts.ChainID),
		VerifyingContract: safe.Hex(),
	}, "SafeTx", []apitypes.Type{
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "operation", Type: "uint8"},
		{Name: "safeTxGas", Type: "uint256"},
		{Name: "baseGas", Type: "uint256"},
		{Name: "gasPrice", Type: "uint256"},
		{Name: "gasToken", Type: "address"},
		{Name: "refundReceiver", Type: "address"},
		{Name: "nonce", Type: "uint256"},
	}, apitypes.TypedDataMessage{
		"to":             to.Hex(),
		"value":          crypto.Uint256(nil),
		"data":           hexutil.Bytes(data),
		"operation":      crypto.Uint256(big.NewInt(int64(operation))),
		"safeTxGas":      crypto.Uint256(nil),
		"baseGas":        crypto.Uint256(nil),
		"gasPrice":       crypto.Uint256(nil),
		"gasToken":       zero,
		"refundReceiver": zero,
		"nonce":          crypto.Uint256(nonce),
	})
}

// Deploy asks the relayer to deploy the signer's Safe and waits until the
// deployment is mined.
func (r *RelayerClient) Deploy(ctx context.Context, s signer.Signer) (RelayerTransaction, error) {
	owner, err := s.GetAddress(ctx)
	if err != nil {
		return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: resolve owner: %w", err)
	}
	sig, err := s.SignTypedData(ctx, r.SafeCreateTypedData())
	if err != nil {
		return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: sign safe-create: %w", err)
	}

	zero := common.Address{}.Hex()
	req := TransactionRequest{
		Type:        RelayerTypeSafeCreate,
		From:        owner.Hex(),
		To:          r.contracts.SafeFactory.Hex(),
		ProxyWallet: r.contracts.SafeAddress(owner).Hex(),
		Data:        "0x",
		Signature:   hexutil.Encode(sig),
		SignatureParams: &SignatureParams{
			PaymentToken:    zero,
			Payment:         "0",
			PaymentReceiver: zero,
		},
	}
	submitted, err := r.submit(ctx, req)
	if err != nil {
		return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: deploy: %w", err)
	}
	return r.WaitForTransaction(ctx, submitted.ID)
}

// Execute signs txns as a single Safe transaction and submits it. More than
// one call is batched through MultiSend. It returns once the relayer accepts
// the request; use WaitForTransaction to block until mined.
func (r *RelayerClient) Execute(ctx context.Context, s signer.Signer, txns []SafeTransaction, metadata string) (RelayerTransaction, error) {
	if len(txns) == 0 {
		return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: %w: no transactions to execute", domain.ErrConfiguration)
	}
	owner, err := s.GetAddress(ctx)
	if err != nil {
		return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: resolve owner: %w", err)
	}
	safe := r.contracts.SafeAddress(owner)

	nonce, err := r.Nonce(ctx, owner)
	if err != nil {
		return RelayerTransaction{}, err
	}

	to, data, operation, err := r.encodeMultiSend(txns)
	if err != nil {
		return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: encode transactions: %w", err)
	}

	sig, err := s.SignTypedData(ctx, r.SafeTxTypedData(safe, to, data, operation, nonce))
	if err != nil {
		return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: sign safe tx: %w", err)
	}

	zero := common.Address{}.Hex()
	req := TransactionRequest{
		Type:        RelayerTypeSafe,
		From:        owner.Hex(),
		To:          to.Hex(),
		ProxyWallet: safe.Hex(),
		Data:        hexutil.Encode(data),
		Nonce:       nonce.String(),
		Signature:   hexutil.Encode(sig),
		SignatureParams: &SignatureParams{
			GasPrice:       "0",
			Operation:      fmt.Sprintf("%d", operation),
			SafeTxnGas:     "0",
			BaseGas:        "0",
			GasToken:       zero,
			RefundReceiver: zero,
		},
		Metadata: metadata,
	}
	submitted, err := r.submit(ctx, req)
	if err != nil {
		return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: execute: %w", err)
	}
	return submitted, nil
}

// WaitForTransaction polls the relayer until id reaches a terminal state. A
// failed or invalid transaction is returned as a rejection.
func (r *RelayerClient) WaitForTransaction(ctx context.Context, id string) (RelayerTransaction, error) {
	if id == "" {
		return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: %w: relayer returned no transaction id", domain.ErrEmptyResult)
	}
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	q := url.Values{"id": {id}}
	for {
		var raw json.RawMessage
		if err := r.get(ctx, "/transaction?"+q.Encode(), &raw); err != nil {
			return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: transaction %s: %w", id, err)
		}
		txn, found, err := decodeTransaction(raw)
		if err != nil {
			return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: decode transaction %s: %w", id, err)
		}
		if found && txn.Terminal() {
			if !txn.Succeeded() {
				return txn, fmt.Errorf("polymarket/relayer: %w: transaction %s ended in %s %s", domain.ErrRejected, id, txn.State, txn.Error)
			}
			return txn, nil
		}

		select {
		case <-ctx.Done():
			return RelayerTransaction{}, fmt.Errorf("polymarket/relayer: waiting for %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// --------------------------------------------------------------------------
// SafeExecutor
// --------------------------------------------------------------------------

// SafeExecutor runs calls from the owner's Safe through the relayer. Gas is
// always sponsored.
type SafeExecutor struct {
	relayer *RelayerClient
	signer  signer.Signer
}

// NewSafeExecutor binds a relayer client to the Safe owned by s.
func NewSafeExecutor(relayer *RelayerClient, s signer.Signer) *SafeExecutor {
	return &SafeExecutor{relayer: relayer, signer: s}
}

// Execute submits call from the Safe and blocks until the relayer reports it
// mined.
func (e *SafeExecutor) Execute(ctx context.Context, call chain.Call, _ bool) (chain.Receipt, error) {
	submitted, err := e.relayer.Execute(ctx, e.signer, []SafeTransaction{{
		To:    call.To,
		Data:  call.Data,
		Value: call.Value,
	}}, call.Label)
	if err != nil {
		return chain.Receipt{}, err
	}
	mined, err := e.relayer.WaitForTransaction(ctx, submitted.ID)
	if err != nil {
		return chain.Receipt{}, err
	}
	return chain.Receipt{TxHash: common.HexToHash(mined.TransactionHash)}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// encodeMultiSend returns the target, calldata and Safe operation for txns.
// A single call is sent as is; several are packed as
// operation(1) || to(20) || value(32) || len(32) || data and delegate-called
// on MultiSend.
func (r *RelayerClient) encodeMultiSend(txns []SafeTransaction) (common.Address, []byte, uint8, error) {
	if len(txns) == 1 {
		return txns[0].To, txns[0].Data, txns[0].Operation, nil
	}

	var packed []byte
	for _, tx := range txns {
		value := tx.Value
		if value == nil {
			value = new(big.Int)
		}
		packed = append(packed, tx.Operation)
		packed = append(packed, tx.To.Bytes()...)
		packed = append(packed, common.LeftPadBytes(value.Bytes(), 32)...)
		packed = append(packed, common.LeftPadBytes(big.NewInt(int64(len(tx.Data))).Bytes(), 32)...)
		packed = append(packed, tx.Data...)
	}

	parsed, err := abi.JSON(strings.NewReader(multiSendABI))
	if err != nil {
		return common.Address{}, nil, 0, err
	}
	data, err := parsed.Pack("multiSend", packed)
	if err != nil {
		return common.Address{}, nil, 0, err
	}
	return r.contracts.MultiSend, data, 1, nil
}

func (r *RelayerClient) submit(ctx context.Context, body TransactionRequest) (RelayerTransaction, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return RelayerTransaction{}, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/submit", bytes.NewReader(payload))
	if err != nil {
		return RelayerTransaction{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	r.sign(req, "/submit", string(payload))

	respBody, err := doRequest(r.httpClient, req)
	if err != nil {
		return RelayerTransaction{}, err
	}
	var out RelayerTransaction
	if err := json.Unmarshal(respBody, &out); err != nil {
		return RelayerTransaction{}, fmt.Errorf("decode submit response: %w", err)
	}
	if out.Error != "" {
		return out, fmt.Errorf("%w: %s", domain.ErrRejected, out.Error)
	}
	return out, nil
}

func (r *RelayerClient) get(ctx context.Context, pathAndQuery string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+pathAndQuery, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	r.sign(req, pathAndQuery, "")

	respBody, err := doRequest(r.httpClient, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sign applies builder HMAC headers when builder credentials are configured.
func (r *RelayerClient) sign(req *http.Request, path, body string) {
	if !r.builder.Enabled() {
		return
	}
	for k, v := range r.builder.BuilderHeaders(req.Method, path, body) {
		req.Header.Set(k, v)
	}
}

// decodeTransaction accepts either a single transaction object or a list and
// returns the first entry.
func decodeTransaction(raw json.RawMessage) (RelayerTransaction, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return RelayerTransaction{}, false, nil
	}
	if trimmed[0] == '[' {
		var list []RelayerTransaction
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return RelayerTransaction{}, false, err
		}
		if len(list) == 0 {
			return RelayerTransaction{}, false, nil
		}
		return list[0], true, nil
	}
	var one RelayerTransaction
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return RelayerTransaction{}, false, err
	}
	return one, true, nil
}
