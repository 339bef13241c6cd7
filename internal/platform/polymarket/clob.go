package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

// ClobAuthMessage is the fixed attestation text signed for L1 authentication.
const ClobAuthMessage = "This message attests that I control the given wallet"

// ClobClient is the REST client for the Polymarket CLOB auth endpoints. It
// issues exchange API credentials for whichever signer it is handed.
type ClobClient struct {
	baseURL    string
	chainID    int64
	nonce      int64
	httpClient *http.Client
	now        func() time.Time
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com". nonce is
// the L1 auth nonce; credentials derived under one nonce are distinct from
// those under another.
func NewClobClient(baseURL string, chainID, nonce int64, timeout time.Duration) *ClobClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClobClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chainID:    chainID,
		nonce:      nonce,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// ClobAuthTypedData builds the ClobAuth EIP-712 payload for L1 headers.
func ClobAuthTypedData(chainID int64, address string, timestamp, nonce int64) apitypes.TypedData {
	return crypto.NewTypedData(apitypes.TypedDataDomain{
		Name:    "ClobAuthDomain",
		Version: "1",
		ChainId: crypto.ChainID(chainID),
	}, "ClobAuth", []apitypes.Type{
		{Name: "address", Type: "address"},
		{Name: "timestamp", Type: "string"},
		{Name: "nonce", Type: "uint256"},
		{Name: "message", Type: "string"},
	}, apitypes.TypedDataMessage{
		"address":   address,
		"timestamp": strconv.FormatInt(timestamp, 10),
		"nonce":     crypto.Uint256(big.NewInt(nonce)),
		"message":   ClobAuthMessage,
	})
}

// DeriveAPIKey fetches the credentials already bound to the signer's key. The
// result is returned as received; callers decide whether it is complete.
func (c *ClobClient) DeriveAPIKey(ctx context.Context, s signer.Signer) (domain.ExchangeCredentials, error) {
	creds, err := c.authRequest(ctx, s, http.MethodGet, "/auth/derive-api-key")
	if err != nil {
		return domain.ExchangeCredentials{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	return creds, nil
}

// CreateAPIKey asks the exchange to issue new credentials for the signer.
func (c *ClobClient) CreateAPIKey(ctx context.Context, s signer.Signer) (domain.ExchangeCredentials, error) {
	creds, err := c.authRequest(ctx, s, http.MethodPost, "/auth/api-key")
	if err != nil {
		return domain.ExchangeCredentials{}, fmt.Errorf("polymarket/clob: create api key: %w", err)
	}
	return creds, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// l1Headers signs a ClobAuth message and returns POLY_ADDRESS, POLY_SIGNATURE,
// POLY_TIMESTAMP and POLY_NONCE.
func (c *ClobClient) l1Headers(ctx context.Context, s signer.Signer) (map[string]string, error) {
	addr, err := s.GetAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve signer address: %w", err)
	}
	ts := c.now().Unix()
	sig, err := s.SignTypedData(ctx, ClobAuthTypedData(c.chainID, addr.Hex(), ts, c.nonce))
	if err != nil {
		return nil, fmt.Errorf("sign auth message: %w", err)
	}
	return map[string]string{
		"POLY_ADDRESS":   addr.Hex(),
		"POLY_SIGNATURE": hexutil.Encode(sig),
		"POLY_TIMESTAMP": strconv.FormatInt(ts, 10),
		"POLY_NONCE":     strconv.FormatInt(c.nonce, 10),
	}, nil
}

func (c *ClobClient) authRequest(ctx context.Context, s signer.Signer, method, path string) (domain.ExchangeCredentials, error) {
	headers, err := c.l1Headers(ctx, s)
	if err != nil {
		return domain.ExchangeCredentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return domain.ExchangeCredentials{}, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	respBody, err := doRequest(c.httpClient, req)
	if err != nil {
		return domain.ExchangeCredentials{}, err
	}

	var out apiKeyResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return domain.ExchangeCredentials{}, fmt.Errorf("decode auth response: %w", err)
	}
	return domain.ExchangeCredentials{
		APIKey:        out.APIKey,
		APISecret:     out.Secret,
		APIPassphrase: out.Passphrase,
	}, nil
}

// doRequest sends req and returns the body of a 2xx response.
func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors. Every non-2xx is
// a transport failure; some also carry a more specific kind.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := strings.TrimSpace(string(body))
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w: %s", domain.ErrTransport, domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w: %s", domain.ErrTransport, domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s", domain.ErrTransport, domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransport, statusCode, bodyStr)
	}
}
