package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/escrow"
	"github.com/alanyoungcy/walletlink/internal/order"
)

var creds = domain.ExchangeCredentials{APIKey: "key", APISecret: "c2VjcmV0", APIPassphrase: "pass"}

const signerAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func newTestClient(t *testing.T, status int, body string) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Token: "test-token"}, nil)
	require.NoError(t, err)
	return c, &calls
}

func placeRequest() PlaceOrderRequest {
	return PlaceOrderRequest{
		SignedOrder:   order.SignedOrder{Maker: signerAddr, Signer: signerAddr, Side: order.SideBuy, Signature: "0xdeadbeef"},
		OrderType:     order.OrderTypeGTC,
		Credentials:   creds,
		ClientOrderID: "8a4a4f0c-6f1d-4b5e-9a55-3b1b3f0c1d2e",
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(Config{Token: "x"}, nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = New(Config{BaseURL: "http://localhost"}, nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestPlaceOrderSendsBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, placeOrderPath, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success":true,"result":{"orderID":"0x01","status":"LIVE"}}`)
	}))
	defer srv.Close()
	c, err := New(Config{BaseURL: srv.URL, Token: "t"}, nil)
	require.NoError(t, err)

	req := placeRequest()
	req.FeeAuth = &escrow.FeeAuthorization{OrderID: "0xabc", Payer: signerAddr, Signature: "0x01"}
	res, err := c.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "0x01", res.OrderID)
	assert.Equal(t, StatusLive, res.Status)

	assert.Equal(t, "GTC", got["orderType"])
	assert.Equal(t, req.ClientOrderID, got["clientOrderId"])
	assert.Contains(t, got, "signedOrder")
	assert.Contains(t, got, "feeAuth")
	assert.Equal(t, "key", got["credentials"].(map[string]any)["apiKey"])
}

func TestPlaceOrderEnvelopes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "numeric status echo is a rejection",
			status:  http.StatusOK,
			body:    `{"success":true,"result":{"status":403,"errorMsg":"geo blocked"}}`,
			wantErr: domain.ErrRejected,
			check: func(t *testing.T, err error) {
				var ie *InconsistentEnvelopeError
				require.ErrorAs(t, err, &ie)
				assert.Equal(t, 403, ie.Status)
				assert.ErrorIs(t, err, domain.ErrInconsistentEnvelope)
			},
		},
		{
			name:    "non-2xx is transport",
			status:  http.StatusBadGateway,
			body:    `upstream down`,
			wantErr: domain.ErrTransport,
			check: func(t *testing.T, err error) {
				var te *TransportError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, http.StatusBadGateway, te.StatusCode)
				assert.Equal(t, "upstream down", te.Body)
				assert.NotErrorIs(t, err, domain.ErrRejected)
			},
		},
		{
			name:    "error envelope is application rejection",
			status:  http.StatusOK,
			body:    `{"error":{"code":"INSUFFICIENT_BALANCE","message":"not enough balance"}}`,
			wantErr: domain.ErrRejected,
			check: func(t *testing.T, err error) {
				var ae *ApplicationError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, "not enough balance", ae.Message)
				assert.NotErrorIs(t, err, domain.ErrTransport)
			},
		},
		{
			name:    "bare message is application rejection",
			status:  http.StatusOK,
			body:    `{"message":"order expired"}`,
			wantErr: domain.ErrRejected,
		},
		{
			name:    "empty envelope",
			status:  http.StatusOK,
			body:    `{}`,
			wantErr: domain.ErrEmptyResult,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "empty result")
			},
		},
		{
			name:    "empty body",
			status:  http.StatusOK,
			body:    "",
			wantErr: domain.ErrEmptyResult,
			check: func(t *testing.T, err error) {
				assert.NotErrorIs(t, err, domain.ErrTransport)
			},
		},
		{
			name:    "whitespace body",
			status:  http.StatusOK,
			body:    " \n\t",
			wantErr: domain.ErrEmptyResult,
			check: func(t *testing.T, err error) {
				assert.NotErrorIs(t, err, domain.ErrTransport)
			},
		},
		{
			name:    "success false",
			status:  http.StatusOK,
			body:    `{"success":false,"result":{"errorMsg":"not enough liquidity"}}`,
			wantErr: domain.ErrRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.status, tt.body)
			_, err := c.PlaceOrder(context.Background(), placeRequest())
			require.ErrorIs(t, err, tt.wantErr)
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestPlaceOrderNumericSuccessStatus(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"success":true,"result":{"orderID":"0x02","status":200}}`)
	res, err := c.PlaceOrder(context.Background(), placeRequest())
	require.NoError(t, err)
	assert.Equal(t, "200", res.Status)
}

func TestPlaceOrderValidatesBeforeNetwork(t *testing.T) {
	c, calls := newTestClient(t, http.StatusOK, `{"success":true}`)
	req := placeRequest()
	req.Credentials.APIPassphrase = ""
	_, err := c.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	req = placeRequest()
	req.ClientOrderID = ""
	_, err = c.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestPlaceOrderNetworkFailure(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1", Token: "t"}, nil)
	require.NoError(t, err)
	_, err = c.PlaceOrder(context.Background(), placeRequest())
	require.ErrorIs(t, err, domain.ErrTransport)
}

func TestCancelOrder(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"success":true,"result":{"canceled":["0x01"],"not_canceled":{},"escrowRefund":{"amount":"1000","txHash":"0xaa"}}}`)
	res, err := c.CancelOrder(context.Background(), CancelOrderRequest{OrderID: "0x01", SignerAddress: signerAddr, Credentials: creds})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x01"}, res.Canceled)
	require.NotNil(t, res.EscrowRefund)
	assert.Equal(t, "1000", res.EscrowRefund.Amount)
}

func TestCancelOrderUnsuccessful(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"success":false}`)
	_, err := c.CancelOrder(context.Background(), CancelOrderRequest{OrderID: "0x01", SignerAddress: signerAddr, Credentials: creds})
	require.ErrorIs(t, err, domain.ErrUnsuccessfulCancel)
	assert.ErrorIs(t, err, domain.ErrRejected)
	assert.Contains(t, err.Error(), "unsuccessful cancellation")
}

func TestCancelOrderWithErrorMessage(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"success":false,"error":{"message":"order not found"}}`)
	_, err := c.CancelOrder(context.Background(), CancelOrderRequest{OrderID: "0x01", SignerAddress: signerAddr, Credentials: creds})
	var ae *ApplicationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "order not found", ae.Message)
	assert.False(t, errors.Is(err, domain.ErrUnsuccessfulCancel))
}

func validClaim() escrow.ClaimRequest {
	return escrow.ClaimRequest{
		PositionID:     "0xabc",
		WalletType:     escrow.WalletDirect,
		PayerAddress:   signerAddr,
		SignerAddress:  signerAddr,
		SignedRedeemTx: "0x02f8",
	}
}

func TestClaimWinnings(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"success":true,"result":{"status":"completed","redeemTxHash":"0xbb"}}`)
	res, err := c.ClaimWinnings(context.Background(), validClaim())
	require.NoError(t, err)
	assert.Equal(t, ClaimCompleted, res.Status)
	assert.Equal(t, "0xbb", res.RedeemTxHash)
}

func TestClaimWinningsFailedStatus(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"success":true,"result":{"status":"failed","error":"condition not resolved"}}`)
	res, err := c.ClaimWinnings(context.Background(), validClaim())
	require.ErrorIs(t, err, domain.ErrRejected)
	assert.Equal(t, ClaimFailed, res.Status)
}

func TestClaimWinningsRejectsBeforeNetwork(t *testing.T) {
	c, calls := newTestClient(t, http.StatusOK, `{"success":true}`)
	req := validClaim()
	req.PrivyWalletID = "wallet-1"
	_, err := c.ClaimWinnings(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidClaim)

	req = validClaim()
	req.SignedRedeemTx = ""
	_, err = c.ClaimWinnings(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidClaim)
	assert.Zero(t, atomic.LoadInt32(calls))
}
