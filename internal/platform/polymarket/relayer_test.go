package polymarket

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletlink/internal/chain"
	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

// fakeRelayer records submissions and walks each transaction through the
// given states on successive polls.
type fakeRelayer struct {
	t        *testing.T
	deployed bool
	states   []string

	mu        sync.Mutex
	submitted []TransactionRequest
	polls     int
}

func (f *fakeRelayer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case "/deployed":
		assert.Equal(f.t, "SAFE", r.URL.Query().Get("type"))
		_ = json.NewEncoder(w).Encode(map[string]bool{"deployed": f.deployed})
	case "/nonce":
		_ = json.NewEncoder(w).Encode(map[string]string{"nonce": "4"})
	case "/submit":
		var req TransactionRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.submitted = append(f.submitted, req)
		_ = json.NewEncoder(w).Encode(map[string]string{"transactionID": "tx-1", "state": StateNew})
	case "/transaction":
		assert.Equal(f.t, "tx-1", r.URL.Query().Get("id"))
		state := f.states[min(f.polls, len(f.states)-1)]
		f.polls++
		_ = json.NewEncoder(w).Encode([]map[string]string{{
			"transactionID":   "tx-1",
			"transactionHash": "0x" + common.Bytes2Hex(common.LeftPadBytes([]byte{0xab}, 32)),
			"state":           state,
		}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestRelayer(t *testing.T, f *fakeRelayer) *RelayerClient {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewRelayerClient(RelayerConfig{BaseURL: srv.URL, PollInterval: time.Millisecond}, PolygonContracts)
}

func TestRelayerIsDeployedAndNonce(t *testing.T) {
	f := &fakeRelayer{t: t, deployed: true}
	r := newTestRelayer(t, f)

	ok, err := r.IsDeployed(context.Background(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := r.Nonce(context.Background(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n.Int64())
}

func TestRelayerDeploy(t *testing.T) {
	f := &fakeRelayer{t: t, states: []string{StateNew, StateExecuted, StateMined}}
	r := newTestRelayer(t, f)
	s := testSigner(t)
	owner, _ := s.GetAddress(context.Background())

	txn, err := r.Deploy(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, StateMined, txn.State)
	assert.Equal(t, 3, f.polls)

	require.Len(t, f.submitted, 1)
	req := f.submitted[0]
	assert.Equal(t, RelayerTypeSafeCreate, req.Type)
	assert.Equal(t, PolygonContracts.SafeAddress(owner).Hex(), req.ProxyWallet)
	assert.Equal(t, PolygonContracts.SafeFactory.Hex(), req.To)

	sig, err := hexutil.Decode(req.Signature)
	require.NoError(t, err)
	recovered, err := signer.Recover(r.SafeCreateTypedData(), sig)
	require.NoError(t, err)
	assert.Equal(t, owner, recovered)
}

func TestSafeExecutorSignsSafeTx(t *testing.T) {
	f := &fakeRelayer{t: t, states: []string{StateConfirmed}}
	r := newTestRelayer(t, f)
	s := testSigner(t)
	owner, _ := s.GetAddress(context.Background())

	exec := NewSafeExecutor(r, s)
	call := chain.Call{To: PolygonContracts.Collateral, Data: []byte{0xde, 0xad}, Label: "approve"}
	receipt, err := exec.Execute(context.Background(), call, true)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, receipt.TxHash)

	require.Len(t, f.submitted, 1)
	req := f.submitted[0]
	assert.Equal(t, RelayerTypeSafe, req.Type)
	assert.Equal(t, "4", req.Nonce)
	assert.Equal(t, "approve", req.Metadata)
	assert.Equal(t, "0", req.SignatureParams.Operation)

	safe := PolygonContracts.SafeAddress(owner)
	td := r.SafeTxTypedData(safe, call.To, call.Data, 0, big.NewInt(4))
	sig, err := hexutil.Decode(req.Signature)
	require.NoError(t, err)
	recovered, err := crypto.RecoverTypedData(td, sig)
	require.NoError(t, err)
	assert.Equal(t, owner, recovered)
}

func TestWaitForTransactionFailure(t *testing.T) {
	f := &fakeRelayer{t: t, states: []string{StateNew, StateFailed}}
	r := newTestRelayer(t, f)

	_, err := r.WaitForTransaction(context.Background(), "tx-1")
	require.ErrorIs(t, err, domain.ErrRejected)
}

func TestWaitForTransactionHonoursContext(t *testing.T) {
	f := &fakeRelayer{t: t, states: []string{StateNew}}
	r := newTestRelayer(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.WaitForTransaction(ctx, "tx-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEncodeMultiSend(t *testing.T) {
	r := NewRelayerClient(RelayerConfig{}, PolygonContracts)
	one := SafeTransaction{To: common.HexToAddress("0x01"), Data: []byte{1}}

	to, data, op, err := r.encodeMultiSend([]SafeTransaction{one})
	require.NoError(t, err)
	assert.Equal(t, one.To, to)
	assert.Equal(t, []byte{1}, data)
	assert.Equal(t, uint8(0), op)

	to, data, op, err = r.encodeMultiSend([]SafeTransaction{one, one})
	require.NoError(t, err)
	assert.Equal(t, PolygonContracts.MultiSend, to)
	assert.Equal(t, uint8(1), op)
	assert.Greater(t, len(data), 2*(1+20+32+32+1))
}

func TestRelayerTransactionLegacyID(t *testing.T) {
	var txn RelayerTransaction
	require.NoError(t, json.Unmarshal([]byte(`{"id":"old","state":"STATE_MINED"}`), &txn))
	assert.Equal(t, "old", txn.ID)
	assert.True(t, txn.Succeeded())
}
