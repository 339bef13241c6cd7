package allowance

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletlink/internal/chain"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/platform/polymarket"
)

var owner = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// fakeChain answers allowance and isApprovedForAll reads from in-memory state
// and applies approvals executed against it.
type fakeChain struct {
	erc20   abi.ABI
	erc1155 abi.ABI

	mu        sync.Mutex
	allowance map[common.Address]*big.Int // spender -> amount
	operators map[common.Address]bool
	calls     []chain.Call
	failAt    int // 1-based execute index that fails; 0 = never
	readErr   error
}

func newFakeChain(t *testing.T) *fakeChain {
	m := newManager(t, nil)
	return &fakeChain{
		erc20:     m.erc20,
		erc1155:   m.erc1155,
		allowance: map[common.Address]*big.Int{},
		operators: map[common.Address]bool{},
	}
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	id := msg.Data[:4]
	switch {
	case bytes.Equal(id, f.erc20.Methods["allowance"].ID):
		args, err := f.erc20.Methods["allowance"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		amount := f.allowance[args[1].(common.Address)]
		if amount == nil {
			amount = new(big.Int)
		}
		return f.erc20.Methods["allowance"].Outputs.Pack(amount)
	case bytes.Equal(id, f.erc1155.Methods["isApprovedForAll"].ID):
		args, err := f.erc1155.Methods["isApprovedForAll"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		return f.erc1155.Methods["isApprovedForAll"].Outputs.Pack(f.operators[args[1].(common.Address)])
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeChain) Execute(_ context.Context, call chain.Call, _ bool) (chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failAt == len(f.calls) {
		return chain.Receipt{}, errors.New("execution reverted")
	}
	id := call.Data[:4]
	switch {
	case bytes.Equal(id, f.erc20.Methods["approve"].ID):
		args, _ := f.erc20.Methods["approve"].Inputs.Unpack(call.Data[4:])
		f.allowance[args[0].(common.Address)] = args[1].(*big.Int)
	case bytes.Equal(id, f.erc1155.Methods["setApprovalForAll"].ID):
		args, _ := f.erc1155.Methods["setApprovalForAll"].Inputs.Unpack(call.Data[4:])
		f.operators[args[0].(common.Address)] = args[1].(bool)
	}
	return chain.Receipt{TxHash: common.BigToHash(big.NewInt(int64(len(f.calls))))}, nil
}

func newManager(t *testing.T, caller ethereum.ContractCaller) *Manager {
	t.Helper()
	m, err := NewManager(caller, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return m
}

func TestIsSufficientThreshold(t *testing.T) {
	below := new(big.Int).Sub(UnlimitedThreshold, big.NewInt(1))
	assert.False(t, IsSufficient(below))
	assert.True(t, IsSufficient(UnlimitedThreshold))
	assert.True(t, IsSufficient(MaxUint256))
	assert.False(t, IsSufficient(nil))
	assert.False(t, IsSufficient(big.NewInt(1)))
}

func TestPolymarketSpenders(t *testing.T) {
	spenders := PolymarketSpenders(polymarket.PolygonContracts)
	require.Len(t, spenders, 6)
	keys := map[string]bool{}
	for _, sp := range spenders {
		keys[sp.Key()] = true
	}
	assert.Len(t, keys, 6, "keys are unique")
	assert.Equal(t, polymarket.PolygonContracts.Collateral, spenders[0].Token)
	assert.Equal(t, polymarket.PolygonContracts.ConditionalTokens, spenders[5].Token)
}

func TestCheck(t *testing.T) {
	fc := newFakeChain(t)
	spenders := PolymarketSpenders(polymarket.PolygonContracts)
	fc.allowance[spenders[0].Address] = new(big.Int).Set(UnlimitedThreshold)
	fc.allowance[spenders[1].Address] = new(big.Int).Sub(UnlimitedThreshold, big.NewInt(1))
	fc.operators[spenders[3].Address] = true

	m := newManager(t, fc)
	status, err := m.Check(context.Background(), owner, spenders)
	require.NoError(t, err)
	require.Len(t, status, 6)

	assert.True(t, status[spenders[0].Key()].Sufficient)
	assert.False(t, status[spenders[1].Key()].Sufficient)
	assert.False(t, status[spenders[2].Key()].Sufficient)
	assert.True(t, status[spenders[3].Key()].Sufficient)
	assert.Equal(t, 0, status[spenders[3].Key()].Allowance.Cmp(MaxUint256))
	assert.False(t, status[spenders[4].Key()].Sufficient)
}

func TestCheckPropagatesReadError(t *testing.T) {
	fc := newFakeChain(t)
	fc.readErr = errors.New("rpc down")
	_, err := newManager(t, fc).Check(context.Background(), owner, PolymarketSpenders(polymarket.PolygonContracts))
	require.ErrorIs(t, err, domain.ErrTransport)
}

func TestSetApprovesOnlyMissing(t *testing.T) {
	fc := newFakeChain(t)
	spenders := PolymarketSpenders(polymarket.PolygonContracts)
	fc.allowance[spenders[0].Address] = new(big.Int).Set(MaxUint256)
	fc.operators[spenders[4].Address] = true

	var events []domain.Progress
	m := newManager(t, fc)
	res, err := m.Set(context.Background(), fc, owner, spenders, SetOptions{
		OnProgress: func(p domain.Progress) { events = append(events, p) },
	})
	require.NoError(t, err)

	assert.Len(t, res.AlreadyApproved, 2)
	assert.Len(t, res.NewlyApproved, 4)
	assert.Len(t, fc.calls, 4)
	require.Len(t, events, 8)
	assert.Equal(t, domain.Progress{Step: spenders[1].Name, Index: 1, Total: 4, Detail: "submitting"}, events[0])
	assert.Equal(t, "confirmed", events[7].Detail)
	assert.Equal(t, 4, events[7].Index)

	// Re-running is a no-op.
	again, err := m.Set(context.Background(), fc, owner, spenders, SetOptions{})
	require.NoError(t, err)
	assert.Len(t, again.AlreadyApproved, 6)
	assert.Empty(t, again.NewlyApproved)
	assert.Len(t, fc.calls, 4)
}

func TestSetFailsFast(t *testing.T) {
	fc := newFakeChain(t)
	fc.failAt = 3
	spenders := PolymarketSpenders(polymarket.PolygonContracts)

	var confirmed int
	m := newManager(t, fc)
	res, err := m.Set(context.Background(), fc, owner, spenders, SetOptions{
		OnProgress: func(p domain.Progress) {
			if p.Detail == "confirmed" {
				confirmed++
			}
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), spenders[2].Name)
	assert.Len(t, res.NewlyApproved, 2)
	assert.Equal(t, 2, confirmed)
	assert.Len(t, fc.calls, 3, "nothing is submitted after the failure")
}

func TestApprovalCallTargetsToken(t *testing.T) {
	m := newManager(t, nil)
	sp := PolymarketSpenders(polymarket.PolygonContracts)[0]
	call, err := m.ApprovalCall(sp)
	require.NoError(t, err)
	assert.Equal(t, sp.Token, call.To)
	assert.Equal(t, m.erc20.Methods["approve"].ID, call.Data[:4])
}
