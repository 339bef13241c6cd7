package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletlink/internal/backend"
	"github.com/alanyoungcy/walletlink/internal/chain"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/escrow"
	"github.com/alanyoungcy/walletlink/internal/linker"
	"github.com/alanyoungcy/walletlink/internal/order"
	"github.com/alanyoungcy/walletlink/internal/platform/polymarket"
	"github.com/alanyoungcy/walletlink/internal/signer"
	"github.com/alanyoungcy/walletlink/internal/store/memory"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testAddr   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	escrowAddr = common.HexToAddress("0x00000000000000000000000000000000000e5c70")
	testCreds  = domain.ExchangeCredentials{APIKey: "key-1", APISecret: "c2VjcmV0", APIPassphrase: "pass"}
)

type fakeWallets struct {
	s signer.Signer
}

func (w fakeWallets) Signer(context.Context, string) (signer.Signer, error) { return w.s, nil }
func (w fakeWallets) DirectExecutor(string) *chain.DirectExecutor        { return nil }

type fakeLinker struct {
	store domain.CredentialStore
	err   error
	opts  linker.Options
}

func (f *fakeLinker) LinkDirect(ctx context.Context, userID string, s signer.Signer, opts linker.Options) (domain.ExchangeCredentials, error) {
	f.opts = opts
	opts.OnProgress.Emit(domain.Progress{Step: string(linker.StateCheckAllowances), Index: 1, Total: 4})
	if f.err != nil {
		return domain.ExchangeCredentials{}, f.err
	}
	addr, _ := s.GetAddress(ctx)
	err := f.store.Put(ctx, domain.LinkedAccount{UserID: userID, Topology: domain.TopologyDirect, SignerAddress: addr.Hex(), Credentials: testCreds})
	return testCreds, err
}

func (f *fakeLinker) LinkSmartAccount(ctx context.Context, userID string, s signer.Signer, opts linker.Options) (linker.SmartAccountResult, error) {
	f.opts = opts
	if f.err != nil {
		return linker.SmartAccountResult{}, f.err
	}
	owner, _ := s.GetAddress(ctx)
	safe := polymarket.PolygonContracts.SafeAddress(owner)
	err := f.store.Put(ctx, domain.LinkedAccount{
		UserID: userID, Topology: domain.TopologySmartAccount,
		SignerAddress: owner.Hex(), SmartAccountAddress: safe.Hex(), Credentials: testCreds,
	})
	return linker.SmartAccountResult{
		Credentials: testCreds, OwnerAddress: owner, SmartAccountAddress: safe,
		DeployedThisCall: true, AllowancesSet: 6,
	}, err
}

type fakeBackend struct {
	mu       sync.Mutex
	placed   []backend.PlaceOrderRequest
	canceled []backend.CancelOrderRequest
	claims   []escrow.ClaimRequest
	err      error
}

func (b *fakeBackend) PlaceOrder(_ context.Context, req backend.PlaceOrderRequest) (backend.PlaceOrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placed = append(b.placed, req)
	if b.err != nil {
		return backend.PlaceOrderResult{}, b.err
	}
	return backend.PlaceOrderResult{OrderID: "0xorder", Status: backend.StatusLive}, nil
}

func (b *fakeBackend) CancelOrder(_ context.Context, req backend.CancelOrderRequest) (backend.CancelOrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.canceled = append(b.canceled, req)
	return backend.CancelOrderResult{Canceled: []string{req.OrderID}, EscrowRefund: &backend.EscrowRefund{Amount: "100"}}, b.err
}

func (b *fakeBackend) ClaimWinnings(_ context.Context, req escrow.ClaimRequest) (backend.ClaimResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.claims = append(b.claims, req)
	if err := req.Validate(); err != nil {
		return backend.ClaimResult{}, err
	}
	return backend.ClaimResult{Status: backend.ClaimCompleted, RedeemTxHash: "0xabc", Payout: "2000000"}, b.err
}

type fakeArchiver struct {
	mu    sync.Mutex
	kinds []string
}

func (a *fakeArchiver) Archive(_ context.Context, kind, _ string, _ any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, kind)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(_ context.Context, _, _, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

type fixture struct {
	signer   *signer.PrivateKeySigner
	store    *memory.CredentialStore
	audit    *memory.AuditStore
	bus      *memory.SignalBus
	archiver *fakeArchiver
	notifier *fakeNotifier
	backend  *fakeBackend
	deps     Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := signer.FromHex(testKey)
	require.NoError(t, err)
	f := &fixture{
		signer:   s,
		store:    memory.NewCredentialStore(),
		audit:    memory.NewAuditStore(),
		bus:      memory.NewSignalBus(),
		archiver: &fakeArchiver{},
		notifier: &fakeNotifier{},
		backend:  &fakeBackend{},
	}
	f.deps = Deps{Audit: f.audit, Archiver: f.archiver, Bus: f.bus, Notifier: f.notifier}
	return f
}

func (f *fixture) events(t *testing.T, userID string) []string {
	t.Helper()
	entries, err := f.audit.List(context.Background(), userID, domain.ListOpts{})
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Event)
	}
	return out
}

func (f *fixture) linkDirect(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), domain.LinkedAccount{
		UserID: userID, Topology: domain.TopologyDirect, SignerAddress: testAddr.Hex(), Credentials: testCreds,
	}))
}

func boolPtr(b bool) *bool { return &b }

func TestLinkDirectAppliesDefaultsAndPublishesProgress(t *testing.T) {
	f := newFixture(t)
	fl := &fakeLinker{store: f.store}
	svc := NewLinkService(fl, fakeWallets{f.signer}, f.store, memory.NewLockManager(),
		LinkDefaults{AutoApprove: true, SponsorGas: true}, f.deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	progress, err := f.bus.Subscribe(ctx, ProgressChannel("u1"))
	require.NoError(t, err)

	res, err := svc.Link(ctx, LinkRequest{UserID: "u1", Topology: domain.TopologyDirect})
	require.NoError(t, err)
	assert.Equal(t, testAddr.Hex(), res.SignerAddress)
	assert.Equal(t, "key-1", res.APIKey)

	assert.True(t, fl.opts.AutoApprove)
	assert.False(t, fl.opts.AllowDeploy)
	assert.False(t, fl.opts.SponsorGas, "sponsor default must not reach direct links")

	select {
	case payload := <-progress:
		var ev ProgressEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Equal(t, "u1", ev.UserID)
		assert.Equal(t, "link", ev.Flow)
		assert.Equal(t, string(linker.StateCheckAllowances), ev.Step.Step)
	case <-time.After(time.Second):
		t.Fatal("no progress event published")
	}

	assert.Equal(t, []string{domain.AuditLinkCompleted}, f.events(t, "u1"))
}

func TestLinkSmartAccountRequestOverridesDefaults(t *testing.T) {
	f := newFixture(t)
	fl := &fakeLinker{store: f.store}
	svc := NewLinkService(fl, fakeWallets{f.signer}, f.store, nil, LinkDefaults{AllowDeploy: true, AutoApprove: true}, f.deps)

	res, err := svc.Link(context.Background(), LinkRequest{
		UserID: "u1", Topology: domain.TopologySmartAccount,
		AllowDeploy: boolPtr(false), SponsorGas: boolPtr(true),
	})
	require.NoError(t, err)
	assert.False(t, fl.opts.AllowDeploy)
	assert.True(t, fl.opts.AutoApprove)
	assert.True(t, fl.opts.SponsorGas)
	assert.True(t, res.DeployedThisCall)
	assert.Equal(t, 6, res.AllowancesSet)
	assert.Equal(t, polymarket.PolygonContracts.SafeAddress(testAddr).Hex(), res.SmartAccountAddress)
}

func TestLinkRejectsConcurrentFlowForSameUser(t *testing.T) {
	f := newFixture(t)
	locks := memory.NewLockManager()
	svc := NewLinkService(&fakeLinker{store: f.store}, fakeWallets{f.signer}, f.store, locks, LinkDefaults{}, f.deps)

	unlock, err := locks.Acquire(context.Background(), "link:u1", time.Minute)
	require.NoError(t, err)
	defer unlock()

	_, err = svc.Link(context.Background(), LinkRequest{UserID: "u1", Topology: domain.TopologyDirect})
	require.ErrorIs(t, err, domain.ErrLockHeld)

	_, err = svc.Link(context.Background(), LinkRequest{UserID: "u2", Topology: domain.TopologyDirect})
	require.NoError(t, err)
}

func TestLinkFailureIsAuditedWithState(t *testing.T) {
	f := newFixture(t)
	fl := &fakeLinker{store: f.store, err: &linker.StepError{State: linker.StateDeploy, Err: domain.ErrPrecondition}}
	svc := NewLinkService(fl, fakeWallets{f.signer}, f.store, nil, LinkDefaults{}, f.deps)

	_, err := svc.Link(context.Background(), LinkRequest{UserID: "u1", Topology: domain.TopologySmartAccount})
	require.ErrorIs(t, err, domain.ErrPrecondition)

	entries, err := f.audit.List(context.Background(), "u1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditLinkFailed, entries[0].Event)
	assert.Equal(t, string(linker.StateDeploy), entries[0].Detail["state"])
}

func TestLinkValidatesRequest(t *testing.T) {
	f := newFixture(t)
	svc := NewLinkService(&fakeLinker{store: f.store}, fakeWallets{f.signer}, f.store, nil, LinkDefaults{}, f.deps)

	_, err := svc.Link(context.Background(), LinkRequest{Topology: domain.TopologyDirect})
	require.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = svc.Link(context.Background(), LinkRequest{UserID: "u1", Topology: "proxy"})
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestAccountViewHasNoSecrets(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	svc := NewLinkService(&fakeLinker{store: f.store}, fakeWallets{f.signer}, f.store, nil, LinkDefaults{}, f.deps)

	view, err := svc.Account(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, testAddr.Hex(), view.FunderAddress)
	assert.Equal(t, domain.SignatureTypeEOA, view.SignatureType)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), testCreds.APISecret)
	assert.NotContains(t, string(raw), testCreds.APIPassphrase)

	_, err = svc.Account(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func newTradeService(t *testing.T, f *fixture, limiter domain.RateLimiter, cfg TradeConfig) *TradeService {
	t.Helper()
	auth, err := escrow.NewAuthorizer(polymarket.ChainPolygon, escrowAddr, time.Minute)
	require.NoError(t, err)
	return NewTradeService(order.NewBuilder(polymarket.PolygonContracts), f.backend, f.store,
		fakeWallets{f.signer}, limiter, auth, cfg, f.deps)
}

func buyInput(userID string) PlaceOrderInput {
	return PlaceOrderInput{
		UserID:  userID,
		TokenID: "1234",
		Side:    "buy",
		Size:    decimal.NewFromInt(10),
		Price:   decimal.RequireFromString("0.5"),
	}
}

func TestPlaceOrderAttachesFeeAuthorization(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	svc := newTradeService(t, f, nil, TradeConfig{Fees: escrow.FeeSchedule{FeeBps: 100, ReferrerShareBps: 2000}})

	out, err := svc.PlaceOrder(context.Background(), buyInput("u1"))
	require.NoError(t, err)
	assert.Equal(t, "0xorder", out.Result.OrderID)
	assert.NotEmpty(t, out.ClientOrderID)

	require.Len(t, f.backend.placed, 1)
	req := f.backend.placed[0]
	assert.Equal(t, order.OrderTypeGTC, req.OrderType)
	assert.Equal(t, testCreds, req.Credentials)
	assert.Equal(t, "5000000", req.SignedOrder.MakerAmount)

	require.NotNil(t, req.FeeAuth)
	assert.Equal(t, "40000", req.FeeAuth.PlatformFee)
	assert.Equal(t, "10000", req.FeeAuth.ReferrerFee)
	assert.Equal(t, testAddr.Hex(), req.FeeAuth.Payer)
	id, err := escrow.OrderIDFor(req.SignedOrder)
	require.NoError(t, err)
	assert.Equal(t, id.Hex(), req.FeeAuth.OrderID)

	assert.Equal(t, []string{domain.AuditOrderPlaced}, f.events(t, "u1"))
	assert.Contains(t, f.archiver.kinds, "orders")
	assert.Contains(t, f.archiver.kinds, "fee-authorizations")
}

func TestPlaceOrderWithoutFeeSkipsAuthorization(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	svc := newTradeService(t, f, nil, TradeConfig{})

	_, err := svc.PlaceOrder(context.Background(), buyInput("u1"))
	require.NoError(t, err)
	require.Len(t, f.backend.placed, 1)
	assert.Nil(t, f.backend.placed[0].FeeAuth)
}

func TestPlaceOrderRateLimited(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	svc := newTradeService(t, f, memory.NewRateLimiter(), TradeConfig{OrdersPerWindow: 1, Window: time.Hour})

	_, err := svc.PlaceOrder(context.Background(), buyInput("u1"))
	require.NoError(t, err)
	_, err = svc.PlaceOrder(context.Background(), buyInput("u1"))
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Len(t, f.backend.placed, 1)
}

func TestPlaceOrderRequiresLinkedSigner(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Put(context.Background(), domain.LinkedAccount{
		UserID: "u1", Topology: domain.TopologyDirect,
		SignerAddress: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Credentials: testCreds,
	}))
	svc := newTradeService(t, f, nil, TradeConfig{})

	_, err := svc.PlaceOrder(context.Background(), buyInput("u1"))
	require.ErrorIs(t, err, domain.ErrPrecondition)
	assert.Empty(t, f.backend.placed)

	_, err = svc.PlaceOrder(context.Background(), buyInput("nobody"))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPlaceOrderRejectionIsAudited(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	f.backend.err = &backend.ApplicationError{Path: "/orders/place", Message: "not enough balance"}
	svc := newTradeService(t, f, nil, TradeConfig{Fees: escrow.FeeSchedule{FeeBps: 100, ReferrerShareBps: 2000}})

	_, err := svc.PlaceOrder(context.Background(), buyInput("u1"))
	require.ErrorIs(t, err, domain.ErrRejected)
	assert.Equal(t, []string{domain.AuditOrderRejected}, f.events(t, "u1"))
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "for 5 USDC (fee 0.05 USDC)")
}

func TestPlaceOrderSmartAccountFundsFromSafe(t *testing.T) {
	f := newFixture(t)
	safe := polymarket.PolygonContracts.SafeAddress(testAddr)
	require.NoError(t, f.store.Put(context.Background(), domain.LinkedAccount{
		UserID: "u1", Topology: domain.TopologySmartAccount,
		SignerAddress: testAddr.Hex(), SmartAccountAddress: safe.Hex(), Credentials: testCreds,
	}))
	svc := newTradeService(t, f, nil, TradeConfig{Fees: escrow.FeeSchedule{FeeBps: 50}})

	out, err := svc.PlaceOrder(context.Background(), buyInput("u1"))
	require.NoError(t, err)
	assert.Equal(t, safe.Hex(), out.Order.Maker)
	assert.Equal(t, testAddr.Hex(), out.Order.Signer)
	assert.Equal(t, domain.SignatureTypeGnosisSafe, out.Order.SignatureType)
	require.NotNil(t, out.FeeAuth)
	assert.Equal(t, safe.Hex(), out.FeeAuth.Payer)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	svc := newTradeService(t, f, nil, TradeConfig{})

	res, err := svc.CancelOrder(context.Background(), "u1", "0xorder")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xorder"}, res.Canceled)
	require.Len(t, f.backend.canceled, 1)
	assert.Equal(t, testAddr.Hex(), f.backend.canceled[0].SignerAddress)
	assert.Equal(t, []string{domain.AuditOrderCanceled}, f.events(t, "u1"))

	_, err = svc.CancelOrder(context.Background(), "u1", "")
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

const conditionHex = "0x1111111111111111111111111111111111111111111111111111111111111111"

func newClaimService(t *testing.T, f *fixture, performanceBps int64) *ClaimService {
	t.Helper()
	auth, err := escrow.NewAuthorizer(polymarket.ChainPolygon, escrowAddr, time.Minute)
	require.NoError(t, err)
	return NewClaimService(f.backend, f.store, fakeWallets{f.signer}, polymarket.PolygonContracts, auth, performanceBps, f.deps)
}

func TestClaimCustodialDelegates(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	svc := newClaimService(t, f, 0)

	res, err := svc.Claim(context.Background(), ClaimInput{UserID: "u1", WalletID: "wallet-1", ConditionID: conditionHex, OutcomeIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, backend.ClaimCompleted, res.Status)

	require.Len(t, f.backend.claims, 1)
	req := f.backend.claims[0]
	assert.Equal(t, escrow.WalletCustodial, req.WalletType)
	assert.Equal(t, "wallet-1", req.PrivyWalletID)
	require.NotNil(t, req.OutcomeIndex)
	assert.Equal(t, 1, *req.OutcomeIndex)
	assert.Empty(t, req.SignedRedeemTx)
	assert.Nil(t, req.PerformanceFeeAuth)

	want, err := escrow.PositionID(testAddr, common.HexToHash(conditionHex), 1)
	require.NoError(t, err)
	assert.Equal(t, want.Hex(), req.PositionID)
	assert.Equal(t, []string{domain.AuditClaim}, f.events(t, "u1"))
}

func TestClaimPreSignedWithPerformanceFee(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	svc := newClaimService(t, f, 1000)

	_, err := svc.Claim(context.Background(), ClaimInput{
		UserID: "u1", ConditionID: conditionHex, OutcomeIndex: 0, SignedRedeemTx: "0x02f8",
		Payout: big.NewInt(2_000_000), CostBasis: big.NewInt(1_000_000),
	})
	require.NoError(t, err)
	require.Len(t, f.backend.claims, 1)
	req := f.backend.claims[0]
	assert.Equal(t, escrow.WalletDirect, req.WalletType)
	assert.Equal(t, "0x02f8", req.SignedRedeemTx)
	require.NotNil(t, req.PerformanceFeeAuth)
	assert.Equal(t, "100000", req.PerformanceFeeAuth.Fee)
	assert.Equal(t, req.PositionID, req.PerformanceFeeAuth.PositionID)
}

func TestClaimFailureNotifiesWithFee(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	f.backend.err = &backend.ApplicationError{Path: "/claims", Message: "already redeemed"}
	svc := newClaimService(t, f, 1000)

	_, err := svc.Claim(context.Background(), ClaimInput{
		UserID: "u1", ConditionID: conditionHex, SignedRedeemTx: "0x02f8",
		Payout: big.NewInt(2_000_000), CostBasis: big.NewInt(1_000_000),
	})
	require.ErrorIs(t, err, domain.ErrRejected)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "(payout 2 USDC, fee 0.1 USDC)")
}

func TestClaimLossPaysNoPerformanceFee(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	svc := newClaimService(t, f, 1000)

	_, err := svc.Claim(context.Background(), ClaimInput{
		UserID: "u1", ConditionID: conditionHex, SignedRedeemTx: "0x02f8",
		Payout: big.NewInt(500_000), CostBasis: big.NewInt(1_000_000),
	})
	require.NoError(t, err)
	assert.Nil(t, f.backend.claims[0].PerformanceFeeAuth)
}

func TestClaimErrors(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	require.NoError(t, f.store.Put(context.Background(), domain.LinkedAccount{
		UserID: "safe", Topology: domain.TopologySmartAccount, SignerAddress: testAddr.Hex(),
		SmartAccountAddress: polymarket.PolygonContracts.SafeAddress(testAddr).Hex(), Credentials: testCreds,
	}))
	svc := newClaimService(t, f, 0)

	tests := []struct {
		name string
		in   ClaimInput
		want error
	}{
		{"bad condition", ClaimInput{UserID: "u1", ConditionID: "0x12", SignedRedeemTx: "0x02"}, domain.ErrInvalidClaim},
		{"negative index", ClaimInput{UserID: "u1", ConditionID: conditionHex, OutcomeIndex: -1}, domain.ErrInvalidClaim},
		{"local key without chain", ClaimInput{UserID: "u1", ConditionID: conditionHex}, domain.ErrConfiguration},
		{"smart account local key", ClaimInput{UserID: "safe", ConditionID: conditionHex}, domain.ErrInvalidClaim},
		{"unknown user", ClaimInput{UserID: "nobody", ConditionID: conditionHex, SignedRedeemTx: "0x02"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Claim(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	assert.Empty(t, f.backend.claims)
}

type countingWallets struct {
	fakeWallets
	lookups int
}

func (w *countingWallets) Signer(ctx context.Context, walletID string) (signer.Signer, error) {
	w.lookups++
	return w.fakeWallets.Signer(ctx, walletID)
}

func TestClaimRejectsSignedTxWithCustodialWallet(t *testing.T) {
	f := newFixture(t)
	f.linkDirect(t, "u1")
	auth, err := escrow.NewAuthorizer(polymarket.ChainPolygon, escrowAddr, time.Minute)
	require.NoError(t, err)
	wallets := &countingWallets{fakeWallets: fakeWallets{f.signer}}
	svc := NewClaimService(f.backend, f.store, wallets, polymarket.PolygonContracts, auth, 0, f.deps)

	_, err = svc.Claim(context.Background(), ClaimInput{
		UserID: "u1", WalletID: "wallet-1", ConditionID: conditionHex, SignedRedeemTx: "0x02f8",
	})
	require.ErrorIs(t, err, domain.ErrInvalidClaim)
	assert.Zero(t, wallets.lookups)
	assert.Empty(t, f.backend.claims)
	assert.Empty(t, f.events(t, "u1"))
}
