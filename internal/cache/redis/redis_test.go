package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromClient(rdb), mr
}

func sampleAccount() domain.LinkedAccount {
	return domain.LinkedAccount{
		UserID:              "user-1",
		Topology:            domain.TopologySmartAccount,
		SignerAddress:       "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		SmartAccountAddress: "0x6e0c0b1b3e4c6f0f5c6b5d2b8d1a3d8d9c1c2b3a",
		Credentials:         domain.ExchangeCredentials{APIKey: "key", APISecret: "c2VjcmV0", APIPassphrase: "pass"},
	}
}

func TestCredentialStoreRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	sealer, err := crypto.NewSealer("store-secret")
	require.NoError(t, err)
	store := NewCredentialStore(c, sealer, 0)
	ctx := context.Background()

	_, err = store.Get(ctx, "user-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Put(ctx, sampleAccount()))

	raw, err := mr.Get(accountKey("user-1"))
	require.NoError(t, err)
	assert.NotContains(t, raw, "c2VjcmV0")
	assert.NotContains(t, raw, `"pass"`)

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, sampleAccount().Credentials, got.Credentials)
	assert.Equal(t, sampleAccount().SmartAccountAddress, got.SmartAccountAddress)
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, store.Delete(ctx, "user-1"))
	_, err = store.Get(ctx, "user-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCredentialStoreRejectsIncomplete(t *testing.T) {
	c, mr := newTestClient(t)
	store := NewCredentialStore(c, nil, time.Minute)
	acct := sampleAccount()
	acct.Credentials.APISecret = ""

	err := store.Put(context.Background(), acct)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.False(t, mr.Exists(accountKey("user-1")))
}

func TestCredentialStoreTTL(t *testing.T) {
	c, mr := newTestClient(t)
	store := NewCredentialStore(c, nil, time.Minute)
	require.NoError(t, store.Put(context.Background(), sampleAccount()))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(context.Background(), "user-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockManager(t *testing.T) {
	c, _ := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "link:user-1", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "link:user-1", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	again, err := lm.Acquire(ctx, "link:user-1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockExpires(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	_, err := lm.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlock, err := lm.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	unlock()
}

func TestRateLimiter(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "orders:user-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
		now = now.Add(time.Millisecond)
	}
	ok, err := rl.Allow(ctx, "orders:user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "orders:user-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = rl.Allow(ctx, "orders:user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBus(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "progress:user-1")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "progress:user-1", []byte(`{"step":"deploy"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"step":"deploy"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
