package tiered

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/store/memory"
)

func account(userID string) domain.LinkedAccount {
	return domain.LinkedAccount{
		UserID:        userID,
		Topology:      domain.TopologyDirect,
		SignerAddress: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Credentials:   domain.ExchangeCredentials{APIKey: "k", APISecret: "s", APIPassphrase: "p"},
		UpdatedAt:     time.Unix(1_700_000_000, 0).UTC(),
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (domain.LinkedAccount, error) {
	return domain.LinkedAccount{}, errors.New("connection refused")
}
func (brokenStore) Put(context.Context, domain.LinkedAccount) error { return errors.New("connection refused") }
func (brokenStore) Delete(context.Context, string) error           { return errors.New("connection refused") }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGetRefillsCache(t *testing.T) {
	ctx := context.Background()
	cache, durable := memory.NewCredentialStore(), memory.NewCredentialStore()
	require.NoError(t, durable.Put(ctx, account("u1")))

	s := NewCredentialStore(cache, durable, quiet())
	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, 1, cache.Len())
}

func TestGetMissingEverywhere(t *testing.T) {
	s := NewCredentialStore(memory.NewCredentialStore(), memory.NewCredentialStore(), quiet())
	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPutWritesBothAndRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	cache, durable := memory.NewCredentialStore(), memory.NewCredentialStore()
	s := NewCredentialStore(cache, durable, quiet())

	require.NoError(t, s.Put(ctx, account("u1")))
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 1, durable.Len())

	bad := account("u2")
	bad.Credentials.APISecret = ""
	assert.ErrorIs(t, s.Put(ctx, bad), domain.ErrInvalidCredentials)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheFailuresDegradeToDurable(t *testing.T) {
	ctx := context.Background()
	durable := memory.NewCredentialStore()
	s := NewCredentialStore(brokenStore{}, durable, quiet())

	require.NoError(t, s.Put(ctx, account("u1")))
	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	assert.Error(t, s.Delete(ctx, "u1"), "eviction failure must not leave a stale cache entry behind")
}

func TestDeleteRemovesBoth(t *testing.T) {
	ctx := context.Background()
	cache, durable := memory.NewCredentialStore(), memory.NewCredentialStore()
	s := NewCredentialStore(cache, durable, quiet())
	require.NoError(t, s.Put(ctx, account("u1")))

	require.NoError(t, s.Delete(ctx, "u1"))
	assert.Zero(t, cache.Len())
	assert.Zero(t, durable.Len())
}
