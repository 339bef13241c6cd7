package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/walletlink/internal/chain"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

// Wallets resolves the signer for a request. An empty walletID selects the
// operator's local key; anything else names a custodial wallet.
type Wallets interface {
	Signer(ctx context.Context, walletID string) (signer.Signer, error)
	// DirectExecutor returns an executor that sends transactions from the
	// wallet itself, or nil when the wallet cannot sign raw transactions.
	DirectExecutor(walletID string) *chain.DirectExecutor
}

// WalletPoolConfig configures a WalletPool.
type WalletPoolConfig struct {
	Local        *signer.PrivateKeySigner
	Custody      *signer.CustodyConfig
	Chain        chain.Backend
	ChainID      int64
	PollInterval time.Duration
	Logger       *slog.Logger
}

// WalletPool implements Wallets. Custodial signers are cached per wallet so
// their address lookups are reused.
type WalletPool struct {
	cfg WalletPoolConfig

	mu      sync.Mutex
	custody map[string]*signer.CustodySigner
}

var _ Wallets = (*WalletPool)(nil)

// NewWalletPool creates a WalletPool.
func NewWalletPool(cfg WalletPoolConfig) *WalletPool {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WalletPool{cfg: cfg, custody: make(map[string]*signer.CustodySigner)}
}

// Signer implements Wallets.
func (p *WalletPool) Signer(_ context.Context, walletID string) (signer.Signer, error) {
	if walletID == "" {
		if p.cfg.Local == nil {
			return nil, fmt.Errorf("service/wallets: %w: no local signing key configured", domain.ErrConfiguration)
		}
		return p.cfg.Local, nil
	}
	if p.cfg.Custody == nil {
		return nil, fmt.Errorf("service/wallets: %w: custodial wallets are not configured", domain.ErrConfiguration)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.custody[walletID]; ok {
		return s, nil
	}
	s, err := signer.NewCustodySigner(*p.cfg.Custody, walletID)
	if err != nil {
		return nil, err
	}
	p.custody[walletID] = s
	return s, nil
}

// DirectExecutor implements Wallets. Only the local key signs raw
// transactions.
func (p *WalletPool) DirectExecutor(walletID string) *chain.DirectExecutor {
	if walletID != "" || p.cfg.Local == nil || p.cfg.Chain == nil {
		return nil
	}
	return chain.NewDirectExecutor(p.cfg.Chain, p.cfg.Local, p.cfg.ChainID, p.cfg.PollInterval, p.cfg.Logger)
}
