package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/walletlink/internal/blob/s3"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/linker"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

// Linker is the subset of *linker.Linker the service drives.
type Linker interface {
	LinkDirect(ctx context.Context, userID string, s signer.Signer, opts linker.Options) (domain.ExchangeCredentials, error)
	LinkSmartAccount(ctx context.Context, userID string, s signer.Signer, opts linker.Options) (linker.SmartAccountResult, error)
}

var _ Linker = (*linker.Linker)(nil)

// LinkDefaults are the operator's default link switches.
type LinkDefaults struct {
	AllowDeploy bool
	AutoApprove bool
	SponsorGas  bool
	LockTTL     time.Duration
}

// LinkRequest asks for one wallet to be linked. Nil switches fall back to
// LinkDefaults.
type LinkRequest struct {
	UserID      string          `json:"user_id"`
	WalletID    string          `json:"wallet_id,omitempty"`
	Topology    domain.Topology `json:"-"`
	AllowDeploy *bool           `json:"allow_deploy,omitempty"`
	AutoApprove *bool           `json:"auto_approve,omitempty"`
	SponsorGas  *bool           `json:"sponsor_gas,omitempty"`

	OnProgress domain.ProgressFunc `json:"-"`
}

// LinkResult is the outcome reported to callers. It never carries the API
// secret or passphrase.
type LinkResult struct {
	UserID                    string          `json:"user_id"`
	Topology                  domain.Topology `json:"topology"`
	SignerAddress             string          `json:"signer_address"`
	SmartAccountAddress       string          `json:"smart_account_address,omitempty"`
	APIKey                    string          `json:"api_key"`
	AlreadyDeployed           bool            `json:"already_deployed"`
	DeployedThisCall          bool            `json:"deployed_this_call"`
	AllowancesSet             int             `json:"allowances_set"`
	AllowancesAlreadyApproved int             `json:"allowances_already_approved"`
}

// AccountView is a linked account without secrets.
type AccountView struct {
	UserID              string          `json:"user_id"`
	Topology            domain.Topology `json:"topology"`
	SignerAddress       string          `json:"signer_address"`
	SmartAccountAddress string          `json:"smart_account_address,omitempty"`
	FunderAddress       string          `json:"funder_address"`
	SignatureType       int             `json:"signature_type"`
	APIKey              string          `json:"api_key"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// LinkService serialises link flows per user and records their outcome.
type LinkService struct {
	linker   Linker
	wallets  Wallets
	store    domain.CredentialStore
	locks    domain.LockManager
	defaults LinkDefaults
	deps     Deps
	logger   *slog.Logger
}

// NewLinkService creates a LinkService. locks may be nil for single-process
// CLI use.
func NewLinkService(l Linker, wallets Wallets, store domain.CredentialStore, locks domain.LockManager, defaults LinkDefaults, deps Deps) *LinkService {
	if defaults.LockTTL <= 0 {
		defaults.LockTTL = 10 * time.Minute
	}
	return &LinkService{
		linker:   l,
		wallets:  wallets,
		store:    store,
		locks:    locks,
		defaults: defaults,
		deps:     deps,
		logger:   deps.logger("link_service"),
	}
}

// Link runs the flow for req.Topology.
func (s *LinkService) Link(ctx context.Context, req LinkRequest) (LinkResult, error) {
	if req.UserID == "" {
		return LinkResult{}, fmt.Errorf("service/link: %w: user id is required", domain.ErrConfiguration)
	}
	if req.Topology != domain.TopologyDirect && req.Topology != domain.TopologySmartAccount {
		return LinkResult{}, fmt.Errorf("service/link: %w: unknown topology %q", domain.ErrConfiguration, req.Topology)
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "link:"+req.UserID, s.defaults.LockTTL)
		if err != nil {
			return LinkResult{}, fmt.Errorf("service/link: %w", err)
		}
		defer unlock()
	}

	sgn, err := s.wallets.Signer(ctx, req.WalletID)
	if err != nil {
		return LinkResult{}, fmt.Errorf("service/link: %w", err)
	}

	opts := linker.Options{
		AllowDeploy: pick(req.AllowDeploy, s.defaults.AllowDeploy),
		AutoApprove: pick(req.AutoApprove, s.defaults.AutoApprove),
		SponsorGas:  pick(req.SponsorGas, s.defaults.SponsorGas),
		OnProgress:  s.deps.progressPublisher(ctx, s.logger, req.UserID, "link", req.OnProgress),
	}

	res := LinkResult{UserID: req.UserID, Topology: req.Topology}
	start := time.Now()
	switch req.Topology {
	case domain.TopologyDirect:
		// The operator default only applies to smart accounts; an explicit
		// request is passed through so the linker can reject it.
		opts.SponsorGas = pick(req.SponsorGas, false)
		if exec := s.wallets.DirectExecutor(req.WalletID); exec != nil {
			opts.Approver = exec
		}
		var creds domain.ExchangeCredentials
		creds, err = s.linker.LinkDirect(ctx, req.UserID, sgn, opts)
		res.APIKey = creds.APIKey
		if addr, addrErr := sgn.GetAddress(ctx); addrErr == nil {
			res.SignerAddress = addr.Hex()
		}
	case domain.TopologySmartAccount:
		var sa linker.SmartAccountResult
		sa, err = s.linker.LinkSmartAccount(ctx, req.UserID, sgn, opts)
		res.APIKey = sa.Credentials.APIKey
		res.SignerAddress = sa.OwnerAddress.Hex()
		res.SmartAccountAddress = sa.SmartAccountAddress.Hex()
		res.AlreadyDeployed = sa.AlreadyDeployed
		res.DeployedThisCall = sa.DeployedThisCall
		res.AllowancesSet = sa.AllowancesSet
		res.AllowancesAlreadyApproved = sa.AllowancesAlreadyApproved
	}

	if err != nil {
		s.recordFailure(ctx, req, err)
		return res, err
	}

	s.logger.InfoContext(ctx, "link completed",
		slog.String("user_id", req.UserID),
		slog.String("topology", string(req.Topology)),
		slog.Duration("elapsed", time.Since(start)),
	)
	s.deps.audit(ctx, s.logger, domain.AuditLinkCompleted, req.UserID, map[string]any{
		"topology":           string(req.Topology),
		"signer_address":     res.SignerAddress,
		"smart_account":      res.SmartAccountAddress,
		"deployed_this_call": res.DeployedThisCall,
		"allowances_set":     res.AllowancesSet,
	})
	s.deps.archive(ctx, s.logger, s3blob.KindLink, req.UserID+"-"+start.UTC().Format("20060102T150405"), res)
	s.deps.notify(ctx, domain.AuditLinkCompleted, "Wallet linked",
		fmt.Sprintf("user %s linked %s wallet %s", req.UserID, req.Topology, res.SignerAddress))
	return res, nil
}

func (s *LinkService) recordFailure(ctx context.Context, req LinkRequest, err error) {
	state := string(linker.StateIdle)
	var stepErr *linker.StepError
	if errors.As(err, &stepErr) {
		state = string(stepErr.State)
	}
	s.logger.ErrorContext(ctx, "link failed",
		slog.String("user_id", req.UserID),
		slog.String("topology", string(req.Topology)),
		slog.String("state", state),
		slog.String("error", err.Error()),
	)
	s.deps.audit(ctx, s.logger, domain.AuditLinkFailed, req.UserID, map[string]any{
		"topology": string(req.Topology),
		"state":    state,
		"error":    err.Error(),
	})
	s.deps.notify(ctx, domain.AuditLinkFailed, "Wallet link failed",
		fmt.Sprintf("user %s (%s) stopped at %s: %v", req.UserID, req.Topology, state, err))
}

// Account returns the linked account for userID without secrets.
func (s *LinkService) Account(ctx context.Context, userID string) (AccountView, error) {
	a, err := s.store.Get(ctx, userID)
	if err != nil {
		return AccountView{}, err
	}
	return AccountView{
		UserID:              a.UserID,
		Topology:            a.Topology,
		SignerAddress:       a.SignerAddress,
		SmartAccountAddress: a.SmartAccountAddress,
		FunderAddress:       a.FunderAddress(),
		SignatureType:       a.Topology.SignatureType(),
		APIKey:              a.Credentials.APIKey,
		UpdatedAt:           a.UpdatedAt,
	}, nil
}

func pick(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
