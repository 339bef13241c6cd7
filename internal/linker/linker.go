// Package linker drives a wallet from its initial state to a linked trading
// identity: smart-account derivation and deployment, token approvals and
// exchange credentials.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/walletlink/internal/allowance"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/platform/polymarket"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

// State is a step of the link flow.
type State string

const (
	StateIdle            State = "idle"
	StateDeriveAddress   State = "derive_address"
	StateCheckDeployment State = "check_deployment"
	StateDeploy          State = "deploy"
	StateCheckAllowances State = "check_allowances"
	StateSetAllowances   State = "set_allowances"
	StateCredentials     State = "credentials"
	StateLinked          State = "linked"
)

var (
	directPath       = []State{StateCheckAllowances, StateSetAllowances, StateCredentials, StateLinked}
	smartAccountPath = []State{StateDeriveAddress, StateCheckDeployment, StateDeploy, StateCheckAllowances, StateSetAllowances, StateCredentials, StateLinked}
)

// CredentialIssuer derives or creates exchange credentials for a signer.
type CredentialIssuer interface {
	DeriveAPIKey(ctx context.Context, s signer.Signer) (domain.ExchangeCredentials, error)
	CreateAPIKey(ctx context.Context, s signer.Signer) (domain.ExchangeCredentials, error)
}

// AllowanceManager checks and sets token approvals.
type AllowanceManager interface {
	Check(ctx context.Context, owner common.Address, spenders []allowance.Spender) (map[string]allowance.Status, error)
	Set(ctx context.Context, exec allowance.Executor, owner common.Address, spenders []allowance.Spender, opts allowance.SetOptions) (allowance.SetResult, error)
}

// SmartAccounts reports and performs Safe deployment.
type SmartAccounts interface {
	IsDeployed(ctx context.Context, safe common.Address) (bool, error)
	Deploy(ctx context.Context, s signer.Signer) (polymarket.RelayerTransaction, error)
}

// Config holds the collaborators of a Linker.
type Config struct {
	Contracts     polymarket.Contracts
	Issuer        CredentialIssuer
	Allowances    AllowanceManager
	SmartAccounts SmartAccounts
	// SafeExecutor returns an executor that runs calls from the Safe owned by
	// the given signer.
	SafeExecutor func(signer.Signer) allowance.Executor
	Store        domain.CredentialStore
	Logger       *slog.Logger
}

// Options are per-call switches.
type Options struct {
	// AllowDeploy authorises deploying a missing smart account.
	AllowDeploy bool
	// AutoApprove authorises submitting missing approvals.
	AutoApprove bool
	// SponsorGas routes approvals through a sponsor. Only smart accounts
	// support it.
	SponsorGas bool
	// Approver executes approvals for a direct wallet. Ignored for smart
	// accounts, which approve through their Safe.
	Approver allowance.Executor
	// OnProgress receives every state transition and approval step,
	// synchronously.
	OnProgress domain.ProgressFunc
}

// SmartAccountResult describes a completed smart-account link.
type SmartAccountResult struct {
	Credentials         domain.ExchangeCredentials
	SmartAccountAddress common.Address
	OwnerAddress        common.Address
	// AlreadyDeployed is true when the Safe existed before this call.
	AlreadyDeployed bool
	// DeployedThisCall is true when this call deployed the Safe.
	DeployedThisCall          bool
	AllowancesSet             int
	AllowancesAlreadyApproved int
}

// Linker runs link flows. It holds no per-user state; concurrent flows for
// the same user must be serialised by the caller.
type Linker struct {
	contracts    polymarket.Contracts
	spenders     []allowance.Spender
	issuer       CredentialIssuer
	allowances   AllowanceManager
	accounts     SmartAccounts
	safeExecutor func(signer.Signer) allowance.Executor
	store        domain.CredentialStore
	logger       *slog.Logger
	now          func() time.Time
}

// New validates cfg and returns a Linker.
func New(cfg Config) (*Linker, error) {
	switch {
	case cfg.Issuer == nil:
		return nil, fmt.Errorf("linker: %w: credential issuer is required", domain.ErrConfiguration)
	case cfg.Allowances == nil:
		return nil, fmt.Errorf("linker: %w: allowance manager is required", domain.ErrConfiguration)
	case cfg.Store == nil:
		return nil, fmt.Errorf("linker: %w: credential store is required", domain.ErrConfiguration)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{
		contracts:    cfg.Contracts,
		spenders:     allowance.PolymarketSpenders(cfg.Contracts),
		issuer:       cfg.Issuer,
		allowances:   cfg.Allowances,
		accounts:     cfg.SmartAccounts,
		safeExecutor: cfg.SafeExecutor,
		store:        cfg.Store,
		logger:       logger.With(slog.String("component", "linker")),
		now:          time.Now,
	}, nil
}

// LinkDirect links a wallet that funds its own orders.
func (l *Linker) LinkDirect(ctx context.Context, userID string, s signer.Signer, opts Options) (domain.ExchangeCredentials, error) {
	if err := validateInput(userID, s); err != nil {
		return domain.ExchangeCredentials{}, &StepError{State: StateIdle, Err: err}
	}
	if opts.SponsorGas {
		return domain.ExchangeCredentials{}, &StepError{State: StateIdle, Err: fmt.Errorf("%w: gas sponsorship is only available to smart accounts", domain.ErrConfiguration)}
	}
	p := newTracker(directPath, opts.OnProgress)

	p.enter(StateCheckAllowances, "")
	owner, err := s.GetAddress(ctx)
	if err != nil {
		return domain.ExchangeCredentials{}, &StepError{State: StateCheckAllowances, Err: fmt.Errorf("resolve signer address: %w", err)}
	}
	if _, err := l.ensureAllowances(ctx, p, owner, opts.Approver, opts); err != nil {
		return domain.ExchangeCredentials{}, err
	}

	p.enter(StateCredentials, "")
	creds, err := l.resolveCredentials(ctx, s)
	if err != nil {
		return domain.ExchangeCredentials{}, &StepError{State: StateCredentials, Err: err}
	}
	account := domain.LinkedAccount{
		UserID:        userID,
		Topology:      domain.TopologyDirect,
		SignerAddress: owner.Hex(),
		Credentials:   creds,
		UpdatedAt:     l.now().UTC(),
	}
	if err := l.store.Put(ctx, account); err != nil {
		return domain.ExchangeCredentials{}, &StepError{State: StateCredentials, Err: fmt.Errorf("store credentials: %w", err)}
	}

	p.enter(StateLinked, "")
	l.logger.InfoContext(ctx, "wallet linked",
		slog.String("user_id", userID),
		slog.String("topology", string(domain.TopologyDirect)),
		slog.String("address", owner.Hex()),
	)
	return creds, nil
}

// LinkSmartAccount links a wallet whose orders are funded by the Safe it owns.
// The returned result is partially populated when an error is returned.
func (l *Linker) LinkSmartAccount(ctx context.Context, userID string, s signer.Signer, opts Options) (SmartAccountResult, error) {
	var res SmartAccountResult
	if err := validateInput(userID, s); err != nil {
		return res, &StepError{State: StateIdle, Err: err}
	}
	if l.accounts == nil || l.safeExecutor == nil {
		return res, &StepError{State: StateIdle, Err: fmt.Errorf("%w: smart accounts are not configured", domain.ErrConfiguration)}
	}
	p := newTracker(smartAccountPath, opts.OnProgress)

	p.enter(StateDeriveAddress, "")
	owner, err := s.GetAddress(ctx)
	if err != nil {
		return res, &StepError{State: StateDeriveAddress, Err: fmt.Errorf("resolve signer address: %w", err)}
	}
	safe := l.contracts.SafeAddress(owner)
	res.OwnerAddress = owner
	res.SmartAccountAddress = safe

	p.enter(StateCheckDeployment, safe.Hex())
	deployed, err := l.accounts.IsDeployed(ctx, safe)
	if err != nil {
		return res, &StepError{State: StateCheckDeployment, Err: err}
	}
	res.AlreadyDeployed = deployed

	if deployed {
		p.skip(StateDeploy)
	} else {
		if !opts.AllowDeploy {
			return res, &StepError{State: StateDeploy, Err: fmt.Errorf("%w: smart account %s not deployed; deployment not authorized", domain.ErrPrecondition, safe.Hex())}
		}
		p.enter(StateDeploy, "")
		txn, err := l.accounts.Deploy(ctx, s)
		if err != nil {
			return res, &StepError{State: StateDeploy, Err: err}
		}
		res.DeployedThisCall = true
		l.logger.InfoContext(ctx, "smart account deployed",
			slog.String("user_id", userID),
			slog.String("safe", safe.Hex()),
			slog.String("tx_hash", txn.TransactionHash),
		)
	}

	p.enter(StateCheckAllowances, "")
	set, err := l.ensureAllowances(ctx, p, safe, l.safeExecutor(s), opts)
	res.AllowancesSet = len(set.NewlyApproved)
	res.AllowancesAlreadyApproved = len(set.AlreadyApproved)
	if err != nil {
		return res, err
	}

	p.enter(StateCredentials, "")
	creds, err := l.resolveCredentials(ctx, s)
	if err != nil {
		return res, &StepError{State: StateCredentials, Err: err}
	}
	account := domain.LinkedAccount{
		UserID:              userID,
		Topology:            domain.TopologySmartAccount,
		SignerAddress:       owner.Hex(),
		SmartAccountAddress: safe.Hex(),
		Credentials:         creds,
		UpdatedAt:           l.now().UTC(),
	}
	if err := l.store.Put(ctx, account); err != nil {
		return res, &StepError{State: StateCredentials, Err: fmt.Errorf("store credentials: %w", err)}
	}
	res.Credentials = creds

	p.enter(StateLinked, "")
	l.logger.InfoContext(ctx, "wallet linked",
		slog.String("user_id", userID),
		slog.String("topology", string(domain.TopologySmartAccount)),
		slog.String("owner", owner.Hex()),
		slog.String("safe", safe.Hex()),
		slog.Bool("deployed_this_call", res.DeployedThisCall),
		slog.Int("allowances_set", res.AllowancesSet),
	)
	return res, nil
}

// ensureAllowances checks owner's approvals and, when permitted, sets the
// missing ones through exec. The caller has already entered
// StateCheckAllowances.
func (l *Linker) ensureAllowances(ctx context.Context, p *tracker, owner common.Address, exec allowance.Executor, opts Options) (allowance.SetResult, error) {
	status, err := l.allowances.Check(ctx, owner, l.spenders)
	if err != nil {
		return allowance.SetResult{}, &StepError{State: StateCheckAllowances, Err: err}
	}
	var missing int
	for _, sp := range l.spenders {
		if !status[sp.Key()].Sufficient {
			missing++
		}
	}
	if missing == 0 {
		p.skip(StateSetAllowances)
		return allowance.SetResult{AlreadyApproved: append([]allowance.Spender(nil), l.spenders...)}, nil
	}
	if !opts.AutoApprove || exec == nil {
		return allowance.SetResult{}, &StepError{
			State: StateSetAllowances,
			Err:   fmt.Errorf("%w: %d of %d approvals missing for %s and auto-approve is disabled", domain.ErrPrecondition, missing, len(l.spenders), owner.Hex()),
		}
	}

	p.enter(StateSetAllowances, fmt.Sprintf("%d missing", missing))
	res, err := l.allowances.Set(ctx, exec, owner, l.spenders, allowance.SetOptions{
		SponsorGas: opts.SponsorGas,
		OnProgress: opts.OnProgress,
	})
	if err != nil {
		return res, &StepError{State: StateSetAllowances, Err: err}
	}
	return res, nil
}

// resolveCredentials derives existing credentials and falls back to creating
// new ones. An incomplete derive result counts as a derive failure.
func (l *Linker) resolveCredentials(ctx context.Context, s signer.Signer) (domain.ExchangeCredentials, error) {
	creds, deriveErr := l.issuer.DeriveAPIKey(ctx, s)
	if deriveErr == nil && creds.Valid() {
		return creds, nil
	}
	if deriveErr == nil {
		deriveErr = fmt.Errorf("derive: %w", domain.ErrInvalidCredentials)
	}
	l.logger.WarnContext(ctx, "credential derivation failed, creating new credentials",
		slog.String("error", deriveErr.Error()),
	)

	created, createErr := l.issuer.CreateAPIKey(ctx, s)
	if createErr == nil && !created.Valid() {
		createErr = fmt.Errorf("create: %w", domain.ErrInvalidCredentials)
	}
	if createErr != nil {
		return domain.ExchangeCredentials{}, &CredentialError{DeriveErr: deriveErr, CreateErr: createErr}
	}
	return created, nil
}

func validateInput(userID string, s signer.Signer) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrConfiguration)
	}
	if s == nil {
		return fmt.Errorf("%w: signer is required", domain.ErrConfiguration)
	}
	return nil
}

// tracker numbers state transitions along a fixed path.
type tracker struct {
	path []State
	emit domain.ProgressFunc
}

func newTracker(path []State, emit domain.ProgressFunc) *tracker {
	return &tracker{path: path, emit: emit}
}

func (t *tracker) enter(s State, detail string) {
	t.emit.Emit(domain.Progress{Step: string(s), Index: t.index(s), Total: len(t.path), Detail: detail})
}

func (t *tracker) skip(s State) {
	t.enter(s, "skipped")
}

func (t *tracker) index(s State) int {
	for i, st := range t.path {
		if st == s {
			return i + 1
		}
	}
	return 0
}
