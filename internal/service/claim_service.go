package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/walletlink/internal/backend"
	"github.com/alanyoungcy/walletlink/internal/blob/s3"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/escrow"
	"github.com/alanyoungcy/walletlink/internal/platform/polymarket"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

// ClaimInput asks for a resolved position to be redeemed.
//
// SignedRedeemTx redeems with a transaction the caller signed. Otherwise a
// non-empty WalletID delegates redemption to the custody provider, and an
// empty one signs the redeem transaction with the operator's local key.
type ClaimInput struct {
	UserID         string   `json:"user_id"`
	WalletID       string   `json:"wallet_id,omitempty"`
	ConditionID    string   `json:"condition_id"`
	OutcomeIndex   int      `json:"outcome_index"`
	SignedRedeemTx string   `json:"signed_redeem_tx,omitempty"`
	Payout         *big.Int `json:"payout,omitempty"`
	CostBasis      *big.Int `json:"cost_basis,omitempty"`
}

// ClaimService redeems winnings through the backend.
type ClaimService struct {
	backend        Backend
	store          domain.CredentialStore
	wallets        Wallets
	contracts      polymarket.Contracts
	authorizer     *escrow.Authorizer
	performanceBps int64
	deps           Deps
	logger         *slog.Logger
}

// NewClaimService creates a ClaimService. Without an authorizer or with a zero
// rate no performance fee is attached.
func NewClaimService(be Backend, store domain.CredentialStore, wallets Wallets, contracts polymarket.Contracts, authorizer *escrow.Authorizer, performanceBps int64, deps Deps) *ClaimService {
	return &ClaimService{
		backend:        be,
		store:          store,
		wallets:        wallets,
		contracts:      contracts,
		authorizer:     authorizer,
		performanceBps: performanceBps,
		deps:           deps,
		logger:         deps.logger("claim_service"),
	}
}

// Claim builds the claim request for in and submits it.
func (s *ClaimService) Claim(ctx context.Context, in ClaimInput) (backend.ClaimResult, error) {
	if in.UserID == "" {
		return backend.ClaimResult{}, fmt.Errorf("service/claim: %w: user id is required", domain.ErrInvalidClaim)
	}
	if in.SignedRedeemTx != "" && in.WalletID != "" {
		return backend.ClaimResult{}, fmt.Errorf("service/claim: %w: signed redeem tx and custodial wallet are mutually exclusive", domain.ErrInvalidClaim)
	}
	condBytes, err := hexutil.Decode(in.ConditionID)
	if err != nil || len(condBytes) != common.HashLength {
		return backend.ClaimResult{}, fmt.Errorf("service/claim: %w: condition id must be 32 bytes of hex", domain.ErrInvalidClaim)
	}
	if in.OutcomeIndex < 0 {
		return backend.ClaimResult{}, fmt.Errorf("service/claim: %w: outcome index must be non-negative", domain.ErrInvalidClaim)
	}
	conditionID := common.BytesToHash(condBytes)

	account, sgn, err := resolveAccount(ctx, s.store, s.wallets, in.UserID, in.WalletID)
	if err != nil {
		return backend.ClaimResult{}, err
	}
	payer := common.HexToAddress(account.FunderAddress())
	positionID, err := escrow.PositionID(payer, conditionID, uint64(in.OutcomeIndex))
	if err != nil {
		return backend.ClaimResult{}, err
	}

	req := escrow.ClaimRequest{
		PositionID:    positionID.Hex(),
		PayerAddress:  payer.Hex(),
		SignerAddress: account.SignerAddress,
	}
	switch {
	case in.SignedRedeemTx != "":
		req.WalletType = escrow.WalletDirect
		req.SignedRedeemTx = in.SignedRedeemTx
	case in.WalletID != "":
		idx := in.OutcomeIndex
		req.WalletType = escrow.WalletCustodial
		req.PrivyWalletID = in.WalletID
		req.ConditionID = conditionID.Hex()
		req.OutcomeIndex = &idx
	default:
		if req.SignedRedeemTx, err = s.signRedeem(ctx, account, conditionID, in.OutcomeIndex); err != nil {
			return backend.ClaimResult{}, err
		}
		req.WalletType = escrow.WalletDirect
	}

	if req.PerformanceFeeAuth, err = s.performanceFee(ctx, in, sgn, payer, positionID); err != nil {
		return backend.ClaimResult{}, err
	}

	res, err := s.backend.ClaimWinnings(ctx, req)
	detail := map[string]any{
		"position_id":  req.PositionID,
		"wallet_type":  string(req.WalletType),
		"condition_id": conditionID.Hex(),
		"status":       res.Status,
	}
	if err != nil {
		detail["error"] = err.Error()
		s.logger.WarnContext(ctx, "claim failed",
			slog.String("user_id", in.UserID),
			slog.String("position_id", req.PositionID),
			slog.String("error", err.Error()),
		)
	} else {
		detail["redeem_tx"] = res.RedeemTxHash
		detail["payout"] = res.Payout
	}
	s.deps.audit(ctx, s.logger, domain.AuditClaim, in.UserID, detail)
	s.deps.archive(ctx, s.logger, s3blob.KindClaim, req.PositionID, struct {
		Request escrow.ClaimRequest `json:"request"`
		Result  backend.ClaimResult `json:"result"`
	}{req, res})
	if err != nil {
		s.deps.notify(ctx, domain.AuditClaim, "Claim failed",
			fmt.Sprintf("user %s position %s (payout %s USDC, fee %s USDC): %v",
				in.UserID, req.PositionID, escrow.FormatUSDC(in.Payout), escrow.FormatUSDC(req.PerformanceFeeAuth.Total()), err))
	}
	return res, err
}

// signRedeem signs redeemPositions with the local key. Positions held by a
// smart account cannot be redeemed from the owner key directly.
func (s *ClaimService) signRedeem(ctx context.Context, account domain.LinkedAccount, conditionID common.Hash, outcomeIndex int) (string, error) {
	if account.Topology == domain.TopologySmartAccount {
		return "", fmt.Errorf("service/claim: %w: smart-account positions need a signed redeem transaction or a custodial wallet", domain.ErrInvalidClaim)
	}
	exec := s.wallets.DirectExecutor("")
	if exec == nil {
		return "", fmt.Errorf("service/claim: %w: no chain backend for signing the redeem transaction", domain.ErrConfiguration)
	}
	call, err := escrow.BuildRedeemCall(s.contracts, conditionID, outcomeIndex)
	if err != nil {
		return "", err
	}
	raw, err := exec.SignRawTx(ctx, call)
	if err != nil {
		return "", fmt.Errorf("service/claim: sign redeem: %w", err)
	}
	return raw, nil
}

func (s *ClaimService) performanceFee(ctx context.Context, in ClaimInput, sgn signer.Signer, payer common.Address, positionID common.Hash) (*escrow.FeeAuthorization, error) {
	if s.authorizer == nil || s.performanceBps == 0 || in.Payout == nil || in.CostBasis == nil {
		return nil, nil
	}
	fee, err := escrow.PerformanceFee(in.Payout, in.CostBasis, s.performanceBps)
	if err != nil {
		return nil, err
	}
	if fee.Sign() == 0 {
		return nil, nil
	}
	auth, err := s.authorizer.SignPerformanceFee(ctx, sgn, payer, positionID, fee)
	if err != nil {
		return nil, fmt.Errorf("service/claim: %w", err)
	}
	s.deps.archive(ctx, s.logger, s3blob.KindFeeAuth, positionID.Hex(), auth)
	return &auth, nil
}
