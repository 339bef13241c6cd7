package backend

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/walletlink/internal/escrow"
)

// Claim statuses.
const (
	ClaimCompleted = "completed"
	ClaimFailed    = "failed"
)

// ClaimResult is the outcome of a redemption.
type ClaimResult struct {
	Status       string `json:"status"`
	RedeemTxHash string `json:"redeemTxHash,omitempty"`
	FeeTxHash    string `json:"feeTxHash,omitempty"`
	Payout       string `json:"payout,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ClaimWinnings validates req and submits it. An invalid request never
// reaches the network.
func (c *Client) ClaimWinnings(ctx context.Context, req escrow.ClaimRequest) (ClaimResult, error) {
	if err := req.Validate(); err != nil {
		return ClaimResult{}, err
	}
	env, err := c.post(ctx, claimPath, req)
	if err != nil {
		return ClaimResult{}, err
	}
	if env.Success != nil && !*env.Success && !env.hasResult() {
		return ClaimResult{}, &ApplicationError{Path: claimPath, Message: "claim unsuccessful"}
	}

	var out ClaimResult
	if err := decodeResult(claimPath, env, &out); err != nil {
		return ClaimResult{}, err
	}
	if out.Status == ClaimFailed {
		msg := out.Error
		if msg == "" {
			msg = "claim failed"
		}
		return out, &ApplicationError{Path: claimPath, Message: msg}
	}
	c.logger.InfoContext(ctx, "claim submitted",
		slog.String("position_id", req.PositionID),
		slog.String("status", out.Status),
		slog.String("redeem_tx", out.RedeemTxHash),
	)
	return out, nil
}
