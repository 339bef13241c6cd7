package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/signer"
)

// fallbackGasLimit is used when the node cannot estimate a call.
const fallbackGasLimit = 120_000

// DirectExecutor sends calls from the signer's own account and waits for
// them to be mined.
type DirectExecutor struct {
	backend      Backend
	signer       signer.TxSigner
	chainID      *big.Int
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewDirectExecutor creates an executor for s on chainID.
func NewDirectExecutor(backend Backend, s signer.TxSigner, chainID int64, pollInterval time.Duration, logger *slog.Logger) *DirectExecutor {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &DirectExecutor{
		backend:      backend,
		signer:       s,
		chainID:      big.NewInt(chainID),
		pollInterval: pollInterval,
		logger:       logger.With(slog.String("component", "direct_executor")),
	}
}

// Execute signs and broadcasts call, then blocks until it is mined. The
// signer pays for gas, so sponsorGas is rejected.
func (e *DirectExecutor) Execute(ctx context.Context, call Call, sponsorGas bool) (Receipt, error) {
	if sponsorGas {
		return Receipt{}, fmt.Errorf("chain/direct: %w: gas sponsorship requires a smart account", domain.ErrConfiguration)
	}

	tx, err := e.buildSigned(ctx, call, true)
	if err != nil {
		return Receipt{}, err
	}
	if err := e.backend.SendTransaction(ctx, tx); err != nil {
		return Receipt{}, fmt.Errorf("chain/direct: send %s: %w: %v", call.Label, domain.ErrTransport, err)
	}
	e.logger.InfoContext(ctx, "transaction sent",
		slog.String("call", call.Label),
		slog.String("tx_hash", tx.Hash().Hex()),
	)

	return e.waitMined(ctx, tx.Hash())
}

// SignRawTx builds and signs call without broadcasting it and returns the
// RLP-encoded transaction as 0x hex.
func (e *DirectExecutor) SignRawTx(ctx context.Context, call Call) (string, error) {
	tx, err := e.buildSigned(ctx, call, false)
	if err != nil {
		return "", err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("chain/direct: encode tx: %w", err)
	}
	return hexutil.Encode(raw), nil
}

// buildSigned fills nonce, gas price and gas limit and signs call. When
// failOnRevert is set, a call the node predicts will revert is rejected
// instead of being signed with the fallback gas limit.
func (e *DirectExecutor) buildSigned(ctx context.Context, call Call, failOnRevert bool) (*types.Transaction, error) {
	from, err := e.signer.GetAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain/direct: resolve signer address: %w", err)
	}
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := e.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("chain/direct: pending nonce: %w: %v", domain.ErrTransport, err)
	}
	gasPrice, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain/direct: gas price: %w: %v", domain.ErrTransport, err)
	}
	to := call.To
	gasLimit, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: call.Data})
	if err != nil {
		if failOnRevert && isRevert(err) {
			return nil, fmt.Errorf("chain/direct: %w: %s would revert: %v", domain.ErrRejected, call.Label, err)
		}
		e.logger.WarnContext(ctx, "gas estimate failed, using fallback limit",
			slog.String("call", call.Label),
			slog.Uint64("gas_limit", fallbackGasLimit),
			slog.String("error", err.Error()),
		)
		gasLimit = 0
	}
	if gasLimit == 0 {
		gasLimit = fallbackGasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     call.Data,
	})
	signed, err := e.signer.SignTx(ctx, tx, e.chainID)
	if err != nil {
		return nil, fmt.Errorf("chain/direct: %w: %v", domain.ErrSigningFailed, err)
	}
	return signed, nil
}

func (e *DirectExecutor) waitMined(ctx context.Context, hash common.Hash) (Receipt, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return Receipt{}, fmt.Errorf("chain/direct: %w: transaction %s reverted", domain.ErrRejected, hash.Hex())
			}
			var block uint64
			if receipt.BlockNumber != nil {
				block = receipt.BlockNumber.Uint64()
			}
			return Receipt{TxHash: hash, BlockNumber: block}, nil
		case !errors.Is(err, ethereum.NotFound):
			return Receipt{}, fmt.Errorf("chain/direct: receipt %s: %w: %v", hash.Hex(), domain.ErrTransport, err)
		}

		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("chain/direct: waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}
