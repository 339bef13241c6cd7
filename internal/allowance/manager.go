package allowance

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/walletlink/internal/chain"
	"github.com/alanyoungcy/walletlink/internal/domain"
)

const erc20ABIJSON = `[
  {"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const erc1155ABIJSON = `[
  {"inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"name":"setApprovalForAll","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"account","type":"address"},{"name":"operator","type":"address"}],"name":"isApprovedForAll","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

// Executor runs a call from the account whose allowances are being set and
// returns once it is confirmed on chain.
type Executor interface {
	Execute(ctx context.Context, call chain.Call, sponsorGas bool) (chain.Receipt, error)
}

// SetOptions tunes Set.
type SetOptions struct {
	SponsorGas bool
	OnProgress domain.ProgressFunc
}

// Approval is an approval confirmed during a Set call.
type Approval struct {
	Spender Spender
	TxHash  common.Hash
}

// SetResult separates spenders that needed nothing from those approved by
// this call.
type SetResult struct {
	AlreadyApproved []Spender
	NewlyApproved   []Approval
}

// Manager checks and sets approvals.
type Manager struct {
	caller  ethereum.ContractCaller
	erc20   abi.ABI
	erc1155 abi.ABI
	logger  *slog.Logger
}

// NewManager creates a Manager that reads state through caller.
func NewManager(caller ethereum.ContractCaller, logger *slog.Logger) (*Manager, error) {
	erc20, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("allowance: parse erc20 abi: %w", err)
	}
	erc1155, err := abi.JSON(strings.NewReader(erc1155ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("allowance: parse erc1155 abi: %w", err)
	}
	return &Manager{
		caller:  caller,
		erc20:   erc20,
		erc1155: erc1155,
		logger:  logger.With(slog.String("component", "allowance")),
	}, nil
}

// Check reads the approval of every spender for owner concurrently. It has no
// side effects.
func (m *Manager) Check(ctx context.Context, owner common.Address, spenders []Spender) (map[string]Status, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]Status, len(spenders))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, sp := range spenders {
		g.Go(func() error {
			amount, err := m.read(gctx, owner, sp)
			if err != nil {
				return fmt.Errorf("allowance: check %s: %w", sp.Name, err)
			}
			mu.Lock()
			out[sp.Key()] = Status{Spender: sp, Allowance: amount, Sufficient: IsSufficient(amount)}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Set approves every spender whose allowance is insufficient, one at a time,
// waiting for each to confirm before submitting the next. The first failure
// stops the run; the partial result is returned with the error.
func (m *Manager) Set(ctx context.Context, exec Executor, owner common.Address, spenders []Spender, opts SetOptions) (SetResult, error) {
	var result SetResult

	status, err := m.Check(ctx, owner, spenders)
	if err != nil {
		return result, err
	}

	var pending []Spender
	for _, sp := range spenders {
		if status[sp.Key()].Sufficient {
			result.AlreadyApproved = append(result.AlreadyApproved, sp)
			continue
		}
		pending = append(pending, sp)
	}

	total := len(pending)
	for i, sp := range pending {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("allowance: set: %w", err)
		}
		call, err := m.ApprovalCall(sp)
		if err != nil {
			return result, err
		}

		opts.OnProgress.Emit(domain.Progress{Step: sp.Name, Index: i + 1, Total: total, Detail: "submitting"})
		receipt, err := exec.Execute(ctx, call, opts.SponsorGas)
		if err != nil {
			m.logger.ErrorContext(ctx, "approval failed",
				slog.String("owner", owner.Hex()),
				slog.String("spender", sp.Name),
				slog.String("error", err.Error()),
			)
			return result, fmt.Errorf("allowance: approve %s: %w", sp.Name, err)
		}
		result.NewlyApproved = append(result.NewlyApproved, Approval{Spender: sp, TxHash: receipt.TxHash})
		opts.OnProgress.Emit(domain.Progress{Step: sp.Name, Index: i + 1, Total: total, Detail: "confirmed", TxHash: receipt.TxHash.Hex()})

		m.logger.InfoContext(ctx, "approval confirmed",
			slog.String("owner", owner.Hex()),
			slog.String("spender", sp.Name),
			slog.String("tx_hash", receipt.TxHash.Hex()),
		)
	}
	return result, nil
}

// ApprovalCall builds the unlimited approval for sp.
func (m *Manager) ApprovalCall(sp Spender) (chain.Call, error) {
	var (
		data []byte
		err  error
	)
	switch sp.Kind {
	case KindERC1155:
		data, err = m.erc1155.Pack("setApprovalForAll", sp.Address, true)
	default:
		data, err = m.erc20.Pack("approve", sp.Address, MaxUint256)
	}
	if err != nil {
		return chain.Call{}, fmt.Errorf("allowance: pack approval for %s: %w", sp.Name, err)
	}
	return chain.Call{To: sp.Token, Data: data, Value: new(big.Int), Label: "approve " + sp.Name}, nil
}

func (m *Manager) read(ctx context.Context, owner common.Address, sp Spender) (*big.Int, error) {
	token := sp.Token
	if sp.Kind == KindERC1155 {
		data, err := m.erc1155.Pack("isApprovedForAll", owner, sp.Address)
		if err != nil {
			return nil, err
		}
		raw, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: isApprovedForAll: %v", domain.ErrTransport, err)
		}
		var ok bool
		if err := m.erc1155.UnpackIntoInterface(&ok, "isApprovedForAll", raw); err != nil {
			return nil, fmt.Errorf("unpack isApprovedForAll: %w", err)
		}
		if ok {
			return new(big.Int).Set(MaxUint256), nil
		}
		return new(big.Int), nil
	}

	data, err := m.erc20.Pack("allowance", owner, sp.Address)
	if err != nil {
		return nil, err
	}
	raw, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: allowance: %v", domain.ErrTransport, err)
	}
	var amount *big.Int
	if err := m.erc20.UnpackIntoInterface(&amount, "allowance", raw); err != nil {
		return nil, fmt.Errorf("unpack allowance: %w", err)
	}
	return amount, nil
}
