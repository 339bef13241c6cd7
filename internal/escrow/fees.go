package escrow

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

const bpsDenominator = 10_000

// FeeSchedule sets the fee charged on an order's notional. ReferrerShareBps
// is the referrer's share of that fee, not of the notional.
type FeeSchedule struct {
	FeeBps           int64
	ReferrerShareBps int64
}

// Validate checks both rates are within [0, 10000].
func (s FeeSchedule) Validate() error {
	if s.FeeBps < 0 || s.FeeBps > bpsDenominator || s.ReferrerShareBps < 0 || s.ReferrerShareBps > bpsDenominator {
		return fmt.Errorf("escrow: %w: fee bps must be within 0..%d", domain.ErrConfiguration, bpsDenominator)
	}
	return nil
}

// FeeSplit is a fee divided between the platform and a referrer. Platform +
// Referrer always equals Total.
type FeeSplit struct {
	Total    *big.Int
	Platform *big.Int
	Referrer *big.Int
}

// SplitFee computes floor(notional * FeeBps / 10000) and carves the referrer
// share out of it, again rounding down.
func SplitFee(notional *big.Int, sched FeeSchedule) (FeeSplit, error) {
	if err := sched.Validate(); err != nil {
		return FeeSplit{}, err
	}
	if notional == nil || notional.Sign() < 0 {
		return FeeSplit{}, fmt.Errorf("escrow: %w: notional must be non-negative", domain.ErrConfiguration)
	}
	total := bps(notional, sched.FeeBps)
	referrer := bps(total, sched.ReferrerShareBps)
	return FeeSplit{
		Total:    total,
		Platform: new(big.Int).Sub(total, referrer),
		Referrer: referrer,
	}, nil
}

// PerformanceFee charges feeBps on profit only. A loss or break-even pays
// nothing.
func PerformanceFee(payout, costBasis *big.Int, feeBps int64) (*big.Int, error) {
	if feeBps < 0 || feeBps > bpsDenominator {
		return nil, fmt.Errorf("escrow: %w: performance fee bps must be within 0..%d", domain.ErrConfiguration, bpsDenominator)
	}
	if payout == nil || costBasis == nil {
		return nil, fmt.Errorf("escrow: %w: payout and cost basis are required", domain.ErrConfiguration)
	}
	profit := new(big.Int).Sub(payout, costBasis)
	if profit.Sign() <= 0 {
		return new(big.Int), nil
	}
	return bps(profit, feeBps), nil
}

// FormatUSDC renders a raw 6-decimal amount for display.
func FormatUSDC(raw *big.Int) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -6).String()
}

func bps(amount *big.Int, rate int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(rate))
	return out.Quo(out, big.NewInt(bpsDenominator))
}
