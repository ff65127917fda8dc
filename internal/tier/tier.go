package tier

import (
	"errors"
	"fmt"
	"math"
)

// Tier is the wallet-size bucket a depositor falls into.
type Tier string

const (
	Whale     Tier = "whale"
	HighValue Tier = "high-value"
	MidTier   Tier = "mid-tier"
	Retail    Tier = "retail"
)

const (
	whaleFloor     = 100_000
	highValueFloor = 10_000
	midTierFloor   = 1_000
)

// ErrInvalidInput is returned for negative or NaN wallet values.
var ErrInvalidInput = errors.New("invalid input")

// All lists tiers from largest to smallest.
var All = []Tier{Whale, HighValue, MidTier, Retail}

// Classify maps a USD wallet value to its tier. Lower bounds are exclusive:
// exactly 1000 is retail, exactly 10000 is mid-tier, exactly 100000 is high-value.
func Classify(walletValue float64) (Tier, error) {
	if math.IsNaN(walletValue) || walletValue < 0 {
		return "", fmt.Errorf("classify wallet value %v: %w", walletValue, ErrInvalidInput)
	}
	switch {
	case walletValue > whaleFloor:
		return Whale, nil
	case walletValue > highValueFloor:
		return HighValue, nil
	case walletValue > midTierFloor:
		return MidTier, nil
	default:
		return Retail, nil
	}
}
