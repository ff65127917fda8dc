package gateway

import (
	"fmt"
	"time"

	"github.com/web3-frozen/deposit-insights/internal/domain"
)

// Fallback dataset sizes.
const (
	FallbackTokenHolders  = 5000
	FallbackPlatformUsers = 2000
)

func (g *Gateway) fallbackDeposits() domain.TVLSnapshot {
	snap := domain.TVLSnapshot{
		Assets: []domain.AssetBreakdown{
			{Name: domain.AssetUSDC, Value: 750_000, Users: 234},
			{Name: domain.AssetCbBTC, Value: 500_000, Users: 156},
		},
		Timestamp: g.now(),
	}
	snap.Recompute()
	return snap
}

func fallbackProfiles() []domain.DepositRecord {
	return []domain.DepositRecord{
		{Address: "0x1234567890abcdef1234567890abcdef12345678", USDCDeposits: 10_000, CbBTCDeposits: 0.5, TotalWalletValue: 40_000, DepositFrequency: 35},
		{Address: "0xabcdef1234567890abcdef1234567890abcdef12", USDCDeposits: 250_000, CbBTCDeposits: 2.1, TotalWalletValue: 376_000, DepositFrequency: 12},
		{Address: "0x9876543210fedcba9876543210fedcba98765432", USDCDeposits: 5_000, CbBTCDeposits: 0, TotalWalletValue: 5_000, DepositFrequency: 8},
		{Address: "0xfedcba0987654321fedcba0987654321fedcba09", USDCDeposits: 150_000, CbBTCDeposits: 1.8, TotalWalletValue: 258_000, DepositFrequency: 20},
		{Address: "0x1111222233334444555566667777888899990000", USDCDeposits: 800, CbBTCDeposits: 0, TotalWalletValue: 800, DepositFrequency: 2},
	}
}

func syntheticAddress(i int) string { return fmt.Sprintf("0x%040x", i) }

func fallbackTokenHolders() []domain.TokenHolder {
	out := make([]domain.TokenHolder, FallbackTokenHolders)
	for i := range out {
		out[i] = domain.TokenHolder{
			Address:      syntheticAddress(i),
			TokenBalance: float64(1 + (i*7919)%99_999),
		}
	}
	return out
}

func (g *Gateway) fallbackPlatformUsers() []domain.PlatformUser {
	now := g.now()
	out := make([]domain.PlatformUser, FallbackPlatformUsers)
	for i := range out {
		out[i] = domain.PlatformUser{
			Address:    syntheticAddress(i),
			LastActive: now.Add(-time.Duration(i%30) * 24 * time.Hour),
		}
	}
	return out
}
