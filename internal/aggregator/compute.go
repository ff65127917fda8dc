package aggregator

import (
	"strings"
	"time"

	"github.com/web3-frozen/deposit-insights/internal/domain"
	"github.com/web3-frozen/deposit-insights/internal/tier"
)

// Deposit-frequency band floors, in deposits per month.
const (
	dailyFloor   = 30
	weeklyFloor  = 4
	monthlyFloor = 1
)

// Build assembles a snapshot from one cycle's inputs. Asset user counts are
// taken from profiles and TotalTVL is recomputed from the asset values.
func Build(now time.Time, tvl domain.TVLSnapshot, profiles []domain.WalletDepositProfile, holders []domain.TokenHolder, users []domain.PlatformUser) domain.MetricsSnapshot {
	return domain.MetricsSnapshot{
		Timestamp:        now,
		TVL:              AssetUsers(tvl, profiles),
		Segmentation:     Segment(profiles),
		Breakdown:        Breakdown(profiles),
		Conversion:       Conversion(holders, users),
		ActiveDepositors: len(profiles),
	}
}

// AssetUsers returns a copy of tvl whose per-asset user counts come from the
// profiles holding a positive amount of that asset.
func AssetUsers(tvl domain.TVLSnapshot, profiles []domain.WalletDepositProfile) domain.TVLSnapshot {
	assets := make([]domain.AssetBreakdown, len(tvl.Assets))
	for i, a := range tvl.Assets {
		a.Users = 0
		for _, p := range profiles {
			if holdsAsset(p, a.Name) {
				a.Users++
			}
		}
		assets[i] = a
	}
	out := domain.TVLSnapshot{Assets: assets, Timestamp: tvl.Timestamp}
	out.Recompute()
	return out
}

func holdsAsset(p domain.WalletDepositProfile, asset string) bool {
	switch asset {
	case domain.AssetUSDC:
		return p.USDCDeposits > 0
	case domain.AssetCbBTC:
		return p.CbBTCDeposits > 0
	default:
		return false
	}
}

// Segment folds profiles into tier and deposit-frequency buckets. Every
// profile lands in exactly one tier and one frequency band.
func Segment(profiles []domain.WalletDepositProfile) domain.UserSegmentation {
	seg := domain.UserSegmentation{
		Tiers:           make(map[tier.Tier]int, len(tier.All)),
		SegmentDeposits: make(map[tier.Tier]float64, len(tier.All)),
	}
	for _, t := range tier.All {
		seg.Tiers[t] = 0
		seg.SegmentDeposits[t] = 0
	}
	for _, p := range profiles {
		seg.Tiers[p.Tier()]++
		seg.SegmentDeposits[p.Tier()] += p.TotalWalletValue

		switch f := p.DepositFrequency; {
		case f >= dailyFloor:
			seg.Frequency.Daily++
		case f >= weeklyFloor:
			seg.Frequency.Weekly++
		case f >= monthlyFloor:
			seg.Frequency.Monthly++
		default:
			seg.Frequency.Inactive++
		}
	}
	return seg
}

// Breakdown splits depositors by the assets they hold.
func Breakdown(profiles []domain.WalletDepositProfile) domain.UserBreakdown {
	var b domain.UserBreakdown
	for _, p := range profiles {
		usdc, btc := p.USDCDeposits > 0, p.CbBTCDeposits > 0
		switch {
		case usdc && btc:
			b.Both++
		case usdc:
			b.USDCOnly++
		case btc:
			b.CbBTCOnly++
		}
	}
	return b
}

// Conversion intersects token holders with platform users by lowercased
// address. Holders with a zero balance are not counted and a repeated address
// keeps its first balance.
func Conversion(holders []domain.TokenHolder, users []domain.PlatformUser) domain.TokenHolderConversion {
	userSet := make(map[string]struct{}, len(users))
	for _, u := range users {
		userSet[normalize(u.Address)] = struct{}{}
	}

	seen := make(map[string]struct{}, len(holders))
	var overlap int
	var overlapTokens float64
	for _, h := range holders {
		if h.TokenBalance <= 0 {
			continue
		}
		addr := normalize(h.Address)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		if _, ok := userSet[addr]; ok {
			overlap++
			overlapTokens += h.TokenBalance
		}
	}

	c := domain.TokenHolderConversion{
		TotalTokenHolders: len(seen),
		PlatformUsers:     len(userSet),
		Overlap:           overlap,
	}
	if c.TotalTokenHolders > 0 {
		c.ConversionRate = float64(overlap) / float64(c.TotalTokenHolders) * 100
	}
	if overlap > 0 {
		c.AvgTokensPerUser = overlapTokens / float64(overlap)
	}
	return c
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
