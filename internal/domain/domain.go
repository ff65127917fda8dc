package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/web3-frozen/deposit-insights/internal/tier"
)

// Supported deposit assets.
const (
	AssetUSDC  = "USDC"
	AssetCbBTC = "cbBTC"
)

// NormalizeAddress validates a 0x-prefixed 20-byte hex address and returns it
// lowercased. Holder/user overlap is matched on this form.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", fmt.Errorf("address %q: missing 0x prefix", addr)
	}
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("address %q: not a 20-byte hex address", addr)
	}
	return strings.ToLower("0x" + addr[2:]), nil
}

// DepositRecord is a validated per-wallet record as received from the profile
// endpoint. It carries no tier; tiers are always derived locally.
type DepositRecord struct {
	Address          string
	USDCDeposits     float64
	CbBTCDeposits    float64
	TotalWalletValue float64
	DepositFrequency float64
}

// WalletDepositProfile is a depositor with its derived tier.
type WalletDepositProfile struct {
	Address          string  `json:"address"`
	USDCDeposits     float64 `json:"usdc_deposits"`
	CbBTCDeposits    float64 `json:"cbbtc_deposits"`
	TotalWalletValue float64 `json:"total_wallet_value"`
	DepositFrequency float64 `json:"deposit_frequency"`
	tier             tier.Tier
}

// NewWalletDepositProfile classifies the record's wallet value and returns
// the profile. Negative amounts are rejected.
func NewWalletDepositProfile(rec DepositRecord) (WalletDepositProfile, error) {
	addr, err := NormalizeAddress(rec.Address)
	if err != nil {
		return WalletDepositProfile{}, err
	}
	if rec.USDCDeposits < 0 || rec.CbBTCDeposits < 0 || rec.DepositFrequency < 0 {
		return WalletDepositProfile{}, fmt.Errorf("profile %s: negative amount: %w", addr, tier.ErrInvalidInput)
	}
	t, err := tier.Classify(rec.TotalWalletValue)
	if err != nil {
		return WalletDepositProfile{}, fmt.Errorf("profile %s: %w", addr, err)
	}
	return WalletDepositProfile{
		Address:          addr,
		USDCDeposits:     rec.USDCDeposits,
		CbBTCDeposits:    rec.CbBTCDeposits,
		TotalWalletValue: rec.TotalWalletValue,
		DepositFrequency: rec.DepositFrequency,
		tier:             t,
	}, nil
}

// Tier returns the tier derived from TotalWalletValue.
func (p WalletDepositProfile) Tier() tier.Tier { return p.tier }

// AssetBreakdown is the USD value and depositor count of one asset.
type AssetBreakdown struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Users int     `json:"users"`
}

// TVLSnapshot is total value locked at a point in time.
type TVLSnapshot struct {
	TotalTVL  float64          `json:"total_tvl"`
	Assets    []AssetBreakdown `json:"assets"`
	Timestamp time.Time        `json:"timestamp"`
}

// Recompute sets TotalTVL to the sum of asset values.
func (s *TVLSnapshot) Recompute() {
	var total float64
	for _, a := range s.Assets {
		total += a.Value
	}
	s.TotalTVL = total
}

// Asset returns the breakdown for name, or a zero value.
func (s TVLSnapshot) Asset(name string) AssetBreakdown {
	for _, a := range s.Assets {
		if a.Name == name {
			return a
		}
	}
	return AssetBreakdown{Name: name}
}

// FrequencyBuckets counts profiles by monthly deposit frequency.
type FrequencyBuckets struct {
	Daily    int `json:"daily"`    // >= 30 per month
	Weekly   int `json:"weekly"`   // 4..29
	Monthly  int `json:"monthly"`  // 1..3
	Inactive int `json:"inactive"` // < 1
}

// UserSegmentation counts profiles per tier and per frequency band.
type UserSegmentation struct {
	Tiers           map[tier.Tier]int     `json:"tiers"`
	Frequency       FrequencyBuckets      `json:"frequency"`
	SegmentDeposits map[tier.Tier]float64 `json:"segment_deposits"`
}

// Count returns the number of profiles in t.
func (s UserSegmentation) Count(t tier.Tier) int { return s.Tiers[t] }

// UserBreakdown splits depositors by which assets they hold.
type UserBreakdown struct {
	USDCOnly  int `json:"usdc_only"`
	CbBTCOnly int `json:"cbbtc_only"`
	Both      int `json:"both"`
}

// TokenHolder is an address holding the platform token.
type TokenHolder struct {
	Address      string  `json:"address"`
	TokenBalance float64 `json:"token_balance"`
}

// PlatformUser is an address with deposit activity.
type PlatformUser struct {
	Address    string    `json:"address"`
	LastActive time.Time `json:"last_active"`
}

// TokenHolderConversion measures how many token holders use the platform.
type TokenHolderConversion struct {
	TotalTokenHolders int     `json:"total_token_holders"`
	PlatformUsers     int     `json:"platform_users"`
	Overlap           int     `json:"overlap"`
	ConversionRate    float64 `json:"conversion_rate"`
	AvgTokensPerUser  float64 `json:"avg_tokens_per_user"`
}

// MetricsSnapshot is the unit persisted once per aggregation cycle.
type MetricsSnapshot struct {
	ID               string                `json:"id"`
	Timestamp        time.Time             `json:"timestamp"`
	TVL              TVLSnapshot           `json:"tvl"`
	Segmentation     UserSegmentation      `json:"segmentation"`
	Breakdown        UserBreakdown         `json:"breakdown"`
	Conversion       TokenHolderConversion `json:"conversion"`
	ActiveDepositors int                   `json:"active_depositors"`
}

// Clone returns a copy that shares no maps or slices with s.
func (s MetricsSnapshot) Clone() MetricsSnapshot {
	out := s
	if s.TVL.Assets != nil {
		out.TVL.Assets = append([]AssetBreakdown(nil), s.TVL.Assets...)
	}
	if s.Segmentation.Tiers != nil {
		out.Segmentation.Tiers = make(map[tier.Tier]int, len(s.Segmentation.Tiers))
		for k, v := range s.Segmentation.Tiers {
			out.Segmentation.Tiers[k] = v
		}
	}
	if s.Segmentation.SegmentDeposits != nil {
		out.Segmentation.SegmentDeposits = make(map[tier.Tier]float64, len(s.Segmentation.SegmentDeposits))
		for k, v := range s.Segmentation.SegmentDeposits {
			out.Segmentation.SegmentDeposits[k] = v
		}
	}
	return out
}

// Severity ranks an alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertMessage is a business alert raised for one cycle.
type AlertMessage struct {
	Rule      string    `json:"rule"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}
