package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/web3-frozen/deposit-insights/internal/domain"
)

// envelope is the {success, data} wrapper every list endpoint answers with.
type envelope[T any] struct {
	Success bool `json:"success"`
	Data    []T  `json:"data"`
}

// profilePayload mirrors the profile endpoint. Any userTier sent on the wire
// is deliberately not decoded.
type profilePayload struct {
	Address          string           `json:"address"`
	USDCDeposits     *decimal.Decimal `json:"usdcDeposits"`
	CbBTCDeposits    *decimal.Decimal `json:"cbBTCDeposits"`
	TotalWalletValue *decimal.Decimal `json:"totalWalletValue"`
	DepositFrequency *decimal.Decimal `json:"depositFrequency"`
}

func (p profilePayload) validate() (domain.DepositRecord, error) {
	addr, err := domain.NormalizeAddress(p.Address)
	if err != nil {
		return domain.DepositRecord{}, err
	}
	fields := []struct {
		name string
		v    *decimal.Decimal
	}{
		{"usdcDeposits", p.USDCDeposits},
		{"cbBTCDeposits", p.CbBTCDeposits},
		{"totalWalletValue", p.TotalWalletValue},
		{"depositFrequency", p.DepositFrequency},
	}
	for _, f := range fields {
		if err := nonNegative(f.name, f.v); err != nil {
			return domain.DepositRecord{}, err
		}
	}
	return domain.DepositRecord{
		Address:          addr,
		USDCDeposits:     p.USDCDeposits.InexactFloat64(),
		CbBTCDeposits:    p.CbBTCDeposits.InexactFloat64(),
		TotalWalletValue: p.TotalWalletValue.InexactFloat64(),
		DepositFrequency: p.DepositFrequency.InexactFloat64(),
	}, nil
}

type holderPayload struct {
	Address      string           `json:"address"`
	TokenBalance *decimal.Decimal `json:"tokenBalance"`
}

func (p holderPayload) validate() (domain.TokenHolder, error) {
	addr, err := domain.NormalizeAddress(p.Address)
	if err != nil {
		return domain.TokenHolder{}, err
	}
	if err := nonNegative("tokenBalance", p.TokenBalance); err != nil {
		return domain.TokenHolder{}, err
	}
	return domain.TokenHolder{Address: addr, TokenBalance: p.TokenBalance.InexactFloat64()}, nil
}

type userPayload struct {
	Address    string    `json:"address"`
	LastActive time.Time `json:"lastActive"`
}

func (p userPayload) validate() (domain.PlatformUser, error) {
	addr, err := domain.NormalizeAddress(p.Address)
	if err != nil {
		return domain.PlatformUser{}, err
	}
	if p.LastActive.IsZero() {
		return domain.PlatformUser{}, errors.New("missing lastActive")
	}
	return domain.PlatformUser{Address: addr, LastActive: p.LastActive}, nil
}

func nonNegative(name string, v *decimal.Decimal) error {
	if v == nil {
		return fmt.Errorf("missing %s", name)
	}
	if v.IsNegative() {
		return fmt.Errorf("negative %s: %s", name, v)
	}
	return nil
}

func getList[T any](ctx context.Context, client *http.Client, url string) ([]T, error) {
	if url == "" {
		return nil, errNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}

	var env envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	if !env.Success {
		return nil, fmt.Errorf("get %s: success=false", url)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("get %s: missing data", url)
	}
	return env.Data, nil
}

// getPrice reads a CoinGecko simple/price style response:
// {"coinbase-wrapped-btc":{"usd":60000}}.
func getPrice(ctx context.Context, client *http.Client, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price status: %d", resp.StatusCode)
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}
	for _, quotes := range body {
		usd, ok := quotes["usd"]
		if !ok || !usd.IsPositive() {
			return 0, fmt.Errorf("no usd quote")
		}
		return usd.InexactFloat64(), nil
	}
	return 0, fmt.Errorf("empty price response")
}
