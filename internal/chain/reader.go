package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// VaultABI describes the read-only deposit getters of the vault contract.
const VaultABI = `[
	{"inputs":[],"name":"getUSDCDeposits","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getCBBTCDeposits","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const (
	MethodUSDCDeposits  = "getUSDCDeposits"
	MethodCbBTCDeposits = "getCBBTCDeposits"

	usdcDecimals  = 6
	cbBTCDecimals = 8
)

// ContractCaller is the subset of *ethclient.Client the reader needs.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// AssetAmounts holds vault deposits in each asset's native unit.
type AssetAmounts struct {
	USDC  decimal.Decimal
	CbBTC decimal.Decimal
}

// Reader performs view calls against the vault contract.
type Reader struct {
	caller   ContractCaller
	contract common.Address
	abi      abi.ABI
	closeFn  func()
}

// NewReader builds a reader over an existing caller.
func NewReader(caller ContractCaller, contract string, abiJSON string) (*Reader, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &Reader{
		caller:   caller,
		contract: common.HexToAddress(contract),
		abi:      parsed,
	}, nil
}

// Dial connects to an RPC endpoint and returns a reader for the vault contract.
func Dial(ctx context.Context, rpcURL, contract string) (*Reader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	r, err := NewReader(client, contract, VaultABI)
	if err != nil {
		client.Close()
		return nil, err
	}
	r.closeFn = client.Close
	return r, nil
}

// Close releases the RPC connection if the reader owns one.
func (r *Reader) Close() {
	if r.closeFn != nil {
		r.closeFn()
	}
}

// Call invokes a no-argument view method returning a single uint256.
func (r *Reader) Call(ctx context.Context, method string) (*big.Int, error) {
	data, err := r.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	vals, err := r.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("unpack %s: got %d values, want 1", method, len(vals))
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, vals[0])
	}
	return v, nil
}

// AssetDeposits reads the per-asset deposit totals scaled to native units.
func (r *Reader) AssetDeposits(ctx context.Context) (AssetAmounts, error) {
	usdc, err := r.Call(ctx, MethodUSDCDeposits)
	if err != nil {
		return AssetAmounts{}, err
	}
	cbbtc, err := r.Call(ctx, MethodCbBTCDeposits)
	if err != nil {
		return AssetAmounts{}, err
	}
	return AssetAmounts{
		USDC:  decimal.NewFromBigInt(usdc, -usdcDecimals),
		CbBTC: decimal.NewFromBigInt(cbbtc, -cbBTCDecimals),
	}, nil
}
