package sweep

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MinSlippageBps is the floor for the bridge slippage tolerance, in basis
	// points. Forwarding requests below it are rejected outright.
	MinSlippageBps uint64 = 10

	// DefaultBridgeSlippageBps is applied when the caller omits an explicit
	// bridge slippage tolerance.
	DefaultBridgeSlippageBps uint64 = 100

	// DefaultSwapSlippageBps bounds the derived minimum swap output when the
	// caller omits an explicit one.
	DefaultSwapSlippageBps uint64 = 1000

	bpsDenominator = 10_000
)

// NativeAsset is the pseudo-address identifying the chain's native currency.
var NativeAsset = common.Address{}

// DonationConfig captures the immutable deployment parameters of the
// forwarder. All fields are set once at startup and never change.
type DonationConfig struct {
	SwapRouter    common.Address
	SwapQuoter    common.Address
	Bridge        common.Address
	WrappedNative common.Address
	Recipient     common.Address
	Asset         common.Address
	Domain        uint32
	AssetDecimals uint8
}

// Validate checks that every required deployment parameter is present.
func (c DonationConfig) Validate() error {
	if c.SwapRouter == (common.Address{}) {
		return fmt.Errorf("sweep: swap router address required")
	}
	if c.Bridge == (common.Address{}) {
		return fmt.Errorf("sweep: bridge address required")
	}
	if c.WrappedNative == (common.Address{}) {
		return fmt.Errorf("sweep: wrapped native address required")
	}
	if c.Recipient == (common.Address{}) {
		return fmt.Errorf("sweep: donation recipient required")
	}
	if c.Asset == (common.Address{}) {
		return fmt.Errorf("sweep: donation asset required")
	}
	if c.Domain == 0 {
		return fmt.Errorf("sweep: donation domain required")
	}
	return nil
}

// SweepRequest carries the caller-supplied parameters for a single sweep. It
// is consumed by the invocation that constructed it and never persists.
type SweepRequest struct {
	Asset             common.Address
	FeeTier           uint32
	AmountIn          *big.Int
	MinSwapOut        *big.Int
	BridgeSlippageBps uint64
}

// SweepReceipt reports the outcome of a completed sweep.
type SweepReceipt struct {
	Asset           common.Address
	AmountIn        *big.Int
	AmountForwarded *big.Int
	TransferID      common.Hash
	Swapped         bool
}

// SwapParams describe a single exact-input swap into the donation asset.
type SwapParams struct {
	AssetIn      common.Address
	FeeTier      uint32
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Deadline     time.Time
}

// BridgeParams describe a single cross-domain forwarding request.
type BridgeParams struct {
	Asset       common.Address
	Amount      *big.Int
	Domain      uint32
	Recipient   common.Address
	SlippageBps uint64
}

// NormalizeDecimals rescales amount from one fixed-point precision to another
// by a power of ten. Downscaling truncates toward zero; no fractional unit is
// invented.
func NormalizeDecimals(from, to uint8, amount *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Set(amount)
	if from == to {
		return scaled
	}
	if from > to {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil)
		return scaled.Quo(scaled, factor)
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil)
	return scaled.Mul(scaled, factor)
}

// DefaultMinSwapOut derives the minimum acceptable swap output for the short
// sweep form: the input amount normalized into the donation asset's precision
// shaved by the default swap slippage.
func DefaultMinSwapOut(assetDecimals, donationDecimals uint8, amountIn *big.Int) *big.Int {
	normalized := NormalizeDecimals(assetDecimals, donationDecimals, amountIn)
	normalized.Mul(normalized, big.NewInt(int64(bpsDenominator-DefaultSwapSlippageBps)))
	return normalized.Quo(normalized, big.NewInt(bpsDenominator))
}
