package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xdonate/adapters/evm"
	"xdonate/native/sweep"
)

const routerABIJSON = `[
	{"inputs":[{"components":[
		{"internalType":"address","name":"tokenIn","type":"address"},
		{"internalType":"address","name":"tokenOut","type":"address"},
		{"internalType":"uint24","name":"fee","type":"uint24"},
		{"internalType":"address","name":"recipient","type":"address"},
		{"internalType":"uint256","name":"deadline","type":"uint256"},
		{"internalType":"uint256","name":"amountIn","type":"uint256"},
		{"internalType":"uint256","name":"amountOutMinimum","type":"uint256"},
		{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}
	],"internalType":"struct ISwapRouter.ExactInputSingleParams","name":"params","type":"tuple"}],
	"name":"exactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],
	"stateMutability":"payable","type":"function"}
]`

var routerABI = evm.MustParseABI(routerABIJSON)

type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Router implements the sweep engine's SwapAdapter over a Uniswap V3 swap
// router: a single exact-input hop from the swept asset into the donation
// asset, delivered back to the custody account.
type Router struct {
	tx            *evm.Transactor
	router        common.Address
	donationAsset common.Address
}

// New constructs a router adapter.
func New(tx *evm.Transactor, router, donationAsset common.Address) (*Router, error) {
	if tx == nil {
		return nil, fmt.Errorf("uniswap: transactor required")
	}
	if router == (common.Address{}) {
		return nil, fmt.Errorf("uniswap: router address required")
	}
	if donationAsset == (common.Address{}) {
		return nil, fmt.Errorf("uniswap: donation asset required")
	}
	return &Router{tx: tx, router: router, donationAsset: donationAsset}, nil
}

// Swap performs the exchange and returns the amount of donation asset
// delivered to the custody account.
func (r *Router) Swap(ctx context.Context, params sweep.SwapParams) (*big.Int, error) {
	if r == nil || r.tx == nil {
		return nil, fmt.Errorf("uniswap adapter not configured")
	}
	if params.AmountIn == nil || params.MinAmountOut == nil {
		return nil, fmt.Errorf("uniswap: amounts required")
	}
	if err := r.tx.Approve(ctx, params.AssetIn, r.router, params.AmountIn); err != nil {
		return nil, err
	}
	calldata, err := PackExactInputSingle(params.AssetIn, r.donationAsset, params.FeeTier, r.tx.From(), params.Deadline.Unix(), params.AmountIn, params.MinAmountOut)
	if err != nil {
		return nil, err
	}
	receipt, err := r.tx.Send(ctx, r.router, nil, calldata)
	if err != nil {
		return nil, fmt.Errorf("uniswap: exactInputSingle: %w", err)
	}
	amountOut, ok := evm.TransferredAmount(receipt, r.donationAsset, r.tx.From())
	if !ok {
		return nil, fmt.Errorf("uniswap: no donation asset received in %s", receipt.TxHash.Hex())
	}
	return amountOut, nil
}

// PackExactInputSingle encodes the router calldata for a single-hop
// exact-input swap.
func PackExactInputSingle(tokenIn, tokenOut common.Address, feeTier uint32, recipient common.Address, deadline int64, amountIn, minAmountOut *big.Int) ([]byte, error) {
	calldata, err := routerABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               big.NewInt(int64(feeTier)),
		Recipient:         recipient,
		Deadline:          big.NewInt(deadline),
		AmountIn:          amountIn,
		AmountOutMinimum:  minAmountOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("uniswap: pack exactInputSingle: %w", err)
	}
	return calldata, nil
}
