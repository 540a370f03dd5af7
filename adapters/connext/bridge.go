package connext

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xdonate/adapters/evm"
	"xdonate/native/sweep"
)

const connextABIJSON = `[
	{"inputs":[
		{"internalType":"uint32","name":"_destination","type":"uint32"},
		{"internalType":"address","name":"_to","type":"address"},
		{"internalType":"address","name":"_asset","type":"address"},
		{"internalType":"address","name":"_delegate","type":"address"},
		{"internalType":"uint256","name":"_amount","type":"uint256"},
		{"internalType":"uint256","name":"_slippage","type":"uint256"},
		{"internalType":"bytes","name":"_callData","type":"bytes"}
	],"name":"xcall","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],
	"stateMutability":"payable","type":"function"}
]`

var connextABI = evm.MustParseABI(connextABIJSON)

// xcalledTopic is the XCalled event signature; the transfer identifier is its
// first indexed topic.
var xcalledTopic = common.HexToHash("0xed8e6ba697dd65259e5ce532ac08ff06d1a3607bcec58f8f0937fe36a5666c54")

// Bridge implements the sweep engine's BridgeAdapter over the Connext
// cross-domain protocol.
type Bridge struct {
	tx      *evm.Transactor
	connext common.Address
}

// New constructs a bridge adapter.
func New(tx *evm.Transactor, connext common.Address) (*Bridge, error) {
	if tx == nil {
		return nil, fmt.Errorf("connext: transactor required")
	}
	if connext == (common.Address{}) {
		return nil, fmt.Errorf("connext: contract address required")
	}
	return &Bridge{tx: tx, connext: connext}, nil
}

// Forward locks the amount with the bridge for delivery on the destination
// domain and returns the transfer identifier.
func (b *Bridge) Forward(ctx context.Context, params sweep.BridgeParams) (common.Hash, error) {
	if b == nil || b.tx == nil {
		return common.Hash{}, fmt.Errorf("connext adapter not configured")
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("connext: amount required")
	}
	if err := b.tx.Approve(ctx, params.Asset, b.connext, params.Amount); err != nil {
		return common.Hash{}, err
	}
	calldata, err := PackXCall(params.Domain, params.Recipient, params.Asset, b.tx.From(), params.Amount, params.SlippageBps)
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := b.tx.Send(ctx, b.connext, nil, calldata)
	if err != nil {
		return common.Hash{}, fmt.Errorf("connext: xcall: %w", err)
	}
	for _, log := range receipt.Logs {
		if log == nil || log.Address != b.connext {
			continue
		}
		if len(log.Topics) < 2 || log.Topics[0] != xcalledTopic {
			continue
		}
		return log.Topics[1], nil
	}
	return common.Hash{}, fmt.Errorf("connext: no XCalled event in %s", receipt.TxHash.Hex())
}

// PackXCall encodes the bridge calldata for a plain asset transfer (no
// destination calldata).
func PackXCall(destination uint32, to, asset, delegate common.Address, amount *big.Int, slippageBps uint64) ([]byte, error) {
	calldata, err := connextABI.Pack("xcall",
		destination,
		to,
		asset,
		delegate,
		amount,
		new(big.Int).SetUint64(slippageBps),
		[]byte{},
	)
	if err != nil {
		return nil, fmt.Errorf("connext: pack xcall: %w", err)
	}
	return calldata, nil
}
