package weth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xdonate/adapters/evm"
)

const wethABIJSON = `[
	{"inputs":[],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"}
]`

var wethABI = evm.MustParseABI(wethABIJSON)

// Wrapper implements the sweep engine's NativeWrapper over the canonical
// wrapped-native contract.
type Wrapper struct {
	tx   *evm.Transactor
	weth common.Address
}

// New constructs a wrapper adapter.
func New(tx *evm.Transactor, weth common.Address) (*Wrapper, error) {
	if tx == nil {
		return nil, fmt.Errorf("weth: transactor required")
	}
	if weth == (common.Address{}) {
		return nil, fmt.Errorf("weth: contract address required")
	}
	return &Wrapper{tx: tx, weth: weth}, nil
}

// Wrap deposits native currency, converting it into the wrapped form held by
// the custody account.
func (w *Wrapper) Wrap(ctx context.Context, amount *big.Int) error {
	if w == nil || w.tx == nil {
		return fmt.Errorf("weth adapter not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("weth: amount required")
	}
	calldata, err := PackDeposit()
	if err != nil {
		return err
	}
	if _, err := w.tx.Send(ctx, w.weth, amount, calldata); err != nil {
		return fmt.Errorf("weth: deposit: %w", err)
	}
	return nil
}

// PackDeposit encodes the deposit calldata.
func PackDeposit() ([]byte, error) {
	calldata, err := wethABI.Pack("deposit")
	if err != nil {
		return nil, fmt.Errorf("weth: pack deposit: %w", err)
	}
	return calldata, nil
}
