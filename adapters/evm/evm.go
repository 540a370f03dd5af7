package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client defines the subset of the Ethereum RPC used by the forwarder.
type Client interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Dial initialises an EVM RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

var (
	erc20ABI = MustParseABI(erc20ABIJSON)

	transferEventSignature = gethcrypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

// MustParseABI parses a JSON ABI definition, panicking on malformed input.
// Intended for package-level constants.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Transactor signs and submits transactions from the forwarder's custody
// account and waits for them to be mined.
type Transactor struct {
	client      Client
	key         *ecdsa.PrivateKey
	from        common.Address
	chainID     *big.Int
	receiptWait time.Duration
}

// NewTransactor constructs a transactor from a signing key and chain id.
func NewTransactor(client Client, key *ecdsa.PrivateKey, chainID *big.Int) (*Transactor, error) {
	if client == nil {
		return nil, fmt.Errorf("evm client required")
	}
	if key == nil {
		return nil, fmt.Errorf("signing key required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id required")
	}
	return &Transactor{
		client:      client,
		key:         key,
		from:        gethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:     new(big.Int).Set(chainID),
		receiptWait: 2 * time.Second,
	}, nil
}

// From returns the custody account address.
func (t *Transactor) From() common.Address {
	if t == nil {
		return common.Address{}
	}
	return t.from
}

// Send signs and submits a transaction, blocking until it is mined or the
// context expires. A mined-but-reverted transaction is an error.
func (t *Transactor) Send(ctx context.Context, to common.Address, value *big.Int, calldata []byte) (*gethtypes.Receipt, error) {
	if t == nil || t.client == nil {
		return nil, fmt.Errorf("transactor not configured")
	}
	nonce, err := t.client.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := t.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  t.from,
		To:    &to,
		Value: value,
		Data:  calldata,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(t.chainID), t.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	return t.waitMined(ctx, signed.Hash())
}

func (t *Transactor) waitMined(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	ticker := time.NewTicker(t.receiptWait)
	defer ticker.Stop()
	for {
		receipt, err := t.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("transaction %s reverted", txHash.Hex())
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("fetch receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Approve grants spender an allowance over the custody account's tokens.
func (t *Transactor) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	calldata, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}
	if _, err := t.Send(ctx, token, nil, calldata); err != nil {
		return fmt.Errorf("approve %s: %w", token.Hex(), err)
	}
	return nil
}

// TokenCaller performs read-only ERC-20 queries.
type TokenCaller struct {
	client Client
}

// NewTokenCaller constructs a token reader over the supplied client.
func NewTokenCaller(client Client) *TokenCaller {
	return &TokenCaller{client: client}
}

// Decimals returns the token's reported fixed-point precision.
func (c *TokenCaller) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if c == nil || c.client == nil {
		return 0, fmt.Errorf("token caller not configured")
	}
	calldata, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: calldata}, nil)
	if err != nil {
		return 0, fmt.Errorf("call decimals: %w", err)
	}
	out, err := erc20ABI.Unpack("decimals", raw)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", out[0])
	}
	return decimals, nil
}

// BalanceOf returns the token balance held by account.
func (c *TokenCaller) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("token caller not configured")
	}
	calldata, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	out, err := erc20ABI.Unpack("balanceOf", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balance type %T", out[0])
	}
	return balance, nil
}

// ChainBalances reads the custody account's balances directly from the chain.
type ChainBalances struct {
	client  Client
	account common.Address
	tokens  *TokenCaller
}

// NewChainBalances constructs a balance reader for the custody account.
func NewChainBalances(client Client, account common.Address) *ChainBalances {
	return &ChainBalances{client: client, account: account, tokens: NewTokenCaller(client)}
}

// BalanceOf returns the on-chain balance of the asset; the zero address is
// the native currency.
func (b *ChainBalances) BalanceOf(ctx context.Context, asset common.Address) (*big.Int, error) {
	if b == nil || b.client == nil {
		return nil, fmt.Errorf("chain balances not configured")
	}
	if asset == (common.Address{}) {
		balance, err := b.client.BalanceAt(ctx, b.account, nil)
		if err != nil {
			return nil, fmt.Errorf("native balance: %w", err)
		}
		return balance, nil
	}
	return b.tokens.BalanceOf(ctx, asset, b.account)
}

// TransferredAmount scans a receipt for an ERC-20 Transfer of token to the
// recipient and returns the last matching amount.
func TransferredAmount(receipt *gethtypes.Receipt, token, to common.Address) (*big.Int, bool) {
	if receipt == nil {
		return nil, false
	}
	var amount *big.Int
	for _, log := range receipt.Logs {
		if log == nil || log.Address != token {
			continue
		}
		if len(log.Topics) < 3 || log.Topics[0] != transferEventSignature {
			continue
		}
		if common.BytesToAddress(log.Topics[2].Bytes()) != to {
			continue
		}
		amount = new(big.Int).SetBytes(log.Data)
	}
	return amount, amount != nil
}
