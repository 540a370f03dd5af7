package evm

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	testToken   = common.HexToAddress("0x4200000000000000000000000000000000000042")
	testAccount = common.HexToAddress("0x1000000000000000000000000000000000000001")
)

type mockClient struct {
	sent          []*gethtypes.Transaction
	receiptStatus uint64
	receiptLogs   []*gethtypes.Log
	callResult    []byte
	nativeBalance *big.Int
}

func newMockClient() *mockClient {
	return &mockClient{receiptStatus: gethtypes.ReceiptStatusSuccessful}
}

func (m *mockClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return m.callResult, nil
}

func (m *mockClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return uint64(len(m.sent)), nil
}

func (m *mockClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (m *mockClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (m *mockClient) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	m.sent = append(m.sent, tx)
	return nil
}

func (m *mockClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	return &gethtypes.Receipt{Status: m.receiptStatus, TxHash: txHash, Logs: m.receiptLogs}, nil
}

func (m *mockClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if m.nativeBalance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(m.nativeBalance), nil
}

func newTestTransactor(t *testing.T, client Client) *Transactor {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tx, err := NewTransactor(client, key, big.NewInt(10))
	if err != nil {
		t.Fatalf("new transactor: %v", err)
	}
	return tx
}

func TestTransactorSend(t *testing.T) {
	client := newMockClient()
	tx := newTestTransactor(t, client)

	receipt, err := tx.Send(context.Background(), testToken, big.NewInt(5), []byte{0x01})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		t.Fatalf("unexpected status: %d", receipt.Status)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one submitted transaction, got %d", len(client.sent))
	}
	submitted := client.sent[0]
	if submitted.To() == nil || *submitted.To() != testToken {
		t.Fatalf("unexpected destination: %v", submitted.To())
	}
	if submitted.Value().Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected value: %s", submitted.Value())
	}
	sender, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(big.NewInt(10)), submitted)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != tx.From() {
		t.Fatalf("sender %s != transactor %s", sender.Hex(), tx.From().Hex())
	}
}

func TestTransactorSendReverted(t *testing.T) {
	client := newMockClient()
	client.receiptStatus = gethtypes.ReceiptStatusFailed
	tx := newTestTransactor(t, client)

	if _, err := tx.Send(context.Background(), testToken, nil, nil); err == nil || !strings.Contains(err.Error(), "reverted") {
		t.Fatalf("expected revert error, got %v", err)
	}
}

func TestApprovePacksSelector(t *testing.T) {
	client := newMockClient()
	tx := newTestTransactor(t, client)

	if err := tx.Approve(context.Background(), testToken, testAccount, big.NewInt(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	selector := gethcrypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	data := client.sent[0].Data()
	if len(data) < 4 || string(data[:4]) != string(selector) {
		t.Fatalf("unexpected selector: %x", data[:4])
	}
}

func TestTokenCallerDecimals(t *testing.T) {
	client := newMockClient()
	packed, err := erc20ABI.Methods["decimals"].Outputs.Pack(uint8(6))
	if err != nil {
		t.Fatalf("pack output: %v", err)
	}
	client.callResult = packed

	decimals, err := NewTokenCaller(client).Decimals(context.Background(), testToken)
	if err != nil {
		t.Fatalf("decimals: %v", err)
	}
	if decimals != 6 {
		t.Fatalf("unexpected decimals: %d", decimals)
	}
}

func TestChainBalances(t *testing.T) {
	client := newMockClient()
	client.nativeBalance = big.NewInt(42)
	packed, err := erc20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(77))
	if err != nil {
		t.Fatalf("pack output: %v", err)
	}
	client.callResult = packed

	balances := NewChainBalances(client, testAccount)
	native, err := balances.BalanceOf(context.Background(), common.Address{})
	if err != nil {
		t.Fatalf("native: %v", err)
	}
	if native.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected native balance: %s", native)
	}
	token, err := balances.BalanceOf(context.Background(), testToken)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token.Cmp(big.NewInt(77)) != 0 {
		t.Fatalf("unexpected token balance: %s", token)
	}
}

func TestTransferredAmount(t *testing.T) {
	receipt := &gethtypes.Receipt{Logs: []*gethtypes.Log{
		{
			Address: testToken,
			Topics: []common.Hash{
				transferEventSignature,
				common.BytesToHash(common.HexToAddress("0x05").Bytes()),
				common.BytesToHash(testAccount.Bytes()),
			},
			Data: common.BigToHash(big.NewInt(1234)).Bytes(),
		},
		{
			// Transfer of another token is ignored.
			Address: testAccount,
			Topics:  []common.Hash{transferEventSignature},
		},
	}}
	amount, ok := TransferredAmount(receipt, testToken, testAccount)
	if !ok {
		t.Fatalf("expected a matching transfer")
	}
	if amount.Cmp(big.NewInt(1234)) != 0 {
		t.Fatalf("unexpected amount: %s", amount)
	}
	if _, ok := TransferredAmount(receipt, testToken, common.HexToAddress("0x09")); ok {
		t.Fatalf("unexpected match for wrong recipient")
	}
}
