package sweep

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInsufficientBalance indicates the engine does not hold enough of the
// swept asset to satisfy the requested amount.
var ErrInsufficientBalance = errors.New("sweep: insufficient balance")

// BalanceStore persists the custody balance mirror across restarts.
type BalanceStore interface {
	SaveBalance(ctx context.Context, asset string, amount *big.Int) error
	LoadBalances(ctx context.Context) (map[string]*big.Int, error)
}

// Ledger mirrors the balances held in the forwarder's custody account. It is
// the engine-visible view of passively received funds: deposits are credited
// out-of-band (balance sync or explicit credit) and sweeps debit it.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
	persist  BalanceStore
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]*big.Int)}
}

// WithStore attaches a persistence backend and restores any saved balances.
func (l *Ledger) WithStore(ctx context.Context, store BalanceStore) error {
	if l == nil || store == nil {
		return nil
	}
	saved, err := store.LoadBalances(ctx)
	if err != nil {
		return fmt.Errorf("restore balances: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, amount := range saved {
		if amount == nil || amount.Sign() < 0 {
			continue
		}
		l.balances[common.HexToAddress(key)] = new(big.Int).Set(amount)
	}
	l.persist = store
	return nil
}

// BalanceOf returns the tracked balance for the asset.
func (l *Ledger) BalanceOf(ctx context.Context, asset common.Address) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("sweep ledger not configured")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if balance, ok := l.balances[asset]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

// SetBalance overwrites the tracked balance for the asset, typically from a
// chain balance sync.
func (l *Ledger) SetBalance(ctx context.Context, asset common.Address, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("sweep ledger not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("sweep: balance must be non-negative")
	}
	l.mu.Lock()
	l.balances[asset] = new(big.Int).Set(amount)
	persist := l.persist
	l.mu.Unlock()
	return l.save(ctx, persist, asset, amount)
}

// Credit increases the tracked balance for the asset.
func (l *Ledger) Credit(ctx context.Context, asset common.Address, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("sweep ledger not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("sweep: credit must be positive")
	}
	l.mu.Lock()
	balance, ok := l.balances[asset]
	if !ok {
		balance = big.NewInt(0)
	}
	updated := new(big.Int).Add(balance, amount)
	l.balances[asset] = updated
	persist := l.persist
	l.mu.Unlock()
	return l.save(ctx, persist, asset, updated)
}

// Debit decreases the tracked balance for the asset, failing when the ledger
// does not hold enough.
func (l *Ledger) Debit(ctx context.Context, asset common.Address, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("sweep ledger not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("sweep: debit must be positive")
	}
	l.mu.Lock()
	balance, ok := l.balances[asset]
	if !ok || balance.Cmp(amount) < 0 {
		l.mu.Unlock()
		return ErrInsufficientBalance
	}
	updated := new(big.Int).Sub(balance, amount)
	l.balances[asset] = updated
	persist := l.persist
	l.mu.Unlock()
	return l.save(ctx, persist, asset, updated)
}

func (l *Ledger) save(ctx context.Context, store BalanceStore, asset common.Address, amount *big.Int) error {
	if store == nil {
		return nil
	}
	if err := store.SaveBalance(ctx, asset.Hex(), amount); err != nil {
		return fmt.Errorf("persist balance: %w", err)
	}
	return nil
}
