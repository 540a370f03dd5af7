package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Storage wraps the xdonated persistence layer.
type Storage struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("xdonated storage path must be configured")

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSweeper persists a sweeper grant.
func (s *Storage) SaveSweeper(ctx context.Context, sweeper, addedBy common.Address) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO sweepers(address, added_by, added_at)
        VALUES(?, ?, ?)
        ON CONFLICT(address) DO NOTHING
    `, sweeper.Hex(), addedBy.Hex(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert sweeper: %w", err)
	}
	return nil
}

// DeleteSweeper removes a sweeper grant.
func (s *Storage) DeleteSweeper(ctx context.Context, sweeper common.Address) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sweepers WHERE address = ?`, sweeper.Hex()); err != nil {
		return fmt.Errorf("delete sweeper: %w", err)
	}
	return nil
}

// ListSweepers returns all persisted sweeper addresses.
func (s *Storage) ListSweepers(ctx context.Context) ([]common.Address, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT address FROM sweepers ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("query sweepers: %w", err)
	}
	defer rows.Close()
	var out []common.Address
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, fmt.Errorf("scan sweeper: %w", err)
		}
		out = append(out, common.HexToAddress(hex))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweepers: %w", err)
	}
	return out, nil
}

// SaveBalance upserts the custody mirror for one asset. Amounts are stored as
// decimal strings since they exceed int64.
func (s *Storage) SaveBalance(ctx context.Context, asset string, amount *big.Int) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if amount == nil {
		return fmt.Errorf("balance amount required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO custody_balances(asset, amount, updated_at)
        VALUES(?, ?, ?)
        ON CONFLICT(asset) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at
    `, strings.ToLower(strings.TrimSpace(asset)), amount.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// LoadBalances returns the persisted custody mirror keyed by asset.
func (s *Storage) LoadBalances(ctx context.Context) (map[string]*big.Int, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT asset, amount FROM custody_balances`)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()
	out := make(map[string]*big.Int)
	for rows.Next() {
		var asset, amount string
		if err := rows.Scan(&asset, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		parsed, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("malformed balance %q for %s", amount, asset)
		}
		out[asset] = parsed
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return out, nil
}

// SweepRecord captures one completed sweep.
type SweepRecord struct {
	ID              string
	Caller          common.Address
	Asset           common.Address
	AmountIn        *big.Int
	AmountForwarded *big.Int
	TransferID      common.Hash
	CreatedAt       time.Time
}

// RecordSweep persists a completed sweep and returns its identifier.
func (s *Storage) RecordSweep(ctx context.Context, rec SweepRecord) (string, error) {
	if s == nil {
		return "", fmt.Errorf("storage not configured")
	}
	if rec.AmountIn == nil || rec.AmountForwarded == nil {
		return "", fmt.Errorf("sweep record incomplete")
	}
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = uuid.NewString()
	}
	created := rec.CreatedAt.UTC()
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO sweep_history(id, caller, asset, amount_in, amount_forwarded, transfer_id, created_at)
        VALUES(?, ?, ?, ?, ?, ?, ?)
    `, id, rec.Caller.Hex(), rec.Asset.Hex(), rec.AmountIn.String(), rec.AmountForwarded.String(), rec.TransferID.Hex(), created)
	if err != nil {
		return "", fmt.Errorf("insert sweep: %w", err)
	}
	return id, nil
}

// ListSweeps returns the most recent sweeps, newest first.
func (s *Storage) ListSweeps(ctx context.Context, limit int) ([]SweepRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, caller, asset, amount_in, amount_forwarded, transfer_id, created_at
        FROM sweep_history
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query sweeps: %w", err)
	}
	defer rows.Close()
	var out []SweepRecord
	for rows.Next() {
		var rec SweepRecord
		var caller, asset, amountIn, forwarded, transferID string
		if err := rows.Scan(&rec.ID, &caller, &asset, &amountIn, &forwarded, &transferID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sweep: %w", err)
		}
		rec.Caller = common.HexToAddress(caller)
		rec.Asset = common.HexToAddress(asset)
		in, ok := new(big.Int).SetString(amountIn, 10)
		if !ok {
			return nil, fmt.Errorf("malformed amount_in %q", amountIn)
		}
		fwd, ok := new(big.Int).SetString(forwarded, 10)
		if !ok {
			return nil, fmt.Errorf("malformed amount_forwarded %q", forwarded)
		}
		rec.AmountIn = in
		rec.AmountForwarded = fwd
		rec.TransferID = common.HexToHash(transferID)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweeps: %w", err)
	}
	return out, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS sweepers (
    address TEXT PRIMARY KEY,
    added_by TEXT NOT NULL,
    added_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS custody_balances (
    asset TEXT PRIMARY KEY,
    amount TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sweep_history (
    id TEXT PRIMARY KEY,
    caller TEXT NOT NULL,
    asset TEXT NOT NULL,
    amount_in TEXT NOT NULL,
    amount_forwarded TEXT NOT NULL,
    transfer_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sweep_history_created ON sweep_history(created_at);
`
