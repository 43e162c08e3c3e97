package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/piyushdaiya/nonce-checker/internal/core"
)

// Store keeps the registry in a SQL table, ordered by position.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	const query = `
	CREATE TABLE IF NOT EXISTS ledgers (
		position INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		rpc_url TEXT NOT NULL,
		chain_id INTEGER NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create ledgers table: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledgers").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledgers: %w", err)
	}
	return n, nil
}

// Seed replaces the stored registry with ledgers.
func (s *Store) Seed(ctx context.Context, ledgers []core.LedgerDescriptor) error {
	if err := Validate(ledgers); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM ledgers"); err != nil {
		return fmt.Errorf("clear ledgers: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO ledgers(position, name, rpc_url, chain_id) VALUES(?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare seed: %w", err)
	}
	defer stmt.Close()

	for i, l := range ledgers {
		if _, err := stmt.ExecContext(ctx, i, l.Name, l.RPCURL, l.ChainID); err != nil {
			return fmt.Errorf("insert ledger %s: %w", l.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) ([]core.LedgerDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, rpc_url, chain_id FROM ledgers ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query ledgers: %w", err)
	}
	defer rows.Close()

	var ledgers []core.LedgerDescriptor
	for rows.Next() {
		var l core.LedgerDescriptor
		if err := rows.Scan(&l.Name, &l.RPCURL, &l.ChainID); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		ledgers = append(ledgers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledgers: %w", err)
	}
	if err := Validate(ledgers); err != nil {
		return nil, err
	}
	return ledgers, nil
}
