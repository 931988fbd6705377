// Package store persists deployed contract addresses per chain ID so
// later commands can resolve the factory, router and position manager
// without redeploying.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/poolkit/internal/deploy"
)

// Store is a SQLite-backed deployment cache.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the deployment database at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode keeps readers from blocking the occasional write
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		chain_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		deployed_at DATETIME NOT NULL,
		PRIMARY KEY (chain_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_chain ON deployments(chain_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAddress records a single deployed contract, replacing any previous
// address stored under the same chain ID and name.
func (s *Store) SaveAddress(ctx context.Context, chainID int64, name string, address common.Address) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments (chain_id, name, address, deployed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chain_id, name) DO UPDATE SET
			address = excluded.address,
			deployed_at = excluded.deployed_at
	`, chainID, name, address.Hex(), time.Now().UTC())
	return err
}

// SaveContracts records a full deployment set for a chain in one
// transaction.
func (s *Store) SaveContracts(ctx context.Context, chainID int64, contracts deploy.Contracts) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO deployments (chain_id, name, address, deployed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chain_id, name) DO UPDATE SET
			address = excluded.address,
			deployed_at = excluded.deployed_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	entries := []struct {
		name string
		addr common.Address
	}{
		{deploy.ContractWETH9, contracts.WETH9},
		{deploy.ContractFactory, contracts.Factory},
		{deploy.ContractSwapRouter, contracts.SwapRouter},
		{deploy.ContractPositionManager, contracts.PositionManager},
	}
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, chainID, e.name, e.addr.Hex(), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadContracts returns the deployment set recorded for a chain. The
// boolean is false when any of the four contracts is missing; whatever
// was found is still returned.
func (s *Store) LoadContracts(ctx context.Context, chainID int64) (deploy.Contracts, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, address FROM deployments WHERE chain_id = ?
	`, chainID)
	if err != nil {
		return deploy.Contracts{}, false, err
	}
	defer rows.Close()

	found := make(map[string]common.Address, 4)
	for rows.Next() {
		var name, address string
		if err := rows.Scan(&name, &address); err != nil {
			return deploy.Contracts{}, false, err
		}
		found[name] = common.HexToAddress(address)
	}
	if err := rows.Err(); err != nil {
		return deploy.Contracts{}, false, err
	}

	contracts := deploy.Contracts{
		WETH9:           found[deploy.ContractWETH9],
		Factory:         found[deploy.ContractFactory],
		SwapRouter:      found[deploy.ContractSwapRouter],
		PositionManager: found[deploy.ContractPositionManager],
	}
	complete := true
	for _, name := range []string{
		deploy.ContractWETH9,
		deploy.ContractFactory,
		deploy.ContractSwapRouter,
		deploy.ContractPositionManager,
	} {
		if _, ok := found[name]; !ok {
			complete = false
		}
	}
	return contracts, complete, nil
}

// DeleteContracts removes all recorded deployments for a chain.
func (s *Store) DeleteContracts(ctx context.Context, chainID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM deployments WHERE chain_id = ?", chainID)
	return err
}
