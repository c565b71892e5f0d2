// Package identity persists the mapping between GitHub usernames and the
// Solana wallet that owns each contributor's agent account.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotRegistered reports a lookup for a username that was never registered.
// Callers must not conflate it with storage failure: the first is a user
// condition, the second is infrastructure.
var ErrNotRegistered = errors.New("identity not registered")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert links a GitHub username to a wallet address. Re-registering the same
// pair is a no-op; a new wallet for an existing username overwrites
// (last write wins).
func (s *Store) Upsert(ctx context.Context, githubUsername, walletAddress string) error {
	if githubUsername == "" {
		return fmt.Errorf("github username is empty")
	}
	if walletAddress == "" {
		return fmt.Errorf("wallet address is empty")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO identity_mappings(github_username, wallet_address, created_at, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(github_username) DO UPDATE SET
  wallet_address = excluded.wallet_address,
  updated_at = excluded.updated_at;
`, githubUsername, walletAddress, now, now)
	if err != nil {
		return fmt.Errorf("upsert identity mapping: %w", err)
	}
	return nil
}

// Resolve returns the wallet address linked to a GitHub username, or
// ErrNotRegistered if no mapping exists.
func (s *Store) Resolve(ctx context.Context, githubUsername string) (string, error) {
	if githubUsername == "" {
		return "", fmt.Errorf("github username is empty")
	}

	var wallet string
	err := s.db.QueryRowContext(ctx,
		"SELECT wallet_address FROM identity_mappings WHERE github_username = ?;",
		githubUsername).Scan(&wallet)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotRegistered
	}
	if err != nil {
		return "", fmt.Errorf("resolve identity mapping: %w", err)
	}
	return wallet, nil
}
