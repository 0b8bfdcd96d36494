package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"ludum/internal/model"
)

// LibraryRepo stores game ownership. The set is append-only; inserting an
// already-owned id is a no-op.
type LibraryRepo struct {
	dbPool *pgxpool.Pool
}

func NewLibraryRepo(db *pgxpool.Pool) *LibraryRepo {
	return &LibraryRepo{dbPool: db}
}

func (r *LibraryRepo) AddOwned(ctx context.Context, accountID string, gameID uuid.UUID) error {
	_, err := r.dbPool.Exec(ctx,
		`INSERT INTO library_entries (account_id, game_id, added_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id, game_id) DO NOTHING`,
		accountID, gameID, time.Now().UTC())
	return err
}

func (r *LibraryRepo) List(ctx context.Context, accountID string) ([]model.LibraryEntry, error) {
	rows, err := r.dbPool.Query(ctx,
		`SELECT account_id, game_id, added_at FROM library_entries
		 WHERE account_id = $1 ORDER BY added_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LibraryEntry
	for rows.Next() {
		var e model.LibraryEntry
		if err := rows.Scan(&e.AccountID, &e.GameID, &e.AddedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
