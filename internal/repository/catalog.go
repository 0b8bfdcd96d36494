package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ludum/internal/model"
	"ludum/internal/service"
)

// CatalogRepo reads the games table. The catalog is read-only from the
// core's point of view; rows are seeded by migrations.
type CatalogRepo struct {
	dbPool *pgxpool.Pool
}

func NewCatalogRepo(db *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{dbPool: db}
}

const gameColumns = `id, slug, title, developer, price_cents, release_date`

func (r *CatalogRepo) Lookup(ctx context.Context, id uuid.UUID) (model.Game, error) {
	row := r.dbPool.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	return scanGame(row)
}

func (r *CatalogRepo) BySlug(ctx context.Context, slug string) (model.Game, error) {
	row := r.dbPool.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE slug = $1`, slug)
	return scanGame(row)
}

func (r *CatalogRepo) List(ctx context.Context) ([]model.Game, error) {
	rows, err := r.dbPool.Query(ctx,
		`SELECT `+gameColumns+` FROM games ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func scanGame(row pgx.Row) (model.Game, error) {
	var (
		g          model.Game
		priceCents int64
	)
	err := row.Scan(&g.ID, &g.Slug, &g.Title, &g.Developer, &priceCents, &g.ReleaseDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Game{}, service.ErrNotFound
	}
	if err != nil {
		return model.Game{}, err
	}
	g.Price = fromCents(priceCents)
	return g, nil
}
