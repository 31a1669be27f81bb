package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ps-vitor/pylife-houses/backend/internal/domain"
)

// HouseRepository stores listings keyed by their panel id.
type HouseRepository interface {
	// FindByID returns nil, nil when the house is not stored.
	FindByID(ctx context.Context, id int) (*domain.Listing, error)
	// SaveAll upserts every listing in a single transaction.
	SaveAll(ctx context.Context, listings []domain.Listing) error
}

// The table is created outside this job:
//
// CREATE TABLE IF NOT EXISTS houses (
//     id          INTEGER PRIMARY KEY,
//     x           INTEGER NOT NULL,
//     y           INTEGER NOT NULL,
//     name        TEXT NOT NULL,
//     location    TEXT NOT NULL,
//     owner       VARCHAR(22),
//     price       DOUBLE PRECISION,
//     expiry      TIMESTAMPTZ,
//     last_update TIMESTAMPTZ NOT NULL DEFAULT now()
// );

const (
	selectHouseQuery = `
        SELECT id, x, y, name, location, owner, price, expiry, last_update
        FROM houses
        WHERE id = $1`

	upsertHouseQuery = `
        INSERT INTO houses (id, x, y, name, location, owner, price, expiry, last_update)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
        ON CONFLICT (id) DO UPDATE SET
            x = EXCLUDED.x,
            y = EXCLUDED.y,
            name = EXCLUDED.name,
            location = EXCLUDED.location,
            owner = EXCLUDED.owner,
            price = EXCLUDED.price,
            expiry = EXCLUDED.expiry,
            last_update = now()`
)

type PostgresHouseRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresHouseRepository(pool *pgxpool.Pool) (*PostgresHouseRepository, error) {
	if pool == nil {
		return nil, errors.New("postgres house repository: pool cannot be nil")
	}
	return &PostgresHouseRepository{pool: pool}, nil
}

func (r *PostgresHouseRepository) FindByID(ctx context.Context, id int) (*domain.Listing, error) {
	var l domain.Listing
	err := r.pool.QueryRow(ctx, selectHouseQuery, id).Scan(
		&l.ID, &l.X, &l.Y, &l.Name, &l.Location, &l.Owner, &l.Price, &l.Expiry, &l.LastUpdate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query house %d: %w", id, err)
	}
	return &l, nil
}

func (r *PostgresHouseRepository) SaveAll(ctx context.Context, listings []domain.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(upsertHouseQuery, l.ID, l.X, l.Y, l.Name, l.Location, l.Owner, l.Price, l.Expiry)
	}

	br := tx.SendBatch(ctx, batch)
	for _, l := range listings {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert house %d: %w", l.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
