package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sifan077/LinkTrace/internal/app/model"
)

// visitSchemaDDL declares the visits table. link_code carries a cascading
// foreign key so that deleting a link removes its history in the same
// transaction; without it a concurrent delete could leave rows behind.
const visitSchemaDDL = `
CREATE TABLE IF NOT EXISTS visits (
	id         BIGSERIAL PRIMARY KEY,
	link_code  VARCHAR(32) NOT NULL REFERENCES links(code) ON DELETE CASCADE,
	visited_at TIMESTAMPTZ NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	city       TEXT,
	region     TEXT,
	country    TEXT,
	lat        DOUBLE PRECISION,
	lon        DOUBLE PRECISION,
	user_agent TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_visits_link_code ON visits (link_code, id);`

// VisitRepository defines the data access contract for the append-only visit
// history. Visits bypass the ORM: each entry is a single row insert through
// pgx, which keeps concurrent appends to the same link atomic without any
// read-modify-write of the parent link.
type VisitRepository interface {
	Append(ctx context.Context, visit *model.Visit) error
	ListRecent(ctx context.Context, linkCode string, limit int) ([]model.Visit, error)
	CountByLink(ctx context.Context, linkCode string) (int64, error)
}

type visitRepository struct {
	pool *pgxpool.Pool
}

// NewVisitRepository returns a pgx-backed VisitRepository.
func NewVisitRepository(pool *pgxpool.Pool) VisitRepository {
	return &visitRepository{pool: pool}
}

// EnsureVisitSchema creates the visits table and its index. The links table
// is migrated by GORM; visits are owned by pgx so the schema lives here.
// Must run after the links migration: the foreign key needs its target.
func EnsureVisitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, visitSchemaDDL); err != nil {
		return fmt.Errorf("visits: ensure schema: %w", err)
	}
	return nil
}

// Append inserts one visit row. The foreign key rejects recordings for links
// deleted between resolution and recording; that surfaces as ErrLinkNotFound,
// which callers treat as a silent no-op.
func (r *visitRepository) Append(ctx context.Context, visit *model.Visit) error {
	var city, region, country *string
	var lat, lon *float64
	if visit.Location != nil {
		if visit.Location.City != "" {
			city = &visit.Location.City
		}
		if visit.Location.Region != "" {
			region = &visit.Location.Region
		}
		if visit.Location.Country != "" {
			country = &visit.Location.Country
		}
		lat = visit.Location.Lat
		lon = visit.Location.Lon
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO visits (link_code, visited_at, address, city, region, country, lat, lon, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		visit.LinkCode, visit.Timestamp, visit.Address,
		city, region, country, lat, lon, visit.UserAgent,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrLinkNotFound
		}
		return fmt.Errorf("visits: append: %w", err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// ListRecent returns the most recent visits for a link in chronological
// order. Only a bounded suffix of the history is surfaced.
func (r *visitRepository) ListRecent(ctx context.Context, linkCode string, limit int) ([]model.Visit, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, link_code, visited_at, address, city, region, country, lat, lon, user_agent
FROM (
	SELECT * FROM visits WHERE link_code = $1 ORDER BY id DESC LIMIT $2
) recent
ORDER BY id ASC`, linkCode, limit)
	if err != nil {
		return nil, fmt.Errorf("visits: list recent: %w", err)
	}
	defer rows.Close()

	var visits []model.Visit
	for rows.Next() {
		var v model.Visit
		var city, region, country *string
		var lat, lon *float64
		if err := rows.Scan(
			&v.ID, &v.LinkCode, &v.Timestamp, &v.Address,
			&city, &region, &country, &lat, &lon, &v.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("visits: scan: %w", err)
		}
		if city != nil || region != nil || country != nil || lat != nil {
			loc := &model.Location{Lat: lat, Lon: lon}
			if city != nil {
				loc.City = *city
			}
			if region != nil {
				loc.Region = *region
			}
			if country != nil {
				loc.Country = *country
			}
			v.Location = loc
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

func (r *visitRepository) CountByLink(ctx context.Context, linkCode string) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM visits WHERE link_code = $1", linkCode,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("visits: count: %w", err)
	}
	return count, nil
}
