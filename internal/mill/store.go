package mill

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store handles mill database operations. Mills are not row-level
// secured; callers are restricted to super-admins.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const millColumns = "id, name, slug, status, created_at, updated_at"

func scanMill(row pgx.Row) (*Mill, error) {
	var m Mill
	if err := row.Scan(&m.ID, &m.Name, &m.Slug, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a new active mill.
func (s *Store) Create(ctx context.Context, name, slug string) (*Mill, error) {
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}

	m, err := scanMill(s.pool.QueryRow(ctx,
		`INSERT INTO mills (name, slug) VALUES ($1, $2) RETURNING `+millColumns,
		name, slug,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrSlugTaken, slug)
		}
		return nil, fmt.Errorf("creating mill: %w", err)
	}
	return m, nil
}

// GetByID retrieves a mill by its UUID.
func (s *Store) GetByID(ctx context.Context, id string) (*Mill, error) {
	m, err := scanMill(s.pool.QueryRow(ctx,
		`SELECT `+millColumns+` FROM mills WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMillNotFound
		}
		return nil, fmt.Errorf("getting mill: %w", err)
	}
	return m, nil
}

// List returns all mills, oldest first.
func (s *Store) List(ctx context.Context) ([]Mill, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+millColumns+` FROM mills ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing mills: %w", err)
	}
	defer rows.Close()

	var mills []Mill
	for rows.Next() {
		m, err := scanMill(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mill: %w", err)
		}
		mills = append(mills, *m)
	}
	return mills, rows.Err()
}

// SetStatus suspends or reactivates a mill. Sessions of a suspended mill
// are refused at login and refresh.
func (s *Store) SetStatus(ctx context.Context, id, status string) (*Mill, error) {
	if err := ValidateStatus(status); err != nil {
		return nil, err
	}

	m, err := scanMill(s.pool.QueryRow(ctx,
		`UPDATE mills SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+millColumns,
		id, status,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMillNotFound
		}
		return nil, fmt.Errorf("updating mill status: %w", err)
	}
	return m, nil
}
