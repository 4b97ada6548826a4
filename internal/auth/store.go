package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store loads session identities from the users table. Lookups run
// across mills since the mill is not known until the user is found.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const identityColumns = `u.id, COALESCE(u.mill_id::text, ''), u.email, COALESCE(u.display_name, ''),
	u.password_hash, u.role, u.permissions, u.status, COALESCE(m.status, 'active')`

type userRow struct {
	identity     Identity
	passwordHash string
	status       string
	millStatus   string
}

func scanUser(row pgx.Row) (*userRow, error) {
	var u userRow
	err := row.Scan(
		&u.identity.UserID, &u.identity.MillID, &u.identity.Email, &u.identity.DisplayName,
		&u.passwordHash, &u.identity.Role, &u.identity.Permissions, &u.status, &u.millStatus,
	)
	if err != nil {
		return nil, err
	}
	u.identity.TokenType = TokenTypeAccess
	if u.identity.Permissions == nil {
		u.identity.Permissions = []Grant{}
	}
	return &u, nil
}

func (u *userRow) usable() error {
	if u.status != "active" {
		return ErrUserInactive
	}
	if u.millStatus != "active" {
		return ErrMillSuspended
	}
	return nil
}

// Authenticate verifies email and password and returns a fresh identity.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+`
		 FROM users u LEFT JOIN mills m ON m.id = u.mill_id
		 WHERE lower(u.email) = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			CheckPassword(string(dummyHash), password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if !CheckPassword(u.passwordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if err := u.usable(); err != nil {
		return nil, err
	}
	return &u.identity, nil
}

// GetIdentity reloads the current role and permissions for userID.
func (s *Store) GetIdentity(ctx context.Context, userID string) (*Identity, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+`
		 FROM users u LEFT JOIN mills m ON m.id = u.mill_id
		 WHERE u.id = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if err := u.usable(); err != nil {
		return nil, err
	}
	return &u.identity, nil
}
