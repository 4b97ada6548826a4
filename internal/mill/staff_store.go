package mill

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/platform/database"
)

// StaffStore handles staff records. Every method expects q to be scoped to
// a mill through database.WithMillConnection. Queries filter on that mill
// themselves, since RLS does not apply to the table owner.
type StaffStore struct{}

func NewStaffStore() *StaffStore {
	return &StaffStore{}
}

// currentMill matches rows of the connection's mill. Without a mill set it
// compares against NULL and matches nothing.
const currentMill = `mill_id = NULLIF(current_setting('` + database.MillSetting + `', true), '')::UUID`

const staffColumns = `id, COALESCE(mill_id::text, ''), email, COALESCE(display_name, ''),
	role, status, permissions, created_at, updated_at`

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.MillID, &s.Email, &s.DisplayName,
		&s.Role, &s.Status, &s.Permissions, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.Permissions == nil {
		s.Permissions = []auth.Grant{}
	}
	return &s, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStaffNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Create inserts a staff record into the mill of the current connection.
func (s *StaffStore) Create(ctx context.Context, q database.Querier, n NewStaff) (*Staff, error) {
	if err := ValidateRole(n.Role); err != nil {
		return nil, err
	}
	perms := n.Permissions
	if perms == nil {
		perms = []auth.Grant{}
	}

	staff, err := scanStaff(q.QueryRow(ctx,
		`INSERT INTO users (mill_id, email, display_name, password_hash, role, permissions)
		 VALUES (NULLIF(current_setting('`+database.MillSetting+`', true), '')::UUID, $1, NULLIF($2, ''), $3, $4, $5)
		 RETURNING `+staffColumns,
		n.Email, n.DisplayName, n.PasswordHash, n.Role, perms,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrEmailDuplicate, n.Email)
		}
		return nil, fmt.Errorf("creating staff: %w", err)
	}
	return staff, nil
}

// GetByID returns one staff member of the current mill.
func (s *StaffStore) GetByID(ctx context.Context, q database.Querier, id string) (*Staff, error) {
	staff, err := scanStaff(q.QueryRow(ctx,
		`SELECT `+staffColumns+` FROM users WHERE id = $1 AND `+currentMill, id,
	))
	if err != nil {
		return nil, notFound(err, "getting staff")
	}
	return staff, nil
}

// List returns the staff of the current mill, oldest first.
func (s *StaffStore) List(ctx context.Context, q database.Querier) ([]Staff, error) {
	rows, err := q.Query(ctx, `SELECT `+staffColumns+` FROM users WHERE `+currentMill+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing staff: %w", err)
	}
	defer rows.Close()

	var out []Staff
	for rows.Next() {
		staff, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning staff: %w", err)
		}
		out = append(out, *staff)
	}
	return out, rows.Err()
}

// Update changes profile fields of a staff member.
func (s *StaffStore) Update(ctx context.Context, q database.Querier, id string, u StaffUpdate) (*Staff, error) {
	if u.Role != nil {
		if err := ValidateRole(*u.Role); err != nil {
			return nil, err
		}
	}

	staff, err := scanStaff(q.QueryRow(ctx,
		`UPDATE users SET
		   display_name = COALESCE($2, display_name),
		   role = COALESCE($3, role),
		   status = COALESCE($4, status),
		   updated_at = now()
		 WHERE id = $1 AND `+currentMill+`
		 RETURNING `+staffColumns,
		id, u.DisplayName, u.Role, u.Status,
	))
	if err != nil {
		return nil, notFound(err, "updating staff")
	}
	return staff, nil
}

// SetPermissions replaces the permission list of a staff member. The new
// list takes effect at the member's next session refresh.
func (s *StaffStore) SetPermissions(ctx context.Context, q database.Querier, id string, grants []auth.Grant) (*Staff, error) {
	if grants == nil {
		grants = []auth.Grant{}
	}
	staff, err := scanStaff(q.QueryRow(ctx,
		`UPDATE users SET permissions = $2, updated_at = now()
		 WHERE id = $1 AND `+currentMill+`
		 RETURNING `+staffColumns,
		id, grants,
	))
	if err != nil {
		return nil, notFound(err, "updating staff permissions")
	}
	return staff, nil
}

// Deactivate marks a staff member inactive. Inactive members cannot sign in
// or refresh an existing session.
func (s *StaffStore) Deactivate(ctx context.Context, q database.Querier, id string) (*Staff, error) {
	status := StaffInactive
	return s.Update(ctx, q, id, StaffUpdate{Status: &status})
}
