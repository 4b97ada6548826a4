package mill

import (
	"errors"
	"fmt"
	"time"

	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/rbac"
	"github.com/millerp/millerp/internal/screens"
)

var (
	ErrStaffNotFound  = errors.New("staff member not found")
	ErrEmailDuplicate = errors.New("email already registered")
	ErrInvalidRole    = errors.New("invalid staff role")
	ErrUnknownModule  = errors.New("unknown module")
	ErrSelfEdit       = errors.New("staff cannot edit their own record")
)

const (
	StaffActive   = "active"
	StaffInactive = "inactive"
)

// Staff is a user account inside a mill together with its permission list.
type Staff struct {
	ID          string       `json:"id"`
	MillID      string       `json:"mill_id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"display_name,omitempty"`
	Role        string       `json:"role"`
	Status      string       `json:"status"`
	Permissions []auth.Grant `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewStaff holds the fields of a staff record to be inserted.
type NewStaff struct {
	Email        string
	DisplayName  string
	Role         string
	PasswordHash string
	Permissions  []auth.Grant
}

// StaffUpdate lists the profile fields to change; nil fields are kept.
type StaffUpdate struct {
	DisplayName *string
	Role        *string
	Status      *string
}

// ValidateRole accepts the roles that can exist inside a mill.
func ValidateRole(role string) error {
	r, ok := rbac.ParseRole(role)
	if !ok || r == rbac.RoleSuperAdmin {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return nil
}

// NormalizePermissions validates grants against the module catalog and
// returns them deduplicated and sorted. Unknown actions are dropped the
// same way a session would drop them.
func NormalizePermissions(grants []auth.Grant) ([]auth.Grant, error) {
	normalized := rbac.NewPermissionSet(grants).Grants()
	for _, g := range normalized {
		if _, ok := screens.ModuleBySlug(g.ModuleSlug); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModule, g.ModuleSlug)
		}
	}
	return normalized, nil
}
