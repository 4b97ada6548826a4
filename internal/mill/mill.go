// Package mill manages mills and the staff records that belong to them.
package mill

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrMillNotFound  = errors.New("mill not found")
	ErrSlugTaken     = errors.New("mill slug already in use")
	ErrInvalidSlug   = errors.New("invalid mill slug")
	ErrInvalidStatus = errors.New("invalid mill status")
)

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Mill is a tenant of the platform.
type Mill struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

var reservedSlugs = map[string]bool{
	"api": true, "auth": true, "mill": true, "mills": true,
	"admin": true, "super-admin": true, "mill-admin": true, "mill-staff": true,
	"sign-in": true, "static": true,
}

// ValidateSlug checks that a slug is a DNS-style label and not reserved.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: must be 3-63 lowercase alphanumeric characters or hyphens, cannot start/end with hyphen", ErrInvalidSlug)
	}
	if reservedSlugs[slug] {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidSlug, slug)
	}
	return nil
}

// ValidateStatus accepts only the known mill statuses.
func ValidateStatus(status string) error {
	if status != StatusActive && status != StatusSuspended {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint"))
}
