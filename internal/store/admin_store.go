package store

import (
	"context"
	"database/sql"
	"errors"
)

const (
	RoleViewUsers        = "CanViewUsers"
	RoleViewTransactions = "CanViewTransactions"
	RoleManageAccounts   = "CanManageAccounts"
	RoleReviewKyc        = "CanReviewKyc"
)

var AllRoles = []string{RoleViewUsers, RoleViewTransactions, RoleManageAccounts, RoleReviewKyc}

type AdminStore struct {
	db DB
}

// Principal describes a user's administrative standing.
type Principal struct {
	IsAdmin bool
	IsSuper bool
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) Lookup(ctx context.Context, userID string) (Principal, error) {
	var isSuper bool
	err := s.db.GetContext(ctx, &isSuper, `SELECT is_super FROM admins WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Principal{}, nil
	}
	if err != nil {
		return Principal{}, err
	}
	return Principal{IsAdmin: true, IsSuper: isSuper}, nil
}

func (s *AdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var granted bool
	err := s.db.GetContext(ctx, &granted, `
		SELECT EXISTS (SELECT 1 FROM admin_roles WHERE admin_user_id = $1 AND role = $2)
	`, userID, role)
	return granted, err
}

func (s *AdminStore) Roles(ctx context.Context, userID string) ([]string, error) {
	roles := []string{}
	err := s.db.SelectContext(ctx, &roles, `
		SELECT role FROM admin_roles WHERE admin_user_id = $1 ORDER BY role
	`, userID)
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *AdminStore) CreateAdmin(ctx context.Context, tx Execer, userID string, isSuper bool, createdBy *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (user_id, is_super, created_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, isSuper, createdBy)
	return err
}

func (s *AdminStore) GrantRole(ctx context.Context, tx Execer, adminUserID, role string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_roles (admin_user_id, role)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, adminUserID, role)
	return err
}

// HasAnyAdmin reports whether bootstrap has happened. It takes the unit of
// work so the first registration can promote itself atomically.
func (s *AdminStore) HasAnyAdmin(ctx context.Context, q Getter) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM admins)`)
	return exists, err
}

func IsKnownRole(role string) bool {
	for _, known := range AllRoles {
		if known == role {
			return true
		}
	}
	return false
}
