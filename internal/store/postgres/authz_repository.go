// Copyright 2026 The AuthCore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/motoservis/authcore/internal/authz"
	"github.com/motoservis/authcore/internal/id"
)

// RoleRepository implements authz.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create creates a new role
func (r *RoleRepository) Create(ctx context.Context, role *authz.Role) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO roles (id, name, description, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, role.ID, role.Name, role.Description, role.IsDefault, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return authz.ErrRoleAlreadyExists
		}
		return fmt.Errorf("failed to insert role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now

	return nil
}

func scanRole(row pgx.Row) (*authz.Role, error) {
	var role authz.Role
	err := row.Scan(
		&role.ID, &role.Name, &role.Description, &role.IsDefault,
		&role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to scan role: %w", err)
	}
	return &role, nil
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, roleID string) (*authz.Role, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, name, description, is_default, created_at, updated_at
		FROM roles
		WHERE id = $1
	`, roleID)
	return scanRole(row)
}

// GetByName retrieves a role by its unique name
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*authz.Role, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, name, description, is_default, created_at, updated_at
		FROM roles
		WHERE name = $1
	`, name)
	return scanRole(row)
}

// Update updates role name and description
func (r *RoleRepository) Update(ctx context.Context, role *authz.Role) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
	`, role.ID, role.Name, role.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return authz.ErrRoleAlreadyExists
		}
		return fmt.Errorf("failed to update role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return authz.ErrRoleNotFound
	}
	return nil
}

// Delete removes a role. Fails with ErrRoleInUse while users still carry it.
func (r *RoleRepository) Delete(ctx context.Context, roleID string) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var assigned int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM users u JOIN roles r ON u.role_name = r.name
		WHERE r.id = $1
	`, roleID).Scan(&assigned)
	if err != nil {
		return fmt.Errorf("failed to count role assignments: %w", err)
	}
	if assigned > 0 {
		return authz.ErrRoleInUse
	}

	result, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return authz.ErrRoleNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit role deletion: %w", err)
	}
	return nil
}

// List returns all roles ordered by name
func (r *RoleRepository) List(ctx context.Context) ([]*authz.Role, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, description, is_default, created_at, updated_at
		FROM roles
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*authz.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read role rows: %w", err)
	}

	return roles, nil
}

// DefaultRole returns the role flagged as default, or nil when none is
func (r *RoleRepository) DefaultRole(ctx context.Context) (*authz.Role, error) {
	role, err := scanRole(r.db.pool.QueryRow(ctx, `
		SELECT id, name, description, is_default, created_at, updated_at
		FROM roles
		WHERE is_default
	`))
	if err != nil {
		if err == authz.ErrRoleNotFound {
			return nil, nil
		}
		return nil, err
	}
	return role, nil
}

// SetDefault flags roleID as the single default role
func (r *RoleRepository) SetDefault(ctx context.Context, roleID string) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE roles SET is_default = FALSE WHERE is_default`); err != nil {
		return fmt.Errorf("failed to clear default role: %w", err)
	}

	result, err := tx.Exec(ctx, `
		UPDATE roles SET is_default = TRUE, updated_at = NOW() WHERE id = $1
	`, roleID)
	if err != nil {
		return fmt.Errorf("failed to set default role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return authz.ErrRoleNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit default role change: %w", err)
	}
	return nil
}

// DefaultRoleName implements identity.DefaultRoleSource. Empty string when
// no role is flagged as default.
func (r *RoleRepository) DefaultRoleName(ctx context.Context) (string, error) {
	role, err := r.DefaultRole(ctx)
	if err != nil {
		return "", err
	}
	if role == nil {
		return "", nil
	}
	return role.Name, nil
}

// CountPrincipals counts users assigned to the role
func (r *RoleRepository) CountPrincipals(ctx context.Context, roleName string) (int, error) {
	var n int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM users WHERE role_name = $1
	`, roleName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count principals: %w", err)
	}
	return n, nil
}

// PermissionRepository implements authz.PermissionRepository
type PermissionRepository struct {
	db *DB
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// GetByKey returns the permission for (module, action), or nil when it is
// not cataloged
func (r *PermissionRepository) GetByKey(ctx context.Context, moduleID string, action authz.Action) (*authz.Permission, error) {
	var p authz.Permission
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, module_id, action FROM permissions
		WHERE module_id = $1 AND action = $2
	`, moduleID, string(action)).Scan(&p.ID, &p.ModuleID, &p.Action)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &p, nil
}

// List returns the full permission catalog
func (r *PermissionRepository) List(ctx context.Context) ([]*authz.Permission, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, module_id, action FROM permissions
		ORDER BY module_id, action
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []*authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.ModuleID, &p.Action); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read permission rows: %w", err)
	}

	return perms, nil
}

// Ensure returns the permission for (module, action), creating it if missing
func (r *PermissionRepository) Ensure(ctx context.Context, moduleID string, action authz.Action) (*authz.Permission, error) {
	var p authz.Permission
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO permissions (id, module_id, action)
		VALUES ($1, $2, $3)
		ON CONFLICT (module_id, action) DO UPDATE SET module_id = EXCLUDED.module_id
		RETURNING id, module_id, action
	`, id.NewUUIDv7(), moduleID, string(action)).Scan(&p.ID, &p.ModuleID, &p.Action)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure permission: %w", err)
	}
	return &p, nil
}

// GetGrant returns the role grant, or nil when the role has none
func (r *PermissionRepository) GetGrant(ctx context.Context, roleID, permissionID string) (*authz.Grant, error) {
	var g authz.Grant
	err := r.db.pool.QueryRow(ctx, `
		SELECT role_id, permission_id, allowed FROM role_permissions
		WHERE role_id = $1 AND permission_id = $2
	`, roleID, permissionID).Scan(&g.RoleID, &g.PermissionID, &g.Allowed)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &g, nil
}

// SetGrant upserts a role grant
func (r *PermissionRepository) SetGrant(ctx context.Context, grant authz.Grant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, allowed)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, permission_id) DO UPDATE SET allowed = EXCLUDED.allowed
	`, grant.RoleID, grant.PermissionID, grant.Allowed)
	if err != nil {
		return fmt.Errorf("failed to set grant: %w", err)
	}
	return nil
}

// GrantsForRole returns every grant attached to the role
func (r *PermissionRepository) GrantsForRole(ctx context.Context, roleID string) ([]*authz.Grant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT role_id, permission_id, allowed FROM role_permissions
		WHERE role_id = $1
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []*authz.Grant
	for rows.Next() {
		var g authz.Grant
		if err := rows.Scan(&g.RoleID, &g.PermissionID, &g.Allowed); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read grant rows: %w", err)
	}

	return grants, nil
}

// GetOverride returns the user override, or nil when the user has none
func (r *PermissionRepository) GetOverride(ctx context.Context, userID, permissionID string) (*authz.Override, error) {
	var o authz.Override
	err := r.db.pool.QueryRow(ctx, `
		SELECT user_id, permission_id, allowed FROM user_permissions
		WHERE user_id = $1 AND permission_id = $2
	`, userID, permissionID).Scan(&o.UserID, &o.PermissionID, &o.Allowed)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get override: %w", err)
	}
	return &o, nil
}

// SetOverride upserts a user override
func (r *PermissionRepository) SetOverride(ctx context.Context, override authz.Override) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, allowed)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, permission_id) DO UPDATE SET allowed = EXCLUDED.allowed
	`, override.UserID, override.PermissionID, override.Allowed)
	if err != nil {
		return fmt.Errorf("failed to set override: %w", err)
	}
	return nil
}

// ClearOverride removes a user override; clearing a missing override is a no-op
func (r *PermissionRepository) ClearOverride(ctx context.Context, userID, permissionID string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2
	`, userID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to clear override: %w", err)
	}
	return nil
}

// OverridesForUser returns every override attached to the user
func (r *PermissionRepository) OverridesForUser(ctx context.Context, userID string) ([]*authz.Override, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT user_id, permission_id, allowed FROM user_permissions
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*authz.Override
	for rows.Next() {
		var o authz.Override
		if err := rows.Scan(&o.UserID, &o.PermissionID, &o.Allowed); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides = append(overrides, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read override rows: %w", err)
	}

	return overrides, nil
}
