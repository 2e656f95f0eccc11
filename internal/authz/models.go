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

package authz

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleAlreadyExists  = errors.New("role already exists")
	ErrRoleInUse          = errors.New("role is assigned to at least one user")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrInvalidAction      = errors.New("invalid permission action")
)

// Action is one of the five guarded operations on a module. The admin action
// is an independent permission: it is never implied by edit or any other
// action.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionAdmin  Action = "admin"
)

// Actions lists every valid action in display order.
var Actions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionAdmin}

// Valid reports whether a belongs to the closed action set.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete, ActionAdmin:
		return true
	}
	return false
}

// Permission is a (module, action) pair representing a guarded operation.
type Permission struct {
	ID       string
	ModuleID string
	Action   Action
}

// Key returns the composite natural key used for caching and display.
func (p Permission) Key() string {
	return p.ModuleID + ":" + string(p.Action)
}

// Role is a named bundle of default grants. At most one role is flagged as
// the default applied to newly created principals.
type Role struct {
	ID          string
	Name        string
	Description string
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Grant is a boolean decision attached to a (role, permission) pair.
// Absence means false.
type Grant struct {
	RoleID       string
	PermissionID string
	Allowed      bool
}

// Override is a boolean decision attached to a (user, permission) pair.
// Absence means "no override; defer to role". An explicit false beats a role
// allow, an explicit true beats a role deny.
type Override struct {
	UserID       string
	PermissionID string
	Allowed      bool
}

// Principal is the minimal view of a user the resolver needs.
type Principal struct {
	ID       string
	RoleName string
	Active   bool
}

// PrincipalSource resolves a user id to its role and active flag. A missing
// user yields (nil, nil); the resolver answers false for it.
type PrincipalSource interface {
	Principal(ctx context.Context, userID string) (*Principal, error)
}

// RoleRepository persists roles.
type RoleRepository interface {
	Create(ctx context.Context, role *Role) error
	GetByID(ctx context.Context, roleID string) (*Role, error)
	// GetByName fails with ErrRoleNotFound when no role carries the name.
	GetByName(ctx context.Context, name string) (*Role, error)
	Update(ctx context.Context, role *Role) error
	// Delete removes a role; implementations refuse roles with principals.
	Delete(ctx context.Context, roleID string) error
	List(ctx context.Context) ([]*Role, error)
	// DefaultRole returns the role flagged is_default, or nil when none is.
	DefaultRole(ctx context.Context) (*Role, error)
	// SetDefault flags roleID as the single default role, clearing any
	// previous default in the same transaction.
	SetDefault(ctx context.Context, roleID string) error
	// CountPrincipals counts users whose role_name references the role.
	CountPrincipals(ctx context.Context, roleName string) (int, error)
}

// PermissionRepository persists the permission catalog, role grants and user
// overrides. Set* calls replace the (subject, permission) pair atomically.
type PermissionRepository interface {
	// GetByKey returns nil when (moduleID, action) is not cataloged.
	GetByKey(ctx context.Context, moduleID string, action Action) (*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
	// Ensure returns the permission for (moduleID, action), creating it if
	// missing. Used by seeding and grant administration.
	Ensure(ctx context.Context, moduleID string, action Action) (*Permission, error)

	// GetGrant returns nil when the role has no grant for the permission.
	GetGrant(ctx context.Context, roleID, permissionID string) (*Grant, error)
	SetGrant(ctx context.Context, grant Grant) error
	GrantsForRole(ctx context.Context, roleID string) ([]*Grant, error)

	// GetOverride returns nil when the user has no override for the permission.
	GetOverride(ctx context.Context, userID, permissionID string) (*Override, error)
	SetOverride(ctx context.Context, override Override) error
	ClearOverride(ctx context.Context, userID, permissionID string) error
	OverridesForUser(ctx context.Context, userID string) ([]*Override, error)
}
