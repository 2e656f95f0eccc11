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
	"fmt"
	"strings"
	"time"

	"github.com/motoservis/authcore/internal/audit"
	"github.com/motoservis/authcore/internal/id"
	"github.com/motoservis/authcore/internal/policy"
)

// PolicyStore persists the password policy blob under admin_settings.
type PolicyStore interface {
	Current(ctx context.Context) (policy.Policy, error)
	Save(ctx context.Context, p policy.Policy) error
}

// AdminService mutates roles, grants, overrides and the password policy.
// Every mutation requires the acting principal to hold administration:admin,
// invalidates the resolver cache it may have affected, and emits an audit
// event.
type AdminService struct {
	resolver *Resolver
	roles    RoleRepository
	perms    PermissionRepository
	policies PolicyStore
	auditor  audit.Emitter
	clock    func() time.Time
}

// NewAdminService creates the authorization admin service.
func NewAdminService(resolver *Resolver, roles RoleRepository, perms PermissionRepository, auditor audit.Emitter) *AdminService {
	return &AdminService{
		resolver: resolver,
		roles:    roles,
		perms:    perms,
		auditor:  auditor,
		clock:    time.Now,
	}
}

// WithPolicyStore enables the UpdatePolicy operation.
func (s *AdminService) WithPolicyStore(store PolicyStore) *AdminService {
	s.policies = store
	return s
}

func (s *AdminService) requireAdmin(ctx context.Context, actorID string) error {
	allowed, err := s.resolver.Allowed(ctx, actorID, ModuleAdministration, ActionAdmin)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrPermissionDenied
	}
	return nil
}

func (s *AdminService) emit(ctx context.Context, kind, actorID, actorName, details, source string) {
	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: kind, UserID: &actorID, Username: actorName, Details: details, Source: source,
	})
}

// Actor identifies the principal performing a guarded mutation, as taken
// from the session holder by the caller.
type Actor struct {
	ID       string
	Username string
	Source   string
}

// CreateRole creates a new role.
func (s *AdminService) CreateRole(ctx context.Context, actor Actor, name, description string) (*Role, error) {
	if err := s.requireAdmin(ctx, actor.ID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}
	now := s.clock()
	role := &Role{
		ID:          id.NewUUIDv7(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	s.emit(ctx, audit.KindRoleUpdated, actor.ID, actor.Username, "created role "+name, actor.Source)
	return role, nil
}

// UpdateRole renames a role or changes its description.
func (s *AdminService) UpdateRole(ctx context.Context, actor Actor, role *Role) error {
	if err := s.requireAdmin(ctx, actor.ID); err != nil {
		return err
	}
	role.UpdatedAt = s.clock()
	if err := s.roles.Update(ctx, role); err != nil {
		return err
	}
	// A rename changes what users.role_name resolves to.
	s.resolver.InvalidateAll()
	s.emit(ctx, audit.KindRoleUpdated, actor.ID, actor.Username, "updated role "+role.Name, actor.Source)
	return nil
}

// DeleteRole removes a role that no principal holds.
func (s *AdminService) DeleteRole(ctx context.Context, actor Actor, roleID string) error {
	if err := s.requireAdmin(ctx, actor.ID); err != nil {
		return err
	}
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	n, err := s.roles.CountPrincipals(ctx, role.Name)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrRoleInUse
	}
	if err := s.roles.Delete(ctx, roleID); err != nil {
		return err
	}
	s.resolver.InvalidateAll()
	s.emit(ctx, audit.KindRoleUpdated, actor.ID, actor.Username, "deleted role "+role.Name, actor.Source)
	return nil
}

// SetDefaultRole flags roleID as the role applied to new principals,
// clearing any previous default.
func (s *AdminService) SetDefaultRole(ctx context.Context, actor Actor, roleID string) error {
	if err := s.requireAdmin(ctx, actor.ID); err != nil {
		return err
	}
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.roles.SetDefault(ctx, roleID); err != nil {
		return err
	}
	s.emit(ctx, audit.KindRoleUpdated, actor.ID, actor.Username, "default role set to "+role.Name, actor.Source)
	return nil
}

// SetGrant replaces the grant decision for (role, module, action). The
// permission is cataloged on first use.
func (s *AdminService) SetGrant(ctx context.Context, actor Actor, roleID, moduleID string, action Action, allowed bool) error {
	if err := s.requireAdmin(ctx, actor.ID); err != nil {
		return err
	}
	if !action.Valid() {
		return ErrInvalidAction
	}
	perm, err := s.perms.Ensure(ctx, moduleID, action)
	if err != nil {
		return err
	}
	if err := s.perms.SetGrant(ctx, Grant{RoleID: roleID, PermissionID: perm.ID, Allowed: allowed}); err != nil {
		return err
	}
	s.resolver.InvalidateAll()
	s.emit(ctx, audit.KindPermissionChanged, actor.ID, actor.Username,
		fmt.Sprintf("role %s: %s=%t", roleID, perm.Key(), allowed), actor.Source)
	return nil
}

// SetOverride replaces the per-user override for (user, module, action).
func (s *AdminService) SetOverride(ctx context.Context, actor Actor, userID, moduleID string, action Action, allowed bool) error {
	if err := s.requireAdmin(ctx, actor.ID); err != nil {
		return err
	}
	if !action.Valid() {
		return ErrInvalidAction
	}
	perm, err := s.perms.Ensure(ctx, moduleID, action)
	if err != nil {
		return err
	}
	if err := s.perms.SetOverride(ctx, Override{UserID: userID, PermissionID: perm.ID, Allowed: allowed}); err != nil {
		return err
	}
	s.resolver.Invalidate(userID)
	s.emit(ctx, audit.KindPermissionChanged, actor.ID, actor.Username,
		fmt.Sprintf("user %s: %s=%t", userID, perm.Key(), allowed), actor.Source)
	return nil
}

// ClearOverride removes a per-user override so the role decides again.
func (s *AdminService) ClearOverride(ctx context.Context, actor Actor, userID, moduleID string, action Action) error {
	if err := s.requireAdmin(ctx, actor.ID); err != nil {
		return err
	}
	perm, err := s.perms.GetByKey(ctx, moduleID, action)
	if err != nil {
		return err
	}
	if perm == nil {
		return ErrPermissionNotFound
	}
	if err := s.perms.ClearOverride(ctx, userID, perm.ID); err != nil {
		return err
	}
	s.resolver.Invalidate(userID)
	s.emit(ctx, audit.KindPermissionChanged, actor.ID, actor.Username,
		fmt.Sprintf("user %s: %s override cleared", userID, perm.Key()), actor.Source)
	return nil
}

// UpdatePolicy replaces the stored password policy. Logins and password
// changes pick the new policy up on their next read; no cache needs
// invalidation.
func (s *AdminService) UpdatePolicy(ctx context.Context, actor Actor, p policy.Policy) error {
	if err := s.requireAdmin(ctx, actor.ID); err != nil {
		return err
	}
	if s.policies == nil {
		return fmt.Errorf("no policy store configured")
	}
	if err := s.policies.Save(ctx, p); err != nil {
		return err
	}
	s.emit(ctx, audit.KindPermissionChanged, actor.ID, actor.Username, "password policy updated", actor.Source)
	return nil
}

// Seed catalogs every module/action pair so grants and overrides can attach
// to stable permission ids. The built-in roles and their initial grants come
// from the schema migration. Seed is idempotent and runs unguarded at
// composition time, before any principal exists.
func (s *AdminService) Seed(ctx context.Context) error {
	for _, module := range Modules {
		for _, action := range Actions {
			if _, err := s.perms.Ensure(ctx, module, action); err != nil {
				return fmt.Errorf("failed to seed permission %s:%s: %w", module, action, err)
			}
		}
	}
	return nil
}
