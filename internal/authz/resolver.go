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
	"fmt"
	"sync"
)

// Resolver computes allowed(user, module, action). Resolution is
// deterministic and side-effect free; the precedence is fixed:
//
//  1. inactive principal          -> false
//  2. unknown permission          -> false
//  3. user override present       -> its value
//  4. missing role                -> false
//  5. role grant present and true -> true, otherwise false
//
// Results are cached per principal. The admin service invalidates on every
// change to grants, overrides, a principal's role or its active flag; the
// permission matrix shown in the UI reads through the same path, so matrix
// and checks can never disagree.
type Resolver struct {
	principals PrincipalSource
	roles      RoleRepository
	perms      PermissionRepository

	mu    sync.RWMutex
	cache map[string]map[string]bool // userID -> permission key -> allowed
}

// NewResolver creates a permission resolver.
func NewResolver(principals PrincipalSource, roles RoleRepository, perms PermissionRepository) *Resolver {
	return &Resolver{
		principals: principals,
		roles:      roles,
		perms:      perms,
		cache:      make(map[string]map[string]bool),
	}
}

// Allowed reports whether the user may perform action on moduleID.
func (r *Resolver) Allowed(ctx context.Context, userID, moduleID string, action Action) (bool, error) {
	key := moduleID + ":" + string(action)

	r.mu.RLock()
	if userCache, ok := r.cache[userID]; ok {
		if allowed, ok := userCache[key]; ok {
			r.mu.RUnlock()
			return allowed, nil
		}
	}
	r.mu.RUnlock()

	allowed, err := r.resolve(ctx, userID, moduleID, action)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	if _, ok := r.cache[userID]; !ok {
		r.cache[userID] = make(map[string]bool)
	}
	r.cache[userID][key] = allowed
	r.mu.Unlock()

	return allowed, nil
}

func (r *Resolver) resolve(ctx context.Context, userID, moduleID string, action Action) (bool, error) {
	principal, err := r.principals.Principal(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load principal: %w", err)
	}
	if principal == nil || !principal.Active {
		return false, nil
	}

	perm, err := r.perms.GetByKey(ctx, moduleID, action)
	if err != nil {
		return false, fmt.Errorf("failed to load permission: %w", err)
	}
	if perm == nil {
		return false, nil
	}

	override, err := r.perms.GetOverride(ctx, userID, perm.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load user override: %w", err)
	}
	if override != nil {
		return override.Allowed, nil
	}

	role, err := r.roles.GetByName(ctx, principal.RoleName)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load role: %w", err)
	}

	grant, err := r.perms.GetGrant(ctx, role.ID, perm.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load role grant: %w", err)
	}
	return grant != nil && grant.Allowed, nil
}

// Invalidate drops cached resolutions for one principal. Call it whenever
// the principal's overrides, role assignment or active flag change.
func (r *Resolver) Invalidate(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, userID)
}

// InvalidateAll drops the whole cache. Call it whenever a role grant or a
// role definition changes, since any principal may be affected.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]map[string]bool)
}

// MatrixEntry is one cell of the permission matrix shown by the admin UI.
type MatrixEntry struct {
	ModuleID string
	Action   Action
	Allowed  bool
}

// Matrix resolves every cataloged permission for the user. Each cell goes
// through Allowed, so the matrix is always consistent with individual checks.
func (r *Resolver) Matrix(ctx context.Context, userID string) ([]MatrixEntry, error) {
	perms, err := r.perms.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}

	entries := make([]MatrixEntry, 0, len(perms))
	for _, p := range perms {
		allowed, err := r.Allowed(ctx, userID, p.ModuleID, p.Action)
		if err != nil {
			return nil, err
		}
		entries = append(entries, MatrixEntry{ModuleID: p.ModuleID, Action: p.Action, Allowed: allowed})
	}
	return entries, nil
}
