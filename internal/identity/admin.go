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

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/motoservis/authcore/internal/audit"
	"github.com/motoservis/authcore/internal/authz"
	"github.com/motoservis/authcore/internal/id"
	"github.com/motoservis/authcore/internal/policy"
)

// Authorizer is the slice of the permission resolver the user admin needs:
// the allowed() decision plus cache invalidation for principals whose role
// or active flag this service changes.
type Authorizer interface {
	Allowed(ctx context.Context, userID, moduleID string, action authz.Action) (bool, error)
	Invalidate(userID string)
}

// DefaultRoleSource yields the role name applied to principals created
// without an explicit role. Empty string when no default role is flagged.
type DefaultRoleSource interface {
	DefaultRoleName(ctx context.Context) (string, error)
}

// Actor identifies the privileged principal performing an operation.
type Actor struct {
	ID       string
	Username string
	Source   string
}

// CreateParams carries the fields of a new principal.
type CreateParams struct {
	Username    string
	DisplayName string
	Email       string
	Phone       string
	RoleName    string // empty picks the default role
	Password    string
	Active      bool
}

// AdminService covers user lifecycle operations performed by privileged
// principals: create, edit, deactivate, hard delete, password reset, unlock.
type AdminService struct {
	users       UserRepository
	lockouts    *LockoutManager
	hasher      *PasswordHasher
	evaluator   *policy.Evaluator
	policies    PolicySource
	auditor     audit.Emitter
	authorizer  Authorizer
	defaultRole DefaultRoleSource
	clock       func() time.Time
}

// NewAdminService creates the user admin service.
func NewAdminService(
	users UserRepository,
	lockouts *LockoutManager,
	hasher *PasswordHasher,
	evaluator *policy.Evaluator,
	policies PolicySource,
	auditor audit.Emitter,
	authorizer Authorizer,
	defaultRole DefaultRoleSource,
) *AdminService {
	return &AdminService{
		users:       users,
		lockouts:    lockouts,
		hasher:      hasher,
		evaluator:   evaluator,
		policies:    policies,
		auditor:     auditor,
		authorizer:  authorizer,
		defaultRole: defaultRole,
		clock:       time.Now,
	}
}

func (s *AdminService) require(ctx context.Context, actorID string, action authz.Action) error {
	allowed, err := s.authorizer.Allowed(ctx, actorID, authz.ModuleUsers, action)
	if err != nil {
		return err
	}
	if !allowed {
		return authz.ErrPermissionDenied
	}
	return nil
}

// Create provisions a new principal. The initial password must satisfy the
// policy; the credential is stored hashed.
func (s *AdminService) Create(ctx context.Context, actor Actor, p CreateParams) (*User, error) {
	if err := s.require(ctx, actor.ID, authz.ActionCreate); err != nil {
		return nil, err
	}

	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if existing, err := s.users.GetByUsername(ctx, p.Username); err == nil && existing != nil {
		return nil, ErrDuplicateUsername
	} else if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if p.RoleName == "" {
		name, err := s.defaultRole.DefaultRoleName(ctx)
		if err != nil {
			return nil, err
		}
		p.RoleName = name
	}

	pol, err := s.policies.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load password policy: %w", err)
	}
	if v := s.evaluator.Evaluate(pol, p.Password, p.Username, nil); len(v) > 0 {
		return nil, v
	}
	credential, err := s.hasher.Hash(p.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.clock()
	user := &User{
		ID:          id.NewUUIDv7(),
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Phone:       p.Phone,
		Credential:  credential,
		RoleName:    p.RoleName,
		Active:      p.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := s.users.SetCredential(ctx, user.ID, credential, now); err != nil {
		return nil, err
	}

	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindUserCreated, UserID: &actor.ID, Username: actor.Username,
		Details: "created user " + user.Username, Source: actor.Source,
	})
	return user, nil
}

// Update edits a principal's fields. Renames are checked for collisions;
// role or active changes invalidate the resolver cache.
func (s *AdminService) Update(ctx context.Context, actor Actor, user *User) error {
	if err := s.require(ctx, actor.ID, authz.ActionEdit); err != nil {
		return err
	}

	current, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if current.Username != user.Username {
		if existing, err := s.users.GetByUsername(ctx, user.Username); err == nil && existing != nil {
			return ErrDuplicateUsername
		} else if err != nil && !errors.Is(err, ErrUserNotFound) {
			return err
		}
	}

	user.UpdatedAt = s.clock()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	if current.RoleName != user.RoleName || current.Active != user.Active {
		s.authorizer.Invalidate(user.ID)
	}

	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindUserEdited, UserID: &actor.ID, Username: actor.Username,
		Details: "edited user " + user.Username, Source: actor.Source,
	})
	return nil
}

// Deactivate soft-deletes a principal by clearing the active flag. All
// authentication and authorization for the user fails afterwards while its
// audit history stays intact.
func (s *AdminService) Deactivate(ctx context.Context, actor Actor, userID string) error {
	if err := s.require(ctx, actor.ID, authz.ActionDelete); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.Active = false
	user.UpdatedAt = s.clock()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	s.authorizer.Invalidate(userID)

	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindUserDeleted, UserID: &actor.ID, Username: actor.Username,
		Details: "deactivated user " + user.Username, Source: actor.Source,
	})
	return nil
}

// DeleteHard removes the principal row entirely. It is only permitted while
// no audit event references the user; overrides and lockout state are
// removed in the same transaction. The audit event for the deletion itself
// carries only the username snapshot, never the removed id.
func (s *AdminService) DeleteHard(ctx context.Context, actor Actor, userID string) error {
	if err := s.require(ctx, actor.ID, authz.ActionDelete); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.DeleteHard(ctx, userID); err != nil {
		return err
	}
	s.authorizer.Invalidate(userID)

	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindUserDeleted, Username: user.Username,
		Details: "hard-deleted user " + user.Username, Source: actor.Source,
	})
	return nil
}

// ResetPassword replaces a user's credential without knowing the old one.
// The candidate must satisfy the policy; the lockout state is cleared so the
// user can log in immediately with the new password.
func (s *AdminService) ResetPassword(ctx context.Context, actor Actor, userID, newPlain string) error {
	if err := s.require(ctx, actor.ID, authz.ActionAdmin); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	pol, err := s.policies.Current(ctx)
	if err != nil {
		return fmt.Errorf("failed to load password policy: %w", err)
	}
	history, err := s.users.History(ctx, userID, pol.HistoryCount)
	if err != nil {
		return err
	}
	if v := s.evaluator.Evaluate(pol, newPlain, user.Username, history); len(v) > 0 {
		return v
	}

	credential, err := s.hasher.Hash(newPlain)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.SetCredential(ctx, userID, credential, s.clock()); err != nil {
		return err
	}
	if err := s.lockouts.Unlock(ctx, userID); err != nil {
		return err
	}

	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindPasswordReset, UserID: &actor.ID, Username: actor.Username,
		Details: "reset password for " + user.Username, Source: actor.Source,
	})
	return nil
}

// Unlock clears a lockout, temporary or permanent.
func (s *AdminService) Unlock(ctx context.Context, actor Actor, userID string) error {
	if err := s.require(ctx, actor.ID, authz.ActionAdmin); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.lockouts.Unlock(ctx, userID); err != nil {
		return err
	}
	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindUserEdited, UserID: &actor.ID, Username: actor.Username,
		Details: "unlocked user " + user.Username, Source: actor.Source,
	})
	return nil
}

// List returns users matching the filter for the admin screens.
func (s *AdminService) List(ctx context.Context, actor Actor, f ListFilter) ([]*User, error) {
	if err := s.require(ctx, actor.ID, authz.ActionView); err != nil {
		return nil, err
	}
	return s.users.List(ctx, f)
}

// UpdateProfile is the self-service edit of display data. It is unguarded:
// a principal may always edit its own profile, never someone else's.
func (s *AdminService) UpdateProfile(ctx context.Context, userID, displayName, email, phone, source string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.DisplayName = displayName
	user.Email = email
	user.Phone = phone
	user.UpdatedAt = s.clock()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindProfileUpdated, UserID: &user.ID, Username: user.Username, Source: source,
	})
	return nil
}
