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
	"time"

	"github.com/motoservis/authcore/internal/policy"
)

// Domain errors
var (
	// ErrAuthFailed is the uniform login failure. It deliberately collapses
	// unknown username, wrong password and inactive account so callers cannot
	// enumerate users; the distinct cause is only visible in the audit log.
	ErrAuthFailed = errors.New("authentication failed")

	ErrAccountLocked     = errors.New("account is locked")
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrUserInactive      = errors.New("user is inactive")

	// ErrAuditReferenced blocks hard deletion while audit rows still point at
	// the user. Deactivate instead.
	ErrAuditReferenced = errors.New("user is referenced by audit records")
)

// User is an authenticatable principal with exactly one role. Credential is
// opaque to everything outside this package and must never be logged or
// surfaced to UI code.
type User struct {
	ID          string
	Username    string // unique, case-sensitive
	DisplayName string
	Email       string
	Phone       string
	Credential  string
	RoleName    string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLogin   *time.Time
	LoginCount  int
}

// LoginAttempt is one append-only row per authentication attempt. UserID is
// nil when the username did not resolve.
type LoginAttempt struct {
	ID      string
	UserID  *string
	At      time.Time
	Success bool
	Source  string
	Note    string
}

// LockoutState tracks consecutive failures per user.
type LockoutState struct {
	UserID      string
	Failures    int
	LockedUntil *time.Time
	Permanent   bool
}

// ListFilter narrows admin user listings. Zero fields match everything.
type ListFilter struct {
	Query      string // substring of username or display name
	RoleName   string
	ActiveOnly bool
}

// UserRepository is the credential store surface required by the core. All
// multi-row writes (credential plus history, hard delete plus overrides) run
// inside a single transaction provided by the implementation.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, userID string) (*User, error)
	// GetByUsername matches exactly and case-sensitively.
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, user *User) error
	List(ctx context.Context, f ListFilter) ([]*User, error)

	// SetCredential atomically replaces the stored credential and appends the
	// new value to password_history with setAt.
	SetCredential(ctx context.Context, userID, credential string, setAt time.Time) error
	// History returns the most recent stored credentials, newest first.
	History(ctx context.Context, userID string, limit int) ([]string, error)
	// CredentialSetAt returns when the current credential was stored, or nil
	// when no history exists (credential predates history tracking).
	CredentialSetAt(ctx context.Context, userID string) (*time.Time, error)

	RecordLoginAttempt(ctx context.Context, attempt *LoginAttempt) error
	// RecordLogin sets last_login and increments the login counter.
	RecordLogin(ctx context.Context, userID string, at time.Time) error

	// DeleteHard removes the user row and cascades removal of user overrides
	// and lockout state. It fails with ErrAuditReferenced when audit rows
	// still reference the user.
	DeleteHard(ctx context.Context, userID string) error
}

// LockoutRepository persists lockout counters. Get returns nil when the user
// has no row yet.
type LockoutRepository interface {
	Get(ctx context.Context, userID string) (*LockoutState, error)
	Put(ctx context.Context, state *LockoutState) error
	Clear(ctx context.Context, userID string) error
}

// PolicySource yields the currently configured password policy.
type PolicySource interface {
	Current(ctx context.Context) (policy.Policy, error)
}
