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
	"testing"
	"time"

	"github.com/motoservis/authcore/internal/audit"
	"github.com/motoservis/authcore/internal/policy"
	"github.com/motoservis/authcore/internal/session"
)

// MockUserRepository is a simple in-memory implementation of UserRepository
type MockUserRepository struct {
	users      map[string]*User
	history    map[string][]string
	historyAt  map[string][]time.Time
	attempts   []*LoginAttempt
	attemptErr error           // forced RecordLoginAttempt failure
	auditRefs  map[string]bool // userID -> referenced by audit rows
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:     make(map[string]*User),
		history:   make(map[string][]string),
		historyAt: make(map[string][]time.Time),
		auditRefs: make(map[string]bool),
	}
}

func (m *MockUserRepository) Create(_ context.Context, user *User) error {
	for _, u := range m.users {
		if u.Username == user.Username {
			return ErrDuplicateUsername
		}
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *MockUserRepository) GetByID(_ context.Context, userID string) (*User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *MockUserRepository) GetByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) Update(_ context.Context, user *User) error {
	if _, ok := m.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *MockUserRepository) List(_ context.Context, f ListFilter) ([]*User, error) {
	var out []*User
	for _, u := range m.users {
		if f.RoleName != "" && u.RoleName != f.RoleName {
			continue
		}
		if f.ActiveOnly && !u.Active {
			continue
		}
		clone := *u
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MockUserRepository) SetCredential(_ context.Context, userID, credential string, setAt time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Credential = credential
	m.history[userID] = append([]string{credential}, m.history[userID]...)
	m.historyAt[userID] = append([]time.Time{setAt}, m.historyAt[userID]...)
	return nil
}

func (m *MockUserRepository) History(_ context.Context, userID string, limit int) ([]string, error) {
	h := m.history[userID]
	if limit >= 0 && len(h) > limit {
		h = h[:limit]
	}
	return append([]string{}, h...), nil
}

func (m *MockUserRepository) CredentialSetAt(_ context.Context, userID string) (*time.Time, error) {
	at := m.historyAt[userID]
	if len(at) == 0 {
		return nil, nil
	}
	t := at[0]
	return &t, nil
}

func (m *MockUserRepository) RecordLoginAttempt(_ context.Context, attempt *LoginAttempt) error {
	if m.attemptErr != nil {
		return m.attemptErr
	}
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *MockUserRepository) RecordLogin(_ context.Context, userID string, at time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLogin = &at
	u.LoginCount++
	return nil
}

func (m *MockUserRepository) DeleteHard(_ context.Context, userID string) error {
	if m.auditRefs[userID] {
		return ErrAuditReferenced
	}
	if _, ok := m.users[userID]; !ok {
		return ErrUserNotFound
	}
	delete(m.users, userID)
	delete(m.history, userID)
	return nil
}

// MockLockoutRepository is a simple in-memory implementation of LockoutRepository
type MockLockoutRepository struct {
	states map[string]*LockoutState
}

func NewMockLockoutRepository() *MockLockoutRepository {
	return &MockLockoutRepository{states: make(map[string]*LockoutState)}
}

func (m *MockLockoutRepository) Get(_ context.Context, userID string) (*LockoutState, error) {
	s, ok := m.states[userID]
	if !ok {
		return nil, nil
	}
	clone := *s
	return &clone, nil
}

func (m *MockLockoutRepository) Put(_ context.Context, state *LockoutState) error {
	clone := *state
	m.states[state.UserID] = &clone
	return nil
}

func (m *MockLockoutRepository) Clear(_ context.Context, userID string) error {
	delete(m.states, userID)
	return nil
}

// fixedPolicySource serves one policy value
type fixedPolicySource struct {
	policy policy.Policy
}

func (f *fixedPolicySource) Current(context.Context) (policy.Policy, error) {
	return f.policy, nil
}

// memAuditStore is an in-memory audit.Store
type memAuditStore struct {
	events []*audit.Event
}

func (m *memAuditStore) Append(_ context.Context, event *audit.Event) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAuditStore) Query(_ context.Context, f audit.Filter) ([]*audit.Event, error) {
	var out []*audit.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memAuditStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []*audit.Event
	var removed int64
	for _, e := range m.events {
		if e.At.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return removed, nil
}

func (m *memAuditStore) lastKind() string {
	if len(m.events) == 0 {
		return ""
	}
	return m.events[len(m.events)-1].Kind
}

type loginFixture struct {
	users    *MockUserRepository
	lockRepo *MockLockoutRepository
	lockouts *LockoutManager
	hasher   *PasswordHasher
	store    *memAuditStore
	holder   *session.Holder
	service  *Service
	policies *fixedPolicySource
}

func newLoginFixture(p policy.Policy) *loginFixture {
	users := NewMockUserRepository()
	lockRepo := NewMockLockoutRepository()
	lockouts := NewLockoutManager(lockRepo)
	hasher := testHasher()
	store := &memAuditStore{}
	holder := session.NewHolder()
	policies := &fixedPolicySource{policy: p}
	service := NewService(
		users, lockouts, hasher, policy.NewEvaluator(hasher),
		policies, audit.NewService(store), holder,
	)
	return &loginFixture{
		users: users, lockRepo: lockRepo, lockouts: lockouts, hasher: hasher,
		store: store, holder: holder, service: service, policies: policies,
	}
}

func (f *loginFixture) addUser(id, username, credential string, active bool) {
	_ = f.users.Create(context.Background(), &User{
		ID: id, Username: username, Credential: credential,
		RoleName: "mechanik", Active: active,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
}

// TestPurpose: Validates the transparent credential upgrade on login against a legacy plaintext credential.
// Scope: Unit Test
// Security: Credential migration
// Expected: Login with the correct plaintext succeeds, the stored credential becomes Argon2id and still verifies, and a login audit event is emitted.
// Test Case ID: AUTH-01
func TestService_Login_TransparentUpgrade(t *testing.T) {
	f := newLoginFixture(policy.Default())
	f.addUser("u1", "alice", "secret", true)
	ctx := context.Background()

	result, err := f.service.Login(ctx, "alice", "secret", "10.0.0.5")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	stored, _ := f.users.GetByID(ctx, "u1")
	if !f.hasher.IsModern(stored.Credential) {
		t.Error("expected credential to be upgraded to Argon2id")
	}
	if !f.hasher.Verify("secret", stored.Credential) {
		t.Error("expected upgraded credential to verify the original password")
	}
	if stored.LoginCount != 1 || stored.LastLogin == nil {
		t.Errorf("expected login bookkeeping, got count=%d lastLogin=%v", stored.LoginCount, stored.LastLogin)
	}

	if result.MustChangePassword {
		t.Error("did not expect a forced password change")
	}
	if current, ok := f.holder.Current(); !ok || current.Username != "alice" {
		t.Errorf("expected alice as current principal, got %+v ok=%t", current, ok)
	}
	if f.store.lastKind() != audit.KindLogin {
		t.Errorf("expected a login audit event, got %q", f.store.lastKind())
	}

	// Second login verifies against the upgraded hash, no further rehash.
	upgraded := stored.Credential
	if _, err := f.service.Login(ctx, "alice", "secret", ""); err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	stored, _ = f.users.GetByID(ctx, "u1")
	if stored.Credential != upgraded {
		t.Error("expected no rehash for an already modern credential")
	}
}

// TestPurpose: Validates that login failures are indistinguishable to the caller.
// Scope: Unit Test
// Security: Anti-enumeration
// Expected: Unknown username, wrong password and inactive account all return the same ErrAuthFailed; the audit log carries the distinct cause.
// Test Case ID: AUTH-02
func TestService_Login_UniformFailure(t *testing.T) {
	f := newLoginFixture(policy.Default())
	f.addUser("u1", "alice", "secret", true)
	f.addUser("u2", "mallory", "secret", false)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
		cause    string
	}{
		{"unknown username", "ghost", "secret", "user_not_found"},
		{"wrong password", "alice", "nope", "bad_password"},
		{"inactive account", "mallory", "secret", "inactive"},
	}
	for _, tc := range cases {
		_, err := f.service.Login(ctx, tc.username, tc.password, "")
		if !errors.Is(err, ErrAuthFailed) {
			t.Errorf("%s: expected ErrAuthFailed, got %v", tc.name, err)
		}
		last := f.store.events[len(f.store.events)-1]
		if last.Kind != audit.KindLoginFailed || last.Details != tc.cause {
			t.Errorf("%s: expected login_failed/%s in audit, got %s/%s", tc.name, tc.cause, last.Kind, last.Details)
		}
	}

	if _, ok := f.holder.Current(); ok {
		t.Error("expected no principal after failed logins")
	}
}

// TestPurpose: Validates temporary lockout after repeated failures and its expiry.
// Scope: Unit Test
// Security: Brute-force protection
// Expected: The third failed attempt arms a 30 minute lock, the correct password is refused with ErrAccountLocked while it holds, and succeeds after expiry.
// Test Case ID: AUTH-03
func TestService_Login_TemporaryLockout(t *testing.T) {
	p := policy.Default()
	p.MaxAttempts = 3
	p.LockoutDurationMinutes = 30
	f := newLoginFixture(p)
	f.addUser("u1", "alice", "secret", true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.service.Login(ctx, "alice", "wrong", ""); !errors.Is(err, ErrAuthFailed) {
			t.Fatalf("attempt %d: expected ErrAuthFailed, got %v", i+1, err)
		}
	}

	if _, err := f.service.Login(ctx, "alice", "secret", ""); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked with the correct password, got %v", err)
	}

	// Advance past the lock window.
	f.lockouts.clock = func() time.Time { return time.Now().Add(31 * time.Minute) }
	if _, err := f.service.Login(ctx, "alice", "secret", ""); err != nil {
		t.Fatalf("expected login to succeed after lock expiry, got %v", err)
	}
	if state, _ := f.lockRepo.Get(ctx, "u1"); state != nil {
		t.Errorf("expected lockout state cleared after success, got %+v", state)
	}
}

// TestPurpose: Validates the forced password change on first login.
// Scope: Unit Test
// Security: Initial credential hygiene
// Expected: With force_change_on_first_login the first successful login flags MustChangePassword, the second does not.
// Test Case ID: AUTH-04
func TestService_Login_ForceChangeOnFirstLogin(t *testing.T) {
	p := policy.Default()
	p.ForceChangeOnFirstLogin = true
	f := newLoginFixture(p)
	f.addUser("u1", "alice", "secret", true)
	ctx := context.Background()

	result, err := f.service.Login(ctx, "alice", "secret", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.MustChangePassword {
		t.Error("expected a forced change on the first login")
	}

	result, err = f.service.Login(ctx, "alice", "secret", "")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if result.MustChangePassword {
		t.Error("did not expect a forced change on the second login")
	}
}

// TestPurpose: Validates the self-service password change path.
// Scope: Unit Test
// Security: Credential lifecycle
// Expected: A wrong old password fails uniformly, a policy-violating candidate returns the violation list, reuse of a recent credential is rejected, and a valid change re-verifies.
// Test Case ID: AUTH-05
func TestService_ChangePassword(t *testing.T) {
	p := policy.Default()
	p.HistoryCount = 3
	f := newLoginFixture(p)
	f.addUser("u1", "alice", "secret", true)
	ctx := context.Background()

	// Login first so the credential is hashed and in history.
	if _, err := f.service.Login(ctx, "alice", "secret", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := f.service.ChangePassword(ctx, "u1", "wrong", "newpass99", ""); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed for a wrong old password, got %v", err)
	}

	var v policy.Violations
	err := f.service.ChangePassword(ctx, "u1", "secret", "short", "")
	if !errors.As(err, &v) || len(v) == 0 {
		t.Errorf("expected policy violations for a weak candidate, got %v", err)
	}

	if err := f.service.ChangePassword(ctx, "u1", "secret", "secret", ""); !errors.As(err, &v) {
		t.Errorf("expected a reuse violation, got %v", err)
	} else if v[len(v)-1] != policy.CodeReusedRecent {
		t.Errorf("expected REUSED_RECENT, got %v", v)
	}

	if err := f.service.ChangePassword(ctx, "u1", "secret", "brandnew42", ""); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	stored, _ := f.users.GetByID(ctx, "u1")
	if !f.hasher.Verify("brandnew42", stored.Credential) {
		t.Error("expected the new password to verify")
	}
}

// TestPurpose: Validates logout clears the session and audits once.
// Scope: Unit Test
// Security: Session lifecycle
// Expected: Logout after login clears the principal and emits a logout event; logout without a session is a silent no-op.
// Test Case ID: AUTH-06
func TestService_Logout(t *testing.T) {
	f := newLoginFixture(policy.Default())
	f.addUser("u1", "alice", "secret", true)
	ctx := context.Background()

	// No session yet: nothing to do, nothing audited.
	f.service.Logout(ctx, "")
	if f.store.lastKind() == audit.KindLogout {
		t.Error("did not expect a logout event without a session")
	}

	if _, err := f.service.Login(ctx, "alice", "secret", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	f.service.Logout(ctx, "10.0.0.5")

	if _, ok := f.holder.Current(); ok {
		t.Error("expected the principal to be cleared")
	}
	if f.store.lastKind() != audit.KindLogout {
		t.Errorf("expected a logout audit event, got %q", f.store.lastKind())
	}
}

// TestPurpose: Validates login resilience when the attempt trail cannot be written.
// Scope: Unit Test
// Security: Availability under store degradation
// Expected: A failing login_attempts write does not block authentication; the login still succeeds, establishes the session and is audited.
// Test Case ID: AUTH-07
func TestService_Login_AttemptWriteFailure(t *testing.T) {
	f := newLoginFixture(policy.Default())
	f.addUser("u1", "alice", "secret", true)
	f.users.attemptErr = errors.New("connection reset")
	ctx := context.Background()

	if _, err := f.service.Login(ctx, "alice", "secret", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if current, ok := f.holder.Current(); !ok || current.Username != "alice" {
		t.Errorf("expected alice as current principal, got %+v ok=%t", current, ok)
	}
	if f.store.lastKind() != audit.KindLogin {
		t.Errorf("expected a login audit event, got %q", f.store.lastKind())
	}
	if len(f.users.attempts) != 0 {
		t.Errorf("expected no attempt rows recorded, got %d", len(f.users.attempts))
	}
}
