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
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/motoservis/authcore/internal/audit"
	"github.com/motoservis/authcore/internal/id"
	"github.com/motoservis/authcore/internal/observability/logger"
	"github.com/motoservis/authcore/internal/policy"
	"github.com/motoservis/authcore/internal/session"
)

// LoginResult is what a successful authentication hands back to the caller.
type LoginResult struct {
	User *User

	// MustChangePassword is set when the credential has expired or the policy
	// forces a change on the first successful login.
	MustChangePassword bool
	// ExpiryWarning signals the credential will expire within warn_days.
	ExpiryWarning   bool
	DaysUntilExpiry int
}

// Service orchestrates authentication: lookup, verification, lockout
// bookkeeping, transparent hash upgrade, session establishment and audit.
// Attempts for the same username are serialized; distinct users may log in
// concurrently.
type Service struct {
	users     UserRepository
	lockouts  *LockoutManager
	hasher    *PasswordHasher
	evaluator *policy.Evaluator
	policies  PolicySource
	auditor   audit.Emitter
	holder    *session.Holder
	throttle  *Throttle
	clock     func() time.Time

	loginSuccess metric.Int64Counter
	loginFailure metric.Int64Counter

	mu       sync.Mutex
	userLoks map[string]*sync.Mutex
}

// NewService creates the login service.
func NewService(
	users UserRepository,
	lockouts *LockoutManager,
	hasher *PasswordHasher,
	evaluator *policy.Evaluator,
	policies PolicySource,
	auditor audit.Emitter,
	holder *session.Holder,
) *Service {
	return &Service{
		users:     users,
		lockouts:  lockouts,
		hasher:    hasher,
		evaluator: evaluator,
		policies:  policies,
		auditor:   auditor,
		holder:    holder,
		clock:     time.Now,
		userLoks:  make(map[string]*sync.Mutex),
	}
}

// WithThrottle enables the per-username attempt throttle.
func (s *Service) WithThrottle(t *Throttle) *Service {
	s.throttle = t
	return s
}

// WithMetrics attaches login outcome counters.
func (s *Service) WithMetrics(success, failure metric.Int64Counter) *Service {
	s.loginSuccess = success
	s.loginFailure = failure
	return s
}

func (s *Service) userLock(username string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLoks[username]
	if !ok {
		l = &sync.Mutex{}
		s.userLoks[username] = l
	}
	return l
}

// Login runs one authentication attempt. source is the caller-supplied
// source address and is recorded verbatim; it may be empty.
//
// Failures are uniform: unknown username, wrong password and inactive
// account all surface as ErrAuthFailed. Only an armed lockout surfaces as
// ErrAccountLocked so the UI can direct the user to an admin. The precise
// cause lands in the audit log and the login_attempts table.
func (s *Service) Login(ctx context.Context, username, plain, source string) (*LoginResult, error) {
	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	pol, err := s.policies.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load password policy: %w", err)
	}

	if !s.throttle.Allow(username) {
		s.recordFailure(ctx, nil, username, source, "throttled")
		return nil, ErrAuthFailed
	}

	// resolved
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.recordFailure(ctx, nil, username, source, "user_not_found")
			return nil, ErrAuthFailed
		}
		return nil, err
	}

	// verified
	if !s.hasher.Verify(plain, user.Credential) {
		if err := s.lockouts.OnFailure(ctx, user.ID, pol); err != nil {
			return nil, err
		}
		s.recordFailure(ctx, &user.ID, username, source, "bad_password")
		return nil, ErrAuthFailed
	}

	// authorized
	if !user.Active {
		s.recordFailure(ctx, &user.ID, username, source, "inactive")
		return nil, ErrAuthFailed
	}
	locked, err := s.lockouts.IsLocked(ctx, user.ID, pol)
	if err != nil {
		return nil, err
	}
	if locked {
		s.recordFailure(ctx, &user.ID, username, source, "locked")
		return nil, ErrAccountLocked
	}

	// established
	now := s.clock()
	if !s.hasher.IsModern(user.Credential) {
		upgraded, err := s.hasher.Hash(plain)
		if err != nil {
			return nil, fmt.Errorf("failed to upgrade credential: %w", err)
		}
		if err := s.users.SetCredential(ctx, user.ID, upgraded, now); err != nil {
			return nil, err
		}
		user.Credential = upgraded
	}

	if err := s.users.RecordLoginAttempt(ctx, &LoginAttempt{
		ID: id.NewUUIDv7(), UserID: &user.ID, At: now, Success: true, Source: source,
	}); err != nil {
		slog.WarnContext(ctx, "failed to record login attempt", logger.Username(username), logger.Error(err))
	}
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	if err := s.lockouts.OnSuccess(ctx, user.ID); err != nil {
		return nil, err
	}

	s.holder.Set(session.Principal{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		RoleName:    user.RoleName,
	})
	if s.loginSuccess != nil {
		s.loginSuccess.Add(ctx, 1)
	}
	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindLogin, UserID: &user.ID, Username: user.Username, Source: source,
	})

	result := &LoginResult{User: user}
	setAt, err := s.users.CredentialSetAt(ctx, user.ID)
	if err == nil {
		base := user.CreatedAt
		if setAt != nil {
			base = *setAt
		}
		exp := pol.Expiration(base, now)
		result.MustChangePassword = exp.Expired
		result.ExpiryWarning = exp.Warn
		result.DaysUntilExpiry = exp.DaysLeft
	}
	if pol.ForceChangeOnFirstLogin && user.LoginCount == 0 {
		result.MustChangePassword = true
	}

	user.LoginCount++
	user.LastLogin = &now

	return result, nil
}

// recordFailure writes the login_attempts row and the audit event for one
// failed attempt. The note carries the real cause; the caller still returns
// the uniform error.
func (s *Service) recordFailure(ctx context.Context, userID *string, username, source, note string) {
	if err := s.users.RecordLoginAttempt(ctx, &LoginAttempt{
		ID: id.NewUUIDv7(), UserID: userID, At: s.clock(), Success: false, Source: source, Note: note,
	}); err != nil {
		slog.WarnContext(ctx, "failed to record login attempt", logger.Username(username), logger.Error(err))
	}
	if s.loginFailure != nil {
		s.loginFailure.Add(ctx, 1)
	}
	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindLoginFailed, UserID: userID, Username: username, Source: source, Details: note,
	})
}

// Logout clears the current principal and audits the event. A logout with no
// established session is a no-op.
func (s *Service) Logout(ctx context.Context, source string) {
	current, ok := s.holder.Current()
	if !ok {
		return
	}
	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindLogout, UserID: &current.ID, Username: current.Username, Source: source,
	})
	s.holder.Clear()
}

// ChangePassword is the self-service password change: the old password must
// verify, the candidate must pass the policy including the reuse check.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPlain, newPlain, source string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(oldPlain, user.Credential) {
		return ErrAuthFailed
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

	hashed, err := s.hasher.Hash(newPlain)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.SetCredential(ctx, userID, hashed, s.clock()); err != nil {
		return err
	}

	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindPasswordReset, UserID: &user.ID, Username: user.Username,
		Source: source, Details: "self_service",
	})
	return nil
}
