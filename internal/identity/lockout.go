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
	"fmt"
	"time"

	"github.com/motoservis/authcore/internal/policy"
)

// LockoutManager enforces the consecutive-failure policy. When lockout is
// disabled it still maintains counters so admins can see failure streaks,
// but IsLocked always answers false.
type LockoutManager struct {
	repo  LockoutRepository
	clock func() time.Time
}

// NewLockoutManager creates a lockout manager.
func NewLockoutManager(repo LockoutRepository) *LockoutManager {
	return &LockoutManager{repo: repo, clock: time.Now}
}

// OnFailure increments the failure counter and, once the policy threshold is
// reached, arms either a temporary or a permanent lock.
func (m *LockoutManager) OnFailure(ctx context.Context, userID string, p policy.Policy) error {
	state, err := m.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load lockout state: %w", err)
	}
	if state == nil {
		state = &LockoutState{UserID: userID}
	}
	state.Failures++

	if p.LockoutEnabled && p.MaxAttempts >= 1 && state.Failures >= p.MaxAttempts {
		if p.PermanentLockout {
			state.Permanent = true
			state.LockedUntil = nil
		} else {
			until := m.clock().Add(p.LockoutDuration())
			state.LockedUntil = &until
		}
	}

	if err := m.repo.Put(ctx, state); err != nil {
		return fmt.Errorf("failed to store lockout state: %w", err)
	}
	return nil
}

// OnSuccess clears the counter and any pending temporary lock.
func (m *LockoutManager) OnSuccess(ctx context.Context, userID string) error {
	if err := m.repo.Clear(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear lockout state: %w", err)
	}
	return nil
}

// IsLocked reports whether the user is currently locked out under p.
func (m *LockoutManager) IsLocked(ctx context.Context, userID string, p policy.Policy) (bool, error) {
	if !p.LockoutEnabled {
		return false, nil
	}
	state, err := m.repo.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load lockout state: %w", err)
	}
	if state == nil {
		return false, nil
	}
	if state.Permanent {
		return true, nil
	}
	return state.LockedUntil != nil && state.LockedUntil.After(m.clock()), nil
}

// Unlock clears both the temporary and the permanent lock. Reserved for
// admin use; callers guard it with the permission resolver.
func (m *LockoutManager) Unlock(ctx context.Context, userID string) error {
	return m.OnSuccess(ctx, userID)
}
