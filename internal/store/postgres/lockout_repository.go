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

	"github.com/jackc/pgx/v5"

	"github.com/motoservis/authcore/internal/identity"
)

// LockoutRepository implements identity.LockoutRepository
type LockoutRepository struct {
	db *DB
}

// NewLockoutRepository creates a new lockout repository
func NewLockoutRepository(db *DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

// Get returns the lockout state for a user, or nil when none is stored
func (r *LockoutRepository) Get(ctx context.Context, userID string) (*identity.LockoutState, error) {
	var state identity.LockoutState
	err := r.db.pool.QueryRow(ctx, `
		SELECT user_id, failures, locked_until, permanent
		FROM lockout_state
		WHERE user_id = $1
	`, userID).Scan(&state.UserID, &state.Failures, &state.LockedUntil, &state.Permanent)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lockout state: %w", err)
	}
	return &state, nil
}

// Put upserts the lockout state for a user
func (r *LockoutRepository) Put(ctx context.Context, state *identity.LockoutState) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO lockout_state (user_id, failures, locked_until, permanent)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			failures = EXCLUDED.failures,
			locked_until = EXCLUDED.locked_until,
			permanent = EXCLUDED.permanent
	`, state.UserID, state.Failures, state.LockedUntil, state.Permanent)
	if err != nil {
		return fmt.Errorf("failed to store lockout state: %w", err)
	}
	return nil
}

// Clear removes the lockout state for a user
func (r *LockoutRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM lockout_state WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear lockout state: %w", err)
	}
	return nil
}
