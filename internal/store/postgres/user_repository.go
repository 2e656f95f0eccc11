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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/motoservis/authcore/internal/authz"
	"github.com/motoservis/authcore/internal/id"
	"github.com/motoservis/authcore/internal/identity"
)

// UserRepository implements identity.UserRepository and authz.PrincipalSource
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (
			id, username, display_name, email, phone,
			credential, role_name, active, created_at, updated_at, login_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0)
	`,
		user.ID, user.Username, user.DisplayName, user.Email, user.Phone,
		user.Credential, user.RoleName, user.Active, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.ErrDuplicateUsername
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now

	return nil
}

const userColumns = `id, username, display_name, email, phone,
		credential, role_name, active, created_at, updated_at, last_login, login_count`

func scanUser(row pgx.Row) (*identity.User, error) {
	var user identity.User
	err := row.Scan(
		&user.ID, &user.Username, &user.DisplayName, &user.Email, &user.Phone,
		&user.Credential, &user.RoleName, &user.Active,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLogin, &user.LoginCount,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*identity.User, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, userID)
	return scanUser(row)
}

// GetByUsername retrieves a user by exact username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = $1
	`, username)
	return scanUser(row)
}

// Update updates user information
func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET
			username = $2,
			display_name = $3,
			email = $4,
			phone = $5,
			role_name = $6,
			active = $7,
			updated_at = NOW()
		WHERE id = $1
	`,
		user.ID, user.Username, user.DisplayName, user.Email, user.Phone,
		user.RoleName, user.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.ErrDuplicateUsername
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	return nil
}

// List returns users matching the filter, ordered by username
func (r *UserRepository) List(ctx context.Context, f identity.ListFilter) ([]*identity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1 = '' OR username ILIKE '%' || $1 || '%' OR display_name ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR role_name = $2)
		  AND (NOT $3 OR active)
		ORDER BY username
	`
	rows, err := r.db.pool.Query(ctx, query, f.Query, f.RoleName, f.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*identity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user rows: %w", err)
	}

	return users, nil
}

// SetCredential replaces the stored credential and appends it to the history
// in a single transaction
func (r *UserRepository) SetCredential(ctx context.Context, userID, credential string, setAt time.Time) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE users SET credential = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, credential)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO password_history (id, user_id, credential, set_at)
		VALUES ($1, $2, $3, $4)
	`, id.NewUUIDv7(), userID, credential, setAt)
	if err != nil {
		return fmt.Errorf("failed to append password history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit credential change: %w", err)
	}
	return nil
}

// History returns the most recent stored credentials, newest first
func (r *UserRepository) History(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT credential
		FROM password_history
		WHERE user_id = $1
		ORDER BY set_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query password history: %w", err)
	}
	defer rows.Close()

	var history []string
	for rows.Next() {
		var credential string
		if err := rows.Scan(&credential); err != nil {
			return nil, fmt.Errorf("failed to scan password history: %w", err)
		}
		history = append(history, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read password history rows: %w", err)
	}

	return history, nil
}

// CredentialSetAt returns when the current credential was stored
func (r *UserRepository) CredentialSetAt(ctx context.Context, userID string) (*time.Time, error) {
	var setAt time.Time
	err := r.db.pool.QueryRow(ctx, `
		SELECT set_at
		FROM password_history
		WHERE user_id = $1
		ORDER BY set_at DESC, id DESC
		LIMIT 1
	`, userID).Scan(&setAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query credential age: %w", err)
	}
	return &setAt, nil
}

// RecordLoginAttempt appends one login attempt row
func (r *UserRepository) RecordLoginAttempt(ctx context.Context, attempt *identity.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = id.NewUUIDv7()
	}
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO login_attempts (id, user_id, at, success, source, note)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, attempt.ID, attempt.UserID, attempt.At, attempt.Success, attempt.Source, attempt.Note)
	if err != nil {
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}
	return nil
}

// RecordLogin sets last_login and increments the login counter
func (r *UserRepository) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET last_login = $2, login_count = login_count + 1
		WHERE id = $1
	`, userID, at)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// DeleteHard removes a user and its dependent rows. Refuses while audit
// events still reference the user.
func (r *UserRepository) DeleteHard(ctx context.Context, userID string) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var referenced bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM audit_log WHERE user_id = $1)
	`, userID).Scan(&referenced)
	if err != nil {
		return fmt.Errorf("failed to check audit references: %w", err)
	}
	if referenced {
		return identity.ErrAuditReferenced
	}

	if _, err := tx.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user overrides: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM lockout_state WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete lockout state: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}
	return nil
}

// Principal implements authz.PrincipalSource. A missing user yields (nil, nil).
func (r *UserRepository) Principal(ctx context.Context, userID string) (*authz.Principal, error) {
	var p authz.Principal
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, role_name, active FROM users WHERE id = $1
	`, userID).Scan(&p.ID, &p.RoleName, &p.Active)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve principal: %w", err)
	}
	return &p, nil
}
