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

	"github.com/motoservis/authcore/internal/policy"
)

// SettingsRepository persists admin settings blobs. It implements
// identity.PolicySource for the password policy read path and
// authz.PolicyStore for the guarded write path.
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the raw value stored under key, or ("", false) when absent
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.pool.QueryRow(ctx, `
		SELECT value FROM admin_settings WHERE key = $1
	`, key).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the value stored under key
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO admin_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// Current implements identity.PolicySource. A missing or unreadable blob
// falls back to the default policy so authentication never stalls on a
// misconfigured setting.
func (r *SettingsRepository) Current(ctx context.Context) (policy.Policy, error) {
	blob, ok, err := r.Get(ctx, policy.SettingsKey)
	if err != nil {
		return policy.Policy{}, err
	}
	if !ok {
		return policy.Default(), nil
	}
	p, err := policy.Unmarshal(blob)
	if err != nil {
		return policy.Default(), nil
	}
	return p, nil
}

// Save stores the password policy blob
func (r *SettingsRepository) Save(ctx context.Context, p policy.Policy) error {
	blob, err := p.Marshal()
	if err != nil {
		return err
	}
	return r.Set(ctx, policy.SettingsKey, blob)
}
