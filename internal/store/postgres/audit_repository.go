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
	"time"

	"github.com/motoservis/authcore/internal/audit"
)

// AuditRepository implements audit.Store. Rows are append-only: there is no
// update or single-row delete, only Prune by age.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit event
func (r *AuditRepository) Append(ctx context.Context, event *audit.Event) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO audit_log (id, at, user_id, username, kind, details, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.At, event.UserID, event.Username, event.Kind, event.Details, event.Source)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first. A zero limit is unbounded;
// the service applies its own default for interactive queries.
func (r *AuditRepository) Query(ctx context.Context, f audit.Filter) ([]*audit.Event, error) {
	limit := f.Limit
	if limit < 0 {
		limit = 0
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT id, at, user_id, username, kind, details, source
		FROM audit_log
		WHERE ($1::timestamptz IS NULL OR at >= $1)
		  AND ($2::timestamptz IS NULL OR at <= $2)
		  AND ($3 = '' OR kind = $3)
		  AND ($4 = '' OR user_id = $4)
		  AND ($5 = '' OR details ILIKE '%' || $5 || '%')
		ORDER BY at DESC, id DESC
		LIMIT NULLIF($6, 0)
	`, f.From, f.To, f.Kind, f.UserID, f.Contains, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var events []*audit.Event
	for rows.Next() {
		var e audit.Event
		if err := rows.Scan(&e.ID, &e.At, &e.UserID, &e.Username, &e.Kind, &e.Details, &e.Source); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit rows: %w", err)
	}

	return events, nil
}

// Prune deletes events strictly older than cutoff and returns the count
func (r *AuditRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM audit_log WHERE at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return result.RowsAffected(), nil
}
