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

package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/motoservis/authcore/internal/id"
)

// Event kinds. The vocabulary is closed; storage rejects nothing, but every
// emitter in this module uses one of these.
const (
	KindLogin             = "login"
	KindLogout            = "logout"
	KindLoginFailed       = "login_failed"
	KindUserCreated       = "user_created"
	KindUserEdited        = "user_edited"
	KindUserDeleted       = "user_deleted"
	KindPasswordReset     = "password_reset"
	KindRoleUpdated       = "role_updated"
	KindPermissionChanged = "permission_changed"
	KindProfileUpdated    = "profile_updated"
	KindUsersImported     = "users_imported"
)

// DefaultQueryLimit caps Query results when the filter does not set a limit.
const DefaultQueryLimit = 1000

// Event is an immutable security record. Username is a snapshot taken at
// emission time and survives later renames and deletions of the user.
type Event struct {
	ID       string
	At       time.Time
	UserID   *string
	Username string
	Kind     string
	Details  string
	Source   string
}

// Record is the caller-side input to Emit.
type Record struct {
	Kind     string
	Details  string
	UserID   *string
	Username string
	Source   string
}

// Filter selects events for Query and Export. Zero fields match everything.
type Filter struct {
	From     *time.Time
	To       *time.Time
	Kind     string
	UserID   string
	Contains string // substring match on Details
	Limit    int    // 0 means DefaultQueryLimit in Query, unbounded in Export
}

// Store is the append-only persistence surface for audit events. Query
// returns newest-first; a zero filter limit means unbounded. Prune deletes
// whole events strictly older than the cutoff and reports how many were
// removed; it never edits surviving rows.
type Store interface {
	Append(ctx context.Context, event *Event) error
	Query(ctx context.Context, f Filter) ([]*Event, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Emitter is the write-side interface handed to the other services.
type Emitter interface {
	Emit(ctx context.Context, rec Record) (*Event, error)
}

// Service wraps a Store with monotonic timestamping, sortable ids and an
// slog mirror of every event.
type Service struct {
	store Store
	clock func() time.Time

	mu     sync.Mutex
	lastAt time.Time
}

// NewService creates the audit service.
func NewService(store Store) *Service {
	return &Service{store: store, clock: time.Now}
}

// Emit appends an event. Timestamps are strictly monotonic within the
// process: simultaneous writes receive distinct increasing values, so the
// (at, id) order matches insertion order.
func (s *Service) Emit(ctx context.Context, rec Record) (*Event, error) {
	s.mu.Lock()
	at := s.clock()
	if !at.After(s.lastAt) {
		at = s.lastAt.Add(time.Microsecond)
	}
	s.lastAt = at
	s.mu.Unlock()

	event := &Event{
		ID:       id.NewULID(),
		At:       at,
		UserID:   rec.UserID,
		Username: rec.Username,
		Kind:     rec.Kind,
		Details:  rec.Details,
		Source:   rec.Source,
	}

	if err := s.store.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}

	attrs := []any{
		slog.String("audit_kind", event.Kind),
		slog.String("username", event.Username),
		slog.Time("at", event.At),
		slog.String("component", "audit"),
	}
	if event.UserID != nil {
		attrs = append(attrs, slog.String("user_id", *event.UserID))
	}
	if event.Source != "" {
		attrs = append(attrs, slog.String("source", event.Source))
	}
	if event.Details != "" {
		attrs = append(attrs, slog.String("details", event.Details))
	}
	slog.InfoContext(ctx, "AUDIT_EVENT", attrs...)

	return event, nil
}

// Query returns matching events, newest first, capped at the filter limit.
func (s *Service) Query(ctx context.Context, f Filter) ([]*Event, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	events, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	return events, nil
}

// Prune deletes events strictly older than cutoff and returns the count.
func (s *Service) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return n, nil
}

// Export streams matching events to sink as tab-separated lines with a
// header row. Tabs and newlines inside Details are replaced with spaces so
// the output stays one event per line. Unlike Query, a zero filter limit
// exports every matching event: the interactive cap would silently truncate
// an archival export taken before pruning.
func (s *Service) Export(ctx context.Context, f Filter, sink io.Writer) error {
	events, err := s.store.Query(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to query audit log: %w", err)
	}

	if _, err := fmt.Fprintln(sink, "at\tkind\tusername\tuser_id\tsource\tdetails"); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for _, e := range events {
		userID := ""
		if e.UserID != nil {
			userID = *e.UserID
		}
		details := strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(e.Details)
		_, err := fmt.Fprintf(sink, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.At.UTC().Format(time.RFC3339Nano), e.Kind, e.Username, userID, e.Source, details)
		if err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	return nil
}
