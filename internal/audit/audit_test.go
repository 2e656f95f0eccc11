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
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

// memStore is an in-memory Store
type memStore struct {
	events []*Event
}

func (m *memStore) Append(_ context.Context, event *Event) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memStore) Query(_ context.Context, f Filter) ([]*Event, error) {
	var out []*Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if f.From != nil && e.At.Before(*f.From) {
			continue
		}
		if f.To != nil && e.At.After(*f.To) {
			continue
		}
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if f.UserID != "" && (e.UserID == nil || *e.UserID != f.UserID) {
			continue
		}
		if f.Contains != "" && !strings.Contains(e.Details, f.Contains) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []*Event
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

// TestPurpose: Validates strictly monotonic event timestamps under a frozen clock.
// Scope: Unit Test
// Security: Audit ordering integrity
// Expected: Events emitted at the same wall-clock instant receive strictly increasing timestamps, so (at, id) order equals insertion order.
// Test Case ID: AUD-01
func TestService_Emit_MonotonicTimestamps(t *testing.T) {
	store := &memStore{}
	s := NewService(store)
	frozen := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return frozen }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Emit(ctx, Record{Kind: KindLogin, Username: "alice"}); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}

	for i := 1; i < len(store.events); i++ {
		prev, cur := store.events[i-1], store.events[i]
		if !cur.At.After(prev.At) {
			t.Errorf("event %d at %v is not after event %d at %v", i, cur.At, i-1, prev.At)
		}
		if cur.ID <= prev.ID {
			t.Errorf("event %d id %q does not sort after %q", i, cur.ID, prev.ID)
		}
	}
}

// TestPurpose: Validates the username snapshot is stored on the event itself.
// Scope: Unit Test
// Security: Audit immutability
// Expected: The emitted event carries the username as passed at emission time, independent of any later state.
// Test Case ID: AUD-02
func TestService_Emit_UsernameSnapshot(t *testing.T) {
	store := &memStore{}
	s := NewService(store)
	ctx := context.Background()

	userID := "u1"
	event, err := s.Emit(ctx, Record{Kind: KindUserEdited, UserID: &userID, Username: "old-name"})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if event.Username != "old-name" {
		t.Errorf("expected the snapshot username, got %q", event.Username)
	}
	if event.UserID == nil || *event.UserID != "u1" {
		t.Errorf("expected the user id reference, got %v", event.UserID)
	}

	// Deletion-style events carry no id, only the snapshot.
	event, err = s.Emit(ctx, Record{Kind: KindUserDeleted, Username: "gone"})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if event.UserID != nil {
		t.Error("expected no user id on a snapshot-only event")
	}
}

// TestPurpose: Validates query filtering and the default result cap.
// Scope: Unit Test
// Security: Audit retrieval
// Expected: Kind filters select matching events newest first; an unset limit falls back to DefaultQueryLimit.
// Test Case ID: AUD-03
func TestService_Query(t *testing.T) {
	store := &memStore{}
	s := NewService(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = s.Emit(ctx, Record{Kind: KindLogin, Username: "alice"})
		_, _ = s.Emit(ctx, Record{Kind: KindLoginFailed, Username: "mallory"})
	}

	events, err := s.Query(ctx, Filter{Kind: KindLoginFailed})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 login_failed events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].At.After(events[i-1].At) {
			t.Error("expected newest-first ordering")
		}
	}

	limited, err := s.Query(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected the limit to cap results, got %d", len(limited))
	}
}

// TestPurpose: Validates retention pruning deletes whole events only.
// Scope: Unit Test
// Security: Audit retention
// Expected: Events older than the cutoff disappear, newer ones survive untouched, and the removed count is reported.
// Test Case ID: AUD-04
func TestService_Prune(t *testing.T) {
	store := &memStore{}
	s := NewService(store)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.AddDate(0, 1, 0), base.AddDate(0, 2, 0)}
	for i, at := range times {
		at := at
		s.clock = func() time.Time { return at }
		if _, err := s.Emit(ctx, Record{Kind: KindLogin, Username: "alice", Details: time.Month(i + 1).String()}); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}

	removed, err := s.Prune(ctx, base.AddDate(0, 1, 15))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 pruned events, got %d", removed)
	}
	if len(store.events) != 1 || store.events[0].Details != "March" {
		t.Errorf("expected only the newest event to survive, got %+v", store.events)
	}
}

// TestPurpose: Validates the tab-separated export stays one event per line.
// Scope: Unit Test
// Security: Audit export fidelity
// Expected: The export has a header row and replaces tabs and newlines inside details with spaces.
// Test Case ID: AUD-05
func TestService_Export(t *testing.T) {
	store := &memStore{}
	s := NewService(store)
	ctx := context.Background()

	userID := "u1"
	_, _ = s.Emit(ctx, Record{
		Kind: KindUserEdited, UserID: &userID, Username: "alice",
		Details: "line one\nline\ttwo", Source: "10.0.0.5",
	})

	var out bytes.Buffer
	if err := s.Export(ctx, Filter{}, &out); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one event line, got %d lines", len(lines))
	}
	if lines[0] != "at\tkind\tusername\tuser_id\tsource\tdetails" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "line one line two") {
		t.Errorf("expected sanitized details in %q", lines[1])
	}
}

// TestPurpose: Validates a full export is not capped by the interactive query limit.
// Scope: Unit Test
// Security: Audit archival completeness
// Expected: With more events than DefaultQueryLimit stored, Export with an empty filter writes every event while Query still caps at the default.
// Test Case ID: AUD-06
func TestService_Export_BeyondQueryLimit(t *testing.T) {
	store := &memStore{}
	s := NewService(store)
	ctx := context.Background()

	total := DefaultQueryLimit + 5
	for i := 0; i < total; i++ {
		if _, err := s.Emit(ctx, Record{Kind: KindLogin, Username: "alice"}); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}

	capped, err := s.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(capped) != DefaultQueryLimit {
		t.Errorf("expected Query capped at %d, got %d", DefaultQueryLimit, len(capped))
	}

	var out bytes.Buffer
	if err := s.Export(ctx, Filter{}, &out); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != total+1 {
		t.Errorf("expected header plus %d event lines, got %d", total, len(lines))
	}
}
