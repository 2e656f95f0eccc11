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
	"crypto/rand"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/motoservis/authcore/internal/audit"
	"github.com/motoservis/authcore/internal/id"
)

// transferHeader is the fixed column order of the user exchange format.
// credential_hash is optional on import and always present on export, filled
// only for modern hashes: plaintext credentials are never exported.
var transferHeader = []string{"username", "display_name", "email", "phone", "role", "active", "created_at"}

const credentialColumn = "credential_hash"

// Transfer imports and exports user records as semicolon-delimited tables.
type Transfer struct {
	users       UserRepository
	hasher      *PasswordHasher
	auditor     audit.Emitter
	defaultRole DefaultRoleSource
	clock       func() time.Time
}

// NewTransfer creates the import/export service.
func NewTransfer(users UserRepository, hasher *PasswordHasher, auditor audit.Emitter, defaultRole DefaultRoleSource) *Transfer {
	return &Transfer{
		users:       users,
		hasher:      hasher,
		auditor:     auditor,
		defaultRole: defaultRole,
		clock:       time.Now,
	}
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Created int
	Skipped int // existing usernames are left untouched
}

// Import reads user rows from r and creates the missing principals. Rows
// whose username already exists are skipped. A row without a usable
// credential_hash receives an unguessable placeholder credential, so the
// account cannot authenticate until an admin resets its password. One
// users_imported audit event summarizes the run.
func (t *Transfer) Import(ctx context.Context, r io.Reader, actor Actor) (*ImportResult, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read import header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range transferHeader {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("import header is missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	result := &ImportResult{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read import row: %w", err)
		}

		username := field(row, "username")
		if username == "" {
			continue
		}
		if existing, err := t.users.GetByUsername(ctx, username); err == nil && existing != nil {
			result.Skipped++
			continue
		}

		credential := field(row, credentialColumn)
		if !t.hasher.IsModern(credential) {
			// No importable hash: lock the account behind a random credential.
			credential, err = t.placeholderCredential()
			if err != nil {
				return nil, err
			}
		}

		roleName := field(row, "role")
		if roleName == "" {
			roleName, err = t.defaultRole.DefaultRoleName(ctx)
			if err != nil {
				return nil, err
			}
		}

		active := true
		if v := field(row, "active"); v != "" {
			active, _ = strconv.ParseBool(v)
		}
		createdAt := t.clock()
		if v := field(row, "created_at"); v != "" {
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				createdAt = parsed
			}
		}

		user := &User{
			ID:          id.NewUUIDv7(),
			Username:    username,
			DisplayName: field(row, "display_name"),
			Email:       field(row, "email"),
			Phone:       field(row, "phone"),
			Credential:  credential,
			RoleName:    roleName,
			Active:      active,
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		}
		if err := t.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to import user %s: %w", username, err)
		}
		result.Created++
	}

	_, _ = t.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindUsersImported, UserID: &actor.ID, Username: actor.Username,
		Details: fmt.Sprintf("imported %d users, skipped %d", result.Created, result.Skipped),
		Source:  actor.Source,
	})
	return result, nil
}

func (t *Transfer) placeholderCredential() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate placeholder credential: %w", err)
	}
	return t.hasher.Hash(base64.RawStdEncoding.EncodeToString(raw))
}

// Export writes all users matching f to w in the exchange format. The
// credential_hash column carries the stored hash only when it is modern;
// legacy plaintext values are withheld.
func (t *Transfer) Export(ctx context.Context, f ListFilter, w io.Writer) error {
	users, err := t.users.List(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(append(append([]string{}, transferHeader...), credentialColumn)); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for _, u := range users {
		credential := ""
		if t.hasher.IsModern(u.Credential) {
			credential = u.Credential
		}
		row := []string{
			u.Username,
			u.DisplayName,
			u.Email,
			u.Phone,
			u.RoleName,
			strconv.FormatBool(u.Active),
			u.CreatedAt.UTC().Format(time.RFC3339),
			credential,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
