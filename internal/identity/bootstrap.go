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
	"os"
	"time"

	"github.com/motoservis/authcore/internal/audit"
	"github.com/motoservis/authcore/internal/authz"
	"github.com/motoservis/authcore/internal/id"
)

const (
	EnvBootstrapAdminUsername = "AUTHCORE_BOOTSTRAP_ADMIN_USERNAME"
	EnvBootstrapAdminPassword = "AUTHCORE_BOOTSTRAP_ADMIN_PASSWORD"
)

// BootstrapService creates the initial administrator account from the
// environment. It bypasses the permission guard because it runs before any
// principal exists.
type BootstrapService struct {
	users   UserRepository
	hasher  *PasswordHasher
	auditor audit.Emitter
	clock   func() time.Time
}

// NewBootstrapService creates a bootstrap service.
func NewBootstrapService(users UserRepository, hasher *PasswordHasher, auditor audit.Emitter) *BootstrapService {
	return &BootstrapService{users: users, hasher: hasher, auditor: auditor, clock: time.Now}
}

// Bootstrap creates the admin named by the environment when it does not
// exist yet. Without configuration, or when the user already exists, it does
// nothing. Idempotent across restarts.
func (s *BootstrapService) Bootstrap(ctx context.Context) error {
	username := os.Getenv(EnvBootstrapAdminUsername)
	password := os.Getenv(EnvBootstrapAdminPassword)
	if username == "" {
		return nil
	}
	if password == "" {
		return fmt.Errorf("%s is set but %s is empty", EnvBootstrapAdminUsername, EnvBootstrapAdminPassword)
	}

	if existing, err := s.users.GetByUsername(ctx, username); err == nil && existing != nil {
		return nil
	} else if err != nil && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("failed to check for existing bootstrap admin: %w", err)
	}

	credential, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap password: %w", err)
	}

	now := s.clock()
	user := &User{
		ID:          id.NewUUIDv7(),
		Username:    username,
		DisplayName: username,
		Credential:  credential,
		RoleName:    authz.RoleAdmin,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	if err := s.users.SetCredential(ctx, user.ID, credential, now); err != nil {
		return fmt.Errorf("failed to record bootstrap credential: %w", err)
	}

	_, _ = s.auditor.Emit(ctx, audit.Record{
		Kind: audit.KindUserCreated, UserID: &user.ID, Username: user.Username,
		Details: "bootstrap administrator created", Source: "bootstrap",
	})
	return nil
}
