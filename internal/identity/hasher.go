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
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const modernPrefix = "$argon2id$"

// PasswordHasher produces and verifies Argon2id credentials in the
// self-describing form
//
//	$argon2id$v=19$m=memory,t=iterations,p=parallelism$salt$hash
//
// Stored values that do not match this shape are treated as legacy plaintext
// and compared by constant-time equality, which lets credentials imported
// from the old dealership database keep working until their next login
// rehashes them.
type PasswordHasher struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// NewPasswordHasher creates a hasher with the given Argon2id cost parameters.
func NewPasswordHasher(memory, iterations uint32, parallelism uint8, saltLength, keyLength uint32) *PasswordHasher {
	return &PasswordHasher{
		memory:      memory,
		iterations:  iterations,
		parallelism: parallelism,
		saltLength:  saltLength,
		keyLength:   keyLength,
	}
}

// Hash hashes a plaintext password. Each call draws a fresh salt, so equal
// inputs produce distinct outputs.
func (h *PasswordHasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, h.iterations, h.memory, h.parallelism, h.keyLength)

	return fmt.Sprintf(
		"%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		modernPrefix,
		argon2.Version,
		h.memory,
		h.iterations,
		h.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches stored. Modern hashes are verified
// cryptographically with the cost parameters carried in the stored value;
// anything else, including malformed input, falls back to the legacy
// plaintext branch. Verify never fails, it only answers false.
func (h *PasswordHasher) Verify(plain, stored string) bool {
	if !h.IsModern(stored) {
		// Legacy plaintext credential.
		return subtle.ConstantTimeCompare([]byte(plain), []byte(stored)) == 1
	}

	parts := strings.Split(stored, "$")
	// ["", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash]
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	got := argon2.IDKey([]byte(plain), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// IsModern reports whether stored carries the adaptive hash shape. A false
// answer after a successful login triggers the transparent rehash.
func (h *PasswordHasher) IsModern(stored string) bool {
	return strings.HasPrefix(stored, modernPrefix)
}
