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
	"strings"
	"testing"
)

func testHasher() *PasswordHasher {
	// Low cost parameters keep the test fast; shape is identical to production.
	return NewPasswordHasher(8192, 1, 1, 16, 32)
}

// TestPurpose: Validates Argon2id hashing and verification roundtrip.
// Scope: Unit Test
// Security: Credential storage
// Expected: A hashed password verifies against its plaintext, rejects others, and two hashes of the same input differ by salt.
// Test Case ID: HSH-01
func TestPasswordHasher_HashAndVerify(t *testing.T) {
	h := testHasher()

	hash, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("expected argon2id encoding, got %q", hash)
	}
	if !h.IsModern(hash) {
		t.Error("expected hash to be recognized as modern")
	}

	if !h.Verify("correct horse battery staple", hash) {
		t.Error("expected correct password to verify")
	}
	if h.Verify("wrong password", hash) {
		t.Error("expected wrong password to fail")
	}

	second, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if hash == second {
		t.Error("expected distinct salts to produce distinct hashes")
	}
}

// TestPurpose: Validates the legacy plaintext fallback used for migrated credentials.
// Scope: Unit Test
// Security: Legacy credential compatibility
// Expected: A stored value without the argon2id prefix compares as plaintext and is flagged non-modern.
// Test Case ID: HSH-02
func TestPasswordHasher_LegacyPlaintext(t *testing.T) {
	h := testHasher()

	if h.IsModern("secret") {
		t.Error("expected plaintext credential to be non-modern")
	}
	if !h.Verify("secret", "secret") {
		t.Error("expected matching plaintext to verify")
	}
	if h.Verify("guess", "secret") {
		t.Error("expected mismatched plaintext to fail")
	}
}

// TestPurpose: Validates malformed modern-looking hashes never verify.
// Scope: Unit Test
// Security: Credential storage robustness
// Expected: Truncated or corrupted argon2id values answer false instead of erroring.
// Test Case ID: HSH-03
func TestPasswordHasher_Malformed(t *testing.T) {
	h := testHasher()

	malformed := []string{
		"$argon2id$",
		"$argon2id$v=19$m=8192,t=1,p=1",
		"$argon2id$v=19$m=8192,t=1,p=1$notbase64!!$alsobad!!",
		"$argon2id$vX$m=8192,t=1,p=1$AAAA$BBBB",
	}
	for _, stored := range malformed {
		if h.Verify("anything", stored) {
			t.Errorf("expected malformed hash %q to fail verification", stored)
		}
	}
}
