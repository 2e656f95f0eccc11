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

package policy

import (
	"strings"
	"unicode"
)

// Code identifies a single policy violation. The set is closed.
type Code string

const (
	CodeTooShort         Code = "TOO_SHORT"
	CodeMissingUpper     Code = "MISSING_UPPER"
	CodeMissingLower     Code = "MISSING_LOWER"
	CodeMissingDigit     Code = "MISSING_DIGIT"
	CodeMissingSpecial   Code = "MISSING_SPECIAL"
	CodeContainsUsername Code = "CONTAINS_USERNAME"
	CodeReusedRecent     Code = "REUSED_RECENT"
)

// Violations carries the ordered list of failed rules. It is returned to
// callers in full so the UI can display every unmet requirement at once.
type Violations []Code

func (v Violations) Error() string {
	codes := make([]string, len(v))
	for i, c := range v {
		codes[i] = string(c)
	}
	return "password policy violated: " + strings.Join(codes, ", ")
}

// Verifier checks a plaintext candidate against a stored credential. The
// evaluator uses it for the history reuse check so that hash-format details
// stay out of this package.
type Verifier interface {
	Verify(plain, stored string) bool
}

// Evaluator validates candidate passwords against the configured policy.
type Evaluator struct {
	verifier Verifier
}

// NewEvaluator creates a password policy evaluator.
func NewEvaluator(verifier Verifier) *Evaluator {
	return &Evaluator{verifier: verifier}
}

// Evaluate checks candidate against p. history holds the principal's most
// recent stored credentials, newest first; only the first history_count
// entries participate in the reuse check. A nil return means the candidate
// is acceptable.
//
// Rules are evaluated in a fixed order so the violation list is stable:
// length, upper, lower, digit, special, username containment, reuse.
func (e *Evaluator) Evaluate(p Policy, candidate, username string, history []string) Violations {
	var v Violations

	// An empty candidate is never acceptable, even under the empty policy.
	minLen := p.MinLength
	if minLen < 1 {
		minLen = 1
	}
	if len([]rune(candidate)) < minLen {
		v = append(v, CodeTooShort)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			// Special means non-alphanumeric. Uncased letters count as
			// neither a case class nor a special character.
			hasSpecial = true
		}
	}
	if p.RequireUpper && !hasUpper {
		v = append(v, CodeMissingUpper)
	}
	if p.RequireLower && !hasLower {
		v = append(v, CodeMissingLower)
	}
	if p.RequireDigit && !hasDigit {
		v = append(v, CodeMissingDigit)
	}
	if p.RequireSpecial && !hasSpecial {
		v = append(v, CodeMissingSpecial)
	}

	if p.ForbidUsernameSubstring && username != "" &&
		strings.Contains(strings.ToLower(candidate), strings.ToLower(username)) {
		v = append(v, CodeContainsUsername)
	}

	if p.HistoryCount > 0 && e.verifier != nil {
		recent := history
		if len(recent) > p.HistoryCount {
			recent = recent[:p.HistoryCount]
		}
		for _, stored := range recent {
			if e.verifier.Verify(candidate, stored) {
				v = append(v, CodeReusedRecent)
				break
			}
		}
	}

	return v
}
