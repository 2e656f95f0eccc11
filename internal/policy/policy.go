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
	"encoding/json"
	"fmt"
	"time"
)

// SettingsKey is the admin_settings row under which the policy blob is stored.
const SettingsKey = "password_policy"

// Policy is the singleton password and lockout configuration. The zero value
// is the "empty policy": any non-empty password is accepted and lockout is off.
type Policy struct {
	MinLength               int  `json:"min_length"`
	RequireUpper            bool `json:"require_upper"`
	RequireLower            bool `json:"require_lower"`
	RequireDigit            bool `json:"require_digit"`
	RequireSpecial          bool `json:"require_special"`
	ForbidUsernameSubstring bool `json:"forbid_username_substring"`
	HistoryCount            int  `json:"history_count"`

	ExpirationEnabled       bool `json:"expiration_enabled"`
	MaxAgeDays              int  `json:"max_age_days"`
	WarnDays                int  `json:"warn_days"`
	ForceChangeOnFirstLogin bool `json:"force_change_on_first_login"`

	LockoutEnabled         bool `json:"lockout_enabled"`
	MaxAttempts            int  `json:"max_attempts"`
	LockoutDurationMinutes int  `json:"lockout_duration_minutes"`
	PermanentLockout       bool `json:"permanent_lockout"`
}

// Default returns the policy applied when admin_settings has no stored blob.
func Default() Policy {
	return Policy{
		MinLength:              8,
		RequireLower:           true,
		RequireDigit:           true,
		HistoryCount:           3,
		LockoutEnabled:         true,
		MaxAttempts:            5,
		LockoutDurationMinutes: 15,
	}
}

// LockoutDuration returns the temporary lock window.
func (p Policy) LockoutDuration() time.Duration {
	return time.Duration(p.LockoutDurationMinutes) * time.Minute
}

// Marshal encodes the policy as the admin_settings value blob.
func (p Policy) Marshal() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode policy: %w", err)
	}
	return string(b), nil
}

// Unmarshal decodes a policy from the admin_settings value blob.
func Unmarshal(blob string) (Policy, error) {
	var p Policy
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return Policy{}, fmt.Errorf("failed to decode policy: %w", err)
	}
	return p, nil
}

// Expiry describes the expiration state of a credential under this policy.
type Expiry struct {
	Expired  bool
	Warn     bool
	DaysLeft int
}

// Expiration evaluates credential age against max_age_days/warn_days.
// lastSet is the time the current credential was stored.
func (p Policy) Expiration(lastSet, now time.Time) Expiry {
	if !p.ExpirationEnabled || p.MaxAgeDays < 1 {
		return Expiry{}
	}
	deadline := lastSet.AddDate(0, 0, p.MaxAgeDays)
	if !now.Before(deadline) {
		return Expiry{Expired: true}
	}
	daysLeft := int(deadline.Sub(now).Hours() / 24)
	return Expiry{
		Warn:     p.WarnDays >= 1 && daysLeft < p.WarnDays,
		DaysLeft: daysLeft,
	}
}
