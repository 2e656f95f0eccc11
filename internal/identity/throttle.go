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
	"sync"

	"golang.org/x/time/rate"
)

// Throttle rate-limits login attempts per username before any store or
// hasher work happens. It is independent of the policy-driven lockout: the
// lockout protects an account across restarts, the throttle protects the
// process from hot loops. Disabled (nil) by default.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewThrottle creates a per-username throttle allowing rps attempts per
// second with the given burst.
func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether an attempt for username may proceed now.
func (t *Throttle) Allow(username string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	limiter, ok := t.limiters[username]
	if !ok {
		limiter = rate.NewLimiter(t.rps, t.burst)
		t.limiters[username] = limiter
	}
	t.mu.Unlock()
	return limiter.Allow()
}
