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

package session

import "sync"

// Principal is the authenticated identity visible to the rest of the process.
// It carries display data only; the stored credential never leaves identity.
type Principal struct {
	ID          string
	Username    string
	DisplayName string
	RoleName    string
}

// Holder is the process-wide current-principal slot. It is handed to
// components at composition time instead of living in package globals so
// that permission resolution stays testable. Reads are safe from any
// goroutine; writes are reserved for the login service and logout.
type Holder struct {
	mu      sync.RWMutex
	current *Principal
}

// NewHolder creates an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Set installs the authenticated principal.
func (h *Holder) Set(p Principal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = &p
}

// Clear removes the current principal.
func (h *Holder) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = nil
}

// Current returns the authenticated principal, if any.
func (h *Holder) Current() (Principal, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return Principal{}, false
	}
	return *h.current, true
}
