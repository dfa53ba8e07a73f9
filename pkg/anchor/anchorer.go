// Copyright 2021 Optakt Labs OÜ
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package anchor

import "sync"

// MinLogIndexAnchorer wraps a single anchor for a holder that wants to
// pin the lowest log index it has ever observed — the pattern a DMS
// uses to anchor the index of its oldest unflushed mutation.
type MinLogIndexAnchorer struct {
	registry *Registry
	owner    Owner

	mu      sync.Mutex
	held    bool
	current int64
}

// NewMinLogIndexAnchorer constructs an anchorer that will register
// against registry under owner. No anchor is held until the first call
// to AnchorIfMinimum.
func NewMinLogIndexAnchorer(registry *Registry, owner Owner) *MinLogIndexAnchorer {
	return &MinLogIndexAnchorer{registry: registry, owner: owner}
}

// AnchorIfMinimum registers (or moves) the anchor to index, but only if
// no anchor is currently held or index is smaller than the index
// currently held.
func (a *MinLogIndexAnchorer) AnchorIfMinimum(index int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.held && index >= a.current {
		return
	}
	a.registry.RegisterOrUpdate(index, a.owner)
	a.held = true
	a.current = index
}

// ReleaseAnchor unregisters the anchor. It is idempotent: releasing an
// anchorer that holds nothing is a no-op.
func (a *MinLogIndexAnchorer) ReleaseAnchor() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.held {
		return
	}
	a.registry.UnregisterIfAnchored(a.owner)
	a.held = false
}

// IsAnchored reports whether this anchorer currently holds an anchor.
func (a *MinLogIndexAnchorer) IsAnchored() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.held
}
