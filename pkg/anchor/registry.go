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

// Package anchor implements the log anchor registry: a sorted multimap
// from WAL log index to the holders pinning it, used to compute the
// earliest index that must survive log garbage collection.
package anchor

import (
	"sync"

	"github.com/google/btree"

	"github.com/optakt/kudu-tablet/pkg/kerr"
)

// Owner identifies the holder of an anchor. DMS instances and other
// in-memory structures that must survive until a given WAL index is
// durable obtain an Owner handle to register against.
type Owner string

// entry is a single (index, owner) pair stored as a btree item. The
// registry is keyed on index first so GetEarliestRegisteredLogIndex is
// a single Min() lookup; Owner breaks ties between simultaneous anchors
// at the same index.
type entry struct {
	index int64
	owner Owner
}

func (e entry) Less(than btree.Item) bool {
	other := than.(entry)
	if e.index != other.index {
		return e.index < other.index
	}
	return e.owner < other.owner
}

// Registry holds a sorted multimap from log index to anchor holders.
// All public operations acquire mu; the registry never invokes owner
// callbacks, so it never holds the lock across anything but map work.
type Registry struct {
	mu      sync.Mutex
	tree    *btree.BTree
	byOwner map[Owner]int64
}

// NewRegistry constructs an empty log anchor registry.
func NewRegistry() *Registry {
	return &Registry{
		tree:    btree.New(32),
		byOwner: make(map[Owner]int64),
	}
}

// Register inserts a new anchor for owner at index. It fails if owner
// already holds an anchor.
func (r *Registry) Register(index int64, owner Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byOwner[owner]; ok {
		return kerr.New(kerr.InvalidArgument, "owner %q already holds an anchor", owner)
	}
	r.insertLocked(index, owner)
	return nil
}

// RegisterOrUpdate registers owner at index, first atomically
// unregistering any anchor it already holds.
func (r *Registry) RegisterOrUpdate(index int64, owner Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byOwner[owner]; ok {
		r.tree.Delete(entry{index: old, owner: owner})
	}
	r.insertLocked(index, owner)
}

func (r *Registry) insertLocked(index int64, owner Owner) {
	r.tree.ReplaceOrInsert(entry{index: index, owner: owner})
	r.byOwner[owner] = index
}

// Unregister removes owner's anchor. It fails if owner holds none.
func (r *Registry) Unregister(owner Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, ok := r.byOwner[owner]
	if !ok {
		return kerr.New(kerr.NotFound, "owner %q holds no anchor", owner)
	}
	r.tree.Delete(entry{index: index, owner: owner})
	delete(r.byOwner, owner)
	return nil
}

// UnregisterIfAnchored removes owner's anchor if present; unlike
// Unregister it is not an error for owner to hold none.
func (r *Registry) UnregisterIfAnchored(owner Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, ok := r.byOwner[owner]
	if !ok {
		return
	}
	r.tree.Delete(entry{index: index, owner: owner})
	delete(r.byOwner, owner)
}

// GetEarliestRegisteredLogIndex returns the smallest index anchored by
// any owner, or a NotFound error if the registry is empty.
func (r *Registry) GetEarliestRegisteredLogIndex() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	min := r.tree.Min()
	if min == nil {
		return 0, kerr.New(kerr.NotFound, "no anchors registered")
	}
	return min.(entry).index, nil
}

// Len reports the number of anchors currently registered, for metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree.Len()
}

// Close asserts the registry is empty. Leaking anchors past the
// lifetime of their registry is a programming error, not a runtime
// condition the caller can recover from.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tree.Len() != 0 {
		panic("anchor: registry closed with outstanding anchors")
	}
}
