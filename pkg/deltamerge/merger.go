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

// Package deltamerge implements the delta iterator merger (C4): it
// unifies iteration across a DMS iterator and zero or more frozen
// delta file iterators into one virtual DeltaIterator.
package deltamerge

import (
	"sort"

	"github.com/optakt/kudu-tablet/pkg/deltaiter"
	"github.com/optakt/kudu-tablet/pkg/deltakey"
	"github.com/optakt/kudu-tablet/pkg/kerr"
)

// Merger combines N child DeltaIterators into one. Children are
// consulted in the order they were given to Create; that order is
// also the REDO-timestamp-ascending tiebreak ApplyUpdates relies on
// when two children touch the same row.
type Merger struct {
	children []deltaiter.DeltaIterator
}

var _ deltaiter.DeltaIterator = (*Merger)(nil)

// Create builds a merger over children. If exactly one child is given,
// it is returned directly and no Merger wrapper is allocated, per
// spec §4.4's bypass rule.
func Create(children []deltaiter.DeltaIterator) deltaiter.DeltaIterator {
	if len(children) == 1 {
		return children[0]
	}
	return &Merger{children: children}
}

// Init broadcasts to every child; the first failure short-circuits.
func (m *Merger) Init(opts deltaiter.RowIteratorOptions) error {
	for _, c := range m.children {
		if err := c.Init(opts); err != nil {
			return err
		}
	}
	return nil
}

// SeekToOrdinal broadcasts to every child.
func (m *Merger) SeekToOrdinal(row deltakey.RowID) error {
	for _, c := range m.children {
		if err := c.SeekToOrdinal(row); err != nil {
			return err
		}
	}
	return nil
}

// PrepareBatch broadcasts to every child, threading the running
// deltas_selected counter so a global cap is honored across all
// sources, per spec §4.4.
func (m *Merger) PrepareBatch(n int, flags deltaiter.PrepareFlags, deltasSelected *int) error {
	for _, c := range m.children {
		if err := c.PrepareBatch(n, flags, deltasSelected); err != nil {
			return err
		}
	}
	return nil
}

// ApplyUpdates invokes each child's ApplyUpdates in child order, so
// that within one row, later children (added later to Create, e.g.
// the DMS) observe and can overwrite earlier children's values —
// REDO-ascending overwrite semantics.
func (m *Merger) ApplyUpdates(columnID uint32, dst *deltaiter.ColumnBlock, sel *deltaiter.SelectionVector) error {
	for _, c := range m.children {
		if err := c.ApplyUpdates(columnID, dst, sel); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDeletes invokes each child's ApplyDeletes; a row deleted by any
// child is deleted in the merged view.
func (m *Merger) ApplyDeletes(sel *deltaiter.SelectionVector) error {
	for _, c := range m.children {
		if err := c.ApplyDeletes(sel); err != nil {
			return err
		}
	}
	return nil
}

// SelectDeltas ORs each child's selection into sel.
func (m *Merger) SelectDeltas(sel *deltaiter.SelectionVector) error {
	merged := deltaiter.NewSelectionVector(sel.Len())
	for i := 0; i < merged.Len(); i++ {
		merged.SetSelected(i, false)
	}
	for _, c := range m.children {
		child := deltaiter.NewSelectionVector(sel.Len())
		if err := c.SelectDeltas(child); err != nil {
			return err
		}
		for i := 0; i < child.Len(); i++ {
			if child.IsSelected(i) {
				merged.SetSelected(i, true)
			}
		}
	}
	for i := 0; i < sel.Len(); i++ {
		sel.SetSelected(i, merged.IsSelected(i))
	}
	return nil
}

// CollectMutations accumulates each child's deltas and stable-sorts
// the result by DeltaKey, per the resolved open question in spec §9:
// the merger sorts on collect, for determinism, rather than trusting
// per-child ordering alone.
func (m *Merger) CollectMutations(dst *[]deltakey.Delta) error {
	var collected []deltakey.Delta
	for _, c := range m.children {
		if err := c.CollectMutations(&collected); err != nil {
			return err
		}
	}
	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].Key.Compare(collected[j].Key) < 0
	})
	*dst = append(*dst, collected...)
	return nil
}

// FilterColumnIdsAndCollectDeltas accumulates across children and
// stable-sorts by DeltaKey, then drops any change-list entries outside
// columnIDs if columnIDs is non-empty.
func (m *Merger) FilterColumnIdsAndCollectDeltas(columnIDs []uint32, dst *[]deltakey.Delta) error {
	var collected []deltakey.Delta
	for _, c := range m.children {
		if err := c.FilterColumnIdsAndCollectDeltas(columnIDs, &collected); err != nil {
			return err
		}
	}
	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].Key.Compare(collected[j].Key) < 0
	})

	if len(columnIDs) == 0 {
		*dst = append(*dst, collected...)
		return nil
	}

	wanted := make(map[uint32]bool, len(columnIDs))
	for _, id := range columnIDs {
		wanted[id] = true
	}
	for _, d := range collected {
		if d.Change.IsDelete() {
			*dst = append(*dst, d)
			continue
		}
		updates, err := deltakey.DecodeUpdates(d.Change)
		if err != nil {
			return kerr.Wrap(kerr.Corruption, err, "decode row change list during column filter")
		}
		var kept []deltakey.ColumnUpdate
		for _, u := range updates {
			if wanted[u.ColumnID] {
				kept = append(kept, u)
			}
		}
		if len(kept) == 0 {
			continue
		}
		filtered := d
		filtered.Change = deltakey.EncodeUpdates(kept)
		*dst = append(*dst, filtered)
	}
	return nil
}

// HasNext is true iff any child has more rows.
func (m *Merger) HasNext() bool {
	for _, c := range m.children {
		if c.HasNext() {
			return true
		}
	}
	return false
}

// MayHaveDeltas is true iff any child's current batch may have deltas.
func (m *Merger) MayHaveDeltas() bool {
	for _, c := range m.children {
		if c.MayHaveDeltas() {
			return true
		}
	}
	return false
}
