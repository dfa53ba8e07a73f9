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

// Package deltaiter defines the shared contract that every delta
// source — the DMS, a frozen delta file, and the merger over both —
// implements, so C4 can treat them interchangeably (C7).
package deltaiter

import "github.com/optakt/kudu-tablet/pkg/deltakey"

// MvccSnapshot is the set of committed timestamps visible to a reader.
// A timestamp is visible iff it is <= SnapshotTimestamp (the core only
// implements this simple watermark form; Kudu's real MVCC manager also
// tracks in-flight timestamps below the watermark, which is out of
// scope here).
type MvccSnapshot struct {
	SnapshotTimestamp deltakey.Timestamp
}

// IsVisible reports whether ts is visible under this snapshot.
func (s MvccSnapshot) IsVisible(ts deltakey.Timestamp) bool {
	return ts <= s.SnapshotTimestamp
}

// RowIteratorOptions bounds a scan: the ordinal range to cover and the
// MVCC snapshot deltas must be visible under.
type RowIteratorOptions struct {
	LowerBound deltakey.RowID
	UpperBound deltakey.RowID // exclusive; zero value means unbounded
	Snapshot   MvccSnapshot
}

// Covers reports whether row falls within [LowerBound, UpperBound).
func (o RowIteratorOptions) Covers(row deltakey.RowID) bool {
	if row < o.LowerBound {
		return false
	}
	if o.UpperBound != 0 && row >= o.UpperBound {
		return false
	}
	return true
}

// ColumnBlock is a column-major buffer that ApplyUpdates mutates in
// place: one cell per selected row, addressed by row offset within the
// current prepared batch.
type ColumnBlock struct {
	ColumnID uint32
	Cells    [][]byte
}

// SelectionVector marks which rows within a prepared batch are still
// live (not filtered out by an earlier delete application).
type SelectionVector struct {
	bits []bool
}

// NewSelectionVector returns a vector of n rows, all initially selected.
func NewSelectionVector(n int) *SelectionVector {
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = true
	}
	return &SelectionVector{bits: bits}
}

// SetSelected sets whether row i (offset within the batch) is selected.
func (v *SelectionVector) SetSelected(i int, selected bool) {
	v.bits[i] = selected
}

// IsSelected reports whether row i is selected.
func (v *SelectionVector) IsSelected(i int) bool {
	return v.bits[i]
}

// Len reports the number of rows the vector covers.
func (v *SelectionVector) Len() int {
	return len(v.bits)
}

// CountSelected reports how many rows remain selected.
func (v *SelectionVector) CountSelected() int {
	n := 0
	for _, b := range v.bits {
		if b {
			n++
		}
	}
	return n
}

// PrepareFlags tunes PrepareBatch behavior.
type PrepareFlags int

const (
	// PrepareForApply means the batch will have updates/deletes applied.
	PrepareForApply PrepareFlags = iota
	// PrepareForCollect means the batch will only be read via
	// CollectMutations / FilterColumnIdsAndCollectDeltas, never applied.
	PrepareForCollect
)

// DeltaIterator is the contract a DMS iterator, a frozen delta file
// iterator, and the C4 merger over both all satisfy. Callers must drive
// the state machine in order: Init, then SeekToOrdinal, then one or
// more PrepareBatch/Apply*/Collect* cycles.
type DeltaIterator interface {
	// Init binds the iterator to opts. Must precede every other call.
	Init(opts RowIteratorOptions) error
	// SeekToOrdinal positions the iterator at row. Must precede
	// PrepareBatch.
	SeekToOrdinal(row deltakey.RowID) error
	// PrepareBatch fixes a window of up to n rows starting at the
	// current position for the next Apply*/Collect* calls, threading
	// the running count of deltas already selected so a global cap can
	// be enforced across multiple delta sources.
	PrepareBatch(n int, flags PrepareFlags, deltasSelected *int) error
	// ApplyUpdates applies SET mutations for columnID into dst, for
	// rows still marked selected in sel.
	ApplyUpdates(columnID uint32, dst *ColumnBlock, sel *SelectionVector) error
	// ApplyDeletes clears bits in sel for rows deleted within the
	// current prepared batch.
	ApplyDeletes(sel *SelectionVector) error
	// SelectDeltas marks, in sel, which rows in the current batch carry
	// at least one delta at all (used by the merger to skip untouched
	// rows cheaply).
	SelectDeltas(sel *SelectionVector) error
	// CollectMutations appends every delta in the current prepared
	// batch to dst, in per-source order.
	CollectMutations(dst *[]deltakey.Delta) error
	// FilterColumnIdsAndCollectDeltas is like CollectMutations with a
	// column ID filter (empty means all columns). The single-source DMS
	// and delta file iterators ignore columnIDs and collect every delta;
	// only the merger applies the filter.
	FilterColumnIdsAndCollectDeltas(columnIDs []uint32, dst *[]deltakey.Delta) error
	// HasNext reports whether rows remain beyond the current batch.
	HasNext() bool
	// MayHaveDeltas reports whether the current prepared batch might
	// contain any delta at all, without fully evaluating it.
	MayHaveDeltas() bool
}

// EvictionCallback is invoked by a block cache when a cached entry is
// evicted, so the owner can release any resources (e.g. pinned arena
// memory) backing it.
type EvictionCallback interface {
	EvictedFromCache(key string, value interface{})
}
