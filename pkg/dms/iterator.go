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

package dms

import (
	"github.com/dgraph-io/badger/v2/y"

	"github.com/optakt/kudu-tablet/pkg/deltaiter"
	"github.com/optakt/kudu-tablet/pkg/deltakey"
	"github.com/optakt/kudu-tablet/pkg/kerr"
)

// iterState names the DMSIterator's position in the state machine
// mandated by spec §4.3: constructed -> initted -> seeked ->
// preparing -> prepared -> exhausted.
type iterState int

const (
	stateConstructed iterState = iota
	stateInitted
	stateSeeked
	statePreparing
	statePrepared
	stateExhausted
)

// DMSIterator reads a DeltaMemStore's skiplist under a fixed
// RowIteratorOptions snapshot, in row-ordinal batches.
type DMSIterator struct {
	store *DeltaMemStore
	state iterState
	opts  deltaiter.RowIteratorOptions

	cursor  deltakey.RowID
	batch   []deltakey.Delta // deltas for the currently prepared window, in key order
	hasMore bool
}

var _ deltaiter.DeltaIterator = (*DMSIterator)(nil)

// Init binds opts to the iterator. Must precede every other call.
func (it *DMSIterator) Init(opts deltaiter.RowIteratorOptions) error {
	if it.state != stateConstructed {
		return kerr.New(kerr.IllegalState, "Init called twice")
	}
	it.opts = opts
	it.cursor = opts.LowerBound
	it.state = stateInitted
	return nil
}

// SeekToOrdinal positions the iterator at row. Must precede PrepareBatch.
func (it *DMSIterator) SeekToOrdinal(row deltakey.RowID) error {
	if it.state != stateInitted && it.state != stateSeeked && it.state != statePrepared {
		return kerr.New(kerr.IllegalState, "SeekToOrdinal called before Init")
	}
	it.cursor = row
	it.state = stateSeeked
	return nil
}

// PrepareBatch fixes the window of up to n rows starting at the
// cursor, collecting every delta in that window up front.
func (it *DMSIterator) PrepareBatch(n int, flags deltaiter.PrepareFlags, deltasSelected *int) error {
	if it.state != stateSeeked {
		return kerr.New(kerr.IllegalState, "PrepareBatch called without a prior SeekToOrdinal")
	}
	it.state = statePreparing

	upper := it.cursor + deltakey.RowID(n)
	if it.opts.UpperBound != 0 && (n <= 0 || upper > it.opts.UpperBound) {
		upper = it.opts.UpperBound
	}

	lower := skiplistKey(deltakey.DeltaKey{RowID: it.cursor, Timestamp: deltakey.KMin})
	upperKey := skiplistKey(deltakey.DeltaKey{RowID: upper, Timestamp: deltakey.KMin})

	sklIt := it.store.skiplist.NewIterator()
	defer sklIt.Close()

	var batch []deltakey.Delta
	for sklIt.Seek(lower); sklIt.Valid() && y.CompareKeys(sklIt.Key(), upperKey) < 0; sklIt.Next() {
		key, err := deltakey.Decode(y.ParseKey(sklIt.Key()))
		if err != nil {
			it.state = stateSeeked
			return kerr.Wrap(kerr.Corruption, err, "decode delta key during PrepareBatch")
		}
		if !it.opts.Snapshot.IsVisible(key.Timestamp) {
			continue
		}
		vs := sklIt.Value()
		batch = append(batch, deltakey.Delta{Key: key, Change: deltakey.RowChangeList(vs.Value)})
	}
	if deltasSelected != nil {
		*deltasSelected += len(batch)
	}

	it.batch = batch
	it.cursor = upper
	it.hasMore = it.opts.UpperBound == 0 || it.cursor < it.opts.UpperBound
	it.state = statePrepared
	return nil
}

// ApplyUpdates applies SET mutations for columnID into dst, honoring
// sel.
func (it *DMSIterator) ApplyUpdates(columnID uint32, dst *deltaiter.ColumnBlock, sel *deltaiter.SelectionVector) error {
	if it.state != statePrepared {
		return kerr.New(kerr.IllegalState, "ApplyUpdates called without a prepared batch")
	}
	for _, delta := range it.batch {
		if delta.Change.IsDelete() {
			continue
		}
		updates, err := deltakey.DecodeUpdates(delta.Change)
		if err != nil {
			return kerr.Wrap(kerr.Corruption, err, "decode row change list")
		}
		offset := int(delta.Key.RowID - (it.cursor - deltakey.RowID(len(dst.Cells))))
		if offset < 0 || offset >= len(dst.Cells) || (sel != nil && !sel.IsSelected(offset)) {
			continue
		}
		for _, u := range updates {
			if u.ColumnID == columnID {
				dst.Cells[offset] = u.Value
			}
		}
	}
	return nil
}

// ApplyDeletes clears sel bits for rows deleted within the current batch.
func (it *DMSIterator) ApplyDeletes(sel *deltaiter.SelectionVector) error {
	if it.state != statePrepared {
		return kerr.New(kerr.IllegalState, "ApplyDeletes called without a prepared batch")
	}
	batchStart := it.cursor - deltakey.RowID(sel.Len())
	for _, delta := range it.batch {
		if !delta.Change.IsDelete() {
			continue
		}
		offset := int(delta.Key.RowID - batchStart)
		if offset >= 0 && offset < sel.Len() {
			sel.SetSelected(offset, false)
		}
	}
	return nil
}

// SelectDeltas marks rows in the current batch that carry any delta.
func (it *DMSIterator) SelectDeltas(sel *deltaiter.SelectionVector) error {
	if it.state != statePrepared {
		return kerr.New(kerr.IllegalState, "SelectDeltas called without a prepared batch")
	}
	batchStart := it.cursor - deltakey.RowID(sel.Len())
	for i := 0; i < sel.Len(); i++ {
		sel.SetSelected(i, false)
	}
	for _, delta := range it.batch {
		offset := int(delta.Key.RowID - batchStart)
		if offset >= 0 && offset < sel.Len() {
			sel.SetSelected(offset, true)
		}
	}
	return nil
}

// CollectMutations appends every delta in the current batch to dst.
func (it *DMSIterator) CollectMutations(dst *[]deltakey.Delta) error {
	if it.state != statePrepared {
		return kerr.New(kerr.IllegalState, "CollectMutations called without a prepared batch")
	}
	*dst = append(*dst, it.batch...)
	return nil
}

// FilterColumnIdsAndCollectDeltas is like CollectMutations but ignores
// the columnIDs filter: RowChangeList entries are stored as raw
// per-column SET/DELETE blobs, so an upstream consumer filters columns
// after decoding. This DMS-level source never attempts column-level
// filtering itself; the merger's version (pkg/deltamerge) applies
// columnIDs after merging.
func (it *DMSIterator) FilterColumnIdsAndCollectDeltas(columnIDs []uint32, dst *[]deltakey.Delta) error {
	return it.CollectMutations(dst)
}

// HasNext reports whether rows remain beyond the current batch.
func (it *DMSIterator) HasNext() bool {
	return it.hasMore
}

// MayHaveDeltas reports whether the current prepared batch has any delta.
func (it *DMSIterator) MayHaveDeltas() bool {
	return len(it.batch) > 0
}
