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

package deltafile

import (
	"io"
	"sort"

	"github.com/optakt/kudu-tablet/pkg/deltaiter"
	"github.com/optakt/kudu-tablet/pkg/deltakey"
	"github.com/optakt/kudu-tablet/pkg/kerr"
)

type iterState int

const (
	stateConstructed iterState = iota
	stateInitted
	stateSeeked
	statePrepared
)

// Iterator reads a frozen delta file's full contents into memory once,
// then serves PrepareBatch windows over it exactly like a DMSIterator,
// so the merger (C4) can treat both uniformly.
type Iterator struct {
	all   []deltakey.Delta // sorted by DeltaKey, loaded once at construction
	opts  deltaiter.RowIteratorOptions
	state iterState

	cursor  deltakey.RowID
	batch   []deltakey.Delta
	hasMore bool
}

var _ deltaiter.DeltaIterator = (*Iterator)(nil)

// NewIterator reads every delta out of r and returns an iterator over
// it. The file's own writer-enforced key order makes the extra sort a
// no-op in the common case; it is kept to tolerate any reader of a file
// produced by something other than Writer.
func NewIterator(r io.Reader) (*Iterator, error) {
	deltas, err := ReadAll(r)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(deltas, func(i, j int) bool {
		return deltas[i].Key.Compare(deltas[j].Key) < 0
	})
	return &Iterator{all: deltas, state: stateConstructed}, nil
}

// Init binds opts. If the snapshot excludes every delta in the file,
// NotFound is returned so the caller (C4) can skip this source.
func (it *Iterator) Init(opts deltaiter.RowIteratorOptions) error {
	if it.state != stateConstructed {
		return kerr.New(kerr.IllegalState, "Init called twice")
	}
	it.opts = opts
	it.cursor = opts.LowerBound

	anyVisible := false
	for _, d := range it.all {
		if opts.Snapshot.IsVisible(d.Key.Timestamp) {
			anyVisible = true
			break
		}
	}
	if len(it.all) > 0 && !anyVisible {
		return kerr.New(kerr.NotFound, "snapshot excludes every delta in this file")
	}

	it.state = stateInitted
	return nil
}

func (it *Iterator) SeekToOrdinal(row deltakey.RowID) error {
	if it.state != stateInitted && it.state != stateSeeked && it.state != statePrepared {
		return kerr.New(kerr.IllegalState, "SeekToOrdinal called before Init")
	}
	it.cursor = row
	it.state = stateSeeked
	return nil
}

func (it *Iterator) PrepareBatch(n int, flags deltaiter.PrepareFlags, deltasSelected *int) error {
	if it.state != stateSeeked {
		return kerr.New(kerr.IllegalState, "PrepareBatch called without a prior SeekToOrdinal")
	}

	upper := it.cursor + deltakey.RowID(n)
	if it.opts.UpperBound != 0 && (n <= 0 || upper > it.opts.UpperBound) {
		upper = it.opts.UpperBound
	}

	var batch []deltakey.Delta
	for _, d := range it.all {
		if d.Key.RowID < it.cursor || d.Key.RowID >= upper {
			continue
		}
		if !it.opts.Snapshot.IsVisible(d.Key.Timestamp) {
			continue
		}
		batch = append(batch, d)
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

func (it *Iterator) ApplyUpdates(columnID uint32, dst *deltaiter.ColumnBlock, sel *deltaiter.SelectionVector) error {
	if it.state != statePrepared {
		return kerr.New(kerr.IllegalState, "ApplyUpdates called without a prepared batch")
	}
	batchStart := it.cursor - deltakey.RowID(len(dst.Cells))
	for _, d := range it.batch {
		if d.Change.IsDelete() {
			continue
		}
		updates, err := deltakey.DecodeUpdates(d.Change)
		if err != nil {
			return kerr.Wrap(kerr.Corruption, err, "decode row change list")
		}
		offset := int(d.Key.RowID - batchStart)
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

func (it *Iterator) ApplyDeletes(sel *deltaiter.SelectionVector) error {
	if it.state != statePrepared {
		return kerr.New(kerr.IllegalState, "ApplyDeletes called without a prepared batch")
	}
	batchStart := it.cursor - deltakey.RowID(sel.Len())
	for _, d := range it.batch {
		if !d.Change.IsDelete() {
			continue
		}
		offset := int(d.Key.RowID - batchStart)
		if offset >= 0 && offset < sel.Len() {
			sel.SetSelected(offset, false)
		}
	}
	return nil
}

func (it *Iterator) SelectDeltas(sel *deltaiter.SelectionVector) error {
	if it.state != statePrepared {
		return kerr.New(kerr.IllegalState, "SelectDeltas called without a prepared batch")
	}
	batchStart := it.cursor - deltakey.RowID(sel.Len())
	for i := 0; i < sel.Len(); i++ {
		sel.SetSelected(i, false)
	}
	for _, d := range it.batch {
		offset := int(d.Key.RowID - batchStart)
		if offset >= 0 && offset < sel.Len() {
			sel.SetSelected(offset, true)
		}
	}
	return nil
}

func (it *Iterator) CollectMutations(dst *[]deltakey.Delta) error {
	if it.state != statePrepared {
		return kerr.New(kerr.IllegalState, "CollectMutations called without a prepared batch")
	}
	*dst = append(*dst, it.batch...)
	return nil
}

func (it *Iterator) FilterColumnIdsAndCollectDeltas(columnIDs []uint32, dst *[]deltakey.Delta) error {
	return it.CollectMutations(dst)
}

func (it *Iterator) HasNext() bool {
	return it.hasMore
}

func (it *Iterator) MayHaveDeltas() bool {
	return len(it.batch) > 0
}
