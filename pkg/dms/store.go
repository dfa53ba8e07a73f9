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

// Package dms implements the delta memstore (C3): a concurrent,
// ordered, in-memory map of deltas keyed by (row ordinal, timestamp,
// disambiguator), backed by badger's arena-allocated skiplist so reads
// never block behind writers.
package dms

import (
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v2/skl"
	"github.com/dgraph-io/badger/v2/y"
	"github.com/rs/zerolog"

	"github.com/optakt/kudu-tablet/pkg/anchor"
	"github.com/optakt/kudu-tablet/pkg/deltaiter"
	"github.com/optakt/kudu-tablet/pkg/deltakey"
	"github.com/optakt/kudu-tablet/pkg/kerr"
)

// DefaultArenaSize is the initial arena allocation for a DMS's
// skiplist, matching badger's own default growth increment.
const DefaultArenaSize = 1 << 20 // 1 MiB

// Config configures a DeltaMemStore.
type Config struct {
	ArenaSize int64
	Log       zerolog.Logger
}

// Option mutates a Config.
type Option func(*Config)

// WithArenaSize overrides the initial arena allocation.
func WithArenaSize(size int64) Option {
	return func(c *Config) { c.ArenaSize = size }
}

// WithLogger attaches a logger, sub-scoped to component=dms.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Config) { c.Log = log }
}

// DeltaMemStore is an ordered, concurrent map of DeltaKey to
// RowChangeList, plus the bookkeeping (highest timestamp, deleted row
// count, owned log anchor) the write and flush paths need.
type DeltaMemStore struct {
	log zerolog.Logger

	skiplist *skl.Skiplist
	anchorer *anchor.MinLogIndexAnchorer

	count        int64
	deletedCount int64

	tsMu      sync.Mutex // "small spinlock" guarding highest_timestamp, per spec §5
	highestTS deltakey.Timestamp
	hasTS     bool

	disambigMu sync.Mutex // guards the per-(row,ts) disambiguator resolution loop
}

// New constructs an empty DMS whose anchor is registered against
// registry under owner the moment the first delta is inserted.
func New(registry *anchor.Registry, owner anchor.Owner, opts ...Option) *DeltaMemStore {
	cfg := Config{ArenaSize: DefaultArenaSize, Log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &DeltaMemStore{
		log:      cfg.Log.With().Str("component", "dms").Logger(),
		skiplist: skl.NewSkiplist(cfg.ArenaSize),
		anchorer: anchor.NewMinLogIndexAnchorer(registry, owner),
	}
}

// skiplistKey renders a DeltaKey for storage in the badger skiplist.
// badger's y.CompareKeys strips a trailing 8-byte timestamp suffix and
// compares it in descending numeric order, falling back to it only to
// break ties on the user-key prefix; every call here uses the same
// zero suffix, so ordering reduces to a pure ascending lexicographic
// compare of the encoded DeltaKey — exactly REDO order.
func skiplistKey(k deltakey.DeltaKey) []byte {
	return y.KeyWithTs(k.Encode(), 0)
}

// Update inserts a delta for (timestamp, rowID). If (rowID, timestamp)
// collides with an existing entry, the disambiguator is incremented
// and insertion retried until a free slot is found, per spec §4.3.
func (d *DeltaMemStore) Update(timestamp deltakey.Timestamp, rowID deltakey.RowID, change deltakey.RowChangeList, opID deltakey.OpID) (deltakey.DeltaKey, error) {
	d.disambigMu.Lock()
	var key deltakey.DeltaKey
	for disambig := uint32(0); ; disambig++ {
		key = deltakey.DeltaKey{RowID: rowID, Timestamp: timestamp, Disambiguator: disambig}
		raw := skiplistKey(key)
		existing := d.skiplist.Get(raw)
		if existing.Value == nil {
			buf := make([]byte, len(change))
			copy(buf, change)
			d.skiplist.Put(raw, y.ValueStruct{Value: buf})
			break
		}
	}
	d.disambigMu.Unlock()

	atomic.AddInt64(&d.count, 1)
	if change.IsDelete() {
		atomic.AddInt64(&d.deletedCount, 1)
	}

	d.tsMu.Lock()
	if !d.hasTS || timestamp > d.highestTS {
		d.highestTS = timestamp
		d.hasTS = true
	}
	d.tsMu.Unlock()

	d.anchorer.AnchorIfMinimum(opID.Index)

	d.log.Debug().
		Uint32("row_id", uint32(key.RowID)).
		Int64("timestamp", int64(key.Timestamp)).
		Uint32("disambiguator", key.Disambiguator).
		Msg("inserted delta")

	return key, nil
}

// Count returns the number of successful Update calls.
func (d *DeltaMemStore) Count() int64 {
	return atomic.LoadInt64(&d.count)
}

// Empty reports whether the store holds no deltas.
func (d *DeltaMemStore) Empty() bool {
	return d.Count() == 0
}

// DeletedRowCount returns how many inserted deltas encoded a deletion.
func (d *DeltaMemStore) DeletedRowCount() int64 {
	return atomic.LoadInt64(&d.deletedCount)
}

// EstimateSize returns the arena memory footprint of the store.
func (d *DeltaMemStore) EstimateSize() int64 {
	return d.skiplist.MemSize()
}

// HighestTimestamp returns the maximum timestamp ever inserted and
// whether any delta has been inserted at all.
func (d *DeltaMemStore) HighestTimestamp() (deltakey.Timestamp, bool) {
	d.tsMu.Lock()
	defer d.tsMu.Unlock()
	return d.highestTS, d.hasTS
}

// DeltaWriter is implemented by anything that can persist an ordered
// sequence of deltas, such as a pkg/deltafile.Writer.
type DeltaWriter interface {
	WriteDelta(delta deltakey.Delta) error
}

// FlushToFile iterates the store in key order, writing every delta to
// w, and releases the store's anchor on success. The anchor is left
// intact on failure so the WAL entries backing unflushed deltas remain
// un-truncatable.
func (d *DeltaMemStore) FlushToFile(w DeltaWriter) error {
	it := d.skiplist.NewIterator()
	defer it.Close()

	for it.SeekToFirst(); it.Valid(); it.Next() {
		key, err := deltakey.Decode(y.ParseKey(it.Key()))
		if err != nil {
			return kerr.Wrap(kerr.Corruption, err, "decode delta key during flush")
		}
		vs := it.Value()
		delta := deltakey.Delta{Key: key, Change: deltakey.RowChangeList(vs.Value)}
		if err := w.WriteDelta(delta); err != nil {
			return kerr.Wrap(kerr.IllegalState, err, "write delta during flush")
		}
	}

	d.anchorer.ReleaseAnchor()
	d.log.Info().Int64("count", d.Count()).Msg("flushed DMS to file")
	return nil
}

// CheckRowDeleted scans the deltas for rowID, honoring snapshot, and
// reports the MVCC-consistent deleted-ness of the row as of that
// snapshot: the verdict of the last visible delta in key order, which
// is deleted if that delta is a deletion and not deleted otherwise.
// Deltas at the same timestamp are ordered by their disambiguator, so
// the one inserted last decides.
func (d *DeltaMemStore) CheckRowDeleted(rowID deltakey.RowID, snapshot deltaiter.MvccSnapshot) (bool, error) {
	lower := skiplistKey(deltakey.DeltaKey{RowID: rowID, Timestamp: deltakey.KMin})
	upper := skiplistKey(deltakey.DeltaKey{RowID: rowID + 1, Timestamp: deltakey.KMin})

	it := d.skiplist.NewIterator()
	defer it.Close()

	deleted := false
	for it.Seek(lower); it.Valid() && y.CompareKeys(it.Key(), upper) < 0; it.Next() {
		key, err := deltakey.Decode(y.ParseKey(it.Key()))
		if err != nil {
			return false, kerr.Wrap(kerr.Corruption, err, "decode delta key during deleted-check")
		}
		if !snapshot.IsVisible(key.Timestamp) {
			continue
		}
		change := deltakey.RowChangeList(it.Value().Value)
		deleted = change.IsDelete()
	}
	return deleted, nil
}

// NewDeltaIterator constructs a DMSIterator scoped to opts. NotFound is
// returned only when the store is empty, so the caller can skip it
// entirely. A non-empty store always yields an iterator, even when the
// snapshot excludes every delta it holds; those deltas are then skipped
// during iteration.
func (d *DeltaMemStore) NewDeltaIterator(opts deltaiter.RowIteratorOptions) (*DMSIterator, error) {
	// We track only the highest timestamp ever inserted, not the
	// lowest, so the only case we can reject up front is an empty
	// store; a non-empty store with an excluding snapshot is instead
	// filtered out delta-by-delta during iteration.
	if d.Empty() {
		return nil, kerr.New(kerr.NotFound, "dms is empty, snapshot excludes it")
	}
	it := &DMSIterator{store: d, state: stateConstructed}
	if err := it.Init(opts); err != nil {
		return nil, err
	}
	return it, nil
}
