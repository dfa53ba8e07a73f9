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

package storage

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/optakt/kudu-tablet/pkg/kerr"
)

// SaveLastFlushedOpID records the log index of the last DMS flush a
// tablet completed, so a restarted tablet knows where WAL replay must
// resume.
func SaveLastFlushedOpID(tabletID string, index int64) func(tx *badger.Txn) error {
	return func(tx *badger.Txn) error {
		return save(encodeKey(PrefixLastFlushedOpID, tabletID), index)(tx)
	}
}

// RetrieveLastFlushedOpID reads back what SaveLastFlushedOpID wrote.
func RetrieveLastFlushedOpID(tabletID string, index *int64) func(tx *badger.Txn) error {
	return func(tx *badger.Txn) error {
		return retrieve(encodeKey(PrefixLastFlushedOpID, tabletID), index)(tx)
	}
}

// SaveDeltaFileManifestEntry records a frozen delta file produced by a
// DMS flush, keyed by tablet and file so RetrieveDeltaFileManifest can
// scan every file backing a tablet's read path.
func SaveDeltaFileManifestEntry(entry DeltaFileManifestEntry) func(tx *badger.Txn) error {
	return func(tx *badger.Txn) error {
		return save(encodeKey(PrefixDeltaFileManifest, entry.TabletID, entry.FileID), entry)(tx)
	}
}

// RetrieveDeltaFileManifest returns every manifest entry recorded for
// tabletID, in no particular order.
func RetrieveDeltaFileManifest(tabletID string, entries *[]DeltaFileManifestEntry) func(tx *badger.Txn) error {
	return func(tx *badger.Txn) error {
		prefix := encodeKey(PrefixDeltaFileManifest, tabletID)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry DeltaFileManifestEntry
			err := it.Item().Value(func(val []byte) error {
				return decodeValue(val, &entry)
			})
			if err != nil {
				return fmt.Errorf("could not decode manifest entry: %w", err)
			}
			*entries = append(*entries, entry)
		}

		return nil
	}
}

func retrieve(key []byte, value interface{}) func(tx *badger.Txn) error {
	return func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return kerr.New(kerr.NotFound, "key not found")
			}
			return fmt.Errorf("could not retrieve value: %w", err)
		}

		err = item.Value(func(val []byte) error {
			return decodeValue(val, value)
		})
		if err != nil {
			return fmt.Errorf("could not retrieve value: %w", err)
		}

		return nil
	}
}

func save(key []byte, value interface{}) func(tx *badger.Txn) error {
	return func(tx *badger.Txn) error {
		val, err := encodeValue(value)
		if err != nil {
			return fmt.Errorf("could not encode value: %w", err)
		}
		return tx.Set(key, val)
	}
}
