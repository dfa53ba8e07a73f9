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
	"github.com/dgraph-io/badger/v2"
)

// Combine runs ops in order inside the same transaction, stopping and
// returning the first error encountered.
func Combine(ops ...func(*badger.Txn) error) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		for _, op := range ops {
			if err := op(tx); err != nil {
				return err
			}
		}
		return nil
	}
}

// SaveLastFlushedOpIDAndManifest atomically records a flush's op ID
// alongside the manifest entry for the file it produced, so the two
// can never be observed out of sync by a reader.
func (l *Library) SaveLastFlushedOpIDAndManifest(tabletID string, index int64, entry DeltaFileManifestEntry) error {
	return l.db.Update(Combine(
		SaveLastFlushedOpID(tabletID, index),
		SaveDeltaFileManifestEntry(entry),
	))
}

// LastFlushedOpID returns the log index of the last recorded flush
// for tabletID.
func (l *Library) LastFlushedOpID(tabletID string) (int64, error) {
	var index int64
	err := l.db.View(RetrieveLastFlushedOpID(tabletID, &index))
	if err != nil {
		return 0, err
	}
	return index, nil
}

// DeltaFileManifest returns every frozen delta file recorded for
// tabletID.
func (l *Library) DeltaFileManifest(tabletID string) ([]DeltaFileManifestEntry, error) {
	var entries []DeltaFileManifestEntry
	err := l.db.View(RetrieveDeltaFileManifest(tabletID, &entries))
	if err != nil {
		return nil, err
	}
	return entries, nil
}
