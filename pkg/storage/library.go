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

// Package storage holds the tablet metadata keyspace: the last
// flushed op ID per tablet and the manifest of frozen delta files
// backing each tablet's read path. It is deliberately narrow — the
// row data itself lives in the DMS and in frozen delta files written
// through pkg/deltafile, never through this package.
package storage

import (
	"github.com/dgraph-io/badger/v2"
)

// DeltaFileManifestEntry describes one frozen delta file backing a
// tablet, as recorded after a DMS flush completes.
type DeltaFileManifestEntry struct {
	TabletID  string
	FileID    string
	MinRowID  int64
	MaxRowID  int64
	SizeBytes int64
}

// Library is the tablet metadata store, backed by badger.
type Library struct {
	db *badger.DB
}

// New returns a new Library backed by db.
func New(db *badger.DB) *Library {
	return &Library{db: db}
}
