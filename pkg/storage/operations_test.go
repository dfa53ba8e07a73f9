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

package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optakt/kudu-tablet/pkg/kerr"
	"github.com/optakt/kudu-tablet/pkg/storage"
	"github.com/optakt/kudu-tablet/testing/helpers"
)

func TestLibrary_LastFlushedOpID(t *testing.T) {
	db := helpers.InMemoryDB(t)
	defer db.Close()
	lib := storage.New(db)

	_, err := lib.LastFlushedOpID("tablet-1")
	require.Error(t, err)
	assert.True(t, kerr.Is(err, kerr.NotFound))

	entry := storage.DeltaFileManifestEntry{TabletID: "tablet-1", FileID: "file-1", MinRowID: 0, MaxRowID: 100, SizeBytes: 4096}
	require.NoError(t, lib.SaveLastFlushedOpIDAndManifest("tablet-1", 42, entry))

	index, err := lib.LastFlushedOpID("tablet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), index)
}

func TestLibrary_DeltaFileManifest(t *testing.T) {
	db := helpers.InMemoryDB(t)
	defer db.Close()
	lib := storage.New(db)

	entries := []storage.DeltaFileManifestEntry{
		{TabletID: "tablet-1", FileID: "file-1", MinRowID: 0, MaxRowID: 10, SizeBytes: 100},
		{TabletID: "tablet-1", FileID: "file-2", MinRowID: 11, MaxRowID: 20, SizeBytes: 200},
		{TabletID: "tablet-2", FileID: "file-3", MinRowID: 0, MaxRowID: 5, SizeBytes: 50},
	}
	for i, entry := range entries {
		require.NoError(t, lib.SaveLastFlushedOpIDAndManifest(entry.TabletID, int64(i), entry))
	}

	got, err := lib.DeltaFileManifest("tablet-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = lib.DeltaFileManifest("tablet-2")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = lib.DeltaFileManifest("tablet-unknown")
	require.NoError(t, err)
	assert.Empty(t, got)
}
