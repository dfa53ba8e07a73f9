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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKey(t *testing.T) {
	got := encodeKey(PrefixDeltaFileManifest, "tablet-1", "file-1")

	want := bytes.Join([][]byte{
		{PrefixDeltaFileManifest},
		{0x0, byte(len("tablet-1"))},
		[]byte("tablet-1"),
		{0x0, byte(len("file-1"))},
		[]byte("file-1"),
	}, nil)

	assert.Equal(t, want, got)
}

func TestEncodeKey_DistinguishesStringBoundaries(t *testing.T) {
	// Without length-prefixing, "ab"+"c" and "a"+"bc" would collide.
	a := encodeKey(PrefixDeltaFileManifest, "ab", "c")
	b := encodeKey(PrefixDeltaFileManifest, "a", "bc")

	assert.NotEqual(t, a, b)
}

func TestEncodeDecodeValue_RoundTrip(t *testing.T) {
	entry := DeltaFileManifestEntry{TabletID: "t1", FileID: "f1", MinRowID: 1, MaxRowID: 2, SizeBytes: 3}

	raw, err := encodeValue(entry)
	require.NoError(t, err)

	var got DeltaFileManifestEntry
	require.NoError(t, decodeValue(raw, &got))

	assert.Equal(t, entry, got)
}
