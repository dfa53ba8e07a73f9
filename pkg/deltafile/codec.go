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

// Package deltafile implements the frozen delta file: the immutable,
// on-disk record of a DMS flush. It is a simplified stand-in for
// Kudu's real columnar cfile format — out of scope per the core spec —
// that still honors the writer/iterator contract the spec does put in
// scope: deltas are written in the exact order a DMS flush emits them,
// and the iterator only ever yields deltas visible under its
// RowIteratorOptions snapshot.
package deltafile

import (
	"encoding/binary"
	"fmt"

	"github.com/OneOfOne/xxhash"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/optakt/kudu-tablet/pkg/kerr"
)

// blockRecord is the on-disk shape of one block: a batch of deltas
// sharing one zstd frame and one checksum.
type blockRecord struct {
	Deltas []wireDelta `cbor:"1,keyasint"`
}

// wireDelta is the CBOR encoding of a single deltakey.Delta.
type wireDelta struct {
	RowID         uint32 `cbor:"1,keyasint"`
	Timestamp     int64  `cbor:"2,keyasint"`
	Disambiguator uint32 `cbor:"3,keyasint"`
	Change        []byte `cbor:"4,keyasint"`
}

type codec struct {
	encMode      cbor.EncMode
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

func newCodec() (*codec, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("could not build cbor encoding mode: %w", err)
	}
	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("could not initialize compressor: %w", err)
	}
	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize decompressor: %w", err)
	}
	return &codec{encMode: encMode, compressor: compressor, decompressor: decompressor}, nil
}

// checksumSize is the size, in bytes, of the trailing xxhash64 checksum
// appended to every encoded block.
const checksumSize = 8

// encodeBlock CBOR-encodes rec, compresses it with zstd, and appends an
// xxhash64 checksum of the compressed bytes for corruption detection.
func (c *codec) encodeBlock(rec blockRecord) ([]byte, error) {
	raw, err := c.encMode.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("could not cbor-encode block: %w", err)
	}
	compressed := c.compressor.EncodeAll(raw, nil)

	sum := xxhash.Checksum64(compressed)
	out := make([]byte, len(compressed)+checksumSize)
	copy(out, compressed)
	binary.BigEndian.PutUint64(out[len(compressed):], sum)
	return out, nil
}

// decodeBlock reverses encodeBlock, rejecting the block if the
// checksum does not match.
func (c *codec) decodeBlock(buf []byte) (blockRecord, error) {
	if len(buf) < checksumSize {
		return blockRecord{}, kerr.New(kerr.Corruption, "delta file block too short")
	}
	compressed := buf[:len(buf)-checksumSize]
	wantSum := binary.BigEndian.Uint64(buf[len(buf)-checksumSize:])
	gotSum := xxhash.Checksum64(compressed)
	if gotSum != wantSum {
		return blockRecord{}, kerr.New(kerr.Corruption, "delta file block checksum mismatch: got %x, want %x", gotSum, wantSum)
	}

	raw, err := c.decompressor.DecodeAll(compressed, nil)
	if err != nil {
		return blockRecord{}, kerr.Wrap(kerr.Corruption, err, "could not decompress delta file block")
	}

	var rec blockRecord
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return blockRecord{}, kerr.Wrap(kerr.Corruption, err, "could not cbor-decode delta file block")
	}
	return rec, nil
}
