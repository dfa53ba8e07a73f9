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
	"encoding/binary"
	"io"

	"github.com/optakt/kudu-tablet/pkg/deltakey"
	"github.com/optakt/kudu-tablet/pkg/kerr"
)

// DefaultBlockSize is the number of deltas buffered per block before a
// block boundary is cut, matching the DMS's flush batching scale
// rather than Kudu's real block-size-in-bytes cfile parameter.
const DefaultBlockSize = 256

// Writer accepts deltas in the exact order a DeltaMemStore flush
// emits them — key order, i.e. row ordinal ascending, then timestamp,
// then disambiguator — and serializes them into fixed-size blocks.
//
// Writer satisfies dms.DeltaWriter.
type Writer struct {
	w         io.Writer
	codec     *codec
	blockSize int

	pending []deltakey.Delta
	last    *deltakey.DeltaKey
}

// NewWriter constructs a Writer over w.
func NewWriter(w io.Writer) (*Writer, error) {
	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, codec: c, blockSize: DefaultBlockSize}, nil
}

// WriteDelta buffers delta, flushing a block when blockSize is reached.
// It rejects deltas that arrive out of key order, since the iterator's
// snapshot-bound reads depend on that order.
func (fw *Writer) WriteDelta(delta deltakey.Delta) error {
	if fw.last != nil && delta.Key.Compare(*fw.last) <= 0 {
		return kerr.New(kerr.InvalidArgument, "delta file writer requires strictly increasing keys, got %s after %s", delta.Key, *fw.last)
	}
	key := delta.Key
	fw.last = &key
	fw.pending = append(fw.pending, delta.Clone())

	if len(fw.pending) >= fw.blockSize {
		return fw.flushBlock()
	}
	return nil
}

func (fw *Writer) flushBlock() error {
	if len(fw.pending) == 0 {
		return nil
	}
	rec := blockRecord{Deltas: make([]wireDelta, len(fw.pending))}
	for i, d := range fw.pending {
		rec.Deltas[i] = wireDelta{
			RowID:         uint32(d.Key.RowID),
			Timestamp:     int64(d.Key.Timestamp),
			Disambiguator: d.Key.Disambiguator,
			Change:        []byte(d.Change),
		}
	}
	fw.pending = fw.pending[:0]

	encoded, err := fw.codec.encodeBlock(rec)
	if err != nil {
		return kerr.Wrap(kerr.Corruption, err, "encode delta file block")
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(encoded)))
	if _, err := fw.w.Write(lenBuf[:]); err != nil {
		return kerr.Wrap(kerr.IllegalState, err, "write delta file block length")
	}
	if _, err := fw.w.Write(encoded); err != nil {
		return kerr.Wrap(kerr.IllegalState, err, "write delta file block")
	}
	return nil
}

// Close flushes any buffered deltas as a final, possibly short, block.
func (fw *Writer) Close() error {
	return fw.flushBlock()
}
