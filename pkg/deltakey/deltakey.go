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

// Package deltakey defines the wire representation of a single row
// mutation: the row ordinal, timestamp and disambiguator that key it,
// and the opaque change-list payload it carries.
package deltakey

import (
	"encoding/binary"
	"fmt"
)

// RowID is a zero-based index of a row within a rowset, stable for the
// rowset's lifetime.
type RowID uint32

// Timestamp is a monotonic hybrid-logical-clock value. KMin is a
// sentinel meaning "no value".
type Timestamp int64

// KMin represents "no timestamp": it sorts before every real timestamp.
const KMin Timestamp = 0

// OpID identifies an entry in the replicated log: Index is strictly
// increasing within a Term, and Term is non-decreasing.
type OpID struct {
	Term  int64
	Index int64
}

// Less reports whether op precedes other in log order.
func (op OpID) Less(other OpID) bool {
	if op.Term != other.Term {
		return op.Term < other.Term
	}
	return op.Index < other.Index
}

// KeySize is the number of bytes a binary-encoded DeltaKey occupies:
// a 4-byte row ordinal, an 8-byte timestamp and a 4-byte disambiguator,
// all big-endian so lexicographic byte order equals field order.
const KeySize = 4 + 8 + 4

// DeltaKey uniquely identifies a mutation within one DMS. Sort order is
// row ordinal ascending, timestamp ascending (REDO order; the core only
// implements REDO), disambiguator ascending. The disambiguator only
// matters when two mutations share (RowID, Timestamp).
type DeltaKey struct {
	RowID         RowID
	Timestamp     Timestamp
	Disambiguator uint32
}

// Compare returns -1, 0 or 1 as k sorts before, at, or after other.
func (k DeltaKey) Compare(other DeltaKey) int {
	if k.RowID != other.RowID {
		if k.RowID < other.RowID {
			return -1
		}
		return 1
	}
	if k.Timestamp != other.Timestamp {
		if k.Timestamp < other.Timestamp {
			return -1
		}
		return 1
	}
	if k.Disambiguator != other.Disambiguator {
		if k.Disambiguator < other.Disambiguator {
			return -1
		}
		return 1
	}
	return 0
}

// Encode renders the key as a fixed-width, order-preserving byte string
// suitable for use in any ordered byte-keyed container (the badger
// skiplist backing the DMS, or an on-disk delta file index).
func (k DeltaKey) Encode() []byte {
	buf := make([]byte, KeySize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(k.RowID))
	binary.BigEndian.PutUint64(buf[4:12], uint64(k.Timestamp))
	binary.BigEndian.PutUint32(buf[12:16], k.Disambiguator)
	return buf
}

// Decode parses a key previously produced by Encode.
func Decode(buf []byte) (DeltaKey, error) {
	if len(buf) != KeySize {
		return DeltaKey{}, fmt.Errorf("invalid delta key length: got %d, want %d", len(buf), KeySize)
	}
	return DeltaKey{
		RowID:         RowID(binary.BigEndian.Uint32(buf[0:4])),
		Timestamp:     Timestamp(binary.BigEndian.Uint64(buf[4:12])),
		Disambiguator: binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}

func (k DeltaKey) String() string {
	return fmt.Sprintf("(row=%d, ts=%d, disambig=%d)", k.RowID, k.Timestamp, k.Disambiguator)
}
