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

package deltakey

import (
	"encoding/binary"
	"fmt"
)

// changeOp tags each entry within a RowChangeList.
type changeOp byte

const (
	opSet    changeOp = 1
	opDelete changeOp = 2
)

// deleteMarker is the sentinel RowChangeList encoding for "this row is
// deleted as of this key's timestamp": a single opDelete tag and nothing
// else. CheckRowDeleted and the merger both special-case it.
var deleteMarker = []byte{byte(opDelete)}

// ColumnUpdate is one SET(col_id, value) entry within a RowChangeList.
type ColumnUpdate struct {
	ColumnID uint32
	Value    []byte
}

// RowChangeList is the opaque-at-rest payload carried by a Delta. Once
// written, the DMS and delta files never interpret it beyond checking
// for the delete marker; only ApplyUpdates-time consumers decode it.
type RowChangeList []byte

// IsDelete reports whether the change list is the row-deletion sentinel.
func (c RowChangeList) IsDelete() bool {
	return len(c) == len(deleteMarker) && changeOp(c[0]) == opDelete
}

// DeleteChangeList returns the canonical encoding of a row deletion.
func DeleteChangeList() RowChangeList {
	out := make(RowChangeList, len(deleteMarker))
	copy(out, deleteMarker)
	return out
}

// EncodeUpdates renders a sequence of column updates into a RowChangeList.
// Each entry is tag(1) + column_id(4, big-endian) + value_len(4,
// big-endian) + value.
func EncodeUpdates(updates []ColumnUpdate) RowChangeList {
	size := 0
	for _, u := range updates {
		size += 1 + 4 + 4 + len(u.Value)
	}
	buf := make([]byte, 0, size)
	for _, u := range updates {
		var hdr [9]byte
		hdr[0] = byte(opSet)
		binary.BigEndian.PutUint32(hdr[1:5], u.ColumnID)
		binary.BigEndian.PutUint32(hdr[5:9], uint32(len(u.Value)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, u.Value...)
	}
	return RowChangeList(buf)
}

// DecodeUpdates parses a non-delete RowChangeList back into its column
// updates. It returns an error if c is the delete marker or malformed.
func DecodeUpdates(c RowChangeList) ([]ColumnUpdate, error) {
	if c.IsDelete() {
		return nil, fmt.Errorf("change list is a delete marker, not column updates")
	}
	var updates []ColumnUpdate
	buf := []byte(c)
	for len(buf) > 0 {
		if len(buf) < 9 {
			return nil, fmt.Errorf("truncated change list entry header")
		}
		tag := changeOp(buf[0])
		if tag != opSet {
			return nil, fmt.Errorf("unknown change list entry tag %d", tag)
		}
		colID := binary.BigEndian.Uint32(buf[1:5])
		valLen := binary.BigEndian.Uint32(buf[5:9])
		buf = buf[9:]
		if uint32(len(buf)) < valLen {
			return nil, fmt.Errorf("truncated change list entry value")
		}
		value := make([]byte, valLen)
		copy(value, buf[:valLen])
		buf = buf[valLen:]
		updates = append(updates, ColumnUpdate{ColumnID: colID, Value: value})
	}
	return updates, nil
}
