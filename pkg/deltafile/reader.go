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
	"errors"
	"io"

	"github.com/optakt/kudu-tablet/pkg/deltakey"
	"github.com/optakt/kudu-tablet/pkg/kerr"
)

// ReadAll reads every block from r and returns the deltas it contains,
// in the key order the writer emitted them.
func ReadAll(r io.Reader) ([]deltakey.Delta, error) {
	c, err := newCodec()
	if err != nil {
		return nil, err
	}

	var out []deltakey.Delta
	for {
		var lenBuf [4]byte
		_, err := io.ReadFull(r, lenBuf[:])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, kerr.Wrap(kerr.Corruption, err, "read delta file block length")
		}

		blockLen := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, blockLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, kerr.Wrap(kerr.Corruption, err, "read delta file block")
		}

		rec, err := c.decodeBlock(buf)
		if err != nil {
			return nil, err
		}
		for _, wd := range rec.Deltas {
			out = append(out, deltakey.Delta{
				Key: deltakey.DeltaKey{
					RowID:         deltakey.RowID(wd.RowID),
					Timestamp:     deltakey.Timestamp(wd.Timestamp),
					Disambiguator: wd.Disambiguator,
				},
				Change: deltakey.RowChangeList(wd.Change),
			})
		}
	}
	return out, nil
}
