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
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

var (
	codec        cbor.EncMode
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
)

func init() {
	var err error

	codec, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Errorf("could not initialize codec: %w", err))
	}

	compressor, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Errorf("could not initialize compressor: %w", err))
	}

	decompressor, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Errorf("could not initialize decompressor: %w", err))
	}
}

// encodeKey packs prefix and segments into a single lexicographically
// ordered key, the way service/storage's original encodeKey does:
// one byte for the prefix, then each numeric segment packed big-endian
// at a fixed width and each string segment as a two-byte length
// followed by its bytes. Under byte compare, shorter strings therefore
// sort before longer ones.
func encodeKey(prefix uint8, segments ...interface{}) []byte {
	key := []byte{prefix}
	for _, segment := range segments {
		var val []byte
		switch s := segment.(type) {
		case string:
			// Length-prefixed so a variable-width tablet ID segment
			// can be safely followed by further fixed-width segments
			// without the two becoming ambiguous under byte compare.
			val = make([]byte, 2+len(s))
			binary.BigEndian.PutUint16(val, uint16(len(s)))
			copy(val[2:], s)
		case int64:
			val = make([]byte, 8)
			binary.BigEndian.PutUint64(val, uint64(s))
		case uint64:
			val = make([]byte, 8)
			binary.BigEndian.PutUint64(val, s)
		case uint32:
			val = make([]byte, 4)
			binary.BigEndian.PutUint32(val, s)
		default:
			panic(fmt.Sprintf("storage: unknown key segment type (%T)", segment))
		}
		key = append(key, val...)
	}
	return key
}

func encodeValue(value interface{}) ([]byte, error) {
	raw, err := codec.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("could not encode value: %w", err)
	}
	return compressor.EncodeAll(raw, nil), nil
}

func decodeValue(raw []byte, value interface{}) error {
	plain, err := decompressor.DecodeAll(raw, nil)
	if err != nil {
		return fmt.Errorf("could not decompress value: %w", err)
	}
	if err := cbor.Unmarshal(plain, value); err != nil {
		return fmt.Errorf("could not decode value: %w", err)
	}
	return nil
}
