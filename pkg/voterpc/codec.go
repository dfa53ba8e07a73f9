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

// Package voterpc carries the C6 vote RPC over gRPC without a protoc
// step: it registers a gob codec as a gRPC content-subtype and wires a
// hand-built grpc.ServiceDesc for the single RequestVote method, rather
// than generating a .pb.go from a .proto file.
package voterpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype under which the gob codec is
// registered; clients select it per-call via grpc.CallContentSubtype.
const CodecName = "gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

// gobCodec adapts encoding/gob to grpc's encoding.Codec interface.
type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob codec: could not marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob codec: could not unmarshal: %w", err)
	}
	return nil
}

func (gobCodec) Name() string {
	return CodecName
}
