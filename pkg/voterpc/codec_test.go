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

package voterpc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/optakt/kudu-tablet/pkg/election"
	"github.com/optakt/kudu-tablet/pkg/voterpc"
)

func TestGobCodec_RoundTrip(t *testing.T) {
	codec := encoding.GetCodec(voterpc.CodecName)
	require.NotNil(t, codec, "gob codec should self-register via init()")

	want := &election.VoteRequest{
		CandidateUUID: "candidate-a",
		CandidateTerm: 7,
		TabletID:      "t1",
		DestUUID:      "voter-1",
		IsPreElection: true,
	}

	data, err := codec.Marshal(want)
	require.NoError(t, err)

	got := new(election.VoteRequest)
	require.NoError(t, codec.Unmarshal(data, got))

	assert.Equal(t, want, got)
	assert.Equal(t, "gob", codec.Name())
}
