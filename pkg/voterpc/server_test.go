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
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optakt/kudu-tablet/pkg/election"
	"github.com/optakt/kudu-tablet/pkg/voterpc"
)

func TestServer_RequestVote_GrantsFirstComer(t *testing.T) {
	s := voterpc.NewServer("voter-1", zerolog.Nop())

	resp, err := s.RequestVote(context.Background(), &election.VoteRequest{
		CandidateUUID: "candidate-a",
		CandidateTerm: 1,
		DestUUID:      "voter-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.VoteGranted)
	assert.Equal(t, "voter-1", resp.ResponderUUID)
	assert.Equal(t, int64(1), resp.ResponderTerm)
}

func TestServer_RequestVote_DeniesDifferentCandidateSameTerm(t *testing.T) {
	s := voterpc.NewServer("voter-1", zerolog.Nop())
	ctx := context.Background()

	_, err := s.RequestVote(ctx, &election.VoteRequest{CandidateUUID: "candidate-a", CandidateTerm: 3, DestUUID: "voter-1"})
	require.NoError(t, err)

	resp, err := s.RequestVote(ctx, &election.VoteRequest{CandidateUUID: "candidate-b", CandidateTerm: 3, DestUUID: "voter-1"})
	require.NoError(t, err)
	assert.False(t, resp.VoteGranted)
}

func TestServer_RequestVote_RegrantsSameCandidateSameTerm(t *testing.T) {
	s := voterpc.NewServer("voter-1", zerolog.Nop())
	ctx := context.Background()

	_, err := s.RequestVote(ctx, &election.VoteRequest{CandidateUUID: "candidate-a", CandidateTerm: 3, DestUUID: "voter-1"})
	require.NoError(t, err)

	resp, err := s.RequestVote(ctx, &election.VoteRequest{CandidateUUID: "candidate-a", CandidateTerm: 3, DestUUID: "voter-1"})
	require.NoError(t, err)
	assert.True(t, resp.VoteGranted)
}

func TestServer_RequestVote_DeniesStaleTerm(t *testing.T) {
	s := voterpc.NewServer("voter-1", zerolog.Nop())
	ctx := context.Background()

	_, err := s.RequestVote(ctx, &election.VoteRequest{CandidateUUID: "candidate-a", CandidateTerm: 5, DestUUID: "voter-1"})
	require.NoError(t, err)

	resp, err := s.RequestVote(ctx, &election.VoteRequest{CandidateUUID: "candidate-b", CandidateTerm: 2, DestUUID: "voter-1"})
	require.NoError(t, err)
	assert.False(t, resp.VoteGranted)
	assert.Equal(t, int64(5), resp.ResponderTerm)
}

func TestServer_RequestVote_PreElectionDoesNotAdvanceTerm(t *testing.T) {
	s := voterpc.NewServer("voter-1", zerolog.Nop())
	ctx := context.Background()

	resp, err := s.RequestVote(ctx, &election.VoteRequest{
		CandidateUUID: "candidate-a",
		CandidateTerm: 9,
		DestUUID:      "voter-1",
		IsPreElection: true,
	})
	require.NoError(t, err)
	assert.True(t, resp.VoteGranted)

	// Term was not advanced nor recorded as voted-for, so a real
	// election at the same term from a different candidate still wins.
	resp2, err := s.RequestVote(ctx, &election.VoteRequest{
		CandidateUUID: "candidate-b",
		CandidateTerm: 9,
		DestUUID:      "voter-1",
	})
	require.NoError(t, err)
	assert.True(t, resp2.VoteGranted)
}
