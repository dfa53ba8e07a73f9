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

package voterpc

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/optakt/kudu-tablet/pkg/election"
)

// Server answers vote RPCs on behalf of a single voter, applying the
// grant rule from spec §6: grant iff it has not voted for a different
// candidate in this term, and (for non-pre-elections) the candidate's
// term is not behind its own. The VoteRequest wire format in spec §6
// carries no candidate log position, so the "log is not ahead of the
// candidate's" half of that rule has no field to compare against here;
// a real consensus implementation would extend the request with a last
// logged OpID to enforce it.
type Server struct {
	uuid string
	zlog zerolog.Logger

	mu          sync.Mutex
	currentTerm int64
	votedFor    map[int64]string // term -> candidate uuid
}

// NewServer constructs a voter-side Server for uuid.
func NewServer(uuid string, zlog zerolog.Logger) *Server {
	return &Server{
		uuid:     uuid,
		zlog:     zlog.With().Str("component", "voterpc.server").Logger(),
		votedFor: make(map[int64]string),
	}
}

var _ VoteServiceServer = (*Server)(nil)

// RequestVote implements VoteServiceServer.
func (s *Server) RequestVote(_ context.Context, req *election.VoteRequest) (*election.VoteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &election.VoteResponse{
		ResponderUUID: s.uuid,
		ResponderTerm: s.currentTerm,
	}

	if !req.IsPreElection && req.CandidateTerm < s.currentTerm {
		s.zlog.Debug().Str("candidate", req.CandidateUUID).Msg("denying vote: candidate term behind current term")
		return resp, nil
	}

	if already, voted := s.votedFor[req.CandidateTerm]; voted && already != req.CandidateUUID {
		s.zlog.Debug().Str("candidate", req.CandidateUUID).Str("already_voted_for", already).Msg("denying vote: already voted for a different candidate this term")
		return resp, nil
	}

	if !req.IsPreElection {
		s.votedFor[req.CandidateTerm] = req.CandidateUUID
		if req.CandidateTerm > s.currentTerm {
			s.currentTerm = req.CandidateTerm
			resp.ResponderTerm = s.currentTerm
		}
	}

	resp.VoteGranted = true
	return resp, nil
}
