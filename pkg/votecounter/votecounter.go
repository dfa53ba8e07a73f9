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

// Package votecounter implements the vote counter (C5): it tallies
// yes/no votes from a fixed voter set, detects duplicates, rejects
// protocol violations, and reports a decision once a majority grants
// or enough voters deny that a majority can no longer grant.
package votecounter

import (
	"sync"

	"github.com/optakt/kudu-tablet/pkg/kerr"
)

// Vote is a single voter's response: granted or denied.
type Vote bool

const (
	// Denied means the voter refused.
	Denied Vote = false
	// Granted means the voter agreed.
	Granted Vote = true
)

// Decision is the outcome of a completed vote, or "not yet" while
// undecided.
type Decision int

const (
	// Undecided means IsDecided() has not yet returned true.
	Undecided Decision = iota
	// DecisionGranted means a majority voted Granted.
	DecisionGranted
	// DecisionDenied means enough voters voted Denied that Granted can
	// no longer reach a majority.
	DecisionDenied
)

// VoterID identifies a single voter in the configuration.
type VoterID string

// VoteCounter holds num_voters, majority_size, and the recorded vote of
// every voter heard from so far.
type VoteCounter struct {
	mu sync.Mutex

	numVoters    int
	majoritySize int

	votes map[VoterID]Vote
	yes   int
	no    int
}

// New constructs a counter for a config of numVoters peers, where
// majoritySize yes votes grant and more than numVoters-majoritySize
// no votes deny. Both parameters must
// satisfy numVoters > 0 and 0 < majoritySize <= numVoters.
func New(numVoters, majoritySize int) (*VoteCounter, error) {
	if numVoters <= 0 {
		return nil, kerr.New(kerr.InvalidArgument, "num_voters must be positive, got %d", numVoters)
	}
	if majoritySize <= 0 || majoritySize > numVoters {
		return nil, kerr.New(kerr.InvalidArgument, "majority_size must be in (0, num_voters], got %d", majoritySize)
	}
	return &VoteCounter{
		numVoters:    numVoters,
		majoritySize: majoritySize,
		votes:        make(map[VoterID]Vote, numVoters),
	}, nil
}

// MajoritySize computes floor(numVoters/2)+1, the standard Raft quorum
// size.
func MajoritySize(numVoters int) int {
	return numVoters/2 + 1
}

// RegisterVote records voter's vote. If voter already voted with the
// same value, isDuplicate is true and the tally is unchanged. If voter
// already voted with a different value, that is a protocol violation
// (a voter flipping its vote) and returns InvalidArgument. If
// recording this vote would exceed num_voters unique voters, returns
// InvalidArgument.
func (c *VoteCounter) RegisterVote(voter VoterID, vote Vote) (isDuplicate bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.votes[voter]; ok {
		if existing != vote {
			return false, kerr.New(kerr.InvalidArgument, "voter %q flipped its vote", voter)
		}
		return true, nil
	}

	if len(c.votes) >= c.numVoters {
		return false, kerr.New(kerr.InvalidArgument, "vote from %q would exceed num_voters=%d", voter, c.numVoters)
	}

	c.votes[voter] = vote
	if vote == Granted {
		c.yes++
	} else {
		c.no++
	}
	return false, nil
}

// IsDecided reports whether a decision has been reached.
func (c *VoteCounter) IsDecided() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decisionLocked() != Undecided
}

// GetDecision returns the decision if one has been reached, or
// Undecided (with no error) if the vote is still pending; callers that
// require a decision to exist should check IsDecided first.
func (c *VoteCounter) GetDecision() Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decisionLocked()
}

func (c *VoteCounter) decisionLocked() Decision {
	if c.yes >= c.majoritySize {
		return DecisionGranted
	}
	if c.no > c.numVoters-c.majoritySize {
		return DecisionDenied
	}
	return Undecided
}

// Tally returns the current yes/no counts, for logging a decision
// summary such as "yes=3, no=0".
func (c *VoteCounter) Tally() (yes, no int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yes, c.no
}
