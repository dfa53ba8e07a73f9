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

// Package election implements the leader election protocol (C6): one
// round of remote vote RPCs driven to a single decision, tolerating
// duplicate responses, proxy construction failures, and higher-term
// discoveries.
package election

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/optakt/kudu-tablet/pkg/kerr"
	"github.com/optakt/kudu-tablet/pkg/votecounter"
)

// PeerRole distinguishes VOTER peers, who count toward quorum and
// exchange vote RPCs, from every other role, which never does.
type PeerRole int

const (
	// RoleVoter peers count toward quorum.
	RoleVoter PeerRole = iota
	// RoleObserver peers never send or receive vote RPCs.
	RoleObserver
)

// Peer is one member of the Raft configuration.
type Peer struct {
	UUID string
	Role PeerRole
}

// RaftConfig is the set of peers participating in consensus for a
// tablet, including the candidate itself.
type RaftConfig struct {
	TabletID string
	Peers    []Peer
}

// Voters returns every VOTER peer other than self.
func (c RaftConfig) Voters(selfUUID string) []Peer {
	var voters []Peer
	for _, p := range c.Peers {
		if p.UUID == selfUUID || p.Role != RoleVoter {
			continue
		}
		voters = append(voters, p)
	}
	return voters
}

// NumVoters returns the total number of VOTER peers, including self.
func (c RaftConfig) NumVoters() int {
	n := 0
	for _, p := range c.Peers {
		if p.Role == RoleVoter {
			n++
		}
	}
	return n
}

// VoteRequest is the payload sent to every voter.
type VoteRequest struct {
	CandidateUUID string
	CandidateTerm int64
	TabletID      string
	DestUUID      string
	IsPreElection bool
}

// VoteResponse is a voter's reply.
type VoteResponse struct {
	ResponderUUID  string
	ResponderTerm  int64
	VoteGranted    bool
	ConsensusError string // non-empty means a tablet-level error occurred
}

// Decision is the final outcome of an election.
type Decision int

const (
	// DecisionPending means the election has not yet produced a result.
	DecisionPending Decision = iota
	// DecisionGranted means the candidate won.
	DecisionGranted
	// DecisionDenied means the candidate lost.
	DecisionDenied
)

// Result is the single outcome an election produces, delivered to the
// result callback exactly once.
type Result struct {
	Decision         Decision
	HighestVoterTerm int64
	Summary          string
}

// PeerProxy sends a single vote RPC to one peer.
type PeerProxy interface {
	RequestVote(ctx context.Context, req VoteRequest) (VoteResponse, error)
}

// PeerProxyFactory builds a PeerProxy for a peer. NewProxy may fail;
// per spec §4.6 that failure is recorded as a DENIED vote for that
// peer rather than aborting the election.
type PeerProxyFactory interface {
	NewProxy(peer Peer) (PeerProxy, error)
}

// Config configures a LeaderElection.
type Config struct {
	Log zerolog.Logger
}

// Option mutates a Config.
type Option func(*Config)

// WithLogger attaches a logger, sub-scoped to component=election.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Config) { c.Log = log }
}

// LeaderElection drives one round of vote RPCs to a decision.
type LeaderElection struct {
	log zerolog.Logger

	config     RaftConfig
	factory    PeerProxyFactory
	request    VoteRequest
	selfUUID   string
	onDecision func(Result)

	mu           sync.Mutex
	counter      *votecounter.VoteCounter
	result       *Result
	hasResponded bool
}

// New constructs an election. counter must already be seeded with the
// candidate's own self-vote, per spec §4.6/§3's lifecycle invariant.
// onDecision is invoked exactly once, outside any internal lock.
func New(config RaftConfig, selfUUID string, factory PeerProxyFactory, request VoteRequest, counter *votecounter.VoteCounter, onDecision func(Result), opts ...Option) *LeaderElection {
	cfg := Config{Log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LeaderElection{
		log:        cfg.Log.With().Str("component", "election").Logger(),
		config:     config,
		factory:    factory,
		request:    request,
		selfUUID:   selfUUID,
		onDecision: onDecision,
		counter:    counter,
	}
}

// Run executes the election: it builds proxies for every voter,
// checks for an immediate decision (the single-node case), then fans
// out vote RPCs concurrently and feeds every response back into the
// counter, firing the decision callback as soon as the counter decides.
// Run returns only after every RPC has completed.
func (e *LeaderElection) Run(ctx context.Context) {
	voters := e.config.Voters(e.selfUUID)

	type liveVoter struct {
		peer  Peer
		proxy PeerProxy
	}
	var live []liveVoter
	for _, voter := range voters {
		proxy, err := e.factory.NewProxy(voter)
		if err != nil {
			e.log.Warn().Str("peer", voter.UUID).Err(err).Msg("failed to construct peer proxy, recording denied vote")
			e.recordVote(voter.UUID, votecounter.Denied, 0, false)
			continue
		}
		live = append(live, liveVoter{peer: voter, proxy: proxy})
	}

	// Covers single-node configs where the self-vote is already a
	// majority, and configs where every remaining voter already failed
	// proxy construction above.
	if e.checkForDecision() {
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, v := range live {
		v := v
		group.Go(func() error {
			req := e.request
			req.DestUUID = v.peer.UUID
			resp, err := v.proxy.RequestVote(groupCtx, req)
			e.handleResponse(v.peer.UUID, resp, err)
			return nil
		})
	}
	_ = group.Wait()

	// If no response produced a decision (e.g. every RPC errored
	// without reaching majority-deny), surface whatever the counter
	// knows as a best-effort final check.
	e.checkForDecision()
}

// handleResponse applies spec §4.6's per-voter response handling rules.
func (e *LeaderElection) handleResponse(destUUID string, resp VoteResponse, rpcErr error) {
	if rpcErr != nil {
		e.recordVote(destUUID, votecounter.Denied, 0, false)
		e.checkForDecision()
		return
	}
	if resp.ConsensusError != "" {
		e.recordVote(destUUID, votecounter.Denied, resp.ResponderTerm, false)
		e.checkForDecision()
		return
	}
	if resp.ResponderUUID != destUUID {
		e.log.Warn().Str("expected", destUUID).Str("got", resp.ResponderUUID).Msg("vote response uuid mismatch, config inconsistency")
		e.recordVote(destUUID, votecounter.Denied, resp.ResponderTerm, false)
		e.checkForDecision()
		return
	}

	vote := votecounter.Denied
	if resp.VoteGranted {
		vote = votecounter.Granted
	}

	higherTermCancellation := !resp.VoteGranted && resp.ResponderTerm > e.request.CandidateTerm
	e.recordVote(destUUID, vote, resp.ResponderTerm, higherTermCancellation)
	e.checkForDecision()
}

// recordVote registers the vote with the counter and, on a
// higher-term cancellation, immediately finalizes the result under
// the lock even if the counter is not yet majority-decided.
func (e *LeaderElection) recordVote(voter string, vote votecounter.Vote, responderTerm int64, higherTermCancellation bool) {
	_, err := e.counter.RegisterVote(votecounter.VoterID(voter), vote)
	if err != nil {
		e.log.Warn().Str("peer", voter).Err(err).Msg("vote registration rejected")
	}

	if !higherTermCancellation {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result != nil {
		return
	}
	e.result = &Result{
		Decision:         DecisionDenied,
		HighestVoterTerm: responderTerm,
		Summary:          fmt.Sprintf("cancelled: responder %s reported higher term %d", voter, responderTerm),
	}
}

// checkForDecision finalizes and fires the callback exactly once, the
// moment either a higher-term cancellation has populated the result or
// the vote counter itself is decided. The callback always runs outside
// the lock, per spec §5's re-entrancy rule.
func (e *LeaderElection) checkForDecision() bool {
	e.mu.Lock()
	if e.hasResponded {
		e.mu.Unlock()
		return true
	}

	result := e.result
	if result == nil && e.counter.IsDecided() {
		yes, no := e.counter.Tally()
		decision := DecisionDenied
		if e.counter.GetDecision() == votecounter.DecisionGranted {
			decision = DecisionGranted
		}
		result = &Result{
			Decision: decision,
			Summary:  fmt.Sprintf("yes=%d, no=%d", yes, no),
		}
	}

	if result == nil {
		e.mu.Unlock()
		return false
	}

	e.hasResponded = true
	e.result = result
	e.mu.Unlock()

	e.onDecision(*result)
	return true
}

// Result returns the final result once the election has decided, or
// IllegalState if queried too early.
func (e *LeaderElection) Result() (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return Result{}, kerr.New(kerr.IllegalState, "election has not produced a result yet")
	}
	return *e.result, nil
}
