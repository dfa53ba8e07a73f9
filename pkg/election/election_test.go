package election_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optakt/kudu-tablet/pkg/election"
	"github.com/optakt/kudu-tablet/pkg/votecounter"
)

type scriptedProxy struct {
	resp VoteResponseOrErr
}

type VoteResponseOrErr struct {
	resp election.VoteResponse
	err  error
}

func (p scriptedProxy) RequestVote(ctx context.Context, req election.VoteRequest) (election.VoteResponse, error) {
	return p.resp.resp, p.resp.err
}

type scriptedFactory struct {
	mu        sync.Mutex
	responses map[string]VoteResponseOrErr
	failPeers map[string]bool
}

func (f *scriptedFactory) NewProxy(peer election.Peer) (election.PeerProxy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPeers[peer.UUID] {
		return nil, fmt.Errorf("could not dial %s", peer.UUID)
	}
	return scriptedProxy{resp: f.responses[peer.UUID]}, nil
}

func newCounterSeededWithSelfVote(t *testing.T, numVoters int, self string) *votecounter.VoteCounter {
	t.Helper()
	c, err := votecounter.New(numVoters, votecounter.MajoritySize(numVoters))
	require.NoError(t, err)
	_, err = c.RegisterVote(votecounter.VoterID(self), votecounter.Granted)
	require.NoError(t, err)
	return c
}

func TestLeaderElection_SingleNode(t *testing.T) {
	// Scenario 1: single-node election; decision GRANTED, callback
	// fires before any RPC (there are no peers to RPC).
	config := election.RaftConfig{
		TabletID: "t1",
		Peers:    []election.Peer{{UUID: "A", Role: election.RoleVoter}},
	}
	counter := newCounterSeededWithSelfVote(t, 1, "A")

	var result election.Result
	var fired int
	e := election.New(config, "A", &scriptedFactory{}, election.VoteRequest{CandidateUUID: "A", CandidateTerm: 1}, counter,
		func(r election.Result) { fired++; result = r })

	e.Run(context.Background())

	assert.Equal(t, 1, fired)
	assert.Equal(t, election.DecisionGranted, result.Decision)
}

func TestLeaderElection_ThreeNodeAllGrant(t *testing.T) {
	config := election.RaftConfig{
		TabletID: "t1",
		Peers: []election.Peer{
			{UUID: "A", Role: election.RoleVoter},
			{UUID: "B", Role: election.RoleVoter},
			{UUID: "C", Role: election.RoleVoter},
		},
	}
	counter := newCounterSeededWithSelfVote(t, 3, "A")
	factory := &scriptedFactory{responses: map[string]VoteResponseOrErr{
		"B": {resp: election.VoteResponse{ResponderUUID: "B", ResponderTerm: 1, VoteGranted: true}},
		"C": {resp: election.VoteResponse{ResponderUUID: "C", ResponderTerm: 1, VoteGranted: true}},
	}}

	var result election.Result
	var fired int
	e := election.New(config, "A", factory, election.VoteRequest{CandidateUUID: "A", CandidateTerm: 1}, counter,
		func(r election.Result) { fired++; result = r })

	e.Run(context.Background())

	assert.Equal(t, 1, fired)
	assert.Equal(t, election.DecisionGranted, result.Decision)
	assert.Equal(t, "yes=3, no=0", result.Summary)
}

func TestLeaderElection_HigherTermCancelsRegardlessOfOthers(t *testing.T) {
	// Scenario 3: A self-votes, B replies DENIED with a higher term;
	// result is DENIED with that term regardless of C's response.
	config := election.RaftConfig{
		TabletID: "t1",
		Peers: []election.Peer{
			{UUID: "A", Role: election.RoleVoter},
			{UUID: "B", Role: election.RoleVoter},
			{UUID: "C", Role: election.RoleVoter},
		},
	}
	counter := newCounterSeededWithSelfVote(t, 3, "A")
	factory := &scriptedFactory{responses: map[string]VoteResponseOrErr{
		"B": {resp: election.VoteResponse{ResponderUUID: "B", ResponderTerm: 2, VoteGranted: false}},
		"C": {resp: election.VoteResponse{ResponderUUID: "C", ResponderTerm: 1, VoteGranted: true}},
	}}

	var result election.Result
	var fired int
	e := election.New(config, "A", factory, election.VoteRequest{CandidateUUID: "A", CandidateTerm: 1}, counter,
		func(r election.Result) { fired++; result = r })

	e.Run(context.Background())

	assert.Equal(t, 1, fired)
	assert.Equal(t, election.DecisionDenied, result.Decision)
	assert.Equal(t, int64(2), result.HighestVoterTerm)
}

func TestLeaderElection_ProxyConstructionFailureCountsAsDenied(t *testing.T) {
	config := election.RaftConfig{
		TabletID: "t1",
		Peers: []election.Peer{
			{UUID: "A", Role: election.RoleVoter},
			{UUID: "B", Role: election.RoleVoter},
		},
	}
	counter := newCounterSeededWithSelfVote(t, 2, "A")
	factory := &scriptedFactory{failPeers: map[string]bool{"B": true}}

	var result election.Result
	var fired int
	e := election.New(config, "A", factory, election.VoteRequest{CandidateUUID: "A", CandidateTerm: 1}, counter,
		func(r election.Result) { fired++; result = r })

	e.Run(context.Background())

	assert.Equal(t, 1, fired)
	assert.Equal(t, election.DecisionDenied, result.Decision)
}

func TestLeaderElection_CallbackFiresExactlyOnce(t *testing.T) {
	config := election.RaftConfig{
		TabletID: "t1",
		Peers: []election.Peer{
			{UUID: "A", Role: election.RoleVoter},
			{UUID: "B", Role: election.RoleVoter},
			{UUID: "C", Role: election.RoleVoter},
		},
	}
	counter := newCounterSeededWithSelfVote(t, 3, "A")
	factory := &scriptedFactory{responses: map[string]VoteResponseOrErr{
		"B": {resp: election.VoteResponse{ResponderUUID: "B", ResponderTerm: 1, VoteGranted: true}},
		"C": {resp: election.VoteResponse{ResponderUUID: "C", ResponderTerm: 1, VoteGranted: true}},
	}}

	var mu sync.Mutex
	fired := 0
	e := election.New(config, "A", factory, election.VoteRequest{CandidateUUID: "A", CandidateTerm: 1}, counter,
		func(r election.Result) {
			mu.Lock()
			defer mu.Unlock()
			fired++
		})

	e.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, fired)
}
