package votecounter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optakt/kudu-tablet/pkg/kerr"
	"github.com/optakt/kudu-tablet/pkg/votecounter"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := votecounter.New(0, 1)
	assert.True(t, kerr.Is(err, kerr.InvalidArgument))

	_, err = votecounter.New(3, 0)
	assert.True(t, kerr.Is(err, kerr.InvalidArgument))

	_, err = votecounter.New(3, 4)
	assert.True(t, kerr.Is(err, kerr.InvalidArgument))
}

func TestMajoritySize(t *testing.T) {
	assert.Equal(t, 1, votecounter.MajoritySize(1))
	assert.Equal(t, 2, votecounter.MajoritySize(3))
	assert.Equal(t, 3, votecounter.MajoritySize(4))
}

func TestVoteCounter_AllGrantDecidesGranted(t *testing.T) {
	// Scenario 2: 3-node election, all grant.
	c, err := votecounter.New(3, votecounter.MajoritySize(3))
	require.NoError(t, err)

	for _, v := range []votecounter.VoterID{"A", "B", "C"} {
		dup, err := c.RegisterVote(v, votecounter.Granted)
		require.NoError(t, err)
		assert.False(t, dup)
	}

	assert.True(t, c.IsDecided())
	assert.Equal(t, votecounter.DecisionGranted, c.GetDecision())
	yes, no := c.Tally()
	assert.Equal(t, 3, yes)
	assert.Equal(t, 0, no)
}

func TestVoteCounter_DuplicateVoteIsNoOp(t *testing.T) {
	// Scenario 4: B replies twice GRANTED; the second is flagged
	// duplicate, tally unchanged.
	c, err := votecounter.New(3, 2)
	require.NoError(t, err)

	dup, err := c.RegisterVote("B", votecounter.Granted)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = c.RegisterVote("B", votecounter.Granted)
	require.NoError(t, err)
	assert.True(t, dup)

	yes, _ := c.Tally()
	assert.Equal(t, 1, yes)
}

func TestVoteCounter_FlippedVoteIsRejected(t *testing.T) {
	c, err := votecounter.New(3, 2)
	require.NoError(t, err)

	_, err = c.RegisterVote("B", votecounter.Granted)
	require.NoError(t, err)

	_, err = c.RegisterVote("B", votecounter.Denied)
	assert.True(t, kerr.Is(err, kerr.InvalidArgument))
}

func TestVoteCounter_ExceedingNumVotersIsRejected(t *testing.T) {
	c, err := votecounter.New(1, 1)
	require.NoError(t, err)

	_, err = c.RegisterVote("A", votecounter.Granted)
	require.NoError(t, err)

	_, err = c.RegisterVote("B", votecounter.Granted)
	assert.True(t, kerr.Is(err, kerr.InvalidArgument))
}

func TestVoteCounter_MajorityDeniedDecidesDenied(t *testing.T) {
	c, err := votecounter.New(3, 2)
	require.NoError(t, err)

	_, err = c.RegisterVote("A", votecounter.Granted)
	require.NoError(t, err)
	assert.False(t, c.IsDecided())

	_, err = c.RegisterVote("B", votecounter.Denied)
	require.NoError(t, err)
	_, err = c.RegisterVote("C", votecounter.Denied)
	require.NoError(t, err)

	assert.True(t, c.IsDecided())
	assert.Equal(t, votecounter.DecisionDenied, c.GetDecision())
}

func TestVoteCounter_SingleNodeGrantsImmediately(t *testing.T) {
	// Scenario 1: single-node election, self-vote GRANTED decides
	// GRANTED immediately.
	c, err := votecounter.New(1, votecounter.MajoritySize(1))
	require.NoError(t, err)

	_, err = c.RegisterVote("A", votecounter.Granted)
	require.NoError(t, err)

	assert.True(t, c.IsDecided())
	assert.Equal(t, votecounter.DecisionGranted, c.GetDecision())
}
