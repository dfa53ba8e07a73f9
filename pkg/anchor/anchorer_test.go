package anchor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optakt/kudu-tablet/pkg/anchor"
)

func TestMinLogIndexAnchorer_OnlyMovesDownward(t *testing.T) {
	r := anchor.NewRegistry()
	a := anchor.NewMinLogIndexAnchorer(r, "dms-1")

	a.AnchorIfMinimum(10)
	assert.True(t, a.IsAnchored())

	earliest, err := r.GetEarliestRegisteredLogIndex()
	require.NoError(t, err)
	assert.Equal(t, int64(10), earliest)

	// A higher index must not move the anchor forward.
	a.AnchorIfMinimum(20)
	earliest, err = r.GetEarliestRegisteredLogIndex()
	require.NoError(t, err)
	assert.Equal(t, int64(10), earliest)

	// A lower index does move it.
	a.AnchorIfMinimum(3)
	earliest, err = r.GetEarliestRegisteredLogIndex()
	require.NoError(t, err)
	assert.Equal(t, int64(3), earliest)

	a.ReleaseAnchor()
	assert.False(t, a.IsAnchored())
	_, err = r.GetEarliestRegisteredLogIndex()
	assert.Error(t, err)
}

func TestMinLogIndexAnchorer_ReleaseIsIdempotent(t *testing.T) {
	r := anchor.NewRegistry()
	a := anchor.NewMinLogIndexAnchorer(r, "dms-1")

	a.ReleaseAnchor()
	a.ReleaseAnchor()
	assert.False(t, a.IsAnchored())
}
