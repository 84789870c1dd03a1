package commission

import (
	"errors"
	"testing"

	"syntarex/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSponsorChain(t *testing.T) {
	inactive := sponsorEdge(9, "ghost", "e")
	inactive.IsActive = false
	deep := sponsorEdge(10, "x", "e")
	deep.Level = 2

	g := newSponsorGraph([]models.ReferralEdge{
		sponsorEdge(1, "a", "b"),
		sponsorEdge(2, "b", "c"),
		sponsorEdge(3, "c", "d"),
		sponsorEdge(4, "d", "e"),
		inactive,
		deep,
	})

	t.Run("depth limited", func(t *testing.T) {
		chain, err := g.chain("e", MaxTiers)
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c", "b"}, chain)
	})

	t.Run("stops at the root", func(t *testing.T) {
		chain, err := g.chain("b", MaxTiers)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, chain)
	})

	t.Run("direct referral counts", func(t *testing.T) {
		assert.Equal(t, 1, g.directs["d"])
		assert.Zero(t, g.directs["ghost"])
		assert.Zero(t, g.directs["x"])
	})
}

func TestSponsorChainCycle(t *testing.T) {
	g := newSponsorGraph([]models.ReferralEdge{
		sponsorEdge(1, "y", "x"),
		sponsorEdge(2, "x", "y"),
		sponsorEdge(3, "x", "buyer"),
	})

	chain, err := g.chain("buyer", MaxTiers)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycleDetected))
	assert.Equal(t, []string{"x", "y"}, chain)

	var ce *ComputationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "y", ce.UserID)
}

func TestSponsorChainMalformed(t *testing.T) {
	g := newSponsorGraph([]models.ReferralEdge{
		sponsorEdge(1, "s1", "child"),
		sponsorEdge(2, "s2", "child"),
		sponsorEdge(3, "child", "buyer"),
	})

	chain, err := g.chain("buyer", MaxTiers)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedNode))
	assert.Equal(t, []string{"child"}, chain)
}

func TestPlacementUplines(t *testing.T) {
	tree := newPlacementTree([]models.BinaryNode{
		node("root", "a", "b"),
		node("a", "", "c"),
		node("b", "", ""),
		node("c", "", ""),
	})

	links, err := tree.uplines("c")
	require.NoError(t, err)
	assert.Equal(t, []placementLink{
		{parent: "a", leg: models.LegRight},
		{parent: "root", leg: models.LegLeft},
	}, links)

	links, err = tree.uplines("root")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestPlacementCorruption(t *testing.T) {
	t.Run("child under two parents", func(t *testing.T) {
		tree := newPlacementTree([]models.BinaryNode{
			node("p1", "kid", ""),
			node("p2", "", "kid"),
			node("kid", "grandkid", ""),
		})
		links, err := tree.uplines("grandkid")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedNode))
		assert.Equal(t, []placementLink{{parent: "kid", leg: models.LegLeft}}, links)

		var ce *ComputationError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "kid", ce.UserID)
	})

	t.Run("same child on both legs", func(t *testing.T) {
		tree := newPlacementTree([]models.BinaryNode{node("p", "kid", "kid")})
		_, err := tree.uplines("kid")
		assert.True(t, errors.Is(err, ErrMalformedNode))
	})

	t.Run("loop", func(t *testing.T) {
		tree := newPlacementTree([]models.BinaryNode{
			node("a", "b", ""),
			node("b", "a", ""),
		})
		_, err := tree.uplines("a")
		assert.True(t, errors.Is(err, ErrCycleDetected))
	})
}
