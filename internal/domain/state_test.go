package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecentFacts(t *testing.T) {
	state := NewSessionState("goal")
	assert.Empty(t, state.RecentFacts(3))

	state.KnownFacts = []string{"a", "b", "c", "d"}
	assert.Equal(t, []string{"b", "c", "d"}, state.RecentFacts(3))
	assert.Equal(t, []string{"a", "b", "c", "d"}, state.RecentFacts(10))
	assert.Empty(t, state.RecentFacts(0))
}

func TestKnownStrategy(t *testing.T) {
	assert.True(t, KnownStrategy(StrategyBroadSearch))
	assert.True(t, KnownStrategy(StrategyStalled))
	assert.False(t, KnownStrategy(Strategy("verify_fact")))
	assert.False(t, KnownStrategy(Strategy("")))
}
