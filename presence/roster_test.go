package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAssignsStableColorAcrossRefresh(t *testing.T) {
	r := NewRoster()
	first := r.Upsert("r1", "Alice")
	second := r.Upsert("r1", "Alice (renamed)")
	assert.Equal(t, first.Color, second.Color)
	assert.Equal(t, "Alice (renamed)", second.DisplayName)
}

func TestUpsertAssignsDistinctColorsToDistinctReplicas(t *testing.T) {
	r := NewRoster()
	a := r.Upsert("r1", "Alice")
	b := r.Upsert("r2", "Bob")
	assert.NotEqual(t, a.Color, b.Color)
}

func TestRemoveDropsEntry(t *testing.T) {
	r := NewRoster()
	r.Upsert("r1", "Alice")
	r.Remove("r1")
	_, ok := r.Get("r1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestAllReturnsEverySeenReplica(t *testing.T) {
	r := NewRoster()
	r.Upsert("r1", "Alice")
	r.Upsert("r2", "Bob")
	all := r.All()
	require.Len(t, all, 2)
}
