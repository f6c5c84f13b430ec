package troupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaInsertGet(t *testing.T) {
	var a arena[string]

	id := a.insert("alpha")
	require.True(t, id.Valid())

	value := a.get(id)
	require.NotNil(t, value)
	assert.Equal(t, "alpha", *value)
	assert.Equal(t, 1, a.len())
}

func TestArenaStaleIDAfterRemove(t *testing.T) {
	var a arena[string]

	id := a.insert("alpha")
	removed, ok := a.remove(id)
	require.True(t, ok)
	assert.Equal(t, "alpha", removed)

	assert.Nil(t, a.get(id))
	assert.False(t, a.contains(id))
	assert.Equal(t, 0, a.len())

	_, ok = a.remove(id)
	assert.False(t, ok)
}

func TestArenaSlotReuseBumpsGeneration(t *testing.T) {
	var a arena[string]

	old := a.insert("alpha")
	_, ok := a.remove(old)
	require.True(t, ok)

	fresh := a.insert("beta")
	assert.Equal(t, old.slot, fresh.slot)
	assert.NotEqual(t, old.generation, fresh.generation)

	// The stale ID must not resolve to the new occupant.
	assert.Nil(t, a.get(old))
	require.NotNil(t, a.get(fresh))
	assert.Equal(t, "beta", *a.get(fresh))
}

func TestArenaEachVisitsOccupied(t *testing.T) {
	var a arena[int]

	first := a.insert(1)
	second := a.insert(2)
	third := a.insert(3)
	_, ok := a.remove(second)
	require.True(t, ok)

	seen := map[ID]int{}
	a.each(func(id ID, v *int) bool {
		seen[id] = *v
		return true
	})

	assert.Equal(t, map[ID]int{first: 1, third: 3}, seen)
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "actor(none)", ID{}.String())

	var a arena[int]
	id := a.insert(7)
	assert.Equal(t, "actor(0v1)", id.String())
}
