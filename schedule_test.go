package troupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleDeduplicates(t *testing.T) {
	var s schedule
	a := ID{slot: 1, generation: 1}
	b := ID{slot: 2, generation: 1}

	s.enqueue(a, false)
	s.enqueue(b, false)
	s.enqueue(a, false)

	first, ok := s.next()
	require.True(t, ok)
	assert.Equal(t, a, first)
	second, ok := s.next()
	require.True(t, ok)
	assert.Equal(t, b, second)
	_, ok = s.next()
	assert.False(t, ok)
}

func TestScheduleFrontInsertion(t *testing.T) {
	var s schedule
	a := ID{slot: 1, generation: 1}
	b := ID{slot: 2, generation: 1}

	s.enqueue(a, false)
	s.enqueue(b, true)

	first, _ := s.next()
	assert.Equal(t, b, first)
}

func TestScheduleRemove(t *testing.T) {
	var s schedule
	a := ID{slot: 1, generation: 1}
	b := ID{slot: 2, generation: 1}

	s.enqueue(a, false)
	s.enqueue(b, false)
	s.remove(a)

	first, ok := s.next()
	require.True(t, ok)
	assert.Equal(t, b, first)
	assert.True(t, s.empty())
}

func TestStopQueuePopsFromTail(t *testing.T) {
	var q stopQueue
	parent := ID{slot: 1, generation: 1}
	child := ID{slot: 2, generation: 1}

	q.push(parent, StopCalled)
	q.push(child, ParentStopping)

	entry, ok := q.peek()
	require.True(t, ok)
	assert.Equal(t, child, entry.id)
	assert.Equal(t, ParentStopping, entry.reason)

	q.pop()
	entry, ok = q.peek()
	require.True(t, ok)
	assert.Equal(t, parent, entry.id)
}

func TestStopQueueRepushMovesToTail(t *testing.T) {
	var q stopQueue
	a := ID{slot: 1, generation: 1}
	b := ID{slot: 2, generation: 1}

	q.push(a, StopCalled)
	q.push(b, StopCalled)
	// Re-pushing a moves it behind b, so it pops first.
	q.push(a, ParentStopping)

	entry, _ := q.peek()
	assert.Equal(t, a, entry.id)
	assert.Equal(t, ParentStopping, entry.reason)
	assert.True(t, q.contains(a))
	assert.True(t, q.contains(b))

	q.pop()
	q.pop()
	assert.True(t, q.empty())
	assert.False(t, q.contains(a))
}
