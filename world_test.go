package troupe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptActor buffers string messages and records each observed batch. An
// optional step hook runs before the inbox is drained.
type scriptActor struct {
	Inbox[string]

	batches [][]string
	onStep  func(cx *Context) error
}

func (a *scriptActor) Process(cx *Context) error {
	if a.onStep != nil {
		if err := a.onStep(cx); err != nil {
			return err
		}
	}

	var batch []string
	for {
		msg, ok := a.Next()
		if !ok {
			break
		}
		batch = append(batch, msg)
	}
	if batch != nil {
		a.batches = append(a.batches, batch)
	}
	return nil
}

func startActor(t *testing.T, w *World, parent ID, name string, body Actor, opts ...CreateOption) ID {
	t.Helper()
	id, err := w.Create(parent, name, opts...)
	require.NoError(t, err)
	require.NoError(t, w.Start(id, body))
	return id
}

func TestSendBatchesInOrder(t *testing.T) {
	w := NewWorld()
	actor := &scriptActor{}
	id := startActor(t, w, ID{}, "batcher", actor)

	require.NoError(t, w.Send(id, "one"))
	require.NoError(t, w.Send(id, "two"))
	require.NoError(t, w.Send(id, "three"))
	require.NoError(t, w.RunUntilIdle())

	// Three sends before the step arrive as one ordered batch, in one step.
	require.Len(t, actor.batches, 1)
	assert.Equal(t, []string{"one", "two", "three"}, actor.batches[0])

	require.NoError(t, w.Send(id, "four"))
	require.NoError(t, w.RunUntilIdle())
	require.Len(t, actor.batches, 2)
	assert.Equal(t, []string{"four"}, actor.batches[1])
}

func TestSendUnknownActor(t *testing.T) {
	w := NewWorld()
	err := w.Send(ID{slot: 9, generation: 9}, "nope")
	assert.ErrorIs(t, err, ErrActorNotFound)
}

func TestSendWrongMessageType(t *testing.T) {
	w := NewWorld()
	id := startActor(t, w, ID{}, "strings-only", &scriptActor{})

	err := w.Send(id, 42)
	assert.ErrorIs(t, err, ErrMessageType)
}

func TestSendToNonReceiver(t *testing.T) {
	w := NewWorld()
	id := startActor(t, w, ID{}, "mute", bareActor{})

	err := w.Send(id, "anything")
	assert.ErrorIs(t, err, ErrMessageType)
}

// bareActor implements Actor but not Receiver.
type bareActor struct{}

func (bareActor) Process(*Context) error { return nil }

func TestStartTwice(t *testing.T) {
	w := NewWorld()
	id, err := w.Create(ID{}, "twice")
	require.NoError(t, err)

	require.NoError(t, w.Start(id, &scriptActor{}))
	err = w.Start(id, &scriptActor{})
	assert.ErrorIs(t, err, ErrActorAlreadyStarted)
}

func TestCreateUnderUnknownParent(t *testing.T) {
	w := NewWorld()
	_, err := w.Create(ID{slot: 3, generation: 5}, "orphan")
	assert.ErrorIs(t, err, ErrParentNotFound)
}

func TestPendingStartTimesOut(t *testing.T) {
	w := NewWorld()
	id, err := w.Create(ID{}, "forgotten")
	require.NoError(t, err)
	assert.Equal(t, 1, w.Len())

	// The actor was created before this cycle and never started, so the
	// cycle removes it.
	require.NoError(t, w.RunUntilIdle())
	assert.Equal(t, 0, w.Len())

	err = w.Start(id, &scriptActor{})
	assert.ErrorIs(t, err, ErrActorNotFound)
}

func TestSendToStoppingActor(t *testing.T) {
	w := NewWorld()
	id := startActor(t, w, ID{}, "leaving", &scriptActor{})

	require.NoError(t, w.Stop(id))
	err := w.Send(id, "too late")
	assert.ErrorIs(t, err, ErrActorStopping)

	require.NoError(t, w.RunUntilIdle())
	assert.Equal(t, 0, w.Len())
	assert.ErrorIs(t, w.Send(id, "gone"), ErrActorNotFound)
}

func TestSelfSendDuringStep(t *testing.T) {
	w := NewWorld()
	actor := &scriptActor{}
	var observed error
	actor.onStep = func(cx *Context) error {
		// The body is checked out for the duration of its own step.
		observed = cx.World().Send(cx.ID(), "self")
		return nil
	}
	id := startActor(t, w, ID{}, "narcissist", actor)

	require.NoError(t, w.Send(id, "go"))
	require.NoError(t, w.RunUntilIdle())
	assert.ErrorIs(t, observed, ErrActorUnavailable)
}

func TestStopCascadeChildrenFirst(t *testing.T) {
	w := NewWorld()

	var closed []string
	parent := startActor(t, w, ID{}, "parent", &closerActor{name: "parent", log: &closed})
	childA := startActor(t, w, parent, "child-a", &closerActor{name: "child-a", log: &closed})
	childB := startActor(t, w, parent, "child-b", &closerActor{name: "child-b", log: &closed})
	startActor(t, w, childA, "grandchild", &closerActor{name: "grandchild", log: &closed})
	_ = childB

	require.NoError(t, w.Stop(parent))
	require.NoError(t, w.RunUntilIdle())

	assert.Equal(t, 0, w.Len())
	require.Len(t, closed, 4)
	// Every descendant is finalized strictly before its parent.
	assert.Less(t, index(closed, "grandchild"), index(closed, "child-a"))
	assert.Less(t, index(closed, "child-a"), index(closed, "parent"))
	assert.Less(t, index(closed, "child-b"), index(closed, "parent"))
}

func TestStopIsDeferredUntilDrain(t *testing.T) {
	w := NewWorld()
	actor := &scriptActor{}
	actor.onStep = func(cx *Context) error {
		cx.Stop()
		return nil
	}
	id := startActor(t, w, ID{}, "self-stop", actor)

	require.NoError(t, w.Send(id, "final words"))
	require.NoError(t, w.RunUntilIdle())

	// The step that called Stop still ran to completion.
	require.Len(t, actor.batches, 1)
	assert.Equal(t, []string{"final words"}, actor.batches[0])
	assert.Equal(t, 0, w.Len())
}

type closerActor struct {
	name string
	log  *[]string
}

func (a *closerActor) Process(*Context) error { return nil }

func (a *closerActor) Close() error {
	*a.log = append(*a.log, a.name)
	return nil
}

func index(list []string, want string) int {
	for i, s := range list {
		if s == want {
			return i
		}
	}
	return -1
}

func TestParentChildLifecycle(t *testing.T) {
	w := NewWorld()

	var closed []string
	rootA := startActor(t, w, ID{}, "a", &closerActor{name: "a", log: &closed})

	childB := &countingActor{closerActor: closerActor{name: "b", log: &closed}}
	idB := startActor(t, w, rootA, "b", childB)

	require.NoError(t, w.Send(idB, "one"))
	require.NoError(t, w.RunUntilIdle())
	assert.Equal(t, 1, childB.handled)

	require.NoError(t, w.Stop(rootA))
	require.NoError(t, w.RunUntilIdle())

	assert.ErrorIs(t, w.Send(idB, "two"), ErrActorNotFound)
	require.Equal(t, []string{"b", "a"}, closed)
}

// countingActor counts handled messages and records its removal.
type countingActor struct {
	closerActor
	Inbox[string]

	handled int
}

func (a *countingActor) Process(*Context) error {
	for {
		if _, ok := a.Next(); !ok {
			return nil
		}
		a.handled++
	}
}

func TestProcessErrorStopsOnlyFailingActor(t *testing.T) {
	w := NewWorld()

	failing := &scriptActor{onStep: func(*Context) error {
		return errors.New("boom")
	}}
	healthy := &scriptActor{}

	failingID := startActor(t, w, ID{}, "failing", failing)
	healthyID := startActor(t, w, ID{}, "healthy", healthy)

	require.NoError(t, w.Send(failingID, "tick"))
	require.NoError(t, w.Send(healthyID, "tock"))
	require.NoError(t, w.RunUntilIdle())

	assert.Equal(t, 1, w.Len())
	assert.ErrorIs(t, w.Send(failingID, "again"), ErrActorNotFound)
	require.Len(t, healthy.batches, 1)
}

func TestPanicInStepIsAbsorbed(t *testing.T) {
	w := NewWorld()
	panicky := &scriptActor{onStep: func(*Context) error {
		panic("unexpected")
	}}
	id := startActor(t, w, ID{}, "panicky", panicky)

	require.NoError(t, w.Send(id, "tick"))
	require.NoError(t, w.RunUntilIdle())
	assert.Equal(t, 0, w.Len())
}

func TestHighPriorityRunsFirst(t *testing.T) {
	w := NewWorld()

	var order []string
	slow := &scriptActor{onStep: func(*Context) error {
		order = append(order, "slow")
		return nil
	}}
	relay := &scriptActor{onStep: func(*Context) error {
		order = append(order, "relay")
		return nil
	}}

	slowID := startActor(t, w, ID{}, "slow", slow)
	relayID := startActor(t, w, ID{}, "relay", relay, HighPriority())

	// Enqueued second, but front-inserted.
	require.NoError(t, w.Send(slowID, "a"))
	require.NoError(t, w.Send(relayID, "b"))
	require.NoError(t, w.RunUntilIdle())

	assert.Equal(t, []string{"relay", "slow"}, order)
}

func TestChildOutlivesNothing(t *testing.T) {
	w := NewWorld()

	parent := startActor(t, w, ID{}, "parent", &scriptActor{})
	child := startActor(t, w, parent, "child", &scriptActor{})

	// Stopping the child leaves the parent alone.
	require.NoError(t, w.Stop(child))
	require.NoError(t, w.RunUntilIdle())
	assert.Equal(t, 1, w.Len())
	assert.NoError(t, w.Send(parent, "still here"))
}

func TestCreateDuringStep(t *testing.T) {
	w := NewWorld()

	var childID ID
	spawner := &scriptActor{}
	spawner.onStep = func(cx *Context) error {
		if childID.Valid() {
			return nil
		}
		id, err := cx.World().Create(cx.ID(), "spawned")
		if err != nil {
			return err
		}
		if err := cx.World().Start(id, &scriptActor{}); err != nil {
			return err
		}
		childID = id
		return nil
	}
	parent := startActor(t, w, ID{}, "spawner", spawner)

	require.NoError(t, w.Send(parent, "spawn"))
	require.NoError(t, w.RunUntilIdle())

	require.True(t, childID.Valid())
	assert.Equal(t, 2, w.Len())
	assert.NoError(t, w.Send(childID, "hello"))

	// The spawned child is in the parent's cascade.
	require.NoError(t, w.Stop(parent))
	require.NoError(t, w.RunUntilIdle())
	assert.Equal(t, 0, w.Len())
}
