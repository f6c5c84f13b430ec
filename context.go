package troupe

// Context is handed to an actor's Process step.
type Context struct {
	world   *World
	id      ID
	stopped bool
}

// ID returns the ID of the actor being processed.
func (cx *Context) ID() ID { return cx.id }

// World returns the world the actor lives in, for creating children or
// sending messages during a step.
func (cx *Context) World() *World { return cx.world }

// Stop requests that this actor be stopped after the current step completes.
// The removal is deferred to the scheduler; it never happens mid-step.
func (cx *Context) Stop() { cx.stopped = true }
