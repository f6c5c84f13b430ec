package troupe

// StopReason records why an actor was enqueued for removal.
type StopReason uint8

const (
	// StopCalled is an explicit Stop request, including self-stop.
	StopCalled StopReason = iota
	// ParentStopping marks a descendant pulled into a parent's cascade.
	ParentStopping
	// NotStarted marks an actor created but never started within a cycle.
	NotStarted
	// ProcessFailed marks an actor whose step returned an error or panicked.
	ProcessFailed
)

func (r StopReason) String() string {
	switch r {
	case StopCalled:
		return "stop-called"
	case ParentStopping:
		return "parent-stopping"
	case NotStarted:
		return "not-started"
	case ProcessFailed:
		return "process-failed"
	default:
		return "unknown"
	}
}

type stopEntry struct {
	id     ID
	reason StopReason
}

// stopQueue is the ordered, deduplicated pending-removal list. Entries are
// popped from the tail, so pushing an actor's children after it guarantees
// the children are finalized first.
type stopQueue struct {
	queue []stopEntry
	set   map[ID]struct{}
}

// push appends or bumps an entry. Re-pushing an already-present ID moves it to
// the end and adopts the new reason: the most recent request wins ordering.
func (q *stopQueue) push(id ID, reason StopReason) {
	if q.set == nil {
		q.set = make(map[ID]struct{})
	}

	if _, present := q.set[id]; present {
		for i, e := range q.queue {
			if e.id == id {
				q.queue = append(q.queue[:i], q.queue[i+1:]...)
				break
			}
		}
	} else {
		q.set[id] = struct{}{}
	}

	q.queue = append(q.queue, stopEntry{id: id, reason: reason})
}

func (q *stopQueue) peek() (stopEntry, bool) {
	if len(q.queue) == 0 {
		return stopEntry{}, false
	}
	return q.queue[len(q.queue)-1], true
}

func (q *stopQueue) pop() {
	if len(q.queue) == 0 {
		return
	}
	last := q.queue[len(q.queue)-1]
	q.queue = q.queue[:len(q.queue)-1]
	delete(q.set, last.id)
}

func (q *stopQueue) contains(id ID) bool {
	_, present := q.set[id]
	return present
}

func (q *stopQueue) empty() bool { return len(q.queue) == 0 }
