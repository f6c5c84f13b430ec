package troupe

import "fmt"

// node is the per-actor bookkeeping entry.
//
// entry is nil while the actor is pending-start, and while the body is
// temporarily checked out for a processing step.
type node struct {
	name   string
	parent ID
	entry  Actor

	highPriority bool

	// pending marks a created-but-not-started actor. pendingCycle records the
	// scheduler cycle it was created in; actors still pending a full cycle
	// later are converted into stop requests.
	pending      bool
	pendingCycle uint64
}

// tree is the ownership hierarchy over actor IDs, backed by the generational
// arena. A node's parent, if set, always refers to a live node at insert time.
type tree struct {
	nodes arena[node]
}

func (t *tree) insert(n node) (ID, error) {
	if n.parent.Valid() && !t.nodes.contains(n.parent) {
		return ID{}, fmt.Errorf("%w: %s", ErrParentNotFound, n.parent)
	}
	return t.nodes.insert(n), nil
}

func (t *tree) get(id ID) *node { return t.nodes.get(id) }

// remove detaches a single node. It does not check for children; cascading
// removal order is the stop queue's job.
func (t *tree) remove(id ID) (node, bool) { return t.nodes.remove(id) }

// children collects the direct children of id still present in the tree.
func (t *tree) children(id ID) []ID {
	var out []ID
	t.nodes.each(func(child ID, n *node) bool {
		if n.parent == id {
			out = append(out, child)
		}
		return true
	})
	return out
}

func (t *tree) each(fn func(ID, *node) bool) { t.nodes.each(fn) }

func (t *tree) len() int { return t.nodes.len() }
