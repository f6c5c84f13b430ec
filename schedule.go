package troupe

// schedule is the ready queue: actor IDs pending a processing step, each
// present at most once. High-priority actors (typically pure relays) are
// inserted at the front so message batches for heavier actors behind them
// aren't fragmented.
type schedule struct {
	order []ID
	set   map[ID]struct{}
}

// enqueue adds id to the ready queue. Already-queued IDs are left where they
// are; a burst of wakeups collapses into one step.
func (s *schedule) enqueue(id ID, front bool) {
	if s.set == nil {
		s.set = make(map[ID]struct{})
	}
	if _, present := s.set[id]; present {
		return
	}
	s.set[id] = struct{}{}

	if front {
		s.order = append([]ID{id}, s.order...)
		return
	}
	s.order = append(s.order, id)
}

// next pops the front of the ready queue, clearing the pending mark so a
// later wakeup schedules the actor again.
func (s *schedule) next() (ID, bool) {
	if len(s.order) == 0 {
		return ID{}, false
	}
	id := s.order[0]
	s.order = s.order[1:]
	delete(s.set, id)
	return id, true
}

// remove drops id from the queue, if present. Used during actor removal so a
// dead ID is never handed to a processing step.
func (s *schedule) remove(id ID) {
	if _, present := s.set[id]; !present {
		return
	}
	delete(s.set, id)
	for i, queued := range s.order {
		if queued == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *schedule) empty() bool { return len(s.order) == 0 }
