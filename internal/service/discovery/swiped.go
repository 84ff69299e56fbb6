package discovery

// swipedSet remembers the most recent ids acted upon so loads do not bring
// them back. It holds at most limit ids; adding past the limit forgets the
// oldest. Not safe for concurrent use, the Session guards it with mu.
type swipedSet struct {
	limit int
	seq   uint64
	ids   map[string]uint64
	order []swipedEntry
}

type swipedEntry struct {
	id  string
	seq uint64
}

func newSwipedSet(limit int) *swipedSet {
	return &swipedSet{limit: limit, ids: map[string]uint64{}}
}

func (s *swipedSet) has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *swipedSet) add(id string) {
	s.seq++
	s.ids[id] = s.seq
	s.order = append(s.order, swipedEntry{id: id, seq: s.seq})

	for len(s.ids) > s.limit && len(s.order) > 0 {
		e := s.order[0]
		s.order = s.order[1:]
		// skip entries superseded by a later add or already removed
		if s.ids[e.id] == e.seq {
			delete(s.ids, e.id)
		}
	}
	if len(s.order) > 2*s.limit {
		s.compact()
	}
}

func (s *swipedSet) remove(id string) {
	delete(s.ids, id)
}

// compact drops stale entries left behind by remove and re-adds.
func (s *swipedSet) compact() {
	live := make([]swipedEntry, 0, len(s.ids))
	for _, e := range s.order {
		if s.ids[e.id] == e.seq {
			live = append(live, e)
		}
	}
	s.order = live
}
