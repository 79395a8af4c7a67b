package registry

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// IDSet is a set of IDs that remembers insertion order, so fan-out visits
// subscribers in the order they subscribed. Not safe for concurrent use.
type IDSet struct {
	order   []ID
	members mapset.Set[ID]
}

func NewIDSet(ids ...ID) *IDSet {
	s := &IDSet{members: mapset.NewThreadUnsafeSet[ID]()}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add reports whether id was newly added.
func (s *IDSet) Add(id ID) bool {
	if !s.members.Add(id) {
		return false
	}
	s.order = append(s.order, id)
	return true
}

// Remove reports whether id was present.
func (s *IDSet) Remove(id ID) bool {
	if !s.members.Contains(id) {
		return false
	}
	s.members.Remove(id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *IDSet) Contains(id ID) bool {
	return s.members.Contains(id)
}

func (s *IDSet) Len() int {
	return len(s.order)
}

// Slice returns a copy in insertion order. Callers may mutate the set while
// ranging over the copy.
func (s *IDSet) Slice() []ID {
	out := make([]ID, len(s.order))
	copy(out, s.order)
	return out
}
