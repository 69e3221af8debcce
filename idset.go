package inputmethod

// IDSet is a set of identifiers that remembers insertion order so encodings
// are deterministic. The zero value is an empty set ready to use.
type IDSet struct {
	order []string
	index map[string]struct{}
}

// NewIDSet returns a set holding ids, skipping empty and duplicate entries.
func NewIDSet(ids ...string) IDSet {
	var set IDSet
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Add inserts id and reports whether it was new. Empty ids are ignored.
func (s *IDSet) Add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Remove deletes id and reports whether it was present.
func (s *IDSet) Remove(id string) bool {
	if _, ok := s.index[id]; !ok {
		return false
	}
	delete(s.index, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s IDSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s IDSet) Len() int {
	return len(s.order)
}

// IDs returns the members in insertion order.
func (s IDSet) IDs() []string {
	if len(s.order) == 0 {
		return nil
	}
	return append([]string(nil), s.order...)
}

// First returns the earliest inserted member.
func (s IDSet) First() (string, bool) {
	if len(s.order) == 0 {
		return "", false
	}
	return s.order[0], true
}

// Equal reports set equality, ignoring order.
func (s IDSet) Equal(other IDSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, id := range s.order {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

func (s IDSet) Clone() IDSet {
	return NewIDSet(s.order...)
}

// String renders the set in the persisted `:`-joined form.
func (s IDSet) String() string {
	return EncodeSet(s.order)
}
