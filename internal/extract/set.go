package extract

import "strings"

// orderedSet keeps first-seen order and rejects duplicates. When fold is set,
// membership is case-insensitive but the first spelling wins.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
	limit int
	fold  bool
}

func newOrderedSet(limit int, fold bool) *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), limit: limit, fold: fold}
}

// add reports whether v was inserted.
func (s *orderedSet) add(v string) bool {
	if v == "" || s.full() {
		return false
	}
	key := v
	if s.fold {
		key = strings.ToLower(v)
	}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, v)
	return true
}

func (s *orderedSet) full() bool {
	return s.limit > 0 && len(s.items) >= s.limit
}

func (s *orderedSet) list() []string {
	if len(s.items) == 0 {
		return []string{}
	}
	return append([]string(nil), s.items...)
}

// Unique returns values with duplicates and empty strings removed, keeping
// first-seen order.
func Unique(values []string) []string {
	set := newOrderedSet(0, false)
	for _, v := range values {
		set.add(v)
	}
	return set.list()
}
