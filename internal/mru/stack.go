// Package mru keeps the most-recently-used order of tabs within one scope.
//
// The stack is a plain data structure: it performs no I/O and never fails.
// Callers persist Order() after structural changes.
package mru

import "github.com/timvw/tab-switcher/internal/model"

// Stack is a recency-ordered list of unique tabs. Index 0 is the head
// (most recently used). Uniqueness is by tab id.
type Stack struct {
	ids []model.TabIdentity
}

// New builds a stack from a previously saved order, dropping duplicates.
func New(order []model.TabIdentity) *Stack {
	s := &Stack{}
	for _, id := range order {
		if id.IsZero() || s.IndexOf(id) >= 0 {
			continue
		}
		s.ids = append(s.ids, id)
	}
	return s
}

// Len returns the number of tabs in the stack.
func (s *Stack) Len() int {
	return len(s.ids)
}

// At returns the tab at index i. i must be in [0, Len()).
func (s *Stack) At(i int) model.TabIdentity {
	return s.ids[i]
}

// Order returns a copy of the current order, head first.
func (s *Stack) Order() []model.TabIdentity {
	out := make([]model.TabIdentity, len(s.ids))
	copy(out, s.ids)
	return out
}

// IndexOf returns the position of id, or -1.
func (s *Stack) IndexOf(id model.TabIdentity) int {
	for i, cur := range s.ids {
		if cur.SameTab(id) {
			return i
		}
	}
	return -1
}

// Contains reports whether id is in the stack.
func (s *Stack) Contains(id model.TabIdentity) bool {
	return s.IndexOf(id) >= 0
}

// Touch moves id to the head, inserting it when absent. The relative order
// of every other tab is preserved. The stored identity is replaced by id so
// a changed active window is picked up.
func (s *Stack) Touch(id model.TabIdentity) {
	if id.IsZero() {
		return
	}
	if i := s.IndexOf(id); i >= 0 {
		copy(s.ids[1:i+1], s.ids[:i])
		s.ids[0] = id
		return
	}
	s.ids = append(s.ids, model.TabIdentity{})
	copy(s.ids[1:], s.ids)
	s.ids[0] = id
}

// Remove deletes id and reports the index it occupied.
func (s *Stack) Remove(id model.TabIdentity) (int, bool) {
	i := s.IndexOf(id)
	if i < 0 {
		return -1, false
	}
	s.ids = append(s.ids[:i], s.ids[i+1:]...)
	return i, true
}

// Reconcile drops tabs missing from live and appends live tabs the stack does
// not know yet, in their native order, after the existing entries. Kept
// entries take the live identity so the previewed window stays current.
// It returns the removed identities.
func (s *Stack) Reconcile(live []model.TabIdentity) []model.TabIdentity {
	byTab := make(map[string]model.TabIdentity, len(live))
	for _, id := range live {
		if id.IsZero() {
			continue
		}
		if _, dup := byTab[id.Tab]; !dup {
			byTab[id.Tab] = id
		}
	}

	var removed []model.TabIdentity
	kept := s.ids[:0]
	seen := make(map[string]bool, len(s.ids))
	for _, cur := range s.ids {
		liveID, ok := byTab[cur.Tab]
		if !ok {
			removed = append(removed, cur)
			continue
		}
		kept = append(kept, liveID)
		seen[cur.Tab] = true
	}
	s.ids = kept

	for _, id := range live {
		if id.IsZero() || seen[id.Tab] {
			continue
		}
		seen[id.Tab] = true
		s.ids = append(s.ids, byTab[id.Tab])
	}
	return removed
}
