package mru

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/timvw/tab-switcher/internal/model"
)

func id(tab string) model.TabIdentity {
	return model.TabIdentity{Scope: "s", Tab: tab}
}

func ids(tabs ...string) []model.TabIdentity {
	out := make([]model.TabIdentity, 0, len(tabs))
	for _, t := range tabs {
		out = append(out, id(t))
	}
	return out
}

func tabsOf(s *Stack) []string {
	var out []string
	for _, cur := range s.Order() {
		out = append(out, cur.Tab)
	}
	return out
}

func TestNew_DropsDuplicatesAndZero(t *testing.T) {
	s := New([]model.TabIdentity{id("a"), id("b"), id("a"), {}, id("c")})
	if got, want := tabsOf(s), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTouch(t *testing.T) {
	tests := []struct {
		name  string
		start []string
		touch string
		want  []string
	}{
		{name: "existing tail", start: []string{"a", "b", "c"}, touch: "c", want: []string{"c", "a", "b"}},
		{name: "existing middle", start: []string{"a", "b", "c"}, touch: "b", want: []string{"b", "a", "c"}},
		{name: "already head", start: []string{"a", "b", "c"}, touch: "a", want: []string{"a", "b", "c"}},
		{name: "absent", start: []string{"a", "b"}, touch: "z", want: []string{"z", "a", "b"}},
		{name: "empty stack", start: nil, touch: "a", want: []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(ids(tt.start...))
			s.Touch(id(tt.touch))
			if got := tabsOf(s); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTouch_ReplacesWindow(t *testing.T) {
	s := New([]model.TabIdentity{{Tab: "a", Window: "1"}, {Tab: "b", Window: "2"}})
	s.Touch(model.TabIdentity{Tab: "b", Window: "9"})
	if got := s.At(0); got.Window != "9" {
		t.Errorf("expected touched identity to carry new window, got %+v", got)
	}
}

func TestTouch_ZeroIsIgnored(t *testing.T) {
	s := New(ids("a"))
	s.Touch(model.TabIdentity{})
	if s.Len() != 1 {
		t.Errorf("zero identity should not be inserted, len=%d", s.Len())
	}
}

func TestRemove(t *testing.T) {
	s := New(ids("a", "b", "c"))
	idx, ok := s.Remove(id("b"))
	if !ok || idx != 1 {
		t.Fatalf("Remove(b) = %d, %v; want 1, true", idx, ok)
	}
	if got := tabsOf(s); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("got %v", got)
	}
	if _, ok := s.Remove(id("b")); ok {
		t.Error("second Remove(b) should report false")
	}
}

func TestReconcile(t *testing.T) {
	s := New(ids("c", "a", "gone", "b"))
	removed := s.Reconcile(ids("a", "b", "c", "d", "e"))

	if got, want := tabsOf(s), []string{"c", "a", "b", "d", "e"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order: got %v, want %v", got, want)
	}
	if len(removed) != 1 || removed[0].Tab != "gone" {
		t.Errorf("removed: got %v, want [gone]", removed)
	}
}

func TestReconcile_RefreshesWindow(t *testing.T) {
	s := New([]model.TabIdentity{{Tab: "a", Window: "old"}})
	s.Reconcile([]model.TabIdentity{{Tab: "a", Window: "new"}})
	if got := s.At(0).Window; got != "new" {
		t.Errorf("window: got %q, want %q", got, "new")
	}
}

func TestReconcile_DuplicateLiveIDs(t *testing.T) {
	s := New(nil)
	s.Reconcile(ids("a", "a", "b"))
	if got, want := tabsOf(s), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// Random touch/remove/reconcile sequences must keep the stack unique and
// within the last live set.
func TestStack_RandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	universe := []string{"a", "b", "c", "d", "e", "f", "g"}

	for round := 0; round < 200; round++ {
		s := New(nil)
		live := map[string]bool{}
		for _, u := range universe {
			live[u] = true
		}

		for step := 0; step < 50; step++ {
			switch rng.Intn(3) {
			case 0:
				var liveIDs []model.TabIdentity
				live = map[string]bool{}
				for _, u := range universe {
					if rng.Intn(3) > 0 {
						liveIDs = append(liveIDs, id(u))
						live[u] = true
					}
				}
				s.Reconcile(liveIDs)
			case 1:
				var candidates []string
				for u := range live {
					candidates = append(candidates, u)
				}
				if len(candidates) == 0 {
					continue
				}
				pick := candidates[rng.Intn(len(candidates))]
				before := tabsOf(s)
				s.Touch(id(pick))
				assertTouched(t, before, tabsOf(s), pick)
			case 2:
				s.Remove(id(universe[rng.Intn(len(universe))]))
			}

			seen := map[string]bool{}
			for _, cur := range s.Order() {
				if seen[cur.Tab] {
					t.Fatalf("duplicate %q in %v", cur.Tab, tabsOf(s))
				}
				seen[cur.Tab] = true
				if !live[cur.Tab] {
					t.Fatalf("%q present but not live in %v", cur.Tab, tabsOf(s))
				}
			}
		}
	}
}

func assertTouched(t *testing.T, before, after []string, touched string) {
	t.Helper()
	if len(after) == 0 || after[0] != touched {
		t.Fatalf("after Touch(%q) head is %v", touched, after)
	}
	var restBefore []string
	for _, b := range before {
		if b != touched {
			restBefore = append(restBefore, b)
		}
	}
	if !reflect.DeepEqual(restBefore, append([]string(nil), after[1:]...)) && !(len(restBefore) == 0 && len(after) == 1) {
		t.Fatalf("Touch(%q) changed relative order: before %v after %v", touched, before, after)
	}
}
