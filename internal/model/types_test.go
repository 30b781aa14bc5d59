package model

import (
	"encoding/json"
	"testing"
)

func TestTabIdentity_PreviewKey(t *testing.T) {
	tests := []struct {
		name string
		id   TabIdentity
		want PreviewKey
	}{
		{name: "with window", id: TabIdentity{Scope: "$1", Tab: "@3", Window: "%7"}, want: "@3/%7"},
		{name: "without window", id: TabIdentity{Scope: "$1", Tab: "@3"}, want: "@3/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.PreviewKey(); got != tt.want {
				t.Errorf("PreviewKey() = %q, want %q", got, tt.want)
			}
			if got := tt.id.PreviewKey().Tab(); got != tt.id.Tab {
				t.Errorf("PreviewKey().Tab() = %q, want %q", got, tt.id.Tab)
			}
		})
	}
}

func TestTabIdentity_SameTabIgnoresWindow(t *testing.T) {
	a := TabIdentity{Scope: "$1", Tab: "@3", Window: "%7"}
	b := TabIdentity{Scope: "$1", Tab: "@3", Window: "%9"}
	if !a.SameTab(b) {
		t.Error("expected identities with the same tab id to match")
	}
	if a.SameTab(TabIdentity{Scope: "$1", Tab: "@4"}) {
		t.Error("expected different tab ids not to match")
	}
}

func TestTabIdentity_String(t *testing.T) {
	if got := (TabIdentity{Scope: "$1", Tab: "@3", Window: "%7"}).String(); got != "$1:@3.%7" {
		t.Errorf("String() = %q", got)
	}
	if got := (TabIdentity{Scope: "$1", Tab: "@3"}).String(); got != "$1:@3" {
		t.Errorf("String() = %q", got)
	}
}

func TestActiveTab(t *testing.T) {
	tabs := []Tab{
		{ID: TabIdentity{Tab: "1"}},
		{ID: TabIdentity{Tab: "2"}, Active: true},
	}
	got, ok := ActiveTab(tabs)
	if !ok || got.ID.Tab != "2" {
		t.Errorf("ActiveTab() = %v, %v; want tab 2", got.ID, ok)
	}

	got, ok = ActiveTab(tabs[:1])
	if !ok || got.ID.Tab != "1" {
		t.Errorf("ActiveTab() without active flag = %v, %v; want first tab", got.ID, ok)
	}

	if _, ok := ActiveTab(nil); ok {
		t.Error("ActiveTab(nil) should report false")
	}
}

func TestTabJSONRoundTripOmitsEmptyWindow(t *testing.T) {
	data, err := json.Marshal(TabIdentity{Scope: "s", Tab: "t"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"scope":"s","tab":"t"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}
