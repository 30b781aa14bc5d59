package model

import (
	"fmt"
	"strings"
)

// TabIdentity identifies a tab within a multiplexer scope.
type TabIdentity struct {
	// Scope is the owning top-level window (tmux session id, kitty OS window id).
	Scope string `json:"scope"`
	// Tab is the tab id (tmux window id, kitty tab id).
	Tab string `json:"tab"`
	// Window is the active window within the tab whose text is previewed
	// (tmux pane id, kitty window id). May be empty.
	Window string `json:"window,omitempty"`
}

// SameTab reports whether both identities refer to the same tab.
// The active window is not part of tab identity.
func (id TabIdentity) SameTab(other TabIdentity) bool {
	return id.Tab == other.Tab
}

// PreviewKey returns the key under which this tab's preview is cached.
func (id TabIdentity) PreviewKey() PreviewKey {
	return PreviewKey(id.Tab + "/" + id.Window)
}

// IsZero reports whether the identity has no tab id.
func (id TabIdentity) IsZero() bool {
	return id.Tab == ""
}

func (id TabIdentity) String() string {
	if id.Window == "" {
		return fmt.Sprintf("%s:%s", id.Scope, id.Tab)
	}
	return fmt.Sprintf("%s:%s.%s", id.Scope, id.Tab, id.Window)
}

// PreviewKey is the cache key for a preview: "<tab>/<window>".
type PreviewKey string

// Tab returns the tab id part of the key.
func (k PreviewKey) Tab() string {
	tab, _, _ := strings.Cut(string(k), "/")
	return tab
}

// Tab is a live tab as reported by the multiplexer.
type Tab struct {
	ID TabIdentity `json:"id"`
	// Title is the human-readable tab title.
	Title string `json:"title"`
	// Index is the tab's position in the multiplexer's native order.
	Index int `json:"index"`
	// Active is true for the tab that currently has focus in its scope.
	Active bool `json:"active"`
}

// Identities returns the identities of tabs in native order.
func Identities(tabs []Tab) []TabIdentity {
	ids := make([]TabIdentity, 0, len(tabs))
	for _, t := range tabs {
		ids = append(ids, t.ID)
	}
	return ids
}

// ActiveTab returns the active tab, falling back to the first tab.
// ok is false only when tabs is empty.
func ActiveTab(tabs []Tab) (Tab, bool) {
	for _, t := range tabs {
		if t.Active {
			return t, true
		}
	}
	if len(tabs) == 0 {
		return Tab{}, false
	}
	return tabs[0], true
}

// Titles maps tab ids to titles for rendering.
func Titles(tabs []Tab) map[string]string {
	titles := make(map[string]string, len(tabs))
	for _, t := range tabs {
		titles[t.ID.Tab] = t.Title
	}
	return titles
}
