package mux

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/timvw/tab-switcher/internal/model"
)

var kittyNotFound = []string{"no matching"}

// Kitty implements the Multiplexer interface over kitty remote control
// ("kitty @"). A scope is an OS window, a tab is a kitty tab and its
// previewed window is the tab's active kitty window.
type Kitty struct {
	run runFunc
	// to is the remote-control address (--to); empty uses kitty's default.
	to string
	// self is the kitty window the switcher runs in, never previewed.
	self string
}

// NewKitty creates a kitty multiplexer from KITTY_LISTEN_ON and KITTY_WINDOW_ID.
func NewKitty() *Kitty {
	return &Kitty{
		run:  execRun,
		to:   os.Getenv("KITTY_LISTEN_ON"),
		self: os.Getenv("KITTY_WINDOW_ID"),
	}
}

// Name returns "kitty".
func (k *Kitty) Name() string {
	return "kitty"
}

// Scope returns the id of the OS window holding the switcher's own window,
// falling back to the focused OS window.
func (k *Kitty) Scope(ctx context.Context) (string, error) {
	data, err := k.ls(ctx)
	if err != nil {
		return "", err
	}
	scope, ok := kittyScope(data, k.self)
	if !ok {
		return "", fmt.Errorf("kitty @ ls: no OS windows")
	}
	return scope, nil
}

// ListTabs returns the tabs of the OS window scope in native order.
func (k *Kitty) ListTabs(ctx context.Context, scope string) ([]model.Tab, error) {
	data, err := k.ls(ctx)
	if err != nil {
		return nil, err
	}
	tabs, ok := parseKittyTabs(data, scope, k.self)
	if !ok {
		return nil, fmt.Errorf("kitty OS window %s: %w", scope, ErrTabNotFound)
	}
	return tabs, nil
}

// CaptureWindow returns the screen text of the tab's active window.
func (k *Kitty) CaptureWindow(ctx context.Context, id model.TabIdentity, _, _ int) ([]string, error) {
	if id.Window == "" {
		return nil, fmt.Errorf("kitty tab %s has no window to capture: %w", id.Tab, ErrTabNotFound)
	}
	out, err := k.run(ctx, "kitty", k.args("get-text", "--match", "id:"+id.Window, "--extent", "screen", "--ansi")...)
	if err != nil {
		return nil, fmt.Errorf("kitty @ get-text id:%s: %w", id.Window, notFound(err, kittyNotFound...))
	}
	return splitLines(out), nil
}

// ActivateTab focuses the tab.
func (k *Kitty) ActivateTab(ctx context.Context, id model.TabIdentity) error {
	if _, err := k.run(ctx, "kitty", k.args("focus-tab", "--match", "id:"+id.Tab)...); err != nil {
		return fmt.Errorf("kitty @ focus-tab id:%s: %w", id.Tab, notFound(err, kittyNotFound...))
	}
	return nil
}

func (k *Kitty) ls(ctx context.Context) (string, error) {
	out, err := k.run(ctx, "kitty", k.args("ls")...)
	if err != nil {
		return "", fmt.Errorf("kitty @ ls: %w", err)
	}
	if !gjson.Valid(out) {
		return "", fmt.Errorf("kitty @ ls: invalid JSON")
	}
	return out, nil
}

func (k *Kitty) args(cmd ...string) []string {
	args := []string{"@"}
	if k.to != "" {
		args = append(args, "--to", k.to)
	}
	return append(args, cmd...)
}

// kittyScope picks the OS window containing self, else the focused one,
// else the first.
func kittyScope(data, self string) (string, bool) {
	osWindows := gjson.Parse(data).Array()
	if len(osWindows) == 0 {
		return "", false
	}
	if self != "" {
		for _, osw := range osWindows {
			for _, tab := range osw.Get("tabs").Array() {
				for _, win := range tab.Get("windows").Array() {
					if win.Get("id").String() == self {
						return osw.Get("id").String(), true
					}
				}
			}
		}
	}
	for _, osw := range osWindows {
		if osw.Get("is_focused").Bool() {
			return osw.Get("id").String(), true
		}
	}
	return osWindows[0].Get("id").String(), true
}

// parseKittyTabs converts the tabs of OS window scope. The tab holding self
// counts as active since the switcher window may sit in an overlay.
func parseKittyTabs(data, scope, self string) ([]model.Tab, bool) {
	for _, osw := range gjson.Parse(data).Array() {
		if osw.Get("id").String() != scope {
			continue
		}
		var tabs []model.Tab
		selfTab := ""
		for i, t := range osw.Get("tabs").Array() {
			tabID := t.Get("id").String()
			if tabID == "" {
				continue
			}
			title := strings.TrimSpace(t.Get("title").String())
			if title == "" {
				title = "Untitled"
			}
			window := ""
			for _, w := range t.Get("windows").Array() {
				wid := w.Get("id").String()
				if self != "" && wid == self {
					selfTab = tabID
					continue
				}
				if window == "" || w.Get("is_active").Bool() || w.Get("is_focused").Bool() {
					window = wid
				}
			}
			if window == "" && selfTab == tabID {
				// the switcher's own tab, nothing else to preview
				continue
			}
			tabs = append(tabs, model.Tab{
				ID:     model.TabIdentity{Scope: scope, Tab: tabID, Window: window},
				Title:  title,
				Index:  i,
				Active: t.Get("is_active").Bool() || t.Get("is_focused").Bool(),
			})
		}
		if selfTab != "" {
			for i := range tabs {
				tabs[i].Active = tabs[i].ID.Tab == selfTab
			}
		}
		return tabs, true
	}
	return nil, false
}
