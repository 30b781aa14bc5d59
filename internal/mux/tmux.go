package mux

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/timvw/tab-switcher/internal/model"
)

// tmuxWindowFormat lists one window per line: session id, window id, active
// pane id, window index, active flag, window name. The name goes last since
// it may contain tabs.
const tmuxWindowFormat = "#{session_id}\t#{window_id}\t#{pane_id}\t#{window_index}\t#{window_active}\t#{window_name}"

var tmuxNotFound = []string{"can't find", "no such"}

// Tmux implements the Multiplexer interface for tmux. A tab is a tmux window
// and its previewed window is the window's active pane.
type Tmux struct {
	run runFunc
}

// NewTmux creates a new tmux multiplexer.
func NewTmux() *Tmux {
	return &Tmux{run: execRun}
}

// Name returns "tmux".
func (t *Tmux) Name() string {
	return "tmux"
}

// Scope returns the current session id (e.g. "$1").
func (t *Tmux) Scope(ctx context.Context) (string, error) {
	out, err := t.run(ctx, "tmux", "display-message", "-p", "#{session_id}")
	if err != nil {
		return "", fmt.Errorf("tmux display-message: %w", err)
	}
	scope := strings.TrimSpace(out)
	if scope == "" {
		return "", fmt.Errorf("tmux display-message: empty session id")
	}
	return scope, nil
}

// ListTabs returns the windows of the session in index order.
func (t *Tmux) ListTabs(ctx context.Context, scope string) ([]model.Tab, error) {
	out, err := t.run(ctx, "tmux", "list-windows", "-t", scope, "-F", tmuxWindowFormat)
	if err != nil {
		return nil, fmt.Errorf("tmux list-windows -t %s: %w", scope, notFound(err, tmuxNotFound...))
	}
	return parseTmuxWindows(out), nil
}

// CaptureWindow captures the visible content of the tab's active pane with
// escape sequences (-e) and wrapped lines joined (-J).
func (t *Tmux) CaptureWindow(ctx context.Context, id model.TabIdentity, _, _ int) ([]string, error) {
	target := id.Window
	if target == "" {
		target = id.Tab
	}
	out, err := t.run(ctx, "tmux", "capture-pane", "-e", "-p", "-J", "-t", target)
	if err != nil {
		return nil, fmt.Errorf("tmux capture-pane -t %s: %w", target, notFound(err, tmuxNotFound...))
	}
	return splitLines(out), nil
}

// ActivateTab selects the window in its session.
func (t *Tmux) ActivateTab(ctx context.Context, id model.TabIdentity) error {
	if _, err := t.run(ctx, "tmux", "select-window", "-t", id.Tab); err != nil {
		return fmt.Errorf("tmux select-window -t %s: %w", id.Tab, notFound(err, tmuxNotFound...))
	}
	return nil
}

// parseTmuxWindows parses list-windows output. Malformed lines are skipped.
func parseTmuxWindows(out string) []model.Tab {
	var tabs []model.Tab
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 6)
		if len(parts) != 6 {
			continue
		}
		if parts[0] == "" || parts[1] == "" {
			continue
		}
		index, err := strconv.Atoi(parts[3])
		if err != nil {
			continue
		}
		tabs = append(tabs, model.Tab{
			ID:     model.TabIdentity{Scope: parts[0], Tab: parts[1], Window: parts[2]},
			Title:  parts[5],
			Index:  index,
			Active: parts[4] == "1",
		})
	}
	return tabs
}
