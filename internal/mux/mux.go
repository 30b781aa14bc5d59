// Package mux provides an abstraction over terminal multiplexers (tmux, kitty).
//
// This package is pure transport: it enumerates tabs, captures window text
// and focuses tabs. Ordering and selection live in the switcher.
package mux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/timvw/tab-switcher/internal/model"
)

// ErrTabNotFound is returned when the multiplexer no longer knows a tab or
// window, typically because it closed between enumeration and use.
var ErrTabNotFound = errors.New("tab not found")

// Multiplexer abstracts terminal multiplexer operations.
type Multiplexer interface {
	// Name returns the multiplexer name (e.g., "tmux", "kitty").
	Name() string

	// Scope returns the id of the top-level window the caller runs in
	// (tmux session id, kitty OS window id).
	Scope(ctx context.Context) (string, error)

	// ListTabs returns the live tabs of scope in native order.
	ListTabs(ctx context.Context, scope string) ([]model.Tab, error)

	// CaptureWindow returns the visible text of the tab's active window,
	// with ANSI styling. cols and rows are hints; callers bound the result.
	CaptureWindow(ctx context.Context, id model.TabIdentity, cols, rows int) ([]string, error)

	// ActivateTab focuses the tab.
	ActivateTab(ctx context.Context, id model.TabIdentity) error
}

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) (string, error)

// execRun runs a binary and folds stderr into the error.
func execRun(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}

// notFound wraps err with ErrTabNotFound when its text contains one of the
// markers the multiplexer prints for unknown targets.
func notFound(err error, markers ...string) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", ErrTabNotFound, err)
		}
	}
	return err
}

func splitLines(out string) []string {
	out = strings.TrimSuffix(out, "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}
