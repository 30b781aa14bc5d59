package mux

import (
	"fmt"
	"os"
	"os/exec"
)

// Detect auto-detects the active terminal multiplexer.
// It checks environment variables first, then falls back to checking
// if the multiplexer binary exists and has a running server.
func Detect() (Multiplexer, error) {
	// Check environment variables first. tmux wins when nested in kitty
	// since its windows are the innermost tabs.
	if os.Getenv("TMUX") != "" {
		return NewTmux(), nil
	}
	if os.Getenv("KITTY_WINDOW_ID") != "" || os.Getenv("KITTY_LISTEN_ON") != "" {
		return NewKitty(), nil
	}

	// Fall back to checking for running tmux server.
	if tmuxPath, err := exec.LookPath("tmux"); err == nil && tmuxPath != "" {
		cmd := exec.Command("tmux", "list-sessions")
		if err := cmd.Run(); err == nil {
			return NewTmux(), nil
		}
	}

	return nil, fmt.Errorf("no supported terminal multiplexer detected (run inside tmux or kitty, or pass --mux)")
}

// FromName creates a Multiplexer by name.
func FromName(name string) (Multiplexer, error) {
	switch name {
	case "tmux":
		return NewTmux(), nil
	case "kitty":
		return NewKitty(), nil
	default:
		return nil, fmt.Errorf("unknown multiplexer: %q (supported: tmux, kitty)", name)
	}
}
