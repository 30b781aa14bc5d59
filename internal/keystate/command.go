// Package keystate tracks whether the switcher modifier is still held and
// carries commands from other tab-switcher processes to a running overlay.
package keystate

import (
	"fmt"
	"strings"
	"time"
)

// Command is an instruction sent to a running overlay.
type Command string

const (
	CmdNext    Command = "next"
	CmdPrev    Command = "prev"
	CmdHold    Command = "hold"
	CmdRelease Command = "release"
	CmdCancel  Command = "cancel"
	CmdCommit  Command = "commit"
)

// ParseCommand accepts the command names used on the CLI and the socket.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	if !c.valid() {
		return "", fmt.Errorf("unknown command %q", s)
	}
	return c, nil
}

// Delta is the highlight movement for a cycle command, 0 for the others.
func (c Command) Delta() int {
	switch c {
	case CmdNext:
		return 1
	case CmdPrev:
		return -1
	default:
		return 0
	}
}

func (c Command) valid() bool {
	switch c {
	case CmdNext, CmdPrev, CmdHold, CmdRelease, CmdCancel, CmdCommit:
		return true
	default:
		return false
	}
}

// Message is the datagram payload on the command socket.
type Message struct {
	Command Command   `json:"cmd"`
	Scope   string    `json:"scope"`
	TS      time.Time `json:"ts"`
}

// Validate rejects messages a listener should drop.
func (m Message) Validate() error {
	if !m.Command.valid() {
		return fmt.Errorf("invalid command %q", m.Command)
	}
	if strings.TrimSpace(m.Scope) == "" {
		return fmt.Errorf("scope is required")
	}
	if m.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
