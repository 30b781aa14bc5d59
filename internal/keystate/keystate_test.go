package keystate

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    Command
		wantErr bool
	}{
		{in: "next", want: CmdNext},
		{in: " PREV ", want: CmdPrev},
		{in: "release", want: CmdRelease},
		{in: "commit", want: CmdCommit},
		{in: "jump", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommand(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandDelta(t *testing.T) {
	if CmdNext.Delta() != 1 || CmdPrev.Delta() != -1 || CmdHold.Delta() != 0 {
		t.Errorf("unexpected deltas: next=%d prev=%d hold=%d", CmdNext.Delta(), CmdPrev.Delta(), CmdHold.Delta())
	}
}

func TestMessageValidate(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{name: "valid", msg: Message{Command: CmdNext, Scope: "$1", TS: now}},
		{name: "bad command", msg: Message{Command: "jump", Scope: "$1", TS: now}, wantErr: true},
		{name: "missing scope", msg: Message{Command: CmdNext, TS: now}, wantErr: true},
		{name: "missing ts", msg: Message{Command: CmdNext, Scope: "$1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLinger(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	l := NewLinger(100*time.Millisecond, func() time.Time { return now })
	ctx := context.Background()

	if held, _ := l.ModifierHeld(ctx); !held {
		t.Fatal("opening should count as activity")
	}

	now = base.Add(150 * time.Millisecond)
	if held, _ := l.ModifierHeld(ctx); held {
		t.Error("no activity within the window should read as released")
	}

	l.Observe(CmdNext, now)
	now = now.Add(50 * time.Millisecond)
	if held, _ := l.ModifierHeld(ctx); !held {
		t.Error("recent cycle should read as held")
	}

	l.Observe(CmdRelease, now)
	if held, _ := l.ModifierHeld(ctx); held {
		t.Error("explicit release should end the linger")
	}
}

func TestSocketProbe(t *testing.T) {
	s := NewSocket()
	ctx := context.Background()
	if held, _ := s.ModifierHeld(ctx); !held {
		t.Fatal("socket probe should start held")
	}
	s.Observe(CmdNext, time.Now())
	if held, _ := s.ModifierHeld(ctx); !held {
		t.Error("cycle commands should not change the modifier state")
	}
	s.Observe(CmdRelease, time.Now())
	if held, _ := s.ModifierHeld(ctx); held {
		t.Error("release should clear held")
	}
	s.Observe(CmdHold, time.Now())
	if held, _ := s.ModifierHeld(ctx); !held {
		t.Error("hold should set held")
	}
}

func TestDefaultSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	got := DefaultSocketPath("$1/x")
	want := filepath.Join("/run/user/1000", "tab-switcher", "_1_x.sock")
	if got != want {
		t.Errorf("DefaultSocketPath = %q, want %q", got, want)
	}
	if !strings.HasSuffix(DefaultSocketPath(""), "default.sock") {
		t.Errorf("empty scope should map to default.sock, got %q", DefaultSocketPath(""))
	}
}

func TestListener_StartBindsSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socketPath := shortSocketPath(t)
	l := NewListener(socketPath, "$1", nil)
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start listener: %v", err)
	}
	if _, err := os.Stat(socketPath); err != nil {
		t.Fatalf("expected socket at %s: %v", socketPath, err)
	}
}

func TestListener_DeliversSentCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socketPath := shortSocketPath(t)
	l := NewListener(socketPath, "$1", nil)
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start listener: %v", err)
	}

	if err := Send(socketPath, "$1", CmdPrev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case m := <-l.Commands():
		if m.Command != CmdPrev || m.Scope != "$1" {
			t.Errorf("got %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
	}
}

func TestListener_DropsInvalidPayloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socketPath := shortSocketPath(t)
	l := NewListener(socketPath, "$1", nil)
	l.MaxPayloadBytes = 256
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start listener: %v", err)
	}

	for _, payload := range [][]byte{
		[]byte(`not-json`),
		[]byte(`{"cmd":"jump","scope":"$1","ts":"2026-02-27T12:00:00Z"}`),
		[]byte(`{"cmd":"next","scope":"$2","ts":"2026-02-27T12:00:00Z"}`),
		[]byte(strings.Repeat("a", 512)),
	} {
		if err := sendDatagram(socketPath, payload); err != nil {
			t.Fatalf("send datagram: %v", err)
		}
	}
	// A valid message after the invalid ones proves the loop kept reading.
	if err := Send(socketPath, "$1", CmdCommit); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case m := <-l.Commands():
		if m.Command != CmdCommit {
			t.Errorf("expected only the valid commit to be delivered, got %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
	}
}

func TestListener_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	socketPath := shortSocketPath(t)
	l := NewListener(socketPath, "$1", nil)
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start listener: %v", err)
	}
	cancel()

	select {
	case _, ok := <-l.Commands():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("commands channel not closed after cancel")
	}
}

func TestSend_NoListener(t *testing.T) {
	err := Send(shortSocketPath(t), "$1", CmdNext)
	if !errors.Is(err, ErrNoListener) {
		t.Errorf("expected ErrNoListener, got %v", err)
	}
}

func sendDatagram(socketPath string, payload []byte) error {
	addr, err := net.ResolveUnixAddr("unixgram", socketPath)
	if err != nil {
		return err
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}

// shortSocketPath keeps the path under the unix socket length limit, which
// t.TempDir() can exceed on macOS.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "ts")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "c.sock")
}
