package keystate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"pkt.systems/pslog"
)

const (
	defaultMaxPayloadBytes = 1024
	defaultQueue           = 32
)

// ErrNoListener is returned by Send when no overlay is listening on the socket.
var ErrNoListener = errors.New("no overlay listening")

// Listener receives commands for one scope on a unix datagram socket.
type Listener struct {
	path  string
	scope string
	log   pslog.Logger

	MaxPayloadBytes int

	out chan Message

	mu     sync.Mutex
	conn   *net.UnixConn
	closed bool
}

// NewListener creates a listener for scope at socketPath. log may be nil.
func NewListener(socketPath, scope string, log pslog.Logger) *Listener {
	return &Listener{
		path:            socketPath,
		scope:           scope,
		log:             log,
		MaxPayloadBytes: defaultMaxPayloadBytes,
		out:             make(chan Message, defaultQueue),
	}
}

// SocketPath returns the path the listener binds.
func (l *Listener) SocketPath() string {
	return l.path
}

// Commands delivers accepted messages. It is closed when the listener stops.
func (l *Listener) Commands() <-chan Message {
	return l.out
}

// Start binds the socket and reads until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	if l.path == "" {
		return fmt.Errorf("socket path is required")
	}
	if l.MaxPayloadBytes <= 0 {
		l.MaxPayloadBytes = defaultMaxPayloadBytes
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.Chmod(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("chmod socket dir: %w", err)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	addr, err := net.ResolveUnixAddr("unixgram", l.path)
	if err != nil {
		return fmt.Errorf("resolve unix addr: %w", err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return fmt.Errorf("listen unixgram: %w", err)
	}
	if err := os.Chmod(l.path, 0o600); err != nil {
		_ = conn.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.closed = false
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.close()
	}()

	go l.readLoop(conn)

	return nil
}

func (l *Listener) readLoop(conn *net.UnixConn) {
	defer close(l.out)
	buf := make([]byte, l.MaxPayloadBytes)
	for {
		n, _, err := conn.ReadFromUnix(buf)
		if err != nil {
			if l.isClosed() {
				return
			}
			continue
		}

		if n <= 0 || n >= l.MaxPayloadBytes {
			continue
		}

		var m Message
		if err := json.Unmarshal(buf[:n], &m); err != nil {
			l.debug("command dropped", "err", err)
			continue
		}
		if err := m.Validate(); err != nil {
			l.debug("command dropped", "err", err)
			continue
		}
		if m.Scope != l.scope {
			l.debug("command for other scope", "scope", m.Scope)
			continue
		}
		select {
		case l.out <- m:
		default:
			l.debug("command queue full", "cmd", m.Command)
		}
	}
}

func (l *Listener) debug(msg string, kv ...any) {
	if l.log != nil {
		l.log.Debug(msg, kv...)
	}
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Listener) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	_ = os.Remove(l.path)
}

// Send delivers one command to the overlay listening at socketPath. It
// returns ErrNoListener when nothing is bound there.
func Send(socketPath, scope string, cmd Command) error {
	m := Message{Command: cmd, Scope: scope, TS: time.Now().UTC()}
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	addr, err := net.ResolveUnixAddr("unixgram", socketPath)
	if err != nil {
		return fmt.Errorf("resolve unix addr: %w", err)
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT) {
			return ErrNoListener
		}
		return fmt.Errorf("dial %s: %w", socketPath, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return ErrNoListener
		}
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}
