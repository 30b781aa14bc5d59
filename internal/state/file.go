// Package state persists per-scope switcher state (MRU order and preview
// text) to a JSON cache file.
//
// The file is a cache, not a source of truth: it is reconciled against the
// live tab list on every load, malformed or unreadable files load as empty,
// and writes replace the file atomically (temp file, fsync, rename) so a
// crash never leaves a partial file behind.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"pkt.systems/pslog"

	"github.com/timvw/tab-switcher/internal/model"
	"github.com/timvw/tab-switcher/internal/preview"
)

// fileVersion is bumped when the layout changes; other versions load as empty.
const fileVersion = 1

// Snapshot is the on-disk layout of one scope's cache file.
type Snapshot struct {
	Version  int                                 `json:"version"`
	Scope    string                              `json:"scope"`
	Order    []model.TabIdentity                 `json:"order"`
	Previews map[model.PreviewKey]preview.Record `json:"previews,omitempty"`
}

// Dir stores one cache file per scope under a directory.
type Dir struct {
	dir string
	log pslog.Logger
}

// NewDir returns a store rooted at dir. The directory is created lazily on
// the first save. log may be nil.
func NewDir(dir string, log pslog.Logger) (*Dir, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache directory is required")
	}
	if log != nil {
		log = log.With("cache_dir", dir)
	}
	return &Dir{dir: dir, log: log}, nil
}

// DefaultDir returns the cache directory used when none is configured.
func DefaultDir() string {
	if v := os.Getenv("XDG_CACHE_HOME"); v != "" {
		return filepath.Join(v, "tab-switcher")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "tab-switcher")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("tab-switcher-%d", os.Getuid()))
}

// Path returns the cache file for scope.
func (d *Dir) Path(scope string) string {
	name := sanitize(scope)
	if name == "" {
		name = "default"
	}
	return filepath.Join(d.dir, name+".json")
}

// Load reads the snapshot for scope. A missing file is not an error. A
// corrupt file returns an empty snapshot together with the decode error so
// the caller can log it.
func (d *Dir) Load(scope string) (Snapshot, error) {
	empty := Snapshot{Version: fileVersion, Scope: scope}
	path := d.Path(scope)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d.debug("state load miss", "scope", scope)
			return empty, nil
		}
		return empty, fmt.Errorf("read %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return empty, fmt.Errorf("decode %s: %w", path, err)
	}
	if snap.Version != fileVersion || snap.Scope != scope {
		return empty, fmt.Errorf("decode %s: unexpected version %d / scope %q", path, snap.Version, snap.Scope)
	}
	d.debug("state load ok", "scope", scope, "tabs", len(snap.Order), "previews", len(snap.Previews))
	return snap, nil
}

// Save atomically replaces the snapshot for scope.
func (d *Dir) Save(scope string, snap Snapshot) error {
	snap.Version = fileVersion
	snap.Scope = scope
	path := d.Path(scope)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}
	if d.log != nil {
		d.log.Trace("state save ok", "scope", scope, "tabs", len(snap.Order), "previews", len(snap.Previews))
	}
	return nil
}

func (d *Dir) debug(msg string, kv ...any) {
	if d.log != nil {
		d.log.Debug(msg, kv...)
	}
}

// Scope is the in-memory view of one scope's cache file. The MRU order and
// the preview records are saved together so neither write clobbers the
// other. It implements preview.Persister.
type Scope struct {
	dir *Dir
	id  string
	log pslog.Logger

	mu   sync.Mutex
	snap Snapshot
}

// OpenScope loads the file for scope. Load errors are logged and the scope
// starts empty.
func OpenScope(dir *Dir, scope string, log pslog.Logger) *Scope {
	snap, err := dir.Load(scope)
	if err != nil && log != nil {
		log.Warn("state file unreadable, starting empty", "scope", scope, "err", err)
	}
	return &Scope{dir: dir, id: scope, log: log, snap: snap}
}

// ID returns the scope id.
func (s *Scope) ID() string {
	return s.id
}

// Order returns the saved MRU order.
func (s *Scope) Order() []model.TabIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TabIdentity(nil), s.snap.Order...)
}

// SaveOrder records the MRU order and rewrites the file.
func (s *Scope) SaveOrder(order []model.TabIdentity) error {
	s.mu.Lock()
	s.snap.Order = append([]model.TabIdentity(nil), order...)
	snap := s.copyLocked()
	s.mu.Unlock()
	return s.dir.Save(s.id, snap)
}

// LoadPreviews returns the saved preview records.
func (s *Scope) LoadPreviews() (map[model.PreviewKey]preview.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.PreviewKey]preview.Record, len(s.snap.Previews))
	for k, v := range s.snap.Previews {
		out[k] = v
	}
	return out, nil
}

// SavePreviews records preview text and rewrites the file.
func (s *Scope) SavePreviews(records map[model.PreviewKey]preview.Record) error {
	s.mu.Lock()
	s.snap.Previews = records
	snap := s.copyLocked()
	s.mu.Unlock()
	return s.dir.Save(s.id, snap)
}

func (s *Scope) copyLocked() Snapshot {
	out := Snapshot{
		Version: s.snap.Version,
		Scope:   s.snap.Scope,
		Order:   append([]model.TabIdentity(nil), s.snap.Order...),
	}
	if s.snap.Previews != nil {
		out.Previews = make(map[model.PreviewKey]preview.Record, len(s.snap.Previews))
		for k, v := range s.snap.Previews {
			out.Previews[k] = v
		}
	}
	return out
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
