package state

import (
	"bytes"
	"go/format"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/timvw/tab-switcher/internal/model"
	"github.com/timvw/tab-switcher/internal/preview"
)

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := NewDir(filepath.Join(t.TempDir(), "cache"), nil)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return d
}

func TestNewDir_RequiresPath(t *testing.T) {
	if _, err := NewDir("  ", nil); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestDir_LoadMissingIsEmpty(t *testing.T) {
	d := newTestDir(t)
	snap, err := d.Load("$1")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(snap.Order) != 0 || snap.Scope != "$1" {
		t.Errorf("expected empty snapshot for scope, got %+v", snap)
	}
}

func TestDir_SaveThenLoad(t *testing.T) {
	d := newTestDir(t)
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	in := Snapshot{
		Order: []model.TabIdentity{{Scope: "$1", Tab: "@2", Window: "%3"}, {Scope: "$1", Tab: "@1"}},
		Previews: map[model.PreviewKey]preview.Record{
			"@2/%3": {Lines: []string{"hello"}, CapturedAt: ts},
		},
	}
	if err := d.Save("$1", in); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := d.Load("$1")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !reflect.DeepEqual(got.Order, in.Order) {
		t.Errorf("Order: got %v, want %v", got.Order, in.Order)
	}
	rec := got.Previews["@2/%3"]
	if len(rec.Lines) != 1 || rec.Lines[0] != "hello" || !rec.CapturedAt.Equal(ts) {
		t.Errorf("preview record: got %+v", rec)
	}

	info, err := os.Stat(d.Path("$1"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode: got %v, want 0600", info.Mode().Perm())
	}
}

func TestDir_SaveLeavesNoTempFiles(t *testing.T) {
	d := newTestDir(t)
	for i := 0; i < 3; i++ {
		if err := d.Save("s", Snapshot{}); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(d.Path("s")))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the state file, got %v", names)
	}
}

func TestDir_CorruptFileLoadsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "{{{"},
		{name: "wrong version", content: `{"version":99,"scope":"s","order":[{"tab":"1"}]}`},
		{name: "wrong scope", content: `{"version":1,"scope":"other","order":[{"tab":"1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDir(t)
			path := d.Path("s")
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			snap, err := d.Load("s")
			if err == nil {
				t.Error("expected a decode error to be reported")
			}
			if len(snap.Order) != 0 {
				t.Errorf("corrupt file should load as empty, got %v", snap.Order)
			}
		})
	}
}

func TestDir_PathSanitizesScope(t *testing.T) {
	d := newTestDir(t)
	if got := filepath.Base(d.Path("$1/../x")); got != "_1_.._x.json" {
		t.Errorf("Path() base = %q", got)
	}
	if got := filepath.Base(d.Path("")); got != "default.json" {
		t.Errorf("Path(\"\") base = %q", got)
	}
}

func TestScope_OrderAndPreviewsShareFile(t *testing.T) {
	d := newTestDir(t)
	s := OpenScope(d, "$1", nil)

	order := []model.TabIdentity{{Tab: "@1"}, {Tab: "@2"}}
	if err := s.SaveOrder(order); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SavePreviews(map[model.PreviewKey]preview.Record{"@1/": {Lines: []string{"x"}, CapturedAt: ts}}); err != nil {
		t.Fatalf("SavePreviews: %v", err)
	}

	reopened := OpenScope(d, "$1", nil)
	if got := reopened.Order(); !reflect.DeepEqual(got, order) {
		t.Errorf("Order after reopen: got %v, want %v", got, order)
	}
	previews, err := reopened.LoadPreviews()
	if err != nil {
		t.Fatalf("LoadPreviews: %v", err)
	}
	if len(previews) != 1 {
		t.Errorf("previews after reopen: got %d, want 1", len(previews))
	}
}

func TestScope_UnreadableFileStartsEmpty(t *testing.T) {
	d := newTestDir(t)
	path := d.Path("s")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := OpenScope(d, "s", nil)
	if len(s.Order()) != 0 {
		t.Error("expected empty order for corrupt file")
	}
	if err := s.SaveOrder([]model.TabIdentity{{Tab: "1"}}); err != nil {
		t.Fatalf("SaveOrder over corrupt file: %v", err)
	}
}

func TestScope_ImplementsPersister(t *testing.T) {
	var _ preview.Persister = (*Scope)(nil)
}

func TestSourceIsGofmtClean(t *testing.T) {
	src, err := os.ReadFile("file.go")
	if err != nil {
		t.Fatal(err)
	}
	got, err := format.Source(src)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Error("file.go is not gofmt formatted")
	}
}
