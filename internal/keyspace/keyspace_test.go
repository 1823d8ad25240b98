package keyspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/any-bin/any-bin/internal/apperr"
)

func TestResolveStaysUnderRoot(t *testing.T) {
	space := newTestSpace(t)
	keys := []string{
		"../../etc/passwd",
		"docs/../../../secret",
		"a/..",
		"..",
		"/../x/",
		"photos/..././../y",
		"....//..//z",
		"..sibling/file",
	}
	for _, key := range keys {
		for _, wantFile := range []bool{true, false} {
			p, err := space.Resolve(key, wantFile, false)
			if err != nil {
				if wantFile && errors.Is(err, apperr.ErrNotFound) {
					continue
				}
				t.Fatalf("resolve %q: %v", key, err)
			}
			if !space.Contains(p) {
				t.Fatalf("resolve %q (file=%v) escaped root: %s", key, wantFile, p)
			}
			if !strings.HasPrefix(p, space.Root()) {
				t.Fatalf("resolve %q not prefixed by root: %s", key, p)
			}
		}
	}
}

func TestResolveFileAndDirectory(t *testing.T) {
	space := newTestSpace(t)

	p, err := space.Resolve("docs/report.txt/", true, false)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if want := filepath.Join(space.Root(), "docs", "report.txt"); p != want {
		t.Fatalf("expected %s, got %s", want, p)
	}

	dir, err := space.Resolve("docs/sub/", false, false)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if want := filepath.Join(space.Root(), "docs", "sub"); dir != want {
		t.Fatalf("expected %s, got %s", want, dir)
	}
}

func TestResolveCreatesParentDirectories(t *testing.T) {
	space := newTestSpace(t)

	p, err := space.Resolve("a/b/c.txt", true, true)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	info, err := os.Stat(filepath.Dir(p))
	if err != nil || !info.IsDir() {
		t.Fatalf("expected parent directory to exist: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("object itself must not be created")
	}
}

func TestResolveCreationFailureIsStorageUnavailable(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := base.MkdirAll("/store", 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ro, err := New("/store", afero.NewReadOnlyFs(base))
	if err != nil {
		t.Fatalf("new space: %v", err)
	}
	if _, err := ro.Resolve("x/y.txt", true, true); !errors.Is(err, apperr.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestNormalizeAndSegments(t *testing.T) {
	cases := map[string]string{
		"/a/b/../c//": "a/b/c",
		"//k/":        "k",
		"k":           "k",
		"a//b/./c":    "a/b/c",
		"/":           "",
		"":            "",
		"/../..":      "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
	segs := Segments("a//b/./c/")
	if len(segs) != 3 || segs[0] != "a" || segs[2] != "c" {
		t.Fatalf("unexpected segments %v", segs)
	}
	if Segments("") != nil {
		t.Fatalf("empty key should have no segments")
	}
	if Parent("a/b") != "a" || Parent("a") != "." {
		t.Fatalf("unexpected parent results")
	}
}

func TestKeyOf(t *testing.T) {
	space := newTestSpace(t)
	key, ok := space.KeyOf(filepath.Join(space.Root(), "x", "y"))
	if !ok || key != "x/y" {
		t.Fatalf("unexpected key %q (%v)", key, ok)
	}
	if _, ok := space.KeyOf("/definitely/elsewhere"); ok {
		t.Fatalf("paths outside root must not map to keys")
	}
}

func newTestSpace(t *testing.T) *Space {
	t.Helper()
	space, err := New(t.TempDir(), afero.NewOsFs())
	if err != nil {
		t.Fatalf("new space: %v", err)
	}
	return space
}
