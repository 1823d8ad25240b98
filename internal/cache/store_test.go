package cache

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	key := "photos/2024/cat.jpg"

	modTime := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	payload := []byte("payload")
	if _, err := store.Put(context.Background(), key, bytes.NewReader(payload), PutOptions{ModTime: modTime}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	result, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}
	if !result.Entry.ModTime.Equal(modTime) {
		t.Fatalf("modtime mismatch: expected %v got %v", modTime, result.Entry.ModTime)
	}
}

func TestStorePathFanOut(t *testing.T) {
	store := newTestStore(t)
	h := HashKey("a/b.txt")
	if len(h) != 64 {
		t.Fatalf("expected 256-bit hex digest, got %q", h)
	}
	p := store.Path("a/b.txt")
	want := filepath.Join("bin", h[:1], h[1:2], h)
	if !strings.HasSuffix(p, want) {
		t.Fatalf("expected path ending in %s, got %s", want, p)
	}
	if store.Path("/a/b.txt/") != p {
		t.Fatalf("equivalent keys must share one cache location")
	}
	if store.Path("a/b.txt") == store.Path("a/c.txt") {
		t.Fatalf("distinct keys must not collide")
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	if err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	key := "cache/remove"
	if _, err := store.Put(context.Background(), key, bytes.NewReader([]byte("data")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), key); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Get(context.Background(), key); err == nil || err != ErrNotFound {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	if err := store.Remove(context.Background(), key); err != nil {
		t.Fatalf("removing a missing entry should be a no-op, got %v", err)
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store, err := NewStore("/cache", fsys)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := fsys.MkdirAll(store.Path("dir-key"), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	if _, err := store.Get(context.Background(), "dir-key"); err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
}

func TestStoreTouch(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Put(context.Background(), "k", strings.NewReader("x"), PutOptions{ModTime: time.Unix(1000, 0)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	at := time.Unix(2000, 0)
	if err := store.Touch("k", at); err != nil {
		t.Fatalf("touch: %v", err)
	}
	entry, err := store.Stat(context.Background(), "k")
	if err != nil || !entry.ModTime.Equal(at) {
		t.Fatalf("expected mtime %v, got %+v (%v)", at, entry, err)
	}
}

func TestMetadataMemoExpires(t *testing.T) {
	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	memo := newMetadataMemo(30*time.Second, clock.Now)
	stamp := time.Unix(1_600_000_000, 0)

	memo.Set("/k/", stamp)
	if got, ok := memo.Get("k"); !ok || !got.Equal(stamp) {
		t.Fatalf("expected memo hit, got %v %v", got, ok)
	}
	clock.Advance(29 * time.Second)
	if _, ok := memo.Get("k"); !ok {
		t.Fatalf("memo should still be valid inside the window")
	}
	clock.Advance(time.Second)
	if _, ok := memo.Get("k"); ok {
		t.Fatalf("memo should expire at the window boundary")
	}
	if memo.Len() != 0 {
		t.Fatalf("expired entry should be dropped")
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), afero.NewOsFs())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
