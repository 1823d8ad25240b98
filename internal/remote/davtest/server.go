// Package davtest 提供基于 golang.org/x/net/webdav 的测试用 WebDAV 服务端，
// 按方法统计请求次数并校验 basic 认证，可按方法注入失败状态码。
package davtest

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/webdav"
)

const (
	Username = "dav-user"
	Password = "dav-pass"
)

// Server wraps an httptest server serving a temp directory over WebDAV.
type Server struct {
	*httptest.Server
	Root   string
	Prefix string

	mu       sync.Mutex
	counts   map[string]int
	failures map[string]int
	paths    []string
}

// New starts a WebDAV server mounted at prefix (e.g. "/dav") and registers cleanup.
func New(t testing.TB, prefix string) *Server {
	t.Helper()
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	s := &Server{
		Root:     t.TempDir(),
		Prefix:   prefix,
		counts:   make(map[string]int),
		failures: make(map[string]int),
	}
	dav := &webdav.Handler{
		Prefix:     prefix,
		FileSystem: webdav.Dir(s.Root),
		LockSystem: webdav.NewMemLS(),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != Username || pass != Password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		s.counts[r.Method]++
		s.paths = append(s.paths, r.Method+" "+r.URL.Path)
		status := s.failures[r.Method]
		s.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		dav.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// Endpoint returns the base URL clients should be configured with.
func (s *Server) Endpoint() string {
	return s.URL + s.Prefix
}

// Count returns how many authenticated requests used method.
func (s *Server) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method]
}

// Requests returns "METHOD /path" lines in arrival order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Reset clears the request counters.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]int)
	s.paths = nil
}

// Fail makes every request with method answer status; 0 restores normal handling.
func (s *Server) Fail(method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, method)
		return
	}
	s.failures[method] = status
}

// WriteFile places content at key on the remote side with the given mtime.
func (s *Server) WriteFile(t testing.TB, key string, content []byte, modTime time.Time) {
	t.Helper()
	full := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("davtest mkdir: %v", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		t.Fatalf("davtest write: %v", err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(full, modTime, modTime); err != nil {
			t.Fatalf("davtest chtimes: %v", err)
		}
	}
}

// ReadFile returns the remote content at key.
func (s *Server) ReadFile(t testing.TB, key string) []byte {
	t.Helper()
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		t.Fatalf("davtest read %s: %v", key, err)
	}
	return data
}

// Path maps key to the on-disk path behind the server.
func (s *Server) Path(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(strings.Trim(key, "/")))
}
