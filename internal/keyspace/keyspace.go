// Package keyspace maps logical slash-delimited keys onto sandboxed paths below
// the store root. Every "/.." sequence is stripped from the key before joining,
// so the resulting path is always textually under the root. Symlinks inside the
// root are followed by the OS and are not contained by this package.
package keyspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/any-bin/any-bin/internal/apperr"
)

const dirPerm = 0o700

// Space resolves keys against one root directory.
type Space struct {
	root string
	fs   afero.Fs
}

// New 以 root 为沙箱根目录构建 Space；root 会被转换为绝对路径并在缺失时创建。
func New(root string, fsys afero.Fs) (*Space, error) {
	if root == "" {
		return nil, errors.New("store root required")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	if _, err := fsys.Stat(abs); err != nil {
		if err := fsys.MkdirAll(abs, dirPerm); err != nil {
			return nil, fmt.Errorf("create store root: %w", err)
		}
	}
	return &Space{root: filepath.Clean(abs), fs: fsys}, nil
}

// Root returns the absolute store root.
func (s *Space) Root() string {
	return s.root
}

// Fs returns the filesystem the space creates directories on.
func (s *Space) Fs() afero.Fs {
	return s.fs
}

// ReservedPrefix 开头的 key 只在进程内部使用（例如派生图），不对应任何存储或远端对象。
const ReservedPrefix = "\x00"

// IsReserved reports whether key lies in the internal namespace. Any key
// carrying a NUL byte qualifies, since no object name can contain one.
func IsReserved(key string) bool {
	return strings.Contains(key, ReservedPrefix)
}

// Normalize 剥离所有 "/.." 片段、合并空段与 "." 段并去掉首尾斜杠，得到规范 key。
// 根目录对应空串。
func Normalize(key string) string {
	return strings.TrimPrefix(path.Clean(stripParentRefs("/"+key)), "/")
}

// Resolve maps key to a local path. With wantFile the parent directory of the
// object is the one considered for creation and the returned path names the
// object itself. With createParentDirs a missing directory is created, and a
// failure to do so is reported as ErrStorageUnavailable.
func (s *Space) Resolve(key string, wantFile, createParentDirs bool) (string, error) {
	rel := stripParentRefs("/" + strings.TrimRight(key, "/"))
	full := filepath.Clean(s.root + filepath.FromSlash(rel))

	dir := full
	if wantFile {
		if full == s.root {
			return "", fmt.Errorf("key %q names no object: %w", key, apperr.ErrNotFound)
		}
		dir = filepath.Dir(full)
	}

	if createParentDirs {
		if _, err := s.fs.Stat(dir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) && !os.IsNotExist(err) {
				return "", fmt.Errorf("stat %s: %v: %w", dir, err, apperr.ErrStorageUnavailable)
			}
			if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
				return "", fmt.Errorf("create directory %s: %v: %w", dir, err, apperr.ErrStorageUnavailable)
			}
		}
	}

	if wantFile {
		return filepath.Join(dir, filepath.Base(full)), nil
	}
	return dir, nil
}

// Contains reports whether p is the root or lies below it.
func (s *Space) Contains(p string) bool {
	p = filepath.Clean(p)
	return p == s.root || strings.HasPrefix(p, s.root+string(filepath.Separator))
}

// KeyOf converts a local path under the root back into a key.
func (s *Space) KeyOf(p string) (string, bool) {
	if !s.Contains(p) {
		return "", false
	}
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}

// Segments splits a key into its non-empty path segments after normalization.
func Segments(key string) []string {
	normalized := Normalize(key)
	if normalized == "" {
		return nil
	}
	parts := strings.Split(normalized, "/")
	out := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return out
}

// Parent returns the parent key of key, "." for top-level keys.
func Parent(key string) string {
	return path.Dir(Normalize(key))
}

// stripParentRefs 反复剥离 "/.."，并保证结果以 "/" 开头，避免与 root 拼接成兄弟目录。
func stripParentRefs(p string) string {
	for {
		p = strings.ReplaceAll(p, "/..", "")
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		if !strings.Contains(p, "/..") {
			return p
		}
	}
}
