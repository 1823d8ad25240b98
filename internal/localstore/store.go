// Package localstore provides CRUD over the sandboxed local tree. Every
// operation authorizes the caller against the key's directory chain before
// touching the filesystem. Writes go through a temp file plus rename, deletes
// move the object into the __trash__ namespace instead of unlinking it.
package localstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/maruel/natural"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-bin/any-bin/internal/access"
	"github.com/any-bin/any-bin/internal/apperr"
	"github.com/any-bin/any-bin/internal/iox"
	"github.com/any-bin/any-bin/internal/keyspace"
	"github.com/any-bin/any-bin/internal/object"
)

// TrashDir 是软删除对象的存放目录（相对存储根）。
const TrashDir = "__trash__"

const filePerm = 0o600

// Options 控制 Store 的可选行为。
type Options struct {
	// HashAlgorithm 是 Hash 未指定算法时使用的默认值。
	HashAlgorithm string
}

// Store 是本地沙箱存储。
type Store struct {
	space    *keyspace.Space
	fs       afero.Fs
	access   *access.Resolver
	logger   *logrus.Logger
	hashAlgo string
	now      func() time.Time
	suffix   func() string
}

// ReadResult 组合条目信息与可 Seek 的正文，便于 HTTP 层直接流式返回。
type ReadResult struct {
	Entry  object.Entry
	Reader io.ReadSeekCloser
}

// New 构造本地存储；space 决定路径映射，resolver 负责每次操作前的访问校验。
func New(space *keyspace.Space, resolver *access.Resolver, logger *logrus.Logger, opts Options) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	algo := opts.HashAlgorithm
	if algo == "" {
		algo = DefaultHashAlgorithm
	}
	return &Store{
		space:    space,
		fs:       space.Fs(),
		access:   resolver,
		logger:   logger,
		hashAlgo: algo,
		now:      time.Now,
		suffix:   uuid.NewString,
	}
}

// Space returns the key space backing the store.
func (s *Store) Space() *keyspace.Space {
	return s.space
}

// Read 读取完整对象内容。
func (s *Store) Read(ctx context.Context, caller access.Caller, key string) ([]byte, error) {
	result, err := s.Open(ctx, caller, key)
	if err != nil {
		return nil, err
	}
	defer result.Reader.Close()

	data, err := io.ReadAll(result.Reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
	}
	return data, nil
}

// Open returns a seekable handle for passthrough streaming without buffering.
func (s *Store) Open(ctx context.Context, caller access.Caller, key string) (*ReadResult, error) {
	filePath, err := s.prepare(ctx, caller, key, true, false)
	if err != nil {
		return nil, err
	}

	info, err := s.fs.Stat(filePath)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%s: %w", key, apperr.ErrNotFound)
	}
	f, err := s.fs.Open(filePath)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
	}

	return &ReadResult{
		Entry:  s.entryFor(key, filePath, info),
		Reader: f,
	}, nil
}

// Write 将 body 写入 key，父目录按需创建。
func (s *Store) Write(ctx context.Context, caller access.Caller, key string, body io.Reader) (*object.Entry, error) {
	if err := s.guardManifest(key); err != nil {
		return nil, err
	}
	filePath, err := s.prepare(ctx, caller, key, true, true)
	if err != nil {
		return nil, err
	}
	if info, err := s.fs.Stat(filePath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", key, apperr.ErrStorageUnavailable)
	}

	if err := s.writeFile(ctx, filePath, body); err != nil {
		return nil, fmt.Errorf("write %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
	}

	info, err := s.fs.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
	}
	entry := s.entryFor(key, filePath, info)
	return &entry, nil
}

// WriteBytes is Write for an in-memory payload.
func (s *Store) WriteBytes(ctx context.Context, caller access.Caller, key string, data []byte) (*object.Entry, error) {
	return s.Write(ctx, caller, key, bytes.NewReader(data))
}

// Stat 返回 key 对应文件或目录的条目描述。
func (s *Store) Stat(ctx context.Context, caller access.Caller, key string) (*object.Entry, error) {
	filePath, err := s.prepare(ctx, caller, key, true, false)
	if err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(filePath)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
	}
	entry := s.entryFor(key, filePath, info)
	return &entry, nil
}

// List 返回目录下的条目，按名称自然排序，目录与文件交错，manifest 不列出。目录不存在时返回空列表。
func (s *Store) List(ctx context.Context, caller access.Caller, dirKey string) ([]object.Entry, error) {
	dir, err := s.prepare(ctx, caller, dirKey, false, false)
	if err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return []object.Entry{}, nil
	}

	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %v: %w", dirKey, err, apperr.ErrStorageUnavailable)
	}

	prefix := keyspace.Normalize(dirKey)
	entries := make([]object.Entry, 0, len(infos))
	for _, child := range infos {
		if child.Name() == s.access.ManifestName() {
			continue
		}
		key := child.Name()
		if prefix != "" {
			key = prefix + "/" + child.Name()
		}
		entries = append(entries, s.entryFor(key, filepath.Join(dir, child.Name()), child))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return natural.Less(entries[i].Name, entries[j].Name)
	})
	return entries, nil
}

// Delete moves key into the trash namespace and returns the trash key. The
// caller must pass every manifest below a directory target and the manifests
// guarding the trash itself.
func (s *Store) Delete(ctx context.Context, caller access.Caller, key string) (string, error) {
	if err := s.guardManifest(key); err != nil {
		return "", err
	}
	target, err := s.prepare(ctx, caller, key, false, false)
	if err != nil {
		return "", err
	}
	if target == s.space.Root() {
		return "", fmt.Errorf("refusing to delete store root: %w", apperr.ErrNotFound)
	}
	info, err := s.fs.Stat(target)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"action": "delete", "key": key}).
			Error("trying to delete object that does not exist")
		return "", fmt.Errorf("%s: %w", key, apperr.ErrNotFound)
	}
	if info.IsDir() {
		if err := s.authorizeSubtree(caller, target); err != nil {
			return "", err
		}
	}

	trashKey := path.Join(TrashDir, filepath.Base(target)+"_"+strconv.FormatInt(s.now().Unix(), 10)+"_"+s.suffix())
	if err := s.access.AuthorizeOrFail(trashKey, caller); err != nil {
		return "", err
	}
	trashPath, err := s.space.Resolve(trashKey, true, true)
	if err != nil {
		return "", err
	}
	if err := s.fs.Rename(target, trashPath); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"action": "delete", "key": key}).
			Error("failed to move object to trash")
		return "", fmt.Errorf("delete %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
	}

	s.logger.WithFields(logrus.Fields{
		"action":    "delete",
		"key":       key,
		"trash_key": trashKey,
	}).Info("object moved to trash")
	return trashKey, nil
}

// CreateDirectory creates the directory for key; existing directories are fine.
func (s *Store) CreateDirectory(ctx context.Context, caller access.Caller, key string) error {
	if err := s.guardManifest(key); err != nil {
		return err
	}
	_, err := s.prepare(ctx, caller, key, false, true)
	return err
}

// prepare 统一执行上下文检查、访问校验与路径解析。
func (s *Store) prepare(ctx context.Context, caller access.Caller, key string, wantFile, create bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.access.AuthorizeOrFail(key, caller); err != nil {
		return "", err
	}
	return s.space.Resolve(key, wantFile, create)
}

func (s *Store) guardManifest(key string) error {
	if s.access.IsManifest(key) {
		return fmt.Errorf("%s: manifest is read-only: %w", key, apperr.ErrAccessDenied)
	}
	return nil
}

// authorizeSubtree 要求调用方通过 dir 之下每一级目录的 manifest。
func (s *Store) authorizeSubtree(caller access.Caller, dir string) error {
	return afero.Walk(s.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %v: %w", p, err, apperr.ErrStorageUnavailable)
		}
		if p == dir || !info.IsDir() {
			return nil
		}
		key, ok := s.space.KeyOf(p)
		if !ok {
			return nil
		}
		return s.access.AuthorizeOrFail(key, caller)
	})
}

func (s *Store) writeFile(ctx context.Context, filePath string, body io.Reader) error {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(filePath), ".bin-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = iox.Copy(ctx, tmp, body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = s.fs.Chmod(tmpName, filePerm)
	}
	if err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	if err := s.fs.Rename(tmpName, filePath); err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	return nil
}

func (s *Store) entryFor(key, filePath string, info os.FileInfo) object.Entry {
	key = keyspace.Normalize(key)
	entry := object.Entry{
		Name:       info.Name(),
		ParentPath: path.Dir(key),
		Key:        key,
		Kind:       object.KindFile,
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
	}
	if info.IsDir() {
		entry.Kind = object.KindDir
		entry.ContentType = object.DirectoryContentType
		return entry
	}
	entry.ContentType = s.detectContentType(filePath)
	return entry
}

func (s *Store) detectContentType(filePath string) string {
	f, err := s.fs.Open(filePath)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}
