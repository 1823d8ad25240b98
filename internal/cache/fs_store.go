package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"github.com/any-bin/any-bin/internal/iox"
	"github.com/any-bin/any-bin/internal/keyspace"
)

const (
	cacheDirPerm  = 0o700
	cacheFilePerm = 0o600
)

// NewStore 以 <cachePath>/bin 为根目录构建磁盘缓存，整站复用一份实例。
func NewStore(cachePath string, fsys afero.Fs) (Store, error) {
	if cachePath == "" {
		return nil, errors.New("cache path required")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	abs, err := filepath.Abs(cachePath)
	if err != nil {
		return nil, fmt.Errorf("resolve cache path: %w", err)
	}
	base := filepath.Join(abs, "bin")
	if err := fsys.MkdirAll(base, cacheDirPerm); err != nil {
		return nil, fmt.Errorf("create cache path: %w", err)
	}

	return &fileStore{
		basePath: base,
		fs:       fsys,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一 key 并发写入。
type fileStore struct {
	basePath string
	fs       afero.Fs

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// HashKey returns the hex blake3 digest used to place key in the fan-out tree.
func HashKey(key string) string {
	sum := blake3.Sum256([]byte(keyspace.Normalize(key)))
	return hex.EncodeToString(sum[:])
}

func (s *fileStore) Path(key string) string {
	h := HashKey(key)
	return filepath.Join(s.basePath, h[0:1], h[1:2], h)
}

func (s *fileStore) Get(ctx context.Context, key string) (*ReadResult, error) {
	entry, err := s.Stat(ctx, key)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(entry.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &ReadResult{
		Entry:  *entry,
		Reader: f,
	}, nil
}

func (s *fileStore) Stat(ctx context.Context, key string) (*Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath := s.Path(key)
	info, err := s.fs.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	return &Entry{
		Key:       keyspace.Normalize(key),
		FilePath:  filePath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}, nil
}

func (s *fileStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (*Entry, error) {
	unlock := s.lockEntry(key)
	defer unlock()

	filePath := s.Path(key)
	if err := s.fs.MkdirAll(filepath.Dir(filePath), cacheDirPerm); err != nil {
		return nil, err
	}

	tempFile, err := afero.TempFile(s.fs, filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	written, err := iox.Copy(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = s.fs.Chmod(tempName, cacheFilePerm)
	}
	if err != nil {
		_ = s.fs.Remove(tempName)
		return nil, err
	}

	if err := s.fs.Rename(tempName, filePath); err != nil {
		_ = s.fs.Remove(tempName)
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := s.fs.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, err
	}

	entry := Entry{
		Key:       keyspace.Normalize(key),
		FilePath:  filePath,
		SizeBytes: written,
		ModTime:   modTime,
	}
	return &entry, nil
}

func (s *fileStore) Remove(ctx context.Context, key string) error {
	unlock := s.lockEntry(key)
	defer unlock()

	if err := s.fs.Remove(s.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *fileStore) Touch(key string, at time.Time) error {
	return s.fs.Chtimes(s.Path(key), at, at)
}

func (s *fileStore) lockEntry(key string) func() {
	key = keyspace.Normalize(key)
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
