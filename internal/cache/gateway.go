package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-bin/any-bin/internal/apperr"
	"github.com/any-bin/any-bin/internal/keyspace"
	"github.com/any-bin/any-bin/internal/metrics"
	"github.com/any-bin/any-bin/internal/object"
	"github.com/any-bin/any-bin/internal/remote"
)

// RemoteClient 是 Gateway 依赖的远端操作集合，由 *remote.Client 实现。
type RemoteClient interface {
	OpenObject(ctx context.Context, key string) (*remote.Object, error)
	FetchMetadata(ctx context.Context, key string) (*object.Metadata, error)
	ListChildren(ctx context.Context, parentKey string) ([]object.Entry, error)
	CreateDirectory(ctx context.Context, key string) error
	PushObject(ctx context.Context, key string, body io.Reader, length int64) error
}

// GatewayOptions 控制记忆窗口与时钟。
type GatewayOptions struct {
	MetadataTTL time.Duration
	// Now 为空时使用 time.Now，测试可注入假时钟。
	Now func() time.Time
}

// Gateway orchestrates "cache hit → revalidate against remote mtime → fetch"
// for remote objects and write-through for stores.
type Gateway struct {
	store  Store
	remote RemoteClient
	memo   *metadataMemo
	group  singleflight.Group
	logger *logrus.Logger
	now    func() time.Time
}

// NewGateway wires a cache store to a remote client.
func NewGateway(store Store, client RemoteClient, logger *logrus.Logger, opts GatewayOptions) *Gateway {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		store:  store,
		remote: client,
		memo:   newMetadataMemo(opts.MetadataTTL, now),
		logger: logger,
		now:    now,
	}
}

// Files returns the underlying cache file store.
func (g *Gateway) Files() Store {
	return g.store
}

// Resolve 返回 key 在本地缓存中的最新副本，必要时回源。
// 同一 key 的并发调用共享一次回源。
func (g *Gateway) Resolve(ctx context.Context, key string) (*Entry, error) {
	key = keyspace.Normalize(key)
	if err := checkKey(key); err != nil {
		return nil, err
	}
	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		return g.resolve(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	entry := *(v.(*Entry))
	return &entry, nil
}

// Open resolves key and opens the cached file for streaming. The file can be
// replaced by a concurrent refresh between the two steps; that case resolves
// once more before giving up.
func (g *Gateway) Open(ctx context.Context, key string) (*ReadResult, error) {
	for attempt := 0; ; attempt++ {
		if _, err := g.Resolve(ctx, key); err != nil {
			return nil, err
		}
		result, err := g.store.Get(ctx, key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("open cache %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
		}
		if attempt > 0 {
			return nil, fmt.Errorf("%s: %w", key, apperr.ErrCacheMissUnfetchable)
		}
	}
}

func (g *Gateway) resolve(ctx context.Context, key string) (*Entry, error) {
	entry, err := g.store.Stat(ctx, key)
	switch {
	case err == nil:
		if g.isFresh(ctx, key, entry) {
			metrics.RecordCacheEvent("hit")
			g.logger.WithFields(logrus.Fields{"action": "cache_resolve", "key": key}).Debug("cache_hit")
			return entry, nil
		}
		metrics.RecordCacheEvent("refresh")
		g.logger.WithFields(logrus.Fields{"action": "cache_resolve", "key": key}).Debug("cache_stale")
		if err := g.store.Remove(ctx, key); err != nil {
			return nil, fmt.Errorf("remove stale cache %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
		}
	case errors.Is(err, ErrNotFound):
		metrics.RecordCacheEvent("miss")
		g.logger.WithFields(logrus.Fields{"action": "cache_resolve", "key": key}).Debug("cache_miss")
	default:
		return nil, fmt.Errorf("stat cache %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
	}
	return g.fetch(ctx, key)
}

// isFresh 比较远端修改时间与本地缓存文件时间（秒级）。远端元数据不可得或
// 指向集合时视为过期。
func (g *Gateway) isFresh(ctx context.Context, key string, entry *Entry) bool {
	modified, ok := g.memo.Get(key)
	if !ok {
		meta, err := g.remote.FetchMetadata(ctx, key)
		if err != nil {
			g.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_revalidate",
				"key":    key,
			}).Warn("cache_revalidate_failed")
			return false
		}
		if meta.IsCollection || meta.ModifiedAt.IsZero() {
			return false
		}
		modified = meta.ModifiedAt
		g.memo.Set(key, modified)
	}

	g.logger.WithFields(logrus.Fields{
		"action":       "cache_revalidate",
		"key":          key,
		"remote_mtime": modified.Unix(),
		"cache_mtime":  entry.ModTime.Unix(),
	}).Debug("cache_compare")
	return modified.Unix() <= entry.ModTime.Unix()
}

func (g *Gateway) fetch(ctx context.Context, key string) (*Entry, error) {
	obj, err := g.remote.OpenObject(ctx, key)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_fetch",
			"key":    key,
		}).Warn("cache_fetch_failed")
		return nil, fmt.Errorf("fetch %s: %w: %w", key, apperr.ErrCacheMissUnfetchable, err)
	}
	defer obj.Body.Close()

	entry, err := g.store.Put(ctx, key, obj.Body, PutOptions{ModTime: g.now()})
	if err != nil {
		_ = g.store.Remove(ctx, key)
		g.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_fetch",
			"key":    key,
		}).Error("cache_write_failed")
		return nil, fmt.Errorf("cache %s: %v: %w", key, err, apperr.ErrCacheMissUnfetchable)
	}
	if !obj.ModifiedAt.IsZero() {
		g.memo.Set(key, obj.ModifiedAt)
	}
	metrics.RecordCacheEvent("fetch")
	return entry, nil
}

// Store 先写本地缓存，再创建远端父目录并推送；推送失败时删除本地缓存，
// 避免后续 Resolve 返回未持久化到远端的内容。
func (g *Gateway) Store(ctx context.Context, key string, body io.Reader) (*Entry, error) {
	key = keyspace.Normalize(key)
	if key == "" {
		return nil, fmt.Errorf("empty key: %w", apperr.ErrNotFound)
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}

	entry, err := g.store.Put(ctx, key, body, PutOptions{ModTime: g.now()})
	if err != nil {
		return nil, fmt.Errorf("cache %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
	}
	g.memo.Forget(key)

	if parent := keyspace.Parent(key); parent != "." && parent != "" {
		if err := g.remote.CreateDirectory(ctx, parent); err != nil {
			g.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_store",
				"key":    key,
			}).Warn("remote_parent_create_failed")
		}
	}

	if err := g.push(ctx, entry); err != nil {
		_ = g.store.Remove(ctx, key)
		metrics.RecordCacheEvent("store_failed")
		g.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_store",
			"key":    key,
			"code":   apperr.RemoteCode(err),
		}).Error("remote_push_failed")
		return nil, err
	}

	at := g.now()
	if err := g.store.Touch(key, at); err == nil {
		entry.ModTime = at
	}
	metrics.RecordCacheEvent("store")
	return entry, nil
}

// StoreFile streams a local file (e.g. an upload temp file) through Store.
func (g *Gateway) StoreFile(ctx context.Context, key, localPath string) (*Entry, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", localPath, err, apperr.ErrStorageUnavailable)
	}
	defer f.Close()
	return g.Store(ctx, key, f)
}

// List returns the remote children of key.
func (g *Gateway) List(ctx context.Context, key string) ([]object.Entry, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return g.remote.ListChildren(ctx, key)
}

// Metadata returns the remote metadata of key without touching the cache.
func (g *Gateway) Metadata(ctx context.Context, key string) (*object.Metadata, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return g.remote.FetchMetadata(ctx, key)
}

// checkKey 拒绝保留命名空间中的 key，它们只存在于本地缓存。
func checkKey(key string) error {
	if keyspace.IsReserved(key) {
		return fmt.Errorf("%q: reserved key: %w", key, apperr.ErrNotFound)
	}
	return nil
}

func (g *Gateway) push(ctx context.Context, entry *Entry) error {
	result, err := g.store.Get(ctx, entry.Key)
	if err != nil {
		return fmt.Errorf("reopen cache %s: %v: %w", entry.Key, err, apperr.ErrStorageUnavailable)
	}
	defer result.Reader.Close()
	return g.remote.PushObject(ctx, entry.Key, result.Reader, result.Entry.SizeBytes)
}
