// Package derivative 在 cache.Gateway 之上生成图片派生物（等比缩放与居中裁剪）。
// 每个 (操作, 参数, 源 key) 组合对应一个合成 key，派生文件与普通缓存共用同一
// 扇出目录；派生文件的修改时间不早于其源缓存文件时才会被复用。
package derivative

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-bin/any-bin/internal/apperr"
	"github.com/any-bin/any-bin/internal/cache"
	"github.com/any-bin/any-bin/internal/metrics"
)

// SourceResolver 提供源对象的本地缓存副本，由 *cache.Gateway 实现。
type SourceResolver interface {
	Resolve(ctx context.Context, key string) (*cache.Entry, error)
	Files() cache.Store
}

// Cache produces resized and cropped variants of cached images.
type Cache struct {
	source   SourceResolver
	store    cache.Store
	defaults Params
	group    singleflight.Group
	logger   *logrus.Logger
}

// Result 描述最终返回的文件及其 content type。
type Result struct {
	Entry       cache.Entry
	ContentType string
	// Derived 为 false 表示直接返回了源文件。
	Derived bool
}

// New builds a derivative cache; defaults apply when a request leaves a field at 0.
func New(source SourceResolver, defaults Params, logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Cache{
		source:   source,
		store:    source.Files(),
		defaults: defaults,
		logger:   logger,
	}
}

// Defaults returns the configured default parameters.
func (c *Cache) Defaults() Params {
	return c.defaults
}

// Resolve 解析源 key，并按需依次执行缩放与裁剪。
func (c *Cache) Resolve(ctx context.Context, key string, override Params) (*Result, error) {
	src, err := c.source.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.Apply(ctx, *src, c.defaults.Merge(override))
}

// Open resolves key like Resolve and opens the resulting file. A file removed
// by a concurrent refresh between the two steps triggers one more resolve.
func (c *Cache) Open(ctx context.Context, key string, override Params) (*Result, *cache.ReadResult, error) {
	for attempt := 0; ; attempt++ {
		result, err := c.Resolve(ctx, key, override)
		if err != nil {
			return nil, nil, err
		}
		opened, err := c.store.Get(ctx, result.Entry.Key)
		if err == nil {
			return result, opened, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			return nil, nil, fmt.Errorf("open cache %s: %v: %w", result.Entry.Key, err, apperr.ErrStorageUnavailable)
		}
		if attempt > 0 {
			return nil, nil, fmt.Errorf("%s: %w", key, apperr.ErrCacheMissUnfetchable)
		}
		c.logger.WithFields(logrus.Fields{
			"action": "derivative",
			"key":    result.Entry.Key,
		}).Debug("cache_file_vanished")
	}
}

// Apply derives from an already cached source entry. Non-images and empty
// params return the source unchanged.
func (c *Cache) Apply(ctx context.Context, src cache.Entry, p Params) (*Result, error) {
	contentType := c.detect(src)
	result := &Result{Entry: src, ContentType: contentType}
	if p.IsZero() || !strings.HasPrefix(contentType, "image/") {
		return result, nil
	}
	format, ok := formatFor(contentType)
	if !ok {
		metrics.RecordDerivative("any", "unsupported")
		c.logger.WithFields(logrus.Fields{
			"action":   "derivative",
			"key":      src.Key,
			"mimetype": contentType,
		}).Debug("derivative_format_unsupported")
		return result, nil
	}

	current := src
	if p.WantsResize() {
		next, derived, err := c.resize(ctx, current, format, p.MaxWidth, p.MaxHeight)
		if err != nil {
			return nil, err
		}
		if derived {
			current = *next
			result.Derived = true
		}
	}
	if p.WantsCrop() {
		next, err := c.crop(ctx, current, format, p.CropWidth, p.CropHeight)
		if err != nil {
			return nil, err
		}
		current = *next
		result.Derived = true
	}
	result.Entry = current
	return result, nil
}

func (c *Cache) resize(ctx context.Context, src cache.Entry, format imaging.Format, maxWidth, maxHeight int) (*cache.Entry, bool, error) {
	key := ResizedKey(maxWidth, maxHeight, src.Key)
	if entry, ok := c.valid(ctx, key, src); ok {
		metrics.RecordDerivative("resize", "hit")
		return entry, true, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		img, err := c.decode(ctx, src)
		if err != nil {
			return nil, err
		}
		bounds := img.Bounds()
		width, height := FitSize(bounds.Dx(), bounds.Dy(), maxWidth, maxHeight)
		if width == bounds.Dx() && height == bounds.Dy() {
			return nil, nil
		}
		resized := imaging.Resize(img, width, height, imaging.Lanczos)
		return c.save(ctx, key, resized, format)
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		metrics.RecordDerivative("resize", "unchanged")
		return nil, false, nil
	}
	metrics.RecordDerivative("resize", "generate")
	return v.(*cache.Entry), true, nil
}

func (c *Cache) crop(ctx context.Context, src cache.Entry, format imaging.Format, cropWidth, cropHeight int) (*cache.Entry, error) {
	key := CroppedKey(cropWidth, cropHeight, src.Key)
	if entry, ok := c.valid(ctx, key, src); ok {
		metrics.RecordDerivative("crop", "hit")
		return entry, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		img, err := c.decode(ctx, src)
		if err != nil {
			return nil, err
		}
		bounds := img.Bounds()
		window := CropWindow(bounds.Dx(), bounds.Dy(), cropWidth, cropHeight).Add(bounds.Min)
		cropped := imaging.Crop(img, window)
		resized := imaging.Resize(cropped, cropWidth, cropHeight, imaging.Lanczos)
		return c.save(ctx, key, resized, format)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordDerivative("crop", "generate")
	return v.(*cache.Entry), nil
}

// valid 派生文件存在且不早于源缓存文件时可复用。
func (c *Cache) valid(ctx context.Context, key string, src cache.Entry) (*cache.Entry, bool) {
	entry, err := c.store.Stat(ctx, key)
	if err != nil {
		return nil, false
	}
	if entry.ModTime.Before(src.ModTime) {
		c.logger.WithFields(logrus.Fields{
			"action": "derivative",
			"key":    key,
		}).Debug("derivative_outdated")
		return nil, false
	}
	return entry, true
}

func (c *Cache) decode(ctx context.Context, src cache.Entry) (image.Image, error) {
	result, err := c.store.Get(ctx, src.Key)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %v: %w", src.Key, err, apperr.ErrStorageUnavailable)
	}
	defer result.Reader.Close()
	img, err := imaging.Decode(result.Reader)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", src.Key, err, apperr.ErrUnsupportedFormat)
	}
	return img, nil
}

func (c *Cache) save(ctx context.Context, key string, img image.Image, format imaging.Format) (*cache.Entry, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return nil, fmt.Errorf("encode %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
	}
	entry, err := c.store.Put(ctx, key, &buf, cache.PutOptions{})
	if err != nil {
		_ = c.store.Remove(ctx, key)
		return nil, fmt.Errorf("write %s: %v: %w", key, err, apperr.ErrStorageUnavailable)
	}
	c.logger.WithFields(logrus.Fields{
		"action": "derivative",
		"key":    key,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("derivative_generated")
	return entry, nil
}

func (c *Cache) detect(entry cache.Entry) string {
	result, err := c.store.Get(context.Background(), entry.Key)
	if err != nil {
		return "application/octet-stream"
	}
	defer result.Reader.Close()
	mt, err := mimetype.DetectReader(result.Reader)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

// formatFor 将 MIME 类型映射为 imaging 可编码的格式，保持派生图与源图同类型。
func formatFor(contentType string) (imaging.Format, bool) {
	switch strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]) {
	case "image/jpeg":
		return imaging.JPEG, true
	case "image/png":
		return imaging.PNG, true
	case "image/gif":
		return imaging.GIF, true
	case "image/bmp", "image/x-ms-bmp":
		return imaging.BMP, true
	case "image/tiff":
		return imaging.TIFF, true
	default:
		return 0, false
	}
}
