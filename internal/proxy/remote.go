package proxy

import (
	"bytes"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-bin/any-bin/internal/derivative"
	"github.com/any-bin/any-bin/internal/localstore"
)

// RemoteGet 处理 GET /remote/*：经缓存网关取回对象，按查询参数生成派生图后流式返回。
func (h *Handler) RemoteGet(c fiber.Ctx) error {
	switch {
	case hasQuery(c, "list"):
		return h.remoteList(c)
	case hasQuery(c, "stat"):
		return h.remoteStat(c)
	default:
		return h.remoteRead(c)
	}
}

func (h *Handler) remoteRead(c fiber.Ctx) error {
	started := time.Now()
	key := objectKey(c)
	ctx := requestContext(c)
	params := derivative.Params{
		MaxWidth:   queryInt(c, "maxWidth"),
		MaxHeight:  queryInt(c, "maxHeight"),
		CropWidth:  queryInt(c, "cropWidth"),
		CropHeight: queryInt(c, "cropHeight"),
	}

	result, cached, err := h.derivatives.Open(ctx, key, params)
	if err != nil {
		return h.fail(c, "remote_read", key, err)
	}
	c.Set("X-Any-Bin-Derived", strconv.FormatBool(result.Derived))
	h.logResult(c, "remote_read", key, started, logrus.Fields{
		"size":    cached.Entry.SizeBytes,
		"derived": result.Derived,
	})
	return serveStream(c, cached.Reader, cached.Entry.SizeBytes, cached.Entry.ModTime, result.ContentType)
}

func (h *Handler) remoteList(c fiber.Ctx) error {
	key := objectKey(c)
	entries, err := h.gateway.List(requestContext(c), key)
	if err != nil {
		return h.fail(c, "remote_list", key, err)
	}
	return c.JSON(entries)
}

func (h *Handler) remoteStat(c fiber.Ctx) error {
	key := objectKey(c)
	meta, err := h.gateway.Metadata(requestContext(c), key)
	if err != nil {
		return h.fail(c, "remote_stat", key, err)
	}
	return c.JSON(fiber.Map{
		"key":        key,
		"modified":   meta.ModifiedAt,
		"size":       meta.SizeBytes,
		"mimetype":   meta.ContentType,
		"collection": meta.IsCollection,
	})
}

// RemotePut 处理 PUT /remote/*：写入缓存并推送到远端，推送失败时本地副本被清理。
func (h *Handler) RemotePut(c fiber.Ctx) error {
	started := time.Now()
	key := objectKey(c)
	entry, err := h.gateway.Store(requestContext(c), key, bytes.NewReader(c.Body()))
	if err != nil {
		return h.fail(c, "remote_store", key, err)
	}
	h.logResult(c, "remote_store", key, started, logrus.Fields{"size": entry.SizeBytes})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"key": entry.Key, "size": entry.SizeBytes})
}

// RemotePost 处理 multipart POST /remote/*：逐个文件写入 key 目录下，单个失败不影响其余文件。
func (h *Handler) RemotePost(c fiber.Ctx) error {
	started := time.Now()
	dirKey := objectKey(c)
	ctx := requestContext(c)

	files, cleanup, err := h.collectUploads(c)
	defer cleanup()
	if err != nil {
		return err
	}

	results := make([]localstore.UploadResult, 0, len(files))
	for _, file := range files {
		result := localstore.UploadResult{Name: file.Name}
		name := remoteUploadName(file.Name)
		switch {
		case file.Err != nil:
			result.Error = file.Err.Error()
		case name == "":
			result.Error = "invalid file name"
		default:
			key := path.Join(dirKey, name)
			if _, err := h.gateway.StoreFile(ctx, key, file.TmpPath); err != nil {
				result.Error = err.Error()
			} else {
				result.Key = key
			}
		}
		results = append(results, result)
	}
	h.logResult(c, "remote_upload", dirKey, started, logrus.Fields{"files": len(results)})
	return c.JSON(results)
}

func remoteUploadName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
