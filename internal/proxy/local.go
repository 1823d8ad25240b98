package proxy

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-bin/any-bin/internal/archive"
	"github.com/any-bin/any-bin/internal/server"
)

// LocalGet 处理 GET /local/*：默认流式返回对象，?list/?stat/?export/?hash 切换为对应操作。
func (h *Handler) LocalGet(c fiber.Ctx) error {
	switch {
	case hasQuery(c, "list"):
		return h.localList(c)
	case hasQuery(c, "stat"):
		return h.localStat(c)
	case hasQuery(c, "export"):
		return h.localExport(c)
	case hasQuery(c, "hash"):
		return h.localHash(c)
	default:
		return h.localRead(c)
	}
}

func (h *Handler) localRead(c fiber.Ctx) error {
	started := time.Now()
	key := objectKey(c)
	result, err := h.local.Open(requestContext(c), server.CallerFrom(c), key)
	if err != nil {
		return h.fail(c, "local_read", key, err)
	}
	entry := result.Entry
	if notModified(c, entry.ModifiedAt) {
		result.Reader.Close()
		c.Set(fiber.HeaderLastModified, entry.ModifiedAt.UTC().Format(http.TimeFormat))
		return c.SendStatus(fiber.StatusNotModified)
	}
	h.logResult(c, "local_read", key, started, logrus.Fields{"size": entry.SizeBytes})
	return serveStream(c, result.Reader, entry.SizeBytes, entry.ModifiedAt, entry.ContentType)
}

func (h *Handler) localList(c fiber.Ctx) error {
	key := objectKey(c)
	entries, err := h.local.List(requestContext(c), server.CallerFrom(c), key)
	if err != nil {
		return h.fail(c, "local_list", key, err)
	}
	return c.JSON(entries)
}

func (h *Handler) localStat(c fiber.Ctx) error {
	key := objectKey(c)
	entry, err := h.local.Stat(requestContext(c), server.CallerFrom(c), key)
	if err != nil {
		return h.fail(c, "local_stat", key, err)
	}
	return c.JSON(entry)
}

func (h *Handler) localExport(c fiber.Ctx) error {
	started := time.Now()
	key := objectKey(c)
	format := strings.ToLower(strings.TrimSpace(c.Query("export")))
	if format == "" {
		format = archive.FormatZip
	}
	arc, err := h.exporter.Export(requestContext(c), server.CallerFrom(c), key, format)
	if err != nil {
		return h.fail(c, "local_export", key, err)
	}
	f, err := arc.Open()
	if err != nil {
		_ = arc.Remove()
		return h.fail(c, "local_export", key, err)
	}
	c.Attachment(arc.Name)
	h.logResult(c, "local_export", key, started, logrus.Fields{"size": arc.Size})
	return serveStream(c, &archiveStream{File: f, archive: arc}, arc.Size, time.Time{}, "application/zip")
}

func (h *Handler) localHash(c fiber.Ctx) error {
	key := objectKey(c)
	algo := strings.ToLower(strings.TrimSpace(c.Query("hash")))
	if algo == "" {
		algo = h.hashAlgo
	}
	ctx := requestContext(c)
	caller := server.CallerFrom(c)
	if expected := c.Query("verify"); expected != "" {
		ok, err := h.local.VerifyHash(ctx, caller, key, expected, algo)
		if err != nil {
			return h.fail(c, "local_hash", key, err)
		}
		return c.JSON(fiber.Map{"key": key, "algorithm": algo, "match": ok})
	}
	sum, err := h.local.Hash(ctx, caller, key, algo)
	if err != nil {
		return h.fail(c, "local_hash", key, err)
	}
	return c.JSON(fiber.Map{"key": key, "algorithm": algo, "hash": sum})
}

// LocalPut 处理 PUT /local/*，请求体整体写入 key。
func (h *Handler) LocalPut(c fiber.Ctx) error {
	started := time.Now()
	key := objectKey(c)
	entry, err := h.local.Write(requestContext(c), server.CallerFrom(c), key, bytes.NewReader(c.Body()))
	if err != nil {
		return h.fail(c, "local_write", key, err)
	}
	h.logResult(c, "local_write", key, started, logrus.Fields{"size": entry.SizeBytes})
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// LocalDelete 处理 DELETE /local/*，对象被移入回收目录。
func (h *Handler) LocalDelete(c fiber.Ctx) error {
	started := time.Now()
	key := objectKey(c)
	trashKey, err := h.local.Delete(requestContext(c), server.CallerFrom(c), key)
	if err != nil {
		return h.fail(c, "local_delete", key, err)
	}
	h.logResult(c, "local_delete", key, started, logrus.Fields{"trash": trashKey})
	return c.JSON(fiber.Map{"key": key, "trash": trashKey})
}

// LocalPost 处理 POST /local/*：?mkdir 创建目录，否则按 multipart 上传到该目录。
func (h *Handler) LocalPost(c fiber.Ctx) error {
	started := time.Now()
	key := objectKey(c)
	ctx := requestContext(c)
	caller := server.CallerFrom(c)

	if hasQuery(c, "mkdir") {
		if err := h.local.CreateDirectory(ctx, caller, key); err != nil {
			return h.fail(c, "local_mkdir", key, err)
		}
		h.logResult(c, "local_mkdir", key, started, nil)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"key": key})
	}

	files, cleanup, err := h.collectUploads(c)
	defer cleanup()
	if err != nil {
		return err
	}
	results, err := h.local.Upload(ctx, caller, key, files)
	if err != nil {
		return h.fail(c, "local_upload", key, err)
	}
	h.logResult(c, "local_upload", key, started, logrus.Fields{"files": len(results)})
	return c.JSON(results)
}

// archiveStream 在流式发送结束后关闭并删除临时归档。
type archiveStream struct {
	afero.File
	archive *archive.Archive
}

func (s *archiveStream) Close() error {
	err := s.File.Close()
	if rmErr := s.archive.Remove(); err == nil {
		err = rmErr
	}
	return err
}
