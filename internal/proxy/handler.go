package proxy

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-bin/any-bin/internal/archive"
	"github.com/any-bin/any-bin/internal/cache"
	"github.com/any-bin/any-bin/internal/derivative"
	"github.com/any-bin/any-bin/internal/keyspace"
	"github.com/any-bin/any-bin/internal/localstore"
	"github.com/any-bin/any-bin/internal/logging"
	"github.com/any-bin/any-bin/internal/server"
)

// Options 汇总 Handler 依赖的组件。
type Options struct {
	Local         *localstore.Store
	Exporter      *archive.Exporter
	Gateway       *cache.Gateway
	Derivatives   *derivative.Cache
	Logger        *logrus.Logger
	HashAlgorithm string
	// TempDir 存放 multipart 上传的临时文件，为空时使用系统临时目录。
	TempDir string
}

// Handler 把 /local 与 /remote 两类请求翻译为 LocalStore、ArchiveExporter、
// CacheGateway 与 DerivativeCache 的调用，并负责流式输出与结构化日志。
type Handler struct {
	local       *localstore.Store
	exporter    *archive.Exporter
	gateway     *cache.Gateway
	derivatives *derivative.Cache
	logger      *logrus.Logger
	hashAlgo    string
	tempDir     string
}

// NewHandler constructs the object handler.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	algo := opts.HashAlgorithm
	if algo == "" {
		algo = localstore.DefaultHashAlgorithm
	}
	return &Handler{
		local:       opts.Local,
		exporter:    opts.Exporter,
		gateway:     opts.Gateway,
		derivatives: opts.Derivatives,
		logger:      logger,
		hashAlgo:    algo,
		tempDir:     opts.TempDir,
	}
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

// objectKey 取出通配段并规范化为 key。
func objectKey(c fiber.Ctx) string {
	return keyspace.Normalize(c.Params("*"))
}

func hasQuery(c fiber.Ctx, name string) bool {
	return c.Request().URI().QueryArgs().Has(name)
}

func queryInt(c fiber.Ctx, name string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// serveStream 写出对象头部并以流的方式返回 body；reader 在发送完成后由 fasthttp 关闭。
func serveStream(c fiber.Ctx, reader io.ReadCloser, size int64, modTime time.Time, contentType string) error {
	if contentType != "" {
		c.Set(fiber.HeaderContentType, contentType)
	}
	if !modTime.IsZero() {
		c.Set(fiber.HeaderLastModified, modTime.UTC().Format(http.TimeFormat))
	}
	c.Status(fiber.StatusOK)
	if c.Method() == http.MethodHead {
		c.Response().Header.SetContentLength(int(size))
		return reader.Close()
	}
	return c.SendStream(reader, int(size))
}

// notModified 依据 If-Modified-Since 判断是否可以返回 304，精度为秒。
func notModified(c fiber.Ctx, modTime time.Time) bool {
	raw := c.Get(fiber.HeaderIfModifiedSince)
	if raw == "" || modTime.IsZero() {
		return false
	}
	since, err := http.ParseTime(raw)
	if err != nil {
		return false
	}
	return !modTime.Truncate(time.Second).After(since)
}

// collectUploads 将 multipart 中的所有文件落盘到临时目录，返回上传描述与清理函数。
func (h *Handler) collectUploads(c fiber.Ctx) ([]localstore.UploadedFile, func(), error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, func() {}, fiber.NewError(fiber.StatusBadRequest, "invalid multipart form")
	}

	var (
		files []localstore.UploadedFile
		temps []string
	)
	cleanup := func() {
		for _, p := range temps {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				h.logger.WithError(err).WithField("tmp", p).Warn("upload_tmp_cleanup_failed")
			}
		}
	}
	for _, headers := range form.File {
		for _, fh := range headers {
			file := localstore.UploadedFile{Name: fh.Filename}
			tmp, err := h.spool(fh)
			if err != nil {
				file.Err = err
			} else {
				file.TmpPath = tmp
				temps = append(temps, tmp)
			}
			files = append(files, file)
		}
	}
	return files, cleanup, nil
}

func (h *Handler) spool(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(h.tempDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload temp: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("spool upload: %w", err)
	}
	return tmp.Name(), nil
}

func (h *Handler) fail(c fiber.Ctx, action, key string, err error) error {
	return server.RenderError(c, h.logger, action, key, err)
}

func (h *Handler) logResult(c fiber.Ctx, action, key string, started time.Time, extra logrus.Fields) {
	fields := logging.KeyFields(action, key)
	fields["request_id"] = server.RequestID(c)
	fields["caller"] = server.CallerFrom(c).ID
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	for k, v := range extra {
		fields[k] = v
	}
	h.logger.WithFields(fields).Info("object_request_complete")
}
