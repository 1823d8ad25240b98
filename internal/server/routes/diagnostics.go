package routes

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/any-bin/any-bin/internal/metrics"
)

// Status 是 /-/status 返回的组件摘要。
type Status struct {
	Version       string
	StoragePath   string
	CachePath     string
	Remote        string
	RemoteAuth    string
	MetadataTTL   time.Duration
	HashAlgorithm string
	Callers       []string
}

// RegisterDiagnostics 暴露 /-/status 与 /-/metrics。
func RegisterDiagnostics(app *fiber.App, status Status) {
	if app == nil {
		return
	}
	started := time.Now()

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":               "ok",
			"version":              status.Version,
			"storage_path":         status.StoragePath,
			"cache_path":           status.CachePath,
			"remote":               status.Remote,
			"remote_auth":          status.RemoteAuth,
			"metadata_ttl_seconds": int64(status.MetadataTTL / time.Second),
			"hash_algorithm":       status.HashAlgorithm,
			"callers":              len(status.Callers),
			"uptime_seconds":       int64(time.Since(started) / time.Second),
		})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(metrics.Handler()))
}
