package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-bin/any-bin/internal/access"
	"github.com/any-bin/any-bin/internal/apperr"
	"github.com/any-bin/any-bin/internal/logging"
	"github.com/any-bin/any-bin/internal/metrics"
)

// Identifier maps a bearer credential to a caller. StaticOracle satisfies it.
type Identifier interface {
	Identify(credential string) access.Caller
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Identifier Identifier
	ListenPort int
	// BodyLimit 为 0 时使用 Fiber 默认值。
	BodyLimit int
}

const (
	contextKeyCaller    = "_anybin_caller"
	contextKeyRequestID = "_anybin_request_id"
)

// NewApp builds a Fiber application with request-ID/caller middleware and
// structured error handling. Routes are registered by the caller.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Identifier == nil {
		return nil, errors.New("caller identifier is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		UnescapePath:  true,
		BodyLimit:     opts.BodyLimit,
		ErrorHandler:  errorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	return app, nil
}

// requestContextMiddleware 生成请求 ID、识别调用方，并在请求结束后记录指标。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		caller := opts.Identifier.Identify(bearerToken(c.Get(fiber.HeaderAuthorization)))
		c.Locals(contextKeyCaller, caller)

		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = apperr.HTTPStatus(err)
		}
		route := c.Route().Path
		metrics.RecordHTTPRequest(c.Method(), route, status, time.Since(started))

		fields := logging.RequestFields(reqID, caller.ID, c.Method(), c.Path(), status)
		fields["action"] = "request"
		fields["route"] = route
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		opts.Logger.WithFields(fields).Debug("request_complete")
		return err
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// errorHandler 将未被 handler 处理的错误渲染为 {"error": code}。
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": strings.ToLower(strings.ReplaceAll(fe.Message, " ", "_"))})
		}
		return RenderError(c, logger, "request", "", err)
	}
}

// RenderError writes the JSON error body for err with the status derived from
// its kind. Server-side failures are logged at error level.
func RenderError(c fiber.Ctx, logger *logrus.Logger, action, key string, err error) error {
	status := apperr.HTTPStatus(err)
	fields := logging.KeyFields(action, key)
	fields["request_id"] = RequestID(c)
	fields["status"] = status
	fields["error"] = err.Error()
	switch {
	case status >= fiber.StatusInternalServerError:
		logger.WithFields(fields).Error("request_failed")
	case status == fiber.StatusForbidden:
		logger.WithFields(fields).Warn("request_denied")
	default:
		logger.WithFields(fields).Debug("request_rejected")
	}
	return c.Status(status).JSON(fiber.Map{"error": apperr.Code(err)})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// CallerFrom returns the caller identified for this request, or Anonymous.
func CallerFrom(c fiber.Ctx) access.Caller {
	if value := c.Locals(contextKeyCaller); value != nil {
		if caller, ok := value.(access.Caller); ok {
			return caller
		}
	}
	return access.Anonymous
}
