package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-bin/any-bin/internal/proxy"
)

// RegisterObjectRoutes 挂载 /local 与 /remote 两棵对象路由。
func RegisterObjectRoutes(app *fiber.App, handler *proxy.Handler) {
	if app == nil || handler == nil {
		return
	}

	for _, prefix := range []string{"/local", "/local/*"} {
		app.Get(prefix, handler.LocalGet)
		app.Put(prefix, handler.LocalPut)
		app.Delete(prefix, handler.LocalDelete)
		app.Post(prefix, handler.LocalPost)
	}

	for _, prefix := range []string{"/remote", "/remote/*"} {
		app.Get(prefix, handler.RemoteGet)
		app.Put(prefix, handler.RemotePut)
		app.Post(prefix, handler.RemotePost)
	}
}
