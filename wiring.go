package main

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-bin/any-bin/internal/access"
	"github.com/any-bin/any-bin/internal/archive"
	"github.com/any-bin/any-bin/internal/cache"
	"github.com/any-bin/any-bin/internal/config"
	"github.com/any-bin/any-bin/internal/derivative"
	"github.com/any-bin/any-bin/internal/keyspace"
	"github.com/any-bin/any-bin/internal/localstore"
	"github.com/any-bin/any-bin/internal/proxy"
	"github.com/any-bin/any-bin/internal/remote"
	"github.com/any-bin/any-bin/internal/server"
	"github.com/any-bin/any-bin/internal/server/routes"
	"github.com/any-bin/any-bin/internal/version"
)

// buildApp 按“配置 → 本地存储 → 远端客户端 → 缓存网关 → Fiber app”的顺序组装组件，
// 所有请求共享同一组实例。
func buildApp(cfg *config.Config, logger *logrus.Logger) (*fiber.App, error) {
	osFs := afero.NewOsFs()
	g := cfg.Global

	space, err := keyspace.New(g.StoragePath, osFs)
	if err != nil {
		return nil, fmt.Errorf("初始化存储目录失败: %w", err)
	}
	oracle := access.NewStaticOracle(cfg.AccessGrants())
	resolver := access.NewResolver(space.Root(), g.AccessFile, oracle, logger)
	local := localstore.New(space, resolver, logger, localstore.Options{HashAlgorithm: g.HashAlgorithm})
	exporter := archive.NewExporter(space, resolver, g.TempPath, logger)

	store, err := cache.NewStore(g.CachePath, osFs)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}
	client, err := remote.NewClient(server.NewRemoteClient(cfg, logger), remote.Options{
		URL:           cfg.Remote.URL,
		Username:      cfg.Remote.Username,
		Password:      cfg.Remote.Password,
		MkcolAttempts: g.MkcolAttempts,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化远端客户端失败: %w", err)
	}
	gateway := cache.NewGateway(store, client, logger, cache.GatewayOptions{
		MetadataTTL: g.MetadataTTL.DurationValue(),
	})
	derivatives := derivative.New(gateway, cfg.Image.Params(), logger)

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Identifier: oracle,
		ListenPort: g.ListenPort,
	})
	if err != nil {
		return nil, err
	}

	routes.RegisterDiagnostics(app, routes.Status{
		Version:       version.Full(),
		StoragePath:   space.Root(),
		CachePath:     g.CachePath,
		Remote:        client.BaseURL(),
		RemoteAuth:    cfg.Remote.AuthMode(),
		MetadataTTL:   g.MetadataTTL.DurationValue(),
		HashAlgorithm: g.HashAlgorithm,
		Callers:       cfg.CallerNames(),
	})
	routes.RegisterObjectRoutes(app, proxy.NewHandler(proxy.Options{
		Local:         local,
		Exporter:      exporter,
		Gateway:       gateway,
		Derivatives:   derivatives,
		Logger:        logger,
		HashAlgorithm: g.HashAlgorithm,
		TempDir:       g.TempPath,
	}))

	return app, nil
}
