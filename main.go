package main

import (
	"context"
	"log"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sales_dashboard/broadcaster"
	"sales_dashboard/cache"
	"sales_dashboard/config"
	"sales_dashboard/database"
	"sales_dashboard/handlers"
	"sales_dashboard/metrics"
	"sales_dashboard/middleware"
	"sales_dashboard/models"
	"sales_dashboard/providers"
	"sales_dashboard/services"
	"sales_dashboard/utils"
)

// 关系库承载的实体类型
var relationalEntities = []models.EntityType{
	models.EntityDeals,
	models.EntityCallbacks,
	models.EntityTargets,
	models.EntityUsers,
}

// 旧系统CSV导出覆盖的实体类型，优先级最低
var legacyEntities = []models.EntityType{
	models.EntityDeals,
	models.EntityCallbacks,
	models.EntityTargets,
	models.EntityNotifications,
	models.EntityUsers,
}

func main() {
	settings := config.LoadSettings()
	clk := clock.WallClock

	// 指标
	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	guard := providers.GuardConfig{
		Timeout:       settings.ProviderTimeout,
		RatePerSecond: settings.ProviderRate,
		Burst:         int(settings.ProviderRate),
		Metrics:       collector,
	}

	// 数据源注册，注册顺序即同一实体多数据源合并时的优先级
	sources := providers.NewRegistry()
	var cleanups []func()

	if settings.ProviderMode == "memory" {
		log.Println("使用内存数据源（演示模式）")
		mem := providers.NewMemoryProvider("memory")
		for _, e := range legacyEntities {
			sources.Register(e, providers.Guard(mem, guard))
			sources.SetWriter(e, mem)
		}
	} else {
		db, err := database.Open(database.Options{
			Host:     settings.DBHost,
			Port:     settings.DBPort,
			User:     settings.DBUser,
			Password: settings.DBPassword,
			Name:     settings.DBName,
		})
		if err != nil {
			log.Fatalf("初始化数据库失败: %v", err)
		}
		if err := database.Migrate(db); err != nil {
			log.Fatalf("%v", err)
		}
		cleanups = append(cleanups, func() { database.Close(db) })

		relational := providers.NewRelationalProvider(db)
		guardedRelational := providers.Guard(relational, guard)
		for _, e := range relationalEntities {
			sources.Register(e, guardedRelational)
			sources.SetWriter(e, relational)
		}

		if settings.MongoURI != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			client, mdb, err := providers.ConnectMongo(ctx, settings.MongoURI, settings.MongoDB)
			cancel()
			if err != nil {
				log.Fatalf("连接文档库失败: %v", err)
			}
			cleanups = append(cleanups, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := client.Disconnect(ctx); err != nil {
					log.Printf("断开文档库连接失败: %v", err)
				}
			})

			document := providers.NewDocumentProvider(mdb)
			guardedDocument := providers.Guard(document, guard)
			sources.Register(models.EntityNotifications, guardedDocument)
			sources.SetWriter(models.EntityNotifications, document)
			sources.Register(models.EntityCallbacks, guardedDocument)
		} else {
			sources.Register(models.EntityNotifications, guardedRelational)
			sources.SetWriter(models.EntityNotifications, relational)
		}
	}

	var legacy *providers.LegacyCSVProvider
	if settings.LegacyCSVDir != "" {
		legacy = providers.NewLegacyCSVProvider(settings.LegacyCSVDir)
		guardedLegacy := providers.Guard(legacy, guard)
		for _, e := range legacyEntities {
			sources.Register(e, guardedLegacy)
		}
	}

	// 核心服务
	store := cache.New(cache.Config{Clock: clk, SweepInterval: settings.CacheSweep, Metrics: collector})
	agg := services.NewAggregator(services.Config{
		Registry:     sources,
		Cache:        store,
		Metrics:      collector,
		Clock:        clk,
		ListTTL:      settings.CacheTTL,
		ReferenceTTL: settings.ReferenceCacheTTL,
	})
	hub := broadcaster.New(broadcaster.Config{
		Fetcher:  agg,
		Clock:    clk,
		Interval: settings.BroadcastInterval,
		Metrics:  collector,
	})
	mutations := services.NewMutations(services.MutationConfig{
		Registry:   sources,
		Aggregator: agg,
		Notifier:   hub,
		Clock:      clk,
	})

	// 旧系统导出文件变化时使缓存失效并推送
	if legacy != nil {
		watcher, err := providers.WatchLegacyDir(legacy.Dir(), func(e models.EntityType) {
			log.Printf("旧系统导出文件变化: %s", e)
			agg.Invalidate(e)
			hub.Notify(e)
		})
		if err != nil {
			log.Printf("监听旧系统导出目录失败: %v", err)
		} else {
			cleanups = append(cleanups, func() { watcher.Close() })
		}
	}

	// 认证
	limiter := utils.NewAuthLimiter(clk, 5, 15*time.Minute, time.Minute)
	auth := middleware.RequesterAuthMiddleware(middleware.AuthConfig{
		Mode:    settings.AuthMode,
		Secret:  utils.ResolveJWTSecret(settings.JWTSecret, settings.Env),
		Limiter: limiter,
	})
	if settings.AuthMode == middleware.AuthModeQuery {
		log.Println("警告: 已启用查询参数身份兼容模式，仅用于开发和测试")
	}

	h := handlers.New(handlers.Config{
		Aggregator:  agg,
		Mutations:   mutations,
		Broadcaster: hub,
		Clock:       clk,
	})
	app := config.SetupApp(h, auth, registry)

	cleanups = append(cleanups, store.Close, limiter.Close)
	config.StartServer(app, settings.ServerPort, hub.Close, cleanups...)
}
