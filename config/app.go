package config

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sales_dashboard/handlers"
	"sales_dashboard/routes"
)

// SetupApp 组装看板服务的Fiber应用
// 依次完成：应用配置、访问日志与panic恢复、跨域、/metrics、/api路由
// gatherer为nil时不暴露指标接口
func SetupApp(h *handlers.Handler, auth fiber.Handler, gatherer prometheus.Gatherer) *fiber.App {
	app := fiber.New(fiber.Config{
		// 路由区分大小写，且不自动匹配结尾斜杠
		CaseSensitive: true,
		StrictRouting: true,
		ServerHeader: "Sales Dashboard",
		// 写接口的请求体上限10MB
		BodyLimit: 10 * 1024 * 1024,
		// 自定义错误处理，处理函数未处理的错误统一返回 {success:false, error}
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			} else {
				log.Printf("未处理的错误: %v", err)
			}

			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		},
		// 使用标准JSON编解码器，确保正确处理UTF-8字符
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
		Immutable:   true,
		AppName:     "Sales Dashboard API",
		ReadTimeout: 60 * time.Second, // 读取超时时间，防止慢客户端攻击
		IdleTimeout: 60 * time.Second, // 空闲超时时间，优化连接池使用
		// 推送接口是长连接，不设置写超时
	})

	// 访问日志
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		Output: os.Stdout,
	}))

	// 处理函数panic时返回500而不是退出进程
	app.Use(recover.New())

	// 看板前端与API可能不同源
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
		// 预检结果缓存12小时
		MaxAge: int(12 * time.Hour.Seconds()),
	}))

	// 指标接口不经过认证
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	routes.SetupRoutes(app, h, auth)

	log.Println("Fiber应用已创建，路由已设置")

	return app
}
