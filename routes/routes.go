package routes

import (
	"github.com/gofiber/fiber/v2"

	"sales_dashboard/handlers"
)

// SetupRoutes 设置所有API路由
// 健康检查无需认证，其余接口都经过认证中间件
func SetupRoutes(app *fiber.App, h *handlers.Handler, auth fiber.Handler) {
	// 不需要认证的路由 - 必须放在前面，避免被认证中间件拦截
	app.Get("/api/health", h.Health) // 健康检查

	// API路由组
	api := app.Group("/api", auth)

	// 设置各模块路由
	RegisterDashboardRoutes(api, h)
	RegisterDealRoutes(api, h)
	RegisterCallbackRoutes(api, h)
	RegisterTargetRoutes(api, h)
	RegisterNotificationRoutes(api, h)
}
