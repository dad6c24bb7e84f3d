package routes

import (
	"github.com/gofiber/fiber/v2"

	"sales_dashboard/handlers"
)

// RegisterDashboardRoutes 设置看板读取路由
func RegisterDashboardRoutes(api fiber.Router, h *handlers.Handler) {
	api.Get("/unified-data", h.GetUnifiedData) // 统一数据（轮询）
	api.Get("/stream", h.Stream)               // 实时推送
}
