package routes

import (
	"github.com/gofiber/fiber/v2"

	"sales_dashboard/handlers"
)

// RegisterDealRoutes 设置成交相关路由
func RegisterDealRoutes(api fiber.Router, h *handlers.Handler) {
	api.Post("/deals", h.CreateDeal) // 创建成交记录
}

// RegisterCallbackRoutes 设置回访相关路由
func RegisterCallbackRoutes(api fiber.Router, h *handlers.Handler) {
	api.Post("/callbacks", h.CreateCallback)                   // 创建回访记录
	api.Patch("/callbacks/:id/status", h.UpdateCallbackStatus) // 更新回访状态
}
