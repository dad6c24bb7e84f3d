package routes

import (
	"github.com/gofiber/fiber/v2"

	"sales_dashboard/handlers"
	"sales_dashboard/middleware"
	"sales_dashboard/models"
)

// RegisterTargetRoutes 设置业绩目标相关路由
// 设定目标仅限经理和组长
func RegisterTargetRoutes(api fiber.Router, h *handlers.Handler) {
	api.Post("/targets", middleware.RequireRoles(models.RoleManager, models.RoleTeamLeader), h.CreateTarget) // 设定目标
	api.Patch("/targets/progress", h.UpdateTargetProgress)                                                  // 记录目标进度
}

// RegisterNotificationRoutes 设置通知相关路由
// 发送通知仅限经理和组长
func RegisterNotificationRoutes(api fiber.Router, h *handlers.Handler) {
	api.Post("/notifications", middleware.RequireRoles(models.RoleManager, models.RoleTeamLeader), h.CreateNotification) // 发送通知
	api.Patch("/notifications/:id/read", h.MarkNotificationRead)                                                       // 标记已读
}
