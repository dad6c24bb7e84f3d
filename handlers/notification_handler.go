package handlers

import (
	"github.com/gofiber/fiber/v2"

	"sales_dashboard/middleware"
	"sales_dashboard/models"
)

// CreateNotification 发送通知（经理、组长）
// recipients为用户ID列表，包含"ALL"时发送给全部用户
func (h *Handler) CreateNotification(c *fiber.Ctx) error {
	var n models.Notification
	if err := c.BodyParser(&n); err != nil {
		return badRequest(c, err)
	}

	created, err := h.mut.CreateNotification(c.UserContext(), middleware.RequesterFrom(c), n)
	if err != nil {
		return respondError(c, "发送通知", err)
	}
	return respondData(c, fiber.StatusCreated, created)
}

// MarkNotificationRead 标记通知为已读
func (h *Handler) MarkNotificationRead(c *fiber.Ctx) error {
	n, err := h.mut.MarkNotificationRead(c.UserContext(), middleware.RequesterFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, "标记通知已读", err)
	}
	return respondData(c, fiber.StatusOK, n)
}
