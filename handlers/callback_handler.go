package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"sales_dashboard/middleware"
	"sales_dashboard/models"
)

// CreateCallback 创建回访记录
func (h *Handler) CreateCallback(c *fiber.Ctx) error {
	var cb models.Callback
	if err := c.BodyParser(&cb); err != nil {
		return badRequest(c, err)
	}

	created, err := h.mut.CreateCallback(c.UserContext(), middleware.RequesterFrom(c), cb)
	if err != nil {
		return respondError(c, "创建回访记录", err)
	}
	return respondData(c, fiber.StatusCreated, created)
}

// UpdateCallbackStatus 更新回访状态
// 请求体 {"status": "contacted"}
func (h *Handler) UpdateCallbackStatus(c *fiber.Ctx) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, err)
	}

	status := models.CallbackStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	updated, err := h.mut.UpdateCallbackStatus(c.UserContext(), middleware.RequesterFrom(c), c.Params("id"), status)
	if err != nil {
		return respondError(c, "更新回访状态", err)
	}
	return respondData(c, fiber.StatusOK, updated)
}
