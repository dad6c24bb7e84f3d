package handlers

import (
	"github.com/gofiber/fiber/v2"

	"sales_dashboard/middleware"
	"sales_dashboard/models"
)

// CreateDeal 创建成交记录
// 成交会同时推进对应销售员当期的业绩目标，返回值中带出更新后的目标
func (h *Handler) CreateDeal(c *fiber.Ctx) error {
	var deal models.Deal
	if err := c.BodyParser(&deal); err != nil {
		return badRequest(c, err)
	}

	result, err := h.mut.CreateDeal(c.UserContext(), middleware.RequesterFrom(c), deal)
	if err != nil {
		return respondError(c, "创建成交记录", err)
	}
	return respondData(c, fiber.StatusCreated, result)
}
