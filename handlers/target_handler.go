package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"sales_dashboard/middleware"
	"sales_dashboard/models"
)

// CreateTarget 设定业绩目标（经理、组长）
func (h *Handler) CreateTarget(c *fiber.Ctx) error {
	var target models.Target
	if err := c.BodyParser(&target); err != nil {
		return badRequest(c, err)
	}

	created, err := h.mut.CreateTarget(c.UserContext(), middleware.RequesterFrom(c), target)
	if err != nil {
		return respondError(c, "设定业绩目标", err)
	}
	return respondData(c, fiber.StatusCreated, created)
}

// targetProgressRequest 目标进度请求体
type targetProgressRequest struct {
	AgentID    string          `json:"agentId"`    // 销售员ID
	DealAmount decimal.Decimal `json:"dealAmount"` // 成交金额，数字或字符串
	Period     string          `json:"period"`     // 周期 YYYY-MM，为空时取当前月份
}

// UpdateTargetProgress 记录一笔成交对目标的推进
// 目标不存在时返回404 "no target found"
func (h *Handler) UpdateTargetProgress(c *fiber.Ctx) error {
	var body targetProgressRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, err)
	}

	target, err := h.mut.RecordTargetProgress(c.UserContext(), middleware.RequesterFrom(c),
		body.AgentID, body.DealAmount, strings.TrimSpace(body.Period))
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "no target found",
		})
	}
	if err != nil {
		return respondError(c, "更新目标进度", err)
	}
	return respondData(c, fiber.StatusOK, target)
}
