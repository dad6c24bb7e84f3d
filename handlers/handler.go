// Package handlers 提供看板HTTP接口的处理函数
package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/juju/clock"

	"sales_dashboard/broadcaster"
	"sales_dashboard/models"
	"sales_dashboard/services"
)

const defaultHeartbeat = 15 * time.Second

// Config 处理器依赖
type Config struct {
	Aggregator  *services.Aggregator
	Mutations   *services.Mutations
	Broadcaster *broadcaster.Broadcaster
	Heartbeat   time.Duration // 推送连接的心跳间隔
	Clock       clock.Clock   // 心跳计时，默认系统时钟
}

// Handler HTTP处理器
type Handler struct {
	agg       *services.Aggregator
	mut       *services.Mutations
	hub       *broadcaster.Broadcaster
	heartbeat time.Duration
	clock     clock.Clock
}

// New 创建处理器
func New(cfg Config) *Handler {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Handler{
		agg:       cfg.Aggregator,
		mut:       cfg.Mutations,
		hub:       cfg.Broadcaster,
		heartbeat: cfg.Heartbeat,
		clock:     cfg.Clock,
	}
}

// statusFor 把错误分类映射为HTTP状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrInvalidRecipients):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrAccessDenied):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrProviderUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// respondError 输出 {success:false, error} 响应
// 服务器内部错误只记录日志，不把细节返回给客户端
func respondError(c *fiber.Ctx, action string, err error) error {
	status := statusFor(err)
	message := err.Error()
	if status >= fiber.StatusInternalServerError {
		log.Printf("%s失败: %v", action, err)
		if status == fiber.StatusInternalServerError {
			message = action + "失败"
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// badRequest 请求参数解析失败
func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   "参数解析失败: " + err.Error(),
	})
}

// respondData 输出 {success:true, data} 响应
func respondData(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}
