package handlers

import (
	"bufio"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"sales_dashboard/broadcaster"
	"sales_dashboard/middleware"
	"sales_dashboard/models"
	"sales_dashboard/services"
)

// parseQuery 解析聚合查询参数
// dataTypes为逗号分隔的实体类型，limit和offset必须是整数
func parseQuery(c *fiber.Ctx) (services.Query, error) {
	types, err := models.ParseEntityTypes(c.Query("dataTypes"))
	if err != nil {
		return services.Query{}, err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return services.Query{}, err
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return services.Query{}, err
	}
	return services.Query{
		Requester:   middleware.RequesterFrom(c),
		EntityTypes: types,
		DateRange:   c.Query("dateRange"),
		Limit:       limit,
		Offset:      offset,
	}, nil
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s必须是整数", models.ErrValidation, key)
	}
	return n, nil
}

// GetUnifiedData 统一数据接口
// 部分实体失败时success仍为true，失败信息在metadata.partialErrors中；全部失败时success为false
func (h *Handler) GetUnifiedData(c *fiber.Ctx) error {
	q, err := parseQuery(c)
	if err != nil {
		return respondError(c, "查询统一数据", err)
	}

	snap, err := h.agg.FetchUnified(c.UserContext(), q)
	if err != nil {
		return respondError(c, "查询统一数据", err)
	}

	if snap.Failed() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success":  false,
			"error":    models.ErrProviderUnavailable.Error(),
			"data":     snap.Data(),
			"metadata": snap.Metadata,
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"data":     snap.Data(),
		"metadata": snap.Metadata,
	})
}

// Stream 实时推送接口
// 以text/event-stream输出快照，连接建立时立即推送一次，之后按间隔或数据变更推送
// 写入失败说明客户端已断开，随即取消订阅
func (h *Handler) Stream(c *fiber.Ctx) error {
	q, err := parseQuery(c)
	if err != nil {
		return respondError(c, "订阅推送", err)
	}

	sub, err := h.hub.Subscribe(q)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		h.pump(w, sub)
	}))
	return nil
}

// pump 把订阅的快照和心跳写到连接上，直到写入失败或推送服务关闭
func (h *Handler) pump(w *bufio.Writer, sub *broadcaster.Subscription) {
	defer sub.Close()

	heartbeat := h.clock.NewTimer(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case snap := <-sub.C:
			if err := broadcaster.WriteSnapshot(w, snap); err != nil {
				log.Printf("推送连接已断开: %v", err)
				return
			}
		case <-heartbeat.Chan():
			if err := broadcaster.WriteHeartbeat(w); err != nil {
				return
			}
			heartbeat.Reset(h.heartbeat)
		case <-sub.Done():
			return
		}
	}
}

// Health 健康检查
func (h *Handler) Health(c *fiber.Ctx) error {
	return respondData(c, fiber.StatusOK, fiber.Map{
		"status": "ok",
		"topics": h.hub.TopicCount(),
	})
}
