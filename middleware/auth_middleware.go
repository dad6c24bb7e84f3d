package middleware

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/gofiber/fiber/v2"

	"sales_dashboard/models"
	"sales_dashboard/utils"
)

// 认证方式
const (
	AuthModeJWT   = "jwt"   // 仅接受Bearer令牌
	AuthModeQuery = "query" // 无令牌时接受userRole/userId/managedTeam参数
)

// requesterKey 请求者在上下文中的键
const requesterKey = "requester"

// AuthConfig 认证中间件配置
type AuthConfig struct {
	Mode    string             // jwt 或 query
	Secret  []byte             // JWT签名密钥
	Limiter *utils.AuthLimiter // 按IP限制令牌校验失败次数，可以为nil
}

// RequesterAuthMiddleware 解析请求者身份的中间件
// 支持两种认证方式:
//  1. JWT令牌认证 - 通过Authorization头的Bearer令牌，或token查询参数（EventSource无法设置请求头）
//  2. 兼容模式 - AUTH_MODE=query时，通过userRole、userId、managedTeam查询参数直接指定身份
//
// 无法识别的角色不会被拒绝，读取时按失败即关闭返回空集，写操作由业务层拒绝
// 认证成功后，请求者信息存储在请求上下文中，通过RequesterFrom获取
func RequesterAuthMiddleware(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientKey := c.IP()

		// 连续校验失败的客户端在锁定期内直接拒绝
		if cfg.Limiter != nil {
			if locked, remaining := cfg.Limiter.IsLocked(clientKey); locked {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"success": false,
					"error":   fmt.Sprintf("认证失败次数过多，请在%d秒后重试", int(math.Ceil(remaining.Seconds()))),
				})
			}
		}

		tokenString := utils.BearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			tokenString = strings.TrimSpace(c.Query("token"))
		}

		if tokenString != "" {
			claims, err := utils.ParseToken(cfg.Secret, tokenString)
			if err != nil {
				log.Printf("认证中间件 - 解析JWT令牌失败: %v", err)
				if cfg.Limiter != nil && cfg.Limiter.RecordFailure(clientKey) {
					log.Printf("认证中间件 - 客户端%s校验失败次数过多，已锁定", clientKey)
				}
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"error":   "无效的认证令牌",
				})
			}
			if cfg.Limiter != nil {
				cfg.Limiter.Reset(clientKey)
			}
			c.Locals(requesterKey, claims.Requester())
			return c.Next()
		}

		if cfg.Mode != AuthModeQuery {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "未提供有效的认证令牌",
			})
		}

		// 兼容模式：身份由查询参数给出
		req := models.Requester{
			Role:   models.ParseRole(c.Query("userRole")),
			UserID: strings.TrimSpace(c.Query("userId")),
			TeamID: strings.TrimSpace(c.Query("managedTeam")),
		}
		c.Locals(requesterKey, req)
		return c.Next()
	}
}

// RequesterFrom 获取当前请求者，未经认证时返回角色未知的请求者
func RequesterFrom(c *fiber.Ctx) models.Requester {
	if req, ok := c.Locals(requesterKey).(models.Requester); ok {
		return req
	}
	return models.Requester{}
}

// RequireRoles 限定角色的中间件
func RequireRoles(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := RequesterFrom(c)
		for _, role := range roles {
			if req.Role == role {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   models.ErrAccessDenied.Error(),
		})
	}
}
