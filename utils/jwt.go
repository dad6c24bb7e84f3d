package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"sales_dashboard/models"
)

// ResolveJWTSecret 返回JWT密钥
// 未配置时生成随机密钥（仅用于开发环境），生产环境必须配置
func ResolveJWTSecret(secret, env string) []byte {
	if secret == "" {
		if env == "production" {
			log.Fatal("在生产环境中必须设置JWT_SECRET环境变量")
		}

		log.Println("警告: JWT_SECRET环境变量未设置，将使用随机生成的密钥（仅用于开发环境）")

		// 生成32字节的随机密钥
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			log.Printf("生成随机密钥失败: %v，将使用备用密钥", err)
			return []byte("sales_dashboard_jwt_secret_key_for_development_only_do_not_use_in_production")
		}
		secret = base64.StdEncoding.EncodeToString(randomKey)
	}

	// 确保密钥长度足够
	if len(secret) < 16 {
		log.Println("警告: JWT密钥长度不足，建议使用至少32字符的密钥")
	}

	return []byte(secret)
}

// DashboardClaims 看板令牌声明
// 令牌由外部认证服务签发，这里只负责校验和读取身份
type DashboardClaims struct {
	Role                 string `json:"role"`    // 角色
	UserID               string `json:"userId"`  // 用户ID
	TeamID               string `json:"teamId"`  // 所属团队
	jwt.RegisteredClaims        // 嵌入标准JWT声明（如过期时间、签发时间等）
}

// Requester 转换成请求者身份
func (c *DashboardClaims) Requester() models.Requester {
	userID := c.UserID
	if userID == "" {
		userID = c.Subject
	}
	return models.Requester{
		Role:   models.ParseRole(c.Role),
		UserID: strings.TrimSpace(userID),
		TeamID: strings.TrimSpace(c.TeamID),
	}
}

// GenerateToken 为请求者签发令牌，供测试和本地联调使用
func GenerateToken(secret []byte, req models.Requester, duration time.Duration) (string, error) {
	now := time.Now()
	claims := DashboardClaims{
		Role:   string(req.Role),
		UserID: req.UserID,
		TeamID: req.TeamID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	// 使用HS256算法签名
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken 解析并验证JWT令牌
func ParseToken(secret []byte, tokenString string) (*DashboardClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DashboardClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("无效的签名方法")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*DashboardClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("无效的令牌")
}

// BearerToken 从Authorization头中提取令牌，格式不正确时返回空串
func BearerToken(authHeader string) string {
	if len(authHeader) <= 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[7:])
}
