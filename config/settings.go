// Package config 提供应用程序配置和初始化功能
// 该包负责处理应用程序的配置加载、Fiber应用创建和服务器启动等核心功能
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings 运行配置
// 缓存时间、推送间隔和数据源超时是运维调优参数，全部通过环境变量配置
type Settings struct {
	Env        string // 运行环境，production时必须配置JWT_SECRET
	ServerPort string // 监听端口

	// 关系库（MySQL）
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	MongoURI     string // 文档库地址，为空时不启用
	MongoDB      string // 文档库名称
	LegacyCSVDir string // 旧系统CSV导出目录，为空时不启用
	ProviderMode string // memory 时使用内存数据源（演示）

	JWTSecret string
	AuthMode  string // jwt 或 query

	CacheTTL          time.Duration // 列表缓存时间
	ReferenceCacheTTL time.Duration // 用户参考数据缓存时间
	CacheSweep        time.Duration // 过期清理间隔
	BroadcastInterval time.Duration // 推送重新计算间隔
	ProviderTimeout   time.Duration // 单次数据源调用超时
	ProviderRate      float64       // 单个数据源每秒调用上限
}

// LoadSettings 加载配置
// 先读取.env文件（不存在时忽略），再读取环境变量；数值不合法时使用默认值
func LoadSettings() Settings {
	if err := godotenv.Load(); err != nil {
		log.Println("未找到.env文件，使用环境变量")
	}

	return Settings{
		Env:               getEnv("APP_ENV", "development"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		DBHost:            getEnv("DB_HOST", "127.0.0.1"),
		DBPort:            getEnv("DB_PORT", "3306"),
		DBUser:            getEnv("DB_USER", "root"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            getEnv("DB_NAME", "sales_dashboard"),
		MongoURI:          os.Getenv("MONGO_URI"),
		MongoDB:           getEnv("MONGO_DB", "sales_dashboard"),
		LegacyCSVDir:      os.Getenv("LEGACY_CSV_DIR"),
		ProviderMode:      strings.ToLower(os.Getenv("PROVIDER_MODE")),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AuthMode:          strings.ToLower(getEnv("AUTH_MODE", "jwt")),
		CacheTTL:          getSeconds("CACHE_TTL_SECONDS", 30),
		ReferenceCacheTTL: getSeconds("REFERENCE_CACHE_TTL_SECONDS", 300),
		CacheSweep:        getSeconds("CACHE_SWEEP_SECONDS", 60),
		BroadcastInterval: getSeconds("BROADCAST_INTERVAL_SECONDS", 3),
		ProviderTimeout:   time.Duration(getInt("PROVIDER_TIMEOUT_MS", 12000)) * time.Millisecond,
		ProviderRate:      float64(getInt("PROVIDER_RATE_PER_SECOND", 20)),
	}
}

// getEnv 读取环境变量，为空时返回默认值
func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// getInt 读取正整数环境变量
func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("环境变量%s的值%q不合法，使用默认值%d", key, raw, fallback)
		return fallback
	}
	return n
}

func getSeconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}
