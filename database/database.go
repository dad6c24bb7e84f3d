// Package database 提供关系库连接和管理功能
// 该包负责处理与数据库相关的所有操作，包括：
// - 数据库连接的建立和连接池配置
// - 看板数据表的迁移
package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sales_dashboard/models"
)

// Options MySQL连接参数
type Options struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// newLogger 配置GORM日志
// 只输出慢查询和错误，记录未找到不算错误
func newLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second, // 慢查询阈值
			LogLevel:                  logger.Warn, // 日志级别
			IgnoreRecordNotFoundError: true,        // 忽略记录未找到的错误
			Colorful:                  true,        // 启用彩色输出
		},
	)
}

// Open 建立数据库连接
// 该函数负责：
// 1. 连接MySQL服务器并在数据库不存在时创建它
// 2. 建立正式连接
// 3. 配置连接池参数
// 4. 设置字符集和排序规则
func Open(opts Options) (*gorm.DB, error) {
	// 先尝试连接MySQL服务器（不指定数据库）
	// 这样可以在数据库不存在时创建它
	dsnWithoutDB := fmt.Sprintf("%s:%s@tcp(%s:%s)/?charset=utf8mb4&parseTime=True&loc=UTC",
		opts.User, opts.Password, opts.Host, opts.Port)

	tempDB, err := gorm.Open(mysql.Open(dsnWithoutDB), &gorm.Config{Logger: newLogger()})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL服务器失败: %w", err)
	}

	// 创建数据库（如果不存在）
	// 使用utf8mb4字符集和unicode_ci排序规则
	createDBSQL := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", opts.Name)
	if err := tempDB.Exec(createDBSQL).Error; err != nil {
		return nil, fmt.Errorf("创建数据库失败: %w", err)
	}
	if sqlDB, err := tempDB.DB(); err == nil {
		sqlDB.Close()
	}

	// 构建完整的数据库连接字符串
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&collation=utf8mb4_unicode_ci",
		opts.User, opts.Password, opts.Host, opts.Port, opts.Name)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: newLogger()})
	if err != nil {
		return nil, fmt.Errorf("无法连接到数据库: %w", err)
	}

	// 获取底层的sqlDB以配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("无法获取底层数据库连接: %w", err)
	}

	// 设置连接池参数
	// 这些参数需要根据实际负载情况调整
	sqlDB.SetMaxOpenConns(25)                  // 最大打开连接数
	sqlDB.SetMaxIdleConns(10)                  // 最大空闲连接数
	sqlDB.SetConnMaxLifetime(time.Hour)        // 连接最大生存时间
	sqlDB.SetConnMaxIdleTime(30 * time.Minute) // 空闲连接最大生存时间

	log.Printf("数据库已成功连接到 %s:%s/%s", opts.Host, opts.Port, opts.Name)
	return db.Set("gorm:table_options", "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"), nil
}

// Migrate 执行数据库迁移
// 使用GORM的AutoMigrate创建或更新看板数据表：
// 1. 创建不存在的表
// 2. 添加缺少的字段
// 3. 添加缺少的索引
func Migrate(db *gorm.DB) error {
	log.Println("开始数据库迁移...")

	err := db.AutoMigrate(
		// 参考数据
		&models.User{},
		// 业务数据
		&models.Deal{},
		&models.Callback{},
		&models.Target{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	log.Println("数据库迁移成功")
	return nil
}

// Close 关闭数据库连接
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("关闭数据库连接失败: %v", err)
	}
}
