// Package models 定义了看板核心使用的规范化数据模型
// 包含实体类型、各实体的规范结构、请求者身份以及错误分类
package models

import (
	"fmt"
	"strings"
)

// EntityType 实体类型
// 每种实体类型对应一个规范化结构和一组数据源
type EntityType string

const (
	EntityDeals         EntityType = "deals"         // 成交记录
	EntityCallbacks     EntityType = "callbacks"     // 回访记录
	EntityTargets       EntityType = "targets"       // 业绩目标
	EntityNotifications EntityType = "notifications" // 通知
	EntityUsers         EntityType = "users"         // 用户（只读参考数据）
	EntityAnalytics     EntityType = "analytics"     // 派生统计，不对应任何数据源
)

// DefaultEntityTypes 未指定dataTypes时返回的实体类型，顺序即响应顺序
var DefaultEntityTypes = []EntityType{
	EntityDeals,
	EntityCallbacks,
	EntityTargets,
	EntityNotifications,
	EntityAnalytics,
}

// RawRecord 数据源返回的原始记录
// 字段名和值类型因数据源而异，由normalizer负责统一
type RawRecord map[string]any

// IsRequestable 判断实体类型是否可以通过dataTypes请求
func (e EntityType) IsRequestable() bool {
	switch e {
	case EntityDeals, EntityCallbacks, EntityTargets, EntityNotifications, EntityAnalytics:
		return true
	}
	return false
}

// ParseEntityTypes 解析逗号分隔的dataTypes参数
// 空字符串返回默认类型；重复项被忽略，保持首次出现顺序
func ParseEntityTypes(raw string) ([]EntityType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]EntityType(nil), DefaultEntityTypes...), nil
	}

	seen := make(map[EntityType]bool)
	types := make([]EntityType, 0, 4)
	for _, part := range strings.Split(raw, ",") {
		t := EntityType(strings.ToLower(strings.TrimSpace(part)))
		if t == "" {
			continue
		}
		if !t.IsRequestable() {
			return nil, fmt.Errorf("%w: 不支持的数据类型 %q", ErrValidation, part)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		types = append(types, t)
	}
	if len(types) == 0 {
		return append([]EntityType(nil), DefaultEntityTypes...), nil
	}
	return types, nil
}

// ContainsEntity 判断类型列表中是否包含指定类型
func ContainsEntity(types []EntityType, target EntityType) bool {
	for _, t := range types {
		if t == target {
			return true
		}
	}
	return false
}
