// Package providers 提供看板核心的外部数据源适配
// 包括关系库、文档库、遗留CSV导出和内存数据源，以及超时限流保护和按实体的数据源注册表
package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"sales_dashboard/models"
)

// RecordProvider 记录数据源
// Fetch返回的原始记录字段名因数据源而异，由normalizer统一
type RecordProvider interface {
	Name() string
	Fetch(ctx context.Context, entity models.EntityType) ([]models.RawRecord, error)
}

// RecordWriter 可写数据源
// record为models中的规范结构指针
type RecordWriter interface {
	Insert(ctx context.Context, entity models.EntityType, record any) error
	Update(ctx context.Context, entity models.EntityType, id string, record any) error
}

// toRawRecord 把规范结构转换成原始记录
// 经过JSON转换后字段名与json标签一致，decimal金额保持字符串形式
func toRawRecord(record any) (models.RawRecord, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("编码记录失败: %w", err)
	}
	raw := models.RawRecord{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("解码记录失败: %w", err)
	}
	return raw, nil
}
