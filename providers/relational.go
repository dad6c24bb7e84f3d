package providers

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"sales_dashboard/models"
)

// defaultTables 实体类型到关系库表名的映射
var defaultTables = map[models.EntityType]string{
	models.EntityDeals:         models.Deal{}.TableName(),
	models.EntityCallbacks:     models.Callback{}.TableName(),
	models.EntityTargets:       models.Target{}.TableName(),
	models.EntityNotifications: models.Notification{}.TableName(),
	models.EntityUsers:         models.User{}.TableName(),
}

// RelationalProvider 关系库数据源
// 读取时按行返回原始列名，写入时使用规范结构
type RelationalProvider struct {
	db     *gorm.DB
	tables map[models.EntityType]string
}

// NewRelationalProvider 创建关系库数据源
func NewRelationalProvider(db *gorm.DB) *RelationalProvider {
	tables := make(map[models.EntityType]string, len(defaultTables))
	for k, v := range defaultTables {
		tables[k] = v
	}
	return &RelationalProvider{db: db, tables: tables}
}

// Name 数据源名称
func (p *RelationalProvider) Name() string {
	return "relational"
}

// Fetch 读取实体对应表的全部行
func (p *RelationalProvider) Fetch(ctx context.Context, entity models.EntityType) ([]models.RawRecord, error) {
	table, ok := p.tables[entity]
	if !ok {
		return nil, fmt.Errorf("关系库不提供%s: %w", entity, models.ErrProviderUnavailable)
	}

	var rows []map[string]interface{}
	if err := p.db.WithContext(ctx).Table(table).Find(&rows).Error; err != nil {
		return nil, wrapDBError(ctx, table, err)
	}

	records := make([]models.RawRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.RawRecord(row))
	}
	return records, nil
}

// Insert 插入规范记录
func (p *RelationalProvider) Insert(ctx context.Context, entity models.EntityType, record any) error {
	table, ok := p.tables[entity]
	if !ok {
		return fmt.Errorf("关系库不提供%s: %w", entity, models.ErrReadOnly)
	}
	if err := p.db.WithContext(ctx).Create(record).Error; err != nil {
		return wrapDBError(ctx, table, err)
	}
	return nil
}

// Update 保存规范记录的全部字段
func (p *RelationalProvider) Update(ctx context.Context, entity models.EntityType, id string, record any) error {
	table, ok := p.tables[entity]
	if !ok {
		return fmt.Errorf("关系库不提供%s: %w", entity, models.ErrReadOnly)
	}

	var count int64
	if err := p.db.WithContext(ctx).Table(table).Where("id = ?", id).Count(&count).Error; err != nil {
		return wrapDBError(ctx, table, err)
	}
	if count == 0 {
		return fmt.Errorf("%s %s: %w", table, id, models.ErrNotFound)
	}

	if err := p.db.WithContext(ctx).Save(record).Error; err != nil {
		return wrapDBError(ctx, table, err)
	}
	return nil
}

// wrapDBError 统一数据库错误
func wrapDBError(ctx context.Context, table string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", table, models.ErrNotFound)
	case ctx.Err() != nil:
		return fmt.Errorf("%s: %w", table, models.ErrTimeout)
	}
	return fmt.Errorf("%s: %w: %v", table, models.ErrProviderUnavailable, err)
}
