package providers

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"sales_dashboard/models"
)

// SourceResult 单个数据源的读取结果
type SourceResult struct {
	Source  string
	Records []models.RawRecord
	Err     error
}

// Registry 实体类型到数据源的注册表
// 同一实体可以有多个数据源，注册顺序即优先级
// 新记录写入实体的写入源，更新写回记录所在的数据源
type Registry struct {
	mu      sync.RWMutex
	sources map[models.EntityType][]RecordProvider
	writers map[models.EntityType]RecordWriter
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[models.EntityType][]RecordProvider),
		writers: make(map[models.EntityType]RecordWriter),
	}
}

// Register 为实体追加数据源
func (r *Registry) Register(entity models.EntityType, provider RecordProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[entity] = append(r.sources[entity], provider)
}

// SetWriter 设置实体的写入源
func (r *Registry) SetWriter(entity models.EntityType, writer RecordWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[entity] = writer
}

// Sources 返回实体的数据源列表副本
func (r *Registry) Sources(entity models.EntityType) []RecordProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]RecordProvider(nil), r.sources[entity]...)
}

// Writer 返回实体的写入源，未配置时返回ErrReadOnly
func (r *Registry) Writer(entity models.EntityType) (RecordWriter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.writers[entity]
	if !ok {
		return nil, fmt.Errorf("%s: %w", entity, models.ErrReadOnly)
	}
	return w, nil
}

// SourceWriter 返回名为source的已注册数据源的写入能力
// 经Guard包装的数据源按被保护的数据源判断；只读数据源返回false
func (r *Registry) SourceWriter(entity models.EntityType, source string) (RecordWriter, bool) {
	for _, src := range r.Sources(entity) {
		if src.Name() != source {
			continue
		}
		if g, ok := src.(*Guarded); ok {
			src = g.Unwrap()
		}
		w, ok := src.(RecordWriter)
		return w, ok
	}
	return nil, false
}

// FetchAll 并行读取实体的全部数据源，结果按注册顺序返回
// 单个数据源失败只记录在对应结果中，不影响其它数据源
func (r *Registry) FetchAll(ctx context.Context, entity models.EntityType) []SourceResult {
	sources := r.Sources(entity)
	if len(sources) == 0 {
		return []SourceResult{{
			Source: "none",
			Err:    fmt.Errorf("%s未配置数据源: %w", entity, models.ErrProviderUnavailable),
		}}
	}

	results := make([]SourceResult, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			records, err := src.Fetch(ctx, entity)
			results[i] = SourceResult{Source: src.Name(), Records: records, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
