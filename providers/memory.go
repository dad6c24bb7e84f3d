package providers

import (
	"context"
	"fmt"
	"sync"

	"sales_dashboard/models"
)

// MemoryProvider 内存数据源
// 用于测试和演示环境，可以为指定实体注入失败或延迟
type MemoryProvider struct {
	name string

	mu      sync.RWMutex
	records map[models.EntityType][]models.RawRecord
	fails   map[models.EntityType]error
	blocked map[models.EntityType]bool
	fetches map[models.EntityType]int
}

// NewMemoryProvider 创建内存数据源
func NewMemoryProvider(name string) *MemoryProvider {
	return &MemoryProvider{
		name:    name,
		records: make(map[models.EntityType][]models.RawRecord),
		fails:   make(map[models.EntityType]error),
		blocked: make(map[models.EntityType]bool),
		fetches: make(map[models.EntityType]int),
	}
}

// Name 数据源名称
func (m *MemoryProvider) Name() string {
	return m.name
}

// Seed 追加原始记录
func (m *MemoryProvider) Seed(entity models.EntityType, records ...models.RawRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[entity] = append(m.records[entity], records...)
}

// Fail 让指定实体的读取返回err，传nil恢复
func (m *MemoryProvider) Fail(entity models.EntityType, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fails, entity)
		return
	}
	m.fails[entity] = err
}

// Block 让指定实体的读取一直阻塞到ctx结束，用于模拟超时
func (m *MemoryProvider) Block(entity models.EntityType, blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[entity] = blocked
}

// Fetches 返回指定实体被读取的次数
func (m *MemoryProvider) Fetches(entity models.EntityType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetches[entity]
}

// Fetch 读取原始记录的副本
func (m *MemoryProvider) Fetch(ctx context.Context, entity models.EntityType) ([]models.RawRecord, error) {
	m.mu.Lock()
	m.fetches[entity]++
	blocked := m.blocked[entity]
	failure := m.fails[entity]
	m.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failure != nil {
		return nil, failure
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.records[entity]
	out := make([]models.RawRecord, 0, len(src))
	for _, r := range src {
		cp := make(models.RawRecord, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out, nil
}

// Insert 写入规范记录
func (m *MemoryProvider) Insert(ctx context.Context, entity models.EntityType, record any) error {
	raw, err := toRawRecord(record)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if failure := m.fails[entity]; failure != nil {
		return failure
	}
	m.records[entity] = append(m.records[entity], raw)
	return nil
}

// Update 按id替换规范记录
func (m *MemoryProvider) Update(ctx context.Context, entity models.EntityType, id string, record any) error {
	raw, err := toRawRecord(record)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if failure := m.fails[entity]; failure != nil {
		return failure
	}
	for i, existing := range m.records[entity] {
		if fmt.Sprint(existing["id"]) == id {
			m.records[entity][i] = raw
			return nil
		}
	}
	return fmt.Errorf("%s %s: %w", entity, id, models.ErrNotFound)
}
