// Package cache 提供带过期时间和单飞合并的缓存
// 同一个键同时最多只有一次计算在进行，并发调用者共享同一结果
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/singleflight"

	"sales_dashboard/metrics"
)

// ComputeFunc 缓存未命中时执行的计算
type ComputeFunc func() (any, error)

// Config 缓存配置
type Config struct {
	Clock         clock.Clock        // 时钟，测试中可注入testclock
	SweepInterval time.Duration      // 过期条目清理间隔，0表示只做惰性淘汰
	Metrics       *metrics.Collector // 指标采集器，可以为nil
}

// entry 缓存条目
type entry struct {
	value     any
	expiresAt time.Time
}

// Store 缓存存储
// 过期条目在下次访问时惰性淘汰，同时由清理协程定期回收
type Store struct {
	clock   clock.Clock
	metrics *metrics.Collector

	mu         sync.RWMutex
	entries    map[string]entry
	generation uint64         // 每次失效递增，用于丢弃失效前开始的计算结果
	inflight   map[string]int // 正在计算中的键
	group      singleflight.Group

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New 创建缓存存储
func New(cfg Config) *Store {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	s := &Store{
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
		entries:  make(map[string]entry),
		inflight: make(map[string]int),
		done:     make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepRoutine(cfg.SweepInterval)
	}
	return s
}

// GetOrCompute 返回键对应的缓存值，未命中时执行compute并写入缓存
// 并发的相同键调用合并为一次计算；等待期间ctx取消则立即返回
// 计算出错时错误会返回给所有等待者，但不会写入缓存
func (s *Store) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (any, error) {
	if v, ok := s.Get(key); ok {
		s.metrics.CacheHit()
		return v, nil
	}
	s.metrics.CacheMiss()

	ch := s.group.DoChan(key, func() (any, error) {
		// 排队期间上一轮计算可能已经写入
		if v, ok := s.Get(key); ok {
			return v, nil
		}

		s.mu.Lock()
		gen := s.generation
		s.inflight[key]++
		s.mu.Unlock()

		s.metrics.CacheCompute()
		v, err := compute()

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.inflight[key]--; s.inflight[key] <= 0 {
			delete(s.inflight, key)
		}
		if err != nil {
			return nil, err
		}
		if s.generation == gen && ttl > 0 {
			s.entries[key] = entry{value: v, expiresAt: s.clock.Now().Add(ttl)}
		}
		return v, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get 读取未过期的缓存值
func (s *Store) Get(key string) (any, bool) {
	now := s.clock.Now()

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.Before(e.expiresAt) {
		return e.value, true
	}

	// 惰性淘汰
	s.mu.Lock()
	if current, ok := s.entries[key]; ok && !now.Before(current.expiresAt) {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	return nil, false
}

// Set 直接写入缓存值
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.entries[key] = entry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	s.mu.Unlock()
}

// Invalidate 删除单个键
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.generation++
	s.mu.Unlock()
	s.group.Forget(key)
}

// InvalidatePrefix 删除所有以prefix开头的键，返回删除数量
// 正在进行中的计算结果不会被写入，之后的调用会重新计算
func (s *Store) InvalidatePrefix(prefix string) int {
	s.mu.Lock()
	removed := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			s.group.Forget(key)
			removed++
		}
	}
	for key := range s.inflight {
		if strings.HasPrefix(key, prefix) {
			s.group.Forget(key)
		}
	}
	s.generation++
	s.mu.Unlock()
	return removed
}

// Len 返回当前条目数（含尚未淘汰的过期条目）
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close 停止清理协程，可重复调用
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

// sweepRoutine 定期清理过期条目
func (s *Store) sweepRoutine(interval time.Duration) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.clock.After(interval):
			s.sweep()
		}
	}
}

// sweep 清理所有过期条目
func (s *Store) sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
