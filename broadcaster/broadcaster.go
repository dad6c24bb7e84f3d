// Package broadcaster 把聚合结果推送给长连接订阅者
// 相同请求者、实体类型和日期范围的订阅共享一个主题，每个主题一个后台任务
// 新主题建立时立即计算并推送一次，加入已有主题的订阅者先收到最近的快照
// 之后按固定间隔或写操作通知重新计算并推送完整快照
package broadcaster

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	"sales_dashboard/metrics"
	"sales_dashboard/models"
	"sales_dashboard/services"
)

// ErrClosed 推送服务已关闭
var ErrClosed = errors.New("推送服务已关闭")

const defaultInterval = 3 * time.Second

// Fetcher 快照来源，与轮询接口共用同一个聚合器
type Fetcher interface {
	FetchUnified(ctx context.Context, q services.Query) (*services.Snapshot, error)
}

// Config 推送服务配置
type Config struct {
	Fetcher  Fetcher
	Clock    clock.Clock
	Interval time.Duration
	Metrics  *metrics.Collector
}

// Broadcaster 推送服务
type Broadcaster struct {
	fetcher  Fetcher
	clock    clock.Clock
	interval time.Duration
	metrics  *metrics.Collector

	mu     sync.Mutex
	topics map[string]*topic
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

// New 创建推送服务
func New(cfg Config) *Broadcaster {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Broadcaster{
		fetcher:  cfg.Fetcher,
		clock:    cfg.Clock,
		interval: cfg.Interval,
		metrics:  cfg.Metrics,
		topics:   make(map[string]*topic),
	}
}

// topic 共享同一查询的订阅集合
type topic struct {
	key    string
	query  services.Query
	ctx    context.Context
	cancel context.CancelFunc
	kick   chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	listeners map[uint64]chan *services.Snapshot

	// last 最近一次推送的快照，新订阅者加入时先收到它
	last *services.Snapshot
}

// Subscription 单个订阅
// C中只保留最新的快照，消费慢时旧快照被丢弃
type Subscription struct {
	C <-chan *services.Snapshot

	b         *Broadcaster
	t         *topic
	id        uint64
	closeOnce sync.Once
}

// Done 主题停止（推送服务关闭）时关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.t.done
}

// Close 取消订阅，可重复调用
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.b.unsubscribe(s.t, s.id)
	})
}

// Subscribe 订阅查询结果
func (b *Broadcaster) Subscribe(q services.Query) (*Subscription, error) {
	if len(q.EntityTypes) == 0 {
		q.EntityTypes = append([]models.EntityType(nil), models.DefaultEntityTypes...)
	}
	key := topicKey(q)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	t, exists := b.topics[key]
	if !exists {
		ctx, cancel := context.WithCancel(context.Background())
		t = &topic{
			key:       key,
			query:     q,
			ctx:       ctx,
			cancel:    cancel,
			kick:      make(chan struct{}, 1),
			done:      make(chan struct{}),
			listeners: make(map[uint64]chan *services.Snapshot),
		}
		b.topics[key] = t
	}

	b.nextID++
	id := b.nextID
	ch := make(chan *services.Snapshot, 1)
	t.mu.Lock()
	t.listeners[id] = ch
	// 已有主题尚未完成首次推送时，由run的首次推送送达
	if t.last != nil {
		offer(ch, t.last)
	}
	t.mu.Unlock()
	b.metrics.SubscriptionAdded()

	if !exists {
		b.wg.Add(1)
		go b.run(t)
	}

	return &Subscription{C: ch, b: b, t: t, id: id}, nil
}

// unsubscribe 移除订阅，主题没有订阅者时停止后台任务
func (b *Broadcaster) unsubscribe(t *topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t.mu.Lock()
	_, ok := t.listeners[id]
	delete(t.listeners, id)
	remaining := len(t.listeners)
	t.mu.Unlock()
	if !ok {
		return
	}
	b.metrics.SubscriptionRemoved()

	if remaining == 0 && b.topics[t.key] == t {
		delete(b.topics, t.key)
		t.stop()
	}
}

// Notify 写操作完成后调用，相关主题立即重新计算
func (b *Broadcaster) Notify(entities ...models.EntityType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.topics {
		if !interested(t.query.EntityTypes, entities) {
			continue
		}
		select {
		case t.kick <- struct{}{}:
		default:
		}
	}
}

// TopicCount 当前活跃主题数
func (b *Broadcaster) TopicCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

// Close 停止所有主题并等待后台任务退出
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for key, t := range b.topics {
			delete(b.topics, key)
			t.stop()
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// run 主题后台任务
func (b *Broadcaster) run(t *topic) {
	defer b.wg.Done()

	timer := b.clock.NewTimer(b.interval)
	defer timer.Stop()

	b.push(t)
	for {
		select {
		case <-t.done:
			return
		case <-timer.Chan():
			b.push(t)
			timer.Reset(b.interval)
		case <-t.kick:
			b.push(t)
		}
	}
}

// push 重新计算快照并分发，出错只记录日志，不断开订阅
func (b *Broadcaster) push(t *topic) {
	snap, err := b.fetcher.FetchUnified(t.ctx, t.query)
	if err != nil {
		if t.ctx.Err() == nil {
			log.Printf("推送主题%s重新计算失败: %v", t.key, err)
		}
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = snap
	for _, ch := range t.listeners {
		offer(ch, snap)
		b.metrics.SnapshotPushed()
	}
}

// stop 停止主题，调用方持有Broadcaster.mu
func (t *topic) stop() {
	t.cancel()
	close(t.done)
}

// offer 非阻塞投递，通道已满时用新快照替换旧快照
func offer(ch chan *services.Snapshot, snap *services.Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// interested 判断变更的实体是否影响主题
func interested(subscribed, changed []models.EntityType) bool {
	for _, c := range changed {
		for _, s := range subscribed {
			if s == c {
				return true
			}
			switch {
			case s == models.EntityAnalytics &&
				(c == models.EntityDeals || c == models.EntityCallbacks || c == models.EntityTargets):
				return true
			case c == models.EntityUsers &&
				(s == models.EntityDeals || s == models.EntityCallbacks || s == models.EntityAnalytics):
				return true
			}
		}
	}
	return false
}

// topicKey 主题键：请求者、排序后的实体类型、日期范围和分页
func topicKey(q services.Query) string {
	types := make([]string, 0, len(q.EntityTypes))
	for _, t := range q.EntityTypes {
		types = append(types, string(t))
	}
	sort.Strings(types)
	return q.Requester.Key() + "|" + strings.Join(types, ",") + "|" +
		strings.ToLower(strings.TrimSpace(q.DateRange)) + "|" +
		strconv.Itoa(q.Limit) + ":" + strconv.Itoa(q.Offset)
}
