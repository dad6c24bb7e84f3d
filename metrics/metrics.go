// Package metrics 提供看板核心的Prometheus指标
// 所有方法对nil接收者安全，测试中可以不注入采集器
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sales_dashboard"

// Collector 看板核心指标采集器
type Collector struct {
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	cacheComputations   prometheus.Counter
	droppedRecords      *prometheus.CounterVec
	providerFailures    *prometheus.CounterVec
	providerLatency     *prometheus.HistogramVec
	activeSubscriptions prometheus.Gauge
	pushedSnapshots     prometheus.Counter
}

// NewCollector 创建指标采集器
func NewCollector() *Collector {
	return &Collector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "缓存命中次数",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "缓存未命中次数",
		}),
		cacheComputations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_computations_total",
			Help:      "单飞合并后实际执行的计算次数",
		}),
		droppedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalization_dropped_total",
			Help:      "规范化时因缺少身份字段被丢弃的记录数",
		}, []string{"entity"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "数据源调用失败次数",
		}, []string{"entity", "provider", "kind"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_fetch_seconds",
			Help:      "数据源调用耗时",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 15},
		}, []string{"entity", "provider"}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "当前推送订阅数",
		}),
		pushedSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushed_snapshots_total",
			Help:      "推送给订阅者的快照数",
		}),
	}
}

// Describe 实现prometheus.Collector接口
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.cacheHits.Describe(ch)
	c.cacheMisses.Describe(ch)
	c.cacheComputations.Describe(ch)
	c.droppedRecords.Describe(ch)
	c.providerFailures.Describe(ch)
	c.providerLatency.Describe(ch)
	c.activeSubscriptions.Describe(ch)
	c.pushedSnapshots.Describe(ch)
}

// Collect 实现prometheus.Collector接口
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.cacheHits.Collect(ch)
	c.cacheMisses.Collect(ch)
	c.cacheComputations.Collect(ch)
	c.droppedRecords.Collect(ch)
	c.providerFailures.Collect(ch)
	c.providerLatency.Collect(ch)
	c.activeSubscriptions.Collect(ch)
	c.pushedSnapshots.Collect(ch)
}

// CacheHit 记录缓存命中
func (c *Collector) CacheHit() {
	if c != nil {
		c.cacheHits.Inc()
	}
}

// CacheMiss 记录缓存未命中
func (c *Collector) CacheMiss() {
	if c != nil {
		c.cacheMisses.Inc()
	}
}

// CacheCompute 记录一次实际计算
func (c *Collector) CacheCompute() {
	if c != nil {
		c.cacheComputations.Inc()
	}
}

// Dropped 记录被丢弃的记录数
func (c *Collector) Dropped(entity string, n int) {
	if c != nil && n > 0 {
		c.droppedRecords.WithLabelValues(entity).Add(float64(n))
	}
}

// ProviderFailure 记录数据源失败
func (c *Collector) ProviderFailure(entity, provider, kind string) {
	if c != nil {
		c.providerFailures.WithLabelValues(entity, provider, kind).Inc()
	}
}

// ProviderLatency 记录数据源耗时（秒）
func (c *Collector) ProviderLatency(entity, provider string, seconds float64) {
	if c != nil {
		c.providerLatency.WithLabelValues(entity, provider).Observe(seconds)
	}
}

// SubscriptionAdded 订阅数加1
func (c *Collector) SubscriptionAdded() {
	if c != nil {
		c.activeSubscriptions.Inc()
	}
}

// SubscriptionRemoved 订阅数减1
func (c *Collector) SubscriptionRemoved() {
	if c != nil {
		c.activeSubscriptions.Dec()
	}
}

// SnapshotPushed 记录一次快照推送
func (c *Collector) SnapshotPushed() {
	if c != nil {
		c.pushedSnapshots.Inc()
	}
}
