package providers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"sales_dashboard/metrics"
	"sales_dashboard/models"
)

// GuardConfig 数据源保护配置
type GuardConfig struct {
	Timeout       time.Duration      // 单次调用超时
	RatePerSecond float64            // 每秒允许的调用数，<=0表示不限流
	Burst         int                // 突发量，<=0时取1
	Metrics       *metrics.Collector // 可以为nil
}

// Guarded 带超时和限流的数据源
// 超时统一返回models.ErrTimeout，调用方按数据源不可用处理
type Guarded struct {
	inner   RecordProvider
	timeout time.Duration
	limiter *rate.Limiter
	metrics *metrics.Collector
}

// Guard 为数据源加上超时和限流
func Guard(inner RecordProvider, cfg GuardConfig) *Guarded {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Guarded{
		inner:   inner,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(limit, burst),
		metrics: cfg.Metrics,
	}
}

// Name 被保护数据源的名称
func (g *Guarded) Name() string {
	return g.inner.Name()
}

// Unwrap 返回被保护的数据源
func (g *Guarded) Unwrap() RecordProvider {
	return g.inner
}

// Fetch 在超时和限流约束下读取
func (g *Guarded) Fetch(ctx context.Context, entity models.EntityType) ([]models.RawRecord, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.limiter.Wait(ctx); err != nil {
		g.metrics.ProviderFailure(string(entity), g.Name(), "timeout")
		return nil, fmt.Errorf("%s %s 等待限流: %w", g.Name(), entity, models.ErrTimeout)
	}

	type result struct {
		records []models.RawRecord
		err     error
	}
	start := time.Now()
	done := make(chan result, 1)
	go func() {
		records, err := g.inner.Fetch(ctx, entity)
		done <- result{records: records, err: err}
	}()

	select {
	case res := <-done:
		g.metrics.ProviderLatency(string(entity), g.Name(), time.Since(start).Seconds())
		if res.err != nil {
			if ctx.Err() != nil {
				res.err = fmt.Errorf("%s %s: %w", g.Name(), entity, models.ErrTimeout)
			}
			g.metrics.ProviderFailure(string(entity), g.Name(), models.ClassifyProviderError(res.err))
			return nil, res.err
		}
		return res.records, nil
	case <-ctx.Done():
		g.metrics.ProviderFailure(string(entity), g.Name(), "timeout")
		return nil, fmt.Errorf("%s %s: %w", g.Name(), entity, models.ErrTimeout)
	}
}
