package client

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"sales_dashboard/models"
)

// Mode 数据获取方式
type Mode int32

const (
	ModeStreaming Mode = iota // 推送
	ModePolling               // 轮询
)

func (m Mode) String() string {
	if m == ModePolling {
		return "polling"
	}
	return "streaming"
}

const (
	defaultPollInterval = 5 * time.Second
	defaultStreamRetry  = 30 * time.Second
)

// Source 快照来源，由HTTPClient实现
type Source interface {
	FetchUnified(ctx context.Context, p Params) (*Dashboard, error)
	Stream(ctx context.Context, p Params, onSnapshot func(*Dashboard)) error
}

// WatcherConfig 看板订阅配置
type WatcherConfig struct {
	Source       Source
	Params       Params
	Clock        clock.Clock
	PollInterval time.Duration // 轮询间隔
	StreamRetry  time.Duration // 降级为轮询后多久重试推送

	OnSnapshot     func(*Dashboard)           // 每个快照调用一次
	OnNotification func(models.Notification) // 新通知调用一次，可以为nil
}

// Watcher 看板订阅
// 优先使用推送；推送失败时立即轮询一次，之后按间隔轮询，到期后重试推送
type Watcher struct {
	cfg  WatcherConfig
	seen *SeenTracker
	mode atomic.Int32
}

// NewWatcher 创建看板订阅
// 推送和轮询的快照都会重复到达，回调需要能处理重复内容
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.StreamRetry <= 0 {
		cfg.StreamRetry = defaultStreamRetry
	}
	return &Watcher{cfg: cfg, seen: NewSeenTracker()}
}

// Mode 当前获取方式
func (w *Watcher) Mode() Mode {
	return Mode(w.mode.Load())
}

// Run 持续获取快照直到ctx取消
func (w *Watcher) Run(ctx context.Context) error {
	for {
		w.mode.Store(int32(ModeStreaming))
		err := w.cfg.Source.Stream(ctx, w.cfg.Params, w.deliver)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("推送连接中断，改为轮询: %v", err)

		w.mode.Store(int32(ModePolling))
		if err := w.poll(ctx); err != nil {
			return err
		}
	}
}

// poll 轮询到重试推送的时间为止
func (w *Watcher) poll(ctx context.Context) error {
	deadline := w.cfg.Clock.Now().Add(w.cfg.StreamRetry)
	for {
		d, err := w.cfg.Source.FetchUnified(ctx, w.cfg.Params)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("轮询看板数据失败: %v", err)
		} else {
			w.deliver(d)
		}

		if !w.cfg.Clock.Now().Before(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.cfg.Clock.After(w.cfg.PollInterval):
		}
	}
}

// deliver 分发快照并报告新通知
func (w *Watcher) deliver(d *Dashboard) {
	if w.cfg.OnSnapshot != nil {
		w.cfg.OnSnapshot(d)
	}
	if w.cfg.OnNotification == nil || d.Notifications == nil {
		return
	}
	// 通知读取失败时的空列表不能作为已读基线
	if _, failed := d.Errors[models.EntityNotifications]; failed {
		return
	}
	for _, n := range w.seen.Fresh(d.Notifications) {
		w.cfg.OnNotification(n)
	}
}
