package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales_dashboard/models"
)

// fakeSource 第一次推送失败，之后的推送阻塞到ctx取消
type fakeSource struct {
	mu          sync.Mutex
	streams     int
	fetches     int
	failStreams int
	streamed    []*Dashboard
	polled      func(n int) *Dashboard
}

func (s *fakeSource) Stream(ctx context.Context, _ Params, onSnapshot func(*Dashboard)) error {
	s.mu.Lock()
	s.streams++
	fail := s.streams <= s.failStreams
	frames := s.streamed
	s.mu.Unlock()

	if fail {
		return errors.New("connection refused")
	}
	for _, d := range frames {
		onSnapshot(d)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeSource) FetchUnified(ctx context.Context, _ Params) (*Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.polled != nil {
		return s.polled(s.fetches), nil
	}
	return &Dashboard{}, nil
}

func (s *fakeSource) counts() (streams, fetches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams, s.fetches
}

type recorder struct {
	mu            sync.Mutex
	snapshots     int
	notifications []string
}

func (r *recorder) snapshot(*Dashboard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots++
}

func (r *recorder) notification(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n.ID)
}

func (r *recorder) state() (int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots, append([]string(nil), r.notifications...)
}

func notifications(ids ...string) *Dashboard {
	d := &Dashboard{Notifications: []models.Notification{}}
	for _, id := range ids {
		d.Notifications = append(d.Notifications, models.Notification{ID: id})
	}
	return d
}

func runWatcher(t *testing.T, w *Watcher) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("订阅没有退出")
		}
	}
}

func TestWatcherStreams(t *testing.T) {
	src := &fakeSource{streamed: []*Dashboard{notifications("n1"), notifications("n1", "n2")}}
	rec := &recorder{}
	w := NewWatcher(WatcherConfig{
		Source:         src,
		Clock:          testclock.NewClock(time.Now()),
		OnSnapshot:     rec.snapshot,
		OnNotification: rec.notification,
	})
	stop := runWatcher(t, w)

	require.Eventually(t, func() bool {
		n, _ := rec.state()
		return n == 2
	}, time.Second, 5*time.Millisecond)
	stop()

	_, seen := rec.state()
	assert.Equal(t, []string{"n2"}, seen)
	streams, fetches := src.counts()
	assert.Equal(t, 1, streams)
	assert.Equal(t, 0, fetches)
	assert.Equal(t, ModeStreaming, w.Mode())
}

func TestWatcherFallsBackToPolling(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC))
	src := &fakeSource{
		failStreams: 1,
		polled: func(n int) *Dashboard {
			if n == 1 {
				return notifications("n1")
			}
			return notifications("n1", "n9")
		},
	}
	rec := &recorder{}
	w := NewWatcher(WatcherConfig{
		Source:         src,
		Clock:          clk,
		PollInterval:   5 * time.Second,
		StreamRetry:    10 * time.Second,
		OnSnapshot:     rec.snapshot,
		OnNotification: rec.notification,
	})
	stop := runWatcher(t, w)
	defer stop()

	// 推送失败后立即轮询一次
	require.Eventually(t, func() bool {
		_, fetches := src.counts()
		return fetches == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, ModePolling, w.Mode())

	require.NoError(t, clk.WaitAdvance(5*time.Second, time.Second, 1))
	require.Eventually(t, func() bool {
		_, fetches := src.counts()
		return fetches == 2
	}, time.Second, 5*time.Millisecond)

	// 到达重试时间后回到推送
	require.NoError(t, clk.WaitAdvance(5*time.Second, time.Second, 1))
	require.Eventually(t, func() bool {
		streams, fetches := src.counts()
		return streams == 2 && fetches == 3
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return w.Mode() == ModeStreaming }, time.Second, 5*time.Millisecond)

	snapshots, seen := rec.state()
	assert.Equal(t, 3, snapshots)
	assert.Equal(t, []string{"n9"}, seen)
}

func TestWatcherSkipsFailedNotificationBaseline(t *testing.T) {
	failed := notifications()
	failed.fail(models.PartialError{Entity: models.EntityNotifications, Kind: "timeout"})
	src := &fakeSource{streamed: []*Dashboard{failed, notifications("n1"), notifications("n1", "n2")}}
	rec := &recorder{}
	w := NewWatcher(WatcherConfig{
		Source:         src,
		Clock:          testclock.NewClock(time.Now()),
		OnSnapshot:     rec.snapshot,
		OnNotification: rec.notification,
	})
	stop := runWatcher(t, w)

	require.Eventually(t, func() bool {
		n, _ := rec.state()
		return n == 3
	}, time.Second, 5*time.Millisecond)
	stop()

	_, seen := rec.state()
	assert.Equal(t, []string{"n2"}, seen)
}
