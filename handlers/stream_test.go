package handlers

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales_dashboard/broadcaster"
	"sales_dashboard/models"
	"sales_dashboard/services"
)

type staticFetcher struct{}

func (staticFetcher) FetchUnified(context.Context, services.Query) (*services.Snapshot, error) {
	return &services.Snapshot{Sections: []services.Section{
		{Entity: models.EntityDeals, Records: []models.Deal{{ID: "d1"}}},
	}}, nil
}

// lockedBuffer 推送协程写、测试协程读
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPumpWritesSnapshotsAndHeartbeats(t *testing.T) {
	hub := broadcaster.New(broadcaster.Config{Fetcher: staticFetcher{}, Interval: time.Hour})
	clk := testclock.NewClock(time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC))
	h := New(Config{Broadcaster: hub, Clock: clk, Heartbeat: 15 * time.Second})

	sub, err := hub.Subscribe(services.Query{
		Requester:   models.Requester{Role: models.RoleManager, UserID: "m1"},
		EntityTypes: []models.EntityType{models.EntityDeals},
	})
	require.NoError(t, err)

	out := &lockedBuffer{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.pump(bufio.NewWriter(out), sub)
	}()

	require.Eventually(t, func() bool {
		return strings.HasPrefix(out.String(), `data: [{"entity":"deals","records":[{"id":"d1"`)
	}, time.Second, 5*time.Millisecond)
	assert.NotContains(t, out.String(), ": ping")

	require.NoError(t, clk.WaitAdvance(15*time.Second, time.Second, 1))
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), ": ping\n\n") == 1
	}, time.Second, 5*time.Millisecond)

	// 心跳计时器重置后继续工作
	require.NoError(t, clk.WaitAdvance(15*time.Second, time.Second, 1))
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), ": ping\n\n") == 2
	}, time.Second, 5*time.Millisecond)

	hub.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("推送服务关闭后连接应结束")
	}
	assert.Equal(t, 0, hub.TopicCount())
}
