package client

import (
	"sync"

	"sales_dashboard/models"
)

// SeenTracker 记录已经提示过的通知
// 第一次调用只记录现有通知，不视为新通知，之后每个通知ID只会被报告一次
type SeenTracker struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	primed bool
}

// NewSeenTracker 创建通知跟踪器
func NewSeenTracker() *SeenTracker {
	return &SeenTracker{seen: make(map[string]struct{})}
}

// Fresh 返回之前没见过的通知，保持输入顺序
func (t *SeenTracker) Fresh(list []models.Notification) []models.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []models.Notification
	for _, n := range list {
		if _, ok := t.seen[n.ID]; ok {
			continue
		}
		t.seen[n.ID] = struct{}{}
		if t.primed {
			fresh = append(fresh, n)
		}
	}
	t.primed = true
	return fresh
}

// Seen 通知是否已经记录
func (t *SeenTracker) Seen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[id]
	return ok
}
