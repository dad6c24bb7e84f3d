package utils

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// failureInfo 认证失败信息
type failureInfo struct {
	Count     int       // 失败次数
	LastTry   time.Time // 最后一次失败时间
	LockUntil time.Time // 锁定截止时间
}

// AuthLimiter 认证失败限制器
// 同一来源连续提交无效令牌达到上限后锁定一段时间
type AuthLimiter struct {
	clock         clock.Clock
	attempts      map[string]*failureInfo
	mutex         sync.RWMutex
	maxAttempts   int
	lockDuration  time.Duration
	cleanInterval time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAuthLimiter 创建认证失败限制器
// cleanInterval为0时不启动清理协程
func NewAuthLimiter(clk clock.Clock, maxAttempts int, lockDuration, cleanInterval time.Duration) *AuthLimiter {
	if clk == nil {
		clk = clock.WallClock
	}
	l := &AuthLimiter{
		clock:         clk,
		attempts:      make(map[string]*failureInfo),
		maxAttempts:   maxAttempts,
		lockDuration:  lockDuration,
		cleanInterval: cleanInterval,
		done:          make(chan struct{}),
	}
	if cleanInterval > 0 {
		l.wg.Add(1)
		go l.cleanupRoutine()
	}
	return l
}

// cleanupRoutine 定期清理过期的失败记录
func (l *AuthLimiter) cleanupRoutine() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case <-l.clock.After(l.cleanInterval):
			l.cleanup()
		}
	}
}

// cleanup 清理锁定已过期且长时间没有新失败的记录
func (l *AuthLimiter) cleanup() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.clock.Now()
	for key, attempt := range l.attempts {
		if now.After(attempt.LockUntil) && now.Sub(attempt.LastTry) > l.lockDuration {
			delete(l.attempts, key)
		}
	}
}

// RecordFailure 记录一次认证失败，返回是否因此被锁定
func (l *AuthLimiter) RecordFailure(key string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.clock.Now()
	attempt, exists := l.attempts[key]
	if !exists {
		attempt = &failureInfo{}
		l.attempts[key] = attempt
	}
	attempt.Count++
	attempt.LastTry = now

	if attempt.Count >= l.maxAttempts {
		attempt.LockUntil = now.Add(l.lockDuration)
		attempt.Count = 0
		return true
	}
	return false
}

// IsLocked 检查来源是否被锁定，返回剩余锁定时间
func (l *AuthLimiter) IsLocked(key string) (bool, time.Duration) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	attempt, exists := l.attempts[key]
	if !exists {
		return false, 0
	}
	now := l.clock.Now()
	if now.Before(attempt.LockUntil) {
		return true, attempt.LockUntil.Sub(now)
	}
	return false, 0
}

// Reset 认证成功后清除失败记录
func (l *AuthLimiter) Reset(key string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.attempts, key)
}

// Close 停止清理协程
func (l *AuthLimiter) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}
