package engine

import (
	"sync"
	"time"
)

// PauseGuard 暂停超时看门狗。
// 每次pause时武装、每次resume时解除；触发后由引擎将会话强制完结，
// 防止被遗忘的"幽灵"会话无限期挂着。
// 真实时钟的AfterFunc覆盖进程存活的场景，
// Expired的纯时间戳判断覆盖进程挂起后恢复的场景。
type PauseGuard struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
}

// NewPauseGuard 创建看门狗
func NewPauseGuard(timeout time.Duration) *PauseGuard {
	return &PauseGuard{timeout: timeout}
}

// Arm 武装看门狗，已武装时先解除再重新武装
func (g *PauseGuard) Arm(onFire func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(g.timeout, onFire)
}

// Disarm 解除看门狗。未武装时调用安全。
func (g *PauseGuard) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// Expired 按时间戳判断暂停是否已超限
func (g *PauseGuard) Expired(pausedAt, now time.Time) bool {
	if pausedAt.IsZero() {
		return false
	}
	return now.Sub(pausedAt) > g.timeout
}

// Timeout 超时界限
func (g *PauseGuard) Timeout() time.Duration {
	return g.timeout
}
