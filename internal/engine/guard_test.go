package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestGuardExpiredByTimestamp 测试纯时间戳的超时判断
func TestGuardExpiredByTimestamp(t *testing.T) {
	g := NewPauseGuard(30 * time.Minute)

	pausedAt := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	assert.False(t, g.Expired(pausedAt, pausedAt.Add(29*time.Minute)))
	assert.False(t, g.Expired(pausedAt, pausedAt.Add(30*time.Minute))) // 恰好到界限不算超时
	assert.True(t, g.Expired(pausedAt, pausedAt.Add(30*time.Minute+time.Second)))

	// 未暂停时永不超时
	assert.False(t, g.Expired(time.Time{}, time.Now()))
}

// TestGuardTimerFires 测试真实时钟的看门狗触发
func TestGuardTimerFires(t *testing.T) {
	g := NewPauseGuard(50 * time.Millisecond)

	var fired int32
	g.Arm(func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

// TestGuardDisarmStopsTimer 测试解除后不再触发
func TestGuardDisarmStopsTimer(t *testing.T) {
	g := NewPauseGuard(50 * time.Millisecond)

	var fired int32
	g.Arm(func() { atomic.AddInt32(&fired, 1) })
	g.Disarm()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	// 重复解除安全
	g.Disarm()
}

// TestGuardRearmReplacesTimer 测试重新武装替换旧定时器
func TestGuardRearmReplacesTimer(t *testing.T) {
	g := NewPauseGuard(60 * time.Millisecond)

	var first, second int32
	g.Arm(func() { atomic.AddInt32(&first, 1) })
	time.Sleep(20 * time.Millisecond)
	g.Arm(func() { atomic.AddInt32(&second, 1) })

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&first), "replaced timer should not fire")
	assert.Equal(t, int32(1), atomic.LoadInt32(&second))
}
