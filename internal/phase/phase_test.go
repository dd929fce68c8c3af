package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPhaseBoundaries 测试阶段边界的归属（默认4/2/6/2周期）
func TestPhaseBoundaries(t *testing.T) {
	c := NewDefaultCycle()
	require.Equal(t, 14*time.Second, c.Length())

	cases := []struct {
		elapsed time.Duration
		want    Phase
		within  time.Duration
	}{
		{0, PhaseInhale, 0},
		{3999 * time.Millisecond, PhaseInhale, 3999 * time.Millisecond},
		{4 * time.Second, PhaseHold, 0}, // 边界时刻属于下一阶段
		{6 * time.Second, PhaseExhale, 0},
		{11 * time.Second, PhaseExhale, 5 * time.Second},
		{12 * time.Second, PhaseRest, 0},
		{13999 * time.Millisecond, PhaseRest, 1999 * time.Millisecond},
	}

	for _, tc := range cases {
		p, within := c.At(tc.elapsed)
		assert.Equal(t, tc.want, p, "elapsed=%v", tc.elapsed)
		assert.Equal(t, tc.within, within, "elapsed=%v", tc.elapsed)
	}
}

// TestCycleWrapAround 测试周期取模回绕
func TestCycleWrapAround(t *testing.T) {
	c := NewDefaultCycle()

	// 整周期边界回到吸气起点
	p, within := c.At(14 * time.Second)
	assert.Equal(t, PhaseInhale, p)
	assert.Equal(t, time.Duration(0), within)

	// 多周期之后仍然一致
	p1, w1 := c.At(5 * time.Second)
	p2, w2 := c.At(5*time.Second + 10*14*time.Second)
	assert.Equal(t, p1, p2)
	assert.Equal(t, w1, w2)
}

// TestAtIsPure 测试同一输入永远得到同一结果
func TestAtIsPure(t *testing.T) {
	c := NewDefaultCycle()

	for _, elapsed := range []time.Duration{0, 3 * time.Second, 9 * time.Second, 100 * time.Second} {
		p1, w1 := c.At(elapsed)
		p2, w2 := c.At(elapsed)
		assert.Equal(t, p1, p2)
		assert.Equal(t, w1, w2)
	}

	// 负输入按0处理
	p, within := c.At(-5 * time.Second)
	assert.Equal(t, PhaseInhale, p)
	assert.Equal(t, time.Duration(0), within)
}

// TestCustomDurations 测试自定义阶段时长
func TestCustomDurations(t *testing.T) {
	c, err := NewCycle([4]time.Duration{
		5 * time.Second,
		1 * time.Second,
		7 * time.Second,
		3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 16*time.Second, c.Length())

	p, _ := c.At(5 * time.Second)
	assert.Equal(t, PhaseHold, p)
	p, _ = c.At(13 * time.Second)
	assert.Equal(t, PhaseRest, p)
}

// TestInvalidDurationsRejected 测试非正时长被拒绝
func TestInvalidDurationsRejected(t *testing.T) {
	_, err := NewCycle([4]time.Duration{4 * time.Second, 0, 6 * time.Second, 2 * time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HOLD")

	_, err = NewCycle([4]time.Duration{-time.Second, 2 * time.Second, 6 * time.Second, 2 * time.Second})
	require.Error(t, err)
}

// TestIndexForSnapshot 测试快照用的阶段序号导出
func TestIndexForSnapshot(t *testing.T) {
	c := NewDefaultCycle()

	assert.Equal(t, 0, c.Index(1*time.Second))
	assert.Equal(t, 1, c.Index(5*time.Second))
	assert.Equal(t, 2, c.Index(8*time.Second))
	assert.Equal(t, 3, c.Index(13*time.Second))
}

// TestProgressInterpolation 测试阶段内进度比例
func TestProgressInterpolation(t *testing.T) {
	c := NewDefaultCycle()

	assert.InDelta(t, 0.0, c.Progress(0), 0.0001)
	assert.InDelta(t, 0.5, c.Progress(2*time.Second), 0.0001) // 吸气4s的中点
	assert.InDelta(t, 0.5, c.Progress(9*time.Second), 0.0001) // 呼气6s的中点
	assert.Less(t, c.Progress(13999*time.Millisecond), 1.0)
}

// TestAnimationParams 测试阶段动画参数
func TestAnimationParams(t *testing.T) {
	c := NewDefaultCycle()

	inhale := c.Animation(PhaseInhale)
	assert.Less(t, inhale.ScaleFrom, inhale.ScaleTo)

	exhale := c.Animation(PhaseExhale)
	assert.Greater(t, exhale.ScaleFrom, exhale.ScaleTo)

	hold := c.Animation(PhaseHold)
	assert.Equal(t, hold.ScaleFrom, hold.ScaleTo)
}
