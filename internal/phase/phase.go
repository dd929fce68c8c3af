package phase

import (
	"fmt"
	"time"
)

// Phase 呼吸周期内的阶段
type Phase int

const (
	PhaseInhale Phase = iota
	PhaseHold
	PhaseExhale
	PhaseRest
)

func (p Phase) String() string {
	switch p {
	case PhaseInhale:
		return "INHALE"
	case PhaseHold:
		return "HOLD"
	case PhaseExhale:
		return "EXHALE"
	case PhaseRest:
		return "REST"
	default:
		return "UNKNOWN"
	}
}

// AnimationParams 阶段对应的动画目标参数，供表现层插值
type AnimationParams struct {
	ScaleFrom   float64 `json:"scale_from"`
	ScaleTo     float64 `json:"scale_to"`
	OpacityFrom float64 `json:"opacity_from"`
	OpacityTo   float64 `json:"opacity_to"`
}

// Cycle 四阶段循环计时器：吸气→屏息→呼气→静息。
// 当前阶段是已进行时长对周期长度取模的纯函数，
// 不维护独立递增的状态变量，暂停与恢复天然落在周期内的正确位置。
type Cycle struct {
	durations [4]time.Duration
	total     time.Duration
}

// DefaultDurations 默认阶段时长：吸气4s、屏息2s、呼气6s、静息2s
func DefaultDurations() [4]time.Duration {
	return [4]time.Duration{
		4 * time.Second,
		2 * time.Second,
		6 * time.Second,
		2 * time.Second,
	}
}

// NewCycle 创建呼吸周期。所有阶段时长必须为正。
func NewCycle(durations [4]time.Duration) (*Cycle, error) {
	var total time.Duration
	for i, d := range durations {
		if d <= 0 {
			return nil, fmt.Errorf("phase %s duration must be positive, got %v", Phase(i), d)
		}
		total += d
	}

	return &Cycle{durations: durations, total: total}, nil
}

// NewDefaultCycle 创建使用默认时长的呼吸周期
func NewDefaultCycle() *Cycle {
	c, _ := NewCycle(DefaultDurations())
	return c
}

// Length 完整周期长度
func (c *Cycle) Length() time.Duration {
	return c.total
}

// At 返回指定已进行时长所处的阶段及阶段内偏移。
// 纯函数：同一输入永远得到同一结果，暂停中查询返回暂停时刻的阶段。
func (c *Cycle) At(elapsed time.Duration) (Phase, time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}

	within := elapsed % c.total
	for i, d := range c.durations {
		if within < d {
			return Phase(i), within
		}
		within -= d
	}

	// 取模保证不会到达这里
	return PhaseRest, 0
}

// Index 返回指定已进行时长所处的阶段序号（快照持久化用）
func (c *Cycle) Index(elapsed time.Duration) int {
	p, _ := c.At(elapsed)
	return int(p)
}

// Animation 返回阶段的动画目标参数
func (c *Cycle) Animation(p Phase) AnimationParams {
	switch p {
	case PhaseInhale:
		return AnimationParams{ScaleFrom: 0.6, ScaleTo: 1.0, OpacityFrom: 0.7, OpacityTo: 1.0}
	case PhaseHold:
		return AnimationParams{ScaleFrom: 1.0, ScaleTo: 1.0, OpacityFrom: 1.0, OpacityTo: 1.0}
	case PhaseExhale:
		return AnimationParams{ScaleFrom: 1.0, ScaleTo: 0.6, OpacityFrom: 1.0, OpacityTo: 0.7}
	default:
		return AnimationParams{ScaleFrom: 0.6, ScaleTo: 0.6, OpacityFrom: 0.7, OpacityTo: 0.7}
	}
}

// Progress 返回阶段内进度比例 [0,1)，供表现层做动画插值
func (c *Cycle) Progress(elapsed time.Duration) float64 {
	p, within := c.At(elapsed)
	d := c.durations[int(p)]
	if d <= 0 {
		return 0
	}
	return float64(within) / float64(d)
}
