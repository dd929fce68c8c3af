package session

import (
	"fmt"
	"time"
)

// Kind 会话类型
type Kind string

const (
	// KindBasicBreathing 固定时长呼吸练习
	KindBasicBreathing Kind = "basic_breathing"
	// KindGuided 引导式会话，携带脚本ID
	KindGuided Kind = "guided"
)

// IsValid 检查会话类型是否有效
func (k Kind) IsValid() bool {
	switch k {
	case KindBasicBreathing, KindGuided:
		return true
	default:
		return false
	}
}

// Status 会话状态
type Status int32

const (
	StatusActive Status = iota
	StatusPaused
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusPaused:
		return "PAUSED"
	case StatusComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Session 单次会话的完整时间状态。
// elapsed 始终由时间戳运算推导，不依赖任何按tick累加的计数器，
// 因此进程挂起、后台化之后重算结果仍然一致。
type Session struct {
	ID                string        `json:"id"`
	Kind              Kind          `json:"kind"`
	ScriptID          string        `json:"script_id,omitempty"`
	PlannedDuration   time.Duration `json:"planned_duration"`
	StartedAt         time.Time     `json:"started_at"`
	PausedAccumulated time.Duration `json:"paused_accumulated"`
	PauseStartedAt    time.Time     `json:"pause_started_at,omitempty"`
	Status            Status        `json:"status"`
}

// New 创建新的活跃会话
func New(kind Kind, plannedDuration time.Duration, startedAt time.Time) *Session {
	return &Session{
		ID:              fmt.Sprintf("session_%d", startedAt.UnixNano()),
		Kind:            kind,
		PlannedDuration: plannedDuration,
		StartedAt:       startedAt,
		Status:          StatusActive,
	}
}

// Elapsed 推导已进行时长：(参考时刻 − 开始时刻) − 累计暂停时长。
// 暂停中以暂停开始时刻为参考，因此暂停期间读数冻结。
// 时钟回拨导致的负值按0处理。
func (s *Session) Elapsed(now time.Time) time.Duration {
	ref := now
	if s.Status == StatusPaused && !s.PauseStartedAt.IsZero() {
		ref = s.PauseStartedAt
	}

	elapsed := ref.Sub(s.StartedAt) - s.PausedAccumulated
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Remaining 推导剩余时长，不会为负
func (s *Session) Remaining(now time.Time) time.Duration {
	remaining := s.PlannedDuration - s.Elapsed(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Pause 记录暂停开始时刻。已暂停或已完成时为幂等空操作。
func (s *Session) Pause(now time.Time) {
	if s.Status != StatusActive {
		return
	}

	s.Status = StatusPaused
	s.PauseStartedAt = now
}

// Resume 将本次暂停时长计入累计值并清除暂停标记。
// 未暂停时为幂等空操作。
func (s *Session) Resume(now time.Time) {
	if s.Status != StatusPaused {
		return
	}

	delta := now.Sub(s.PauseStartedAt)
	if delta > 0 {
		s.PausedAccumulated += delta
	}
	s.Status = StatusActive
	s.PauseStartedAt = time.Time{}
}

// Complete 置为终态。终态不再离开，重复调用为空操作。
func (s *Session) Complete() {
	if s.Status == StatusComplete {
		return
	}
	s.Status = StatusComplete
}

// Clone 返回会话的独立副本，供只读投影使用
func (s *Session) Clone() *Session {
	clone := *s
	return &clone
}
