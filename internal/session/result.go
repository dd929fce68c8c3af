package session

import "time"

// Result 会话结束后产出的不可变结果记录。
// 每个会话生命周期恰好产出一次，交付归档服务后所有权随之转移。
type Result struct {
	SessionID       string        `json:"session_id"`
	CompletedAt     time.Time     `json:"completed_at"`
	Kind            Kind          `json:"kind"`
	ScriptID        string        `json:"script_id,omitempty"`
	PlannedDuration time.Duration `json:"planned_duration"`
	ActualDuration  time.Duration `json:"actual_duration"`
	CompletedFully  bool          `json:"completed_fully"`
}

// NewResult 从会话当前状态生成结果记录
func NewResult(s *Session, completedAt time.Time, completedFully bool) *Result {
	return &Result{
		SessionID:       s.ID,
		CompletedAt:     completedAt,
		Kind:            s.Kind,
		ScriptID:        s.ScriptID,
		PlannedDuration: s.PlannedDuration,
		ActualDuration:  s.Elapsed(completedAt),
		CompletedFully:  completedFully,
	}
}
