package session

import "time"

// DisplayState 提供给表现层的只读投影。
// 表现层按tick轮询该结构并负责渲染，不持有任何计时逻辑。
type DisplayState struct {
	SessionID   string        `json:"session_id"`
	Kind        Kind          `json:"kind"`
	Status      string        `json:"status"`
	Paused      bool          `json:"paused"`
	Elapsed     time.Duration `json:"elapsed"`
	Remaining   time.Duration `json:"remaining"`
	Progress    float64       `json:"progress"`
	Phase       string        `json:"phase,omitempty"`
	PhaseScale  float64       `json:"phase_scale,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Project 根据当前时刻生成显示投影
func Project(s *Session, now time.Time) *DisplayState {
	elapsed := s.Elapsed(now)

	var progress float64
	if s.PlannedDuration > 0 {
		progress = float64(elapsed) / float64(s.PlannedDuration)
		if progress > 1 {
			progress = 1
		}
	}

	return &DisplayState{
		SessionID:   s.ID,
		Kind:        s.Kind,
		Status:      s.Status.String(),
		Paused:      s.Status == StatusPaused,
		Elapsed:     elapsed,
		Remaining:   s.Remaining(now),
		Progress:    progress,
		GeneratedAt: now,
	}
}
