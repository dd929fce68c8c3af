package timeline

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// 相邻段之间允许的最大缝隙，预渲染切分会留下毫秒级误差
const segmentGapTolerance = 50 * time.Millisecond

// ActionType 播放动作类型
type ActionType string

const (
	ActionPlaySegment      ActionType = "PLAY_SEGMENT"
	ActionPlayInterjection ActionType = "PLAY_INTERJECTION"
	ActionComplete         ActionType = "COMPLETE"
)

// Segment 预渲染的基础音频段
type Segment struct {
	AssetRef string        `json:"asset_ref"`
	Offset   time.Duration `json:"offset"`
	Duration time.Duration `json:"duration"`
}

// Interjection 在准备阶段解析出的插入提示音，偏移已落定
type Interjection struct {
	AssetRef string        `json:"asset_ref"`
	Offset   time.Duration `json:"offset"`
}

// PlaybackAction 时间线推进后要求调用方执行的动作
type PlaybackAction struct {
	Type     ActionType    `json:"type"`
	AssetRef string        `json:"asset_ref,omitempty"`
	Offset   time.Duration `json:"offset"`
}

// TimelineError 时间线构建校验错误
type TimelineError struct {
	Reason string
}

func (e *TimelineError) Error() string {
	return fmt.Sprintf("timeline build failed: %s", e.Reason)
}

// entry 合并后的顺序播放条目
type entry struct {
	action   ActionType
	assetRef string
	offset   time.Duration
	done     bool
}

// CompletionFunc 完成信号回调
type CompletionFunc func()

// Timeline 引导式会话的顺序播放程序。
// 段与插入提示音合并为单一有序队列，Advance按已进行时长逐条吐出动作。
// 完成信号一次性触发，重复触发为幂等空操作。
type Timeline struct {
	mu      sync.Mutex
	entries []*entry
	total   time.Duration
	cursor  int
	claimed *entry

	onComplete   CompletionFunc
	completeOnce sync.Once
	completed    bool
}

// Build 将段与插入提示音装配为时间线。
// 偏移越界、段乱序或不连续时返回TimelineError。
func Build(segments []Segment, interjections []Interjection, total time.Duration) (*Timeline, error) {
	if total <= 0 {
		return nil, &TimelineError{Reason: fmt.Sprintf("total duration must be positive, got %v", total)}
	}
	if len(segments) == 0 {
		return nil, &TimelineError{Reason: "no segments"}
	}

	for i, seg := range segments {
		if seg.Offset < 0 || seg.Offset > total {
			return nil, &TimelineError{Reason: fmt.Sprintf("segment %d offset %v outside [0, %v]", i, seg.Offset, total)}
		}
		if seg.Duration <= 0 {
			return nil, &TimelineError{Reason: fmt.Sprintf("segment %d duration must be positive", i)}
		}
		if seg.Offset+seg.Duration > total+segmentGapTolerance {
			return nil, &TimelineError{Reason: fmt.Sprintf("segment %d ends at %v beyond total %v", i, seg.Offset+seg.Duration, total)}
		}
	}

	// 段必须有序且首尾相接
	if segments[0].Offset != 0 {
		return nil, &TimelineError{Reason: fmt.Sprintf("first segment must start at 0, got %v", segments[0].Offset)}
	}
	for i := 1; i < len(segments); i++ {
		prevEnd := segments[i-1].Offset + segments[i-1].Duration
		gap := segments[i].Offset - prevEnd
		if gap < -segmentGapTolerance || gap > segmentGapTolerance {
			return nil, &TimelineError{Reason: fmt.Sprintf("segment %d at %v is not contiguous with previous end %v", i, segments[i].Offset, prevEnd)}
		}
	}

	for i, ij := range interjections {
		if ij.Offset < 0 || ij.Offset > total {
			return nil, &TimelineError{Reason: fmt.Sprintf("interjection %d offset %v outside [0, %v]", i, ij.Offset, total)}
		}
	}

	entries := make([]*entry, 0, len(segments)+len(interjections))
	for _, seg := range segments {
		entries = append(entries, &entry{action: ActionPlaySegment, assetRef: seg.AssetRef, offset: seg.Offset})
	}
	for _, ij := range interjections {
		entries = append(entries, &entry{action: ActionPlayInterjection, assetRef: ij.AssetRef, offset: ij.Offset})
	}

	// 稳定排序：同偏移时段先于插入提示音（声明顺序）
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].offset < entries[j].offset
	})

	return &Timeline{entries: entries, total: total}, nil
}

// OnComplete 注册完成信号回调，必须在播放开始前设置
func (t *Timeline) OnComplete(fn CompletionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onComplete = fn
}

// Advance 按已进行时长推进时间线。
// 返回下一条到期动作并将其占用；已有动作在播或无到期动作时返回nil。
// 时间线耗尽或已进行时长达到总时长时返回完成动作并触发完成信号。
// 完成之后的调用是幂等空操作。
func (t *Timeline) Advance(elapsed time.Duration) *PlaybackAction {
	action, completedNow := t.advanceLocked(elapsed)

	// 完成信号在锁外一次性触发，回调内再进时间线不会死锁
	if completedNow {
		t.completeOnce.Do(func() {
			if t.onComplete != nil {
				t.onComplete()
			}
		})
	}

	return action
}

func (t *Timeline) advanceLocked(elapsed time.Duration) (*PlaybackAction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed {
		return nil, false
	}
	if t.claimed != nil {
		return nil, false
	}

	// 达到总时长即完成，剩余未播条目随会话结束一并跳过
	if elapsed >= t.total || t.cursor >= len(t.entries) {
		t.completed = true
		return &PlaybackAction{Type: ActionComplete, Offset: t.total}, true
	}

	next := t.entries[t.cursor]
	if next.offset <= elapsed {
		t.claimed = next
		return &PlaybackAction{Type: next.action, AssetRef: next.assetRef, Offset: next.offset}, false
	}

	return nil, false
}

// MarkDone 当前占用动作播放结束（成功或失败均算消费）
func (t *Timeline) MarkDone() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.claimed == nil {
		return
	}
	t.claimed.done = true
	t.claimed = nil
	t.cursor++
}

// ReleaseInFlight 将在播动作退回队列头，外部中断后恢复时重试
func (t *Timeline) ReleaseInFlight() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.claimed = nil
}

// InFlight 是否有动作正在播放
func (t *Timeline) InFlight() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.claimed != nil
}

// Completed 时间线是否已完成
func (t *Timeline) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Total 时间线总时长
func (t *Timeline) Total() time.Duration {
	return t.total
}

// Cursor 已消费条目数（快照持久化用）
func (t *Timeline) Cursor() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// RestoreCursor 从快照恢复播放位置
func (t *Timeline) RestoreCursor(cursor int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cursor < 0 || cursor > len(t.entries) {
		return fmt.Errorf("timeline cursor %d out of range [0, %d]", cursor, len(t.entries))
	}
	t.cursor = cursor
	t.claimed = nil
	return nil
}
