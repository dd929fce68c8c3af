package cue

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Cue 绑定在会话已进行时长偏移上的音频事件
type Cue struct {
	Offset   time.Duration `json:"offset"`
	AssetRef string        `json:"asset_ref"`

	fired   bool
	claimed bool
	seq     int // 声明顺序，同偏移时按此断开平局
}

// Fired 该提示音是否已触发完毕
func (c *Cue) Fired() bool {
	return c.fired
}

// Scheduler 提示音调度器。
// 按非递减偏移顺序触发，任一时刻至多有一条提示音在播。
// 因长时间暂停而错过的提示音不丢弃也不合并，
// 在后续tick中按顺序每次补放一条。
type Scheduler struct {
	mu   sync.Mutex
	cues []*Cue
}

// NewScheduler 创建调度器，提示音按偏移（同偏移按声明顺序）排序
func NewScheduler(cues []*Cue) *Scheduler {
	sorted := make([]*Cue, len(cues))
	copy(sorted, cues)
	for i, c := range sorted {
		c.seq = i
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	return &Scheduler{cues: sorted}
}

// CheckDue 返回最早一条到期且未触发的提示音并将其占用。
// 已有提示音被占用（播放中）时返回nil，保证至多一条在播。
func (s *Scheduler) CheckDue(elapsed time.Duration) *Cue {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.cues {
		if c.claimed {
			return nil
		}
		if c.fired {
			continue
		}
		if c.Offset <= elapsed {
			c.claimed = true
			return c
		}
		// 列表有序，后面的更晚
		return nil
	}

	return nil
}

// MarkFired 播放结束后标记触发完成。
// 播放失败同样标记（跳过坏资源策略），时间线不因单条提示音停摆。
func (s *Scheduler) MarkFired(c *Cue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.fired = true
	c.claimed = false
}

// Release 将被占用但未完成的提示音退回未触发状态。
// 播放中被外部中断时使用，恢复后会重试。
func (s *Scheduler) Release(c *Cue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.fired {
		return
	}
	c.claimed = false
}

// InFlight 是否有提示音正在播放
func (s *Scheduler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.cues {
		if c.claimed {
			return true
		}
	}
	return false
}

// FiredBitmap 按声明顺序导出触发标记位图（快照持久化用）
func (s *Scheduler) FiredBitmap() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	bitmap := make([]bool, len(s.cues))
	for _, c := range s.cues {
		bitmap[c.seq] = c.fired
	}
	return bitmap
}

// RestoreBitmap 从快照恢复触发标记。长度不匹配时报错，由调用方决定丢弃快照。
func (s *Scheduler) RestoreBitmap(bitmap []bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(bitmap) != len(s.cues) {
		return fmt.Errorf("cue bitmap length mismatch: snapshot has %d, scheduler has %d", len(bitmap), len(s.cues))
	}

	for _, c := range s.cues {
		c.fired = bitmap[c.seq]
		c.claimed = false
	}
	return nil
}

// Remaining 尚未触发的提示音数量
func (s *Scheduler) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, c := range s.cues {
		if !c.fired {
			count++
		}
	}
	return count
}
