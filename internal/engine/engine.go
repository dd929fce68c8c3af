package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"GoRelaxSessionEngine/internal/archive"
	"GoRelaxSessionEngine/internal/audio"
	"GoRelaxSessionEngine/internal/config"
	"GoRelaxSessionEngine/internal/cue"
	"GoRelaxSessionEngine/internal/phase"
	"GoRelaxSessionEngine/internal/session"
	"GoRelaxSessionEngine/internal/snapshot"
	"GoRelaxSessionEngine/internal/timeline"
)

// ErrSessionActive 已有活跃会话，单进程同一时刻只允许一个
var ErrSessionActive = errors.New("a session is already active")

// ErrNoActiveSession 当前没有会话
var ErrNoActiveSession = errors.New("no active session")

// ErrSessionComplete 会话已处于终态
var ErrSessionComplete = errors.New("session is complete")

// GuidedProgram 音频准备服务为引导式会话解析出的播放素材
type GuidedProgram struct {
	ScriptID      string
	Segments      []timeline.Segment
	Interjections []timeline.Interjection
	Total         time.Duration
}

// ResultHandler 会话结果产出通知（归档之外的观察钩子）
type ResultHandler func(result *session.Result)

// Engine 会话引擎：状态机、计时与音频提示调度的驱动核心。
// 所有状态迁移集中在这里的单一reducer路径上，
// 表现层只通过周期tick与只读投影和引擎交互。
type Engine struct {
	cfg      *config.Config
	cycle    *phase.Cycle
	store    *snapshot.Store
	archiver archive.Archiver
	sound    *audio.Engine
	guard    *PauseGuard

	mu   sync.Mutex
	sess *session.Session
	cues *cue.Scheduler
	tl   *timeline.Timeline

	snapshotSaved bool
	lastToggleAt  time.Time
	resultEmitted bool

	onResult ResultHandler
}

// New 创建会话引擎并接管音频中断通知
func New(cfg *config.Config, store *snapshot.Store, archiver archive.Archiver, sound *audio.Engine) (*Engine, error) {
	cycle, err := phase.NewCycle(cfg.PhaseDurations())
	if err != nil {
		return nil, fmt.Errorf("invalid phase durations: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		cycle:    cycle,
		store:    store,
		archiver: archiver,
		sound:    sound,
		guard:    NewPauseGuard(cfg.Engine.PauseTimeout),
	}

	sound.SetInterruptionHandler(e.handleInterruption)

	return e, nil
}

// SetResultHandler 设置结果产出观察钩子
func (e *Engine) SetResultHandler(h ResultHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onResult = h
}

// StartBreathing 启动固定时长呼吸会话。cues可为空。
func (e *Engine) StartBreathing(now time.Time, planned time.Duration, cues []*cue.Cue) (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureIdleLocked(); err != nil {
		return nil, err
	}
	if planned <= 0 {
		return nil, fmt.Errorf("planned duration must be positive, got %v", planned)
	}

	e.sess = session.New(session.KindBasicBreathing, planned, now)
	e.cues = cue.NewScheduler(cues)
	e.tl = nil
	e.resetLifecycleLocked()

	log.Printf("🧘 呼吸会话已启动: %s (时长 %v, %d 条提示音)", e.sess.ID, planned, len(cues))
	return e.sess.Clone(), nil
}

// StartGuided 启动引导式会话，素材来自音频准备服务
func (e *Engine) StartGuided(now time.Time, program *GuidedProgram) (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureIdleLocked(); err != nil {
		return nil, err
	}

	tl, err := timeline.Build(program.Segments, program.Interjections, program.Total)
	if err != nil {
		return nil, err
	}
	tl.OnComplete(func() {
		log.Printf("📜 引导时间线播放完毕")
	})

	e.sess = session.New(session.KindGuided, program.Total, now)
	e.sess.ScriptID = program.ScriptID
	e.tl = tl
	e.cues = nil
	e.resetLifecycleLocked()

	log.Printf("🧘 引导会话已启动: %s (脚本 %s, 时长 %v)", e.sess.ID, program.ScriptID, program.Total)
	return e.sess.Clone(), nil
}

// Pause 暂停会话。防抖窗口内的重复切换只产生一次净迁移。
func (e *Engine) Pause(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pauseLocked(now, true)
}

// Resume 恢复会话。外部中断后的恢复必须由用户显式发起，走的也是这里。
func (e *Engine) Resume(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return ErrNoActiveSession
	}
	if e.sess.Status == session.StatusComplete {
		return ErrSessionComplete
	}
	if e.sess.Status != session.StatusPaused {
		return nil
	}
	if e.debouncedLocked(now) {
		return nil
	}

	e.sess.Resume(now)
	e.guard.Disarm()
	e.saveSnapshotLocked(now)

	log.Printf("▶️ 会话已恢复: %s (累计暂停 %v)", e.sess.ID, e.sess.PausedAccumulated)
	return nil
}

// End 手动结束会话。无会话在跑时也可安全调用（幂等收尾）。
func (e *Engine) End(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return ErrNoActiveSession
	}

	fully := e.sess.Elapsed(now) >= e.sess.PlannedDuration
	e.completeLocked(now, fully)
	return nil
}

// Tick 周期驱动入口：重算显示状态、检查暂停超时与自然完结、
// 触发到期的提示音或时间线动作。由表现层以亚秒间隔调用。
func (e *Engine) Tick(now time.Time) *session.DisplayState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return nil
	}

	// 会话的首个tick落一次快照
	if !e.snapshotSaved {
		e.saveSnapshotLocked(now)
	}

	switch e.sess.Status {
	case session.StatusComplete:
		// 终态：tick是幂等空操作

	case session.StatusPaused:
		if e.guard.Expired(e.sess.PauseStartedAt, now) {
			log.Printf("⏱️ 暂停超过 %v，会话强制完结: %s", e.guard.Timeout(), e.sess.ID)
			e.completeLocked(now, false)
		}

	case session.StatusActive:
		elapsed := e.sess.Elapsed(now)
		if elapsed >= e.sess.PlannedDuration {
			e.completeLocked(now, true)
			break
		}
		e.dispatchDueLocked(elapsed)
	}

	return e.displayLocked(now)
}

// NotifyBackground 进程即将后台化/挂起：强制暂停（不防抖）冻结读数并落快照。
// 后台期间不计入已进行时长，回到前台后由用户显式恢复。
// 后台对账任务与前台保存走同一条原子替换路径。
func (e *Engine) NotifyBackground(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil || e.sess.Status == session.StatusComplete {
		return
	}

	if e.sess.Status == session.StatusActive {
		log.Printf("📱 进程后台化，会话强制暂停: %s", e.sess.ID)
		e.pauseLocked(now, false)
		return
	}
	e.saveSnapshotLocked(now)
}

// Recover 进程重启后尝试从快照恢复会话。
// 需要调用方重新提供与原会话一致的素材（提示音或引导程序）。
// 无候选快照时返回(nil, nil)，调用方开新会话。
func (e *Engine) Recover(now time.Time, cues []*cue.Cue, program *GuidedProgram) (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != nil && e.sess.Status != session.StatusComplete {
		return nil, ErrSessionActive
	}

	snap, err := e.store.LoadCandidate(now)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot candidate: %w", err)
	}
	if snap == nil {
		return nil, nil
	}

	sess := snap.RestoreSession()

	switch sess.Kind {
	case session.KindBasicBreathing:
		scheduler := cue.NewScheduler(cues)
		if err := scheduler.RestoreBitmap(snap.FiredCues); err != nil {
			// 素材与快照不一致，按损坏快照处理：丢弃并开新会话
			log.Printf("丢弃快照 (%s): %v", snap.SessionID, err)
			e.store.Clear()
			return nil, nil
		}
		e.cues = scheduler
		e.tl = nil

	case session.KindGuided:
		if program == nil {
			log.Printf("丢弃快照 (%s): 缺少引导素材", snap.SessionID)
			e.store.Clear()
			return nil, nil
		}
		tl, err := timeline.Build(program.Segments, program.Interjections, program.Total)
		if err != nil {
			log.Printf("丢弃快照 (%s): %v", snap.SessionID, err)
			e.store.Clear()
			return nil, nil
		}
		if err := tl.RestoreCursor(snap.TimelineCursor); err != nil {
			log.Printf("丢弃快照 (%s): %v", snap.SessionID, err)
			e.store.Clear()
			return nil, nil
		}
		e.tl = tl
		e.cues = nil
	}

	e.sess = sess
	e.snapshotSaved = true
	e.resultEmitted = false
	e.lastToggleAt = time.Time{}

	if sess.Status == session.StatusPaused {
		e.guard.Arm(e.onPauseTimeout)
	}

	log.Printf("♻️ 会话已从快照恢复: %s (状态 %s, 已进行 %v)", sess.ID, sess.Status, sess.Elapsed(now))
	return sess.Clone(), nil
}

// Display 只读显示投影，无会话时返回nil
func (e *Engine) Display(now time.Time) *session.DisplayState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return nil
	}
	return e.displayLocked(now)
}

// Active 当前是否有未完结的会话
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.sess != nil && e.sess.Status != session.StatusComplete
}

// ---- 内部路径，调用方需持有锁 ----

func (e *Engine) ensureIdleLocked() error {
	if e.sess != nil && e.sess.Status != session.StatusComplete {
		return ErrSessionActive
	}
	return nil
}

func (e *Engine) resetLifecycleLocked() {
	e.snapshotSaved = false
	e.resultEmitted = false
	e.lastToggleAt = time.Time{}
	e.store.Clear()
}

// debouncedLocked 判断本次切换是否落在防抖窗口内，未落在时记录切换时刻
func (e *Engine) debouncedLocked(now time.Time) bool {
	if !e.lastToggleAt.IsZero() && now.Sub(e.lastToggleAt) < e.cfg.Engine.DebounceWindow {
		return true
	}
	e.lastToggleAt = now
	return false
}

// pauseLocked 执行暂停迁移。debounce=true时走防抖窗口，
// 中断与后台化的强制暂停传false跳过防抖。
func (e *Engine) pauseLocked(now time.Time, debounce bool) error {
	if e.sess == nil {
		return ErrNoActiveSession
	}
	if e.sess.Status == session.StatusComplete {
		return ErrSessionComplete
	}
	if e.sess.Status != session.StatusActive {
		return nil
	}
	if debounce && e.debouncedLocked(now) {
		return nil
	}

	e.sess.Pause(now)
	e.guard.Arm(e.onPauseTimeout)

	// 在播资源中止并退回未触发状态，恢复后重试
	e.sound.StopCurrent()
	e.releaseInFlightLocked()

	e.saveSnapshotLocked(now)

	log.Printf("⏸️ 会话已暂停: %s (已进行 %v)", e.sess.ID, e.sess.Elapsed(now))
	return nil
}

func (e *Engine) releaseInFlightLocked() {
	if e.tl != nil {
		e.tl.ReleaseInFlight()
	}
	// 提示音调度器的占用由播放协程在中断错误时退回
}

// dispatchDueLocked 触发到期的提示音或时间线动作，播放串行、至多一条在播。
// 调度器/时间线指针在派发时捕获，播放协程不回读引擎字段——
// 会话更替后迟到的播放回执只落在它所属的旧会话素材上。
func (e *Engine) dispatchDueLocked(elapsed time.Duration) {
	if e.cues != nil {
		if c := e.cues.CheckDue(elapsed); c != nil {
			go e.playCue(e.cues, c)
		}
		return
	}

	if e.tl != nil {
		action := e.tl.Advance(elapsed)
		if action == nil {
			return
		}
		if action.Type == timeline.ActionComplete {
			// 时间线自行耗尽（总时长与素材完全吻合时先于elapsed判定到达）
			return
		}
		go e.playTimelineAction(e.tl, action)
	}
}

// playCue 播放单条提示音（串行，await到完成或失败）
func (e *Engine) playCue(s *cue.Scheduler, c *cue.Cue) {
	err := e.sound.Play(context.Background(), c.AssetRef)

	if errors.Is(err, audio.ErrPlaybackInterrupted) {
		// 中断打断的提示音视为未触发，恢复后重试
		s.Release(c)
		return
	}
	if err != nil {
		// 坏资源同样标记已触发（跳过策略），时间线不停摆
		log.Printf("⚠️ 提示音播放失败，跳过: %s: %v", c.AssetRef, err)
	}

	s.MarkFired(c)
}

// playTimelineAction 播放单个时间线动作（串行）
func (e *Engine) playTimelineAction(tl *timeline.Timeline, action *timeline.PlaybackAction) {
	err := e.sound.Play(context.Background(), action.AssetRef)

	if errors.Is(err, audio.ErrPlaybackInterrupted) {
		tl.ReleaseInFlight()
		return
	}
	if err != nil {
		log.Printf("⚠️ 时间线动作播放失败，跳过: %s: %v", action.AssetRef, err)
	}

	tl.MarkDone()
}

// completeLocked 完结路径：停音频、清快照、产出并归档结果。
// Complete为终态，重复进入是幂等空操作。
func (e *Engine) completeLocked(now time.Time, fully bool) {
	if e.sess == nil || e.sess.Status == session.StatusComplete {
		return
	}

	// 结果必须在状态迁移前生成：暂停中完结时elapsed以暂停时刻为准
	result := session.NewResult(e.sess, now, fully)

	e.sess.Complete()
	e.guard.Disarm()
	e.sound.StopCurrent()
	e.releaseInFlightLocked()

	if err := e.store.Clear(); err != nil {
		log.Printf("⚠️ 快照清理失败: %v", err)
	}

	if e.resultEmitted {
		return
	}
	e.resultEmitted = true

	log.Printf("🏁 会话完结: %s (完整=%v, 实际时长 %v)", result.SessionID, fully, result.ActualDuration)

	handler := e.onResult
	archiver := e.archiver

	// 归档在锁外进行；保存失败不重试（重试策略归调用方）
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := archiver.Save(ctx, result); err != nil {
			log.Printf("⚠️ 会话结果归档失败: %v", err)
		}
		if handler != nil {
			handler(result)
		}
	}()
}

// onPauseTimeout 看门狗真实时钟路径触发
func (e *Engine) onPauseTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil || e.sess.Status != session.StatusPaused {
		return
	}

	now := time.Now()
	log.Printf("⏱️ 暂停超过 %v，会话强制完结: %s", e.guard.Timeout(), e.sess.ID)
	e.completeLocked(now, false)
}

// handleInterruption 外部音频中断策略。
// 开始：强制暂停（不防抖），在播资源退回未触发。
// 结束：设备已由音频引擎重新激活，但会话保持暂停——恢复只能由用户发起。
func (e *Engine) handleInterruption(began bool) {
	if !began {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil || e.sess.Status != session.StatusActive {
		return
	}

	log.Printf("📞 外部音频中断，会话强制暂停: %s", e.sess.ID)
	e.pauseLocked(time.Now(), false)
}

// saveSnapshotLocked 尽力而为的快照保存，失败只降低恢复保真度、不致命
func (e *Engine) saveSnapshotLocked(now time.Time) {
	if e.sess == nil || e.sess.Status == session.StatusComplete {
		return
	}

	var fired []bool
	if e.cues != nil {
		fired = e.cues.FiredBitmap()
	}

	cursor := 0
	if e.tl != nil {
		cursor = e.tl.Cursor()
	}

	snap := snapshot.Capture(e.sess, e.cycle.Index(e.sess.Elapsed(now)), fired, cursor, now)
	if err := e.store.Save(snap); err != nil {
		log.Printf("⚠️ 快照保存失败: %v", err)
		return
	}
	e.snapshotSaved = true
}

// displayLocked 生成只读显示投影
func (e *Engine) displayLocked(now time.Time) *session.DisplayState {
	state := session.Project(e.sess, now)

	if e.sess.Kind == session.KindBasicBreathing {
		p, _ := e.cycle.At(state.Elapsed)
		anim := e.cycle.Animation(p)
		state.Phase = p.String()
		state.PhaseScale = anim.ScaleFrom + (anim.ScaleTo-anim.ScaleFrom)*e.cycle.Progress(state.Elapsed)
	}

	return state
}
