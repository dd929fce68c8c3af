package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"GoRelaxSessionEngine/internal/session"
)

// Version 快照结构版本号。字段变更时递增，旧版本快照直接丢弃而不是带病恢复。
const Version = 1

// StaleMargin 暂停快照的默认过期余量：目标时长再加300秒
const StaleMargin = 300 * time.Second

// ErrSnapshotStale 快照超过过期界限
var ErrSnapshotStale = errors.New("snapshot is stale")

// ErrSnapshotMalformed 快照无法解析或版本不匹配
var ErrSnapshotMalformed = errors.New("snapshot is malformed")

// Snapshot 会话进度的时点快照，仅用于崩溃/挂起恢复。
// 每次暂停/恢复/后台化时整体覆盖写入，完成或显式重开时删除。
type Snapshot struct {
	Version           int           `json:"version"`
	SessionID         string        `json:"session_id"`
	Kind              session.Kind  `json:"kind"`
	ScriptID          string        `json:"script_id,omitempty"`
	PlannedDuration   time.Duration `json:"planned_duration"`
	StartedAt         time.Time     `json:"started_at"`
	PausedAccumulated time.Duration `json:"paused_accumulated"`
	PauseStartedAt    time.Time     `json:"pause_started_at,omitempty"`
	Status            string        `json:"status"`
	PhaseIndex        int           `json:"phase_index"`
	FiredCues         []bool        `json:"fired_cues,omitempty"`
	TimelineCursor    int           `json:"timeline_cursor,omitempty"`
	SavedAt           time.Time     `json:"saved_at"`
}

// Capture 从会话当前状态生成快照
func Capture(s *session.Session, phaseIndex int, firedCues []bool, timelineCursor int, now time.Time) *Snapshot {
	return &Snapshot{
		Version:           Version,
		SessionID:         s.ID,
		Kind:              s.Kind,
		ScriptID:          s.ScriptID,
		PlannedDuration:   s.PlannedDuration,
		StartedAt:         s.StartedAt,
		PausedAccumulated: s.PausedAccumulated,
		PauseStartedAt:    s.PauseStartedAt,
		Status:            s.Status.String(),
		PhaseIndex:        phaseIndex,
		FiredCues:         firedCues,
		TimelineCursor:    timelineCursor,
		SavedAt:           now,
	}
}

// RestoreSession 由快照重建会话值
func (snap *Snapshot) RestoreSession() *session.Session {
	s := &session.Session{
		ID:                snap.SessionID,
		Kind:              snap.Kind,
		ScriptID:          snap.ScriptID,
		PlannedDuration:   snap.PlannedDuration,
		StartedAt:         snap.StartedAt,
		PausedAccumulated: snap.PausedAccumulated,
		PauseStartedAt:    snap.PauseStartedAt,
	}

	switch snap.Status {
	case session.StatusPaused.String():
		s.Status = session.StatusPaused
	default:
		s.Status = session.StatusActive
	}

	return s
}

// Store 快照持久化存储。
// 写入走临时文件+rename的整体替换路径，崩溃时读端不会看到半截记录；
// 后台对账任务与前台保存共用同一路径，避免互相踩踏。
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore 创建快照存储，目录不存在时自动创建
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &Store{path: filepath.Join(dir, "session_snapshot.json")}, nil
}

// Save 原子整体替换快照记录
func (st *Store) Save(snap *Snapshot) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return atomicWriteFile(st.path, data, 0644)
}

// LoadCandidate 读取恢复候选快照。
// 不存在时返回(nil, nil)；解析失败、版本不符或超过过期界限时
// 删除快照并返回(nil, nil)——调用方直接开新会话，不打扰用户。
// 过期规则：Paused状态且 now − pausedAt > 目标时长 + 300s 视为被遗弃。
func (st *Store) LoadCandidate(now time.Time) (*Snapshot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("丢弃损坏的快照: %v", err)
		st.removeLocked()
		return nil, nil
	}

	if err := validate(&snap, now); err != nil {
		log.Printf("丢弃快照 (%s): %v", snap.SessionID, err)
		st.removeLocked()
		return nil, nil
	}

	return &snap, nil
}

// Clear 删除快照，快照不存在时为幂等空操作
func (st *Store) Clear() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	return st.removeLocked()
}

func (st *Store) removeLocked() error {
	if err := os.Remove(st.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}

// validate 检查快照完整性与过期界限
func validate(snap *Snapshot, now time.Time) error {
	if snap.Version != Version {
		return fmt.Errorf("%w: unknown version %d", ErrSnapshotMalformed, snap.Version)
	}
	if snap.SessionID == "" {
		return fmt.Errorf("%w: missing session id", ErrSnapshotMalformed)
	}
	if !snap.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrSnapshotMalformed, snap.Kind)
	}
	if snap.PlannedDuration <= 0 {
		return fmt.Errorf("%w: planned duration %v", ErrSnapshotMalformed, snap.PlannedDuration)
	}

	if snap.Status == session.StatusPaused.String() && !snap.PauseStartedAt.IsZero() {
		bound := snap.PlannedDuration + StaleMargin
		if now.Sub(snap.PauseStartedAt) > bound {
			return fmt.Errorf("%w: paused %v ago, bound %v", ErrSnapshotStale, now.Sub(snap.PauseStartedAt), bound)
		}
	}

	return nil
}

// atomicWriteFile 临时文件写入后rename，目标文件永远不处于半写状态
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
