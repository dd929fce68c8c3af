package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrEngineDegraded 引擎初始化失败后处于静默降级模式
var ErrEngineDegraded = errors.New("audio engine is in degraded mode")

// ErrPlaybackInterrupted 播放被外部中断打断
var ErrPlaybackInterrupted = errors.New("playback interrupted")

// Player 实际的音频输出实现。
// Play 阻塞直到该资源播放完毕或失败，调用方保证串行调用。
type Player interface {
	Play(ctx context.Context, assetRef string) error
}

// Device 音频输出设备的激活控制。
// 外部中断结束后需要重新激活设备，但会话保持暂停。
type Device interface {
	Activate() error
	Deactivate() error
}

// InterruptionHandler 外部音频中断通知（开始/结束）
type InterruptionHandler func(began bool)

// Config 音频引擎配置
type Config struct {
	InitTimeout     time.Duration
	InitMaxInterval time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		InitTimeout:     10 * time.Second,
		InitMaxInterval: 2 * time.Second,
	}
}

// Engine 音频引擎。在会话生命周期内独占输出设备。
// 初始化失败不致命：引擎进入静默降级模式，会话照常计时。
// 播放严格串行，同一时刻至多一个资源在播。
type Engine struct {
	player Player
	device Device
	config *Config

	mu          sync.Mutex
	playMu      sync.Mutex
	degraded    bool
	initialized bool

	onInterruption InterruptionHandler

	// 在播资源的取消函数，中断/结束会话时停掉
	cancelCurrent context.CancelFunc
}

// NewEngine 创建音频引擎
func NewEngine(player Player, device Device, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	return &Engine{
		player: player,
		device: device,
		config: config,
	}
}

// Init 初始化输出设备，指数退避重试。
// 超时后进入静默降级模式并返回错误，调用方可稍后重试。
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 100 * time.Millisecond
	backOff.MaxInterval = e.config.InitMaxInterval
	backOff.MaxElapsedTime = e.config.InitTimeout

	err := backoff.Retry(func() error {
		return e.device.Activate()
	}, backoff.WithContext(backOff, ctx))

	if err != nil {
		e.degraded = true
		log.Printf("⚠️ 音频设备激活失败，进入静默降级模式: %v", err)
		return fmt.Errorf("audio engine init failed: %w", err)
	}

	e.initialized = true
	e.degraded = false
	return nil
}

// Degraded 引擎是否处于静默降级模式
func (e *Engine) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degraded
}

// SetInterruptionHandler 设置外部中断通知处理器
func (e *Engine) SetInterruptionHandler(h InterruptionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onInterruption = h
}

// NotifyInterruption 平台层上报中断事件（如来电）。
// began=true 时停掉在播资源；began=false 时重新激活设备，
// 但是否恢复会话由上层策略决定。
func (e *Engine) NotifyInterruption(began bool) {
	e.mu.Lock()
	handler := e.onInterruption
	if began && e.cancelCurrent != nil {
		e.cancelCurrent()
	}
	if !began && e.initialized {
		if err := e.device.Activate(); err != nil {
			log.Printf("⚠️ 中断结束后设备重新激活失败: %v", err)
		}
	}
	e.mu.Unlock()

	if handler != nil {
		handler(began)
	}
}

// Play 串行播放单个资源，阻塞到播放完成或失败。
// 降级模式下直接成功返回（静默跳过）。
func (e *Engine) Play(ctx context.Context, assetRef string) error {
	e.playMu.Lock()
	defer e.playMu.Unlock()

	e.mu.Lock()
	if e.degraded || !e.initialized {
		e.mu.Unlock()
		return nil
	}

	playCtx, cancel := context.WithCancel(ctx)
	e.cancelCurrent = cancel
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.cancelCurrent = nil
		e.mu.Unlock()
	}()

	if err := e.player.Play(playCtx, assetRef); err != nil {
		if errors.Is(playCtx.Err(), context.Canceled) {
			return ErrPlaybackInterrupted
		}
		return fmt.Errorf("failed to play %s: %w", assetRef, err)
	}

	return nil
}

// StopCurrent 停掉在播资源但保留设备，供暂停路径使用。空转调用安全。
func (e *Engine) StopCurrent() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelCurrent != nil {
		e.cancelCurrent()
		e.cancelCurrent = nil
	}
}

// Stop 停掉在播资源并释放设备。重复调用或空转调用均安全。
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelCurrent != nil {
		e.cancelCurrent()
		e.cancelCurrent = nil
	}

	if e.initialized {
		if err := e.device.Deactivate(); err != nil {
			log.Printf("⚠️ 音频设备释放失败: %v", err)
		}
		e.initialized = false
	}
}
