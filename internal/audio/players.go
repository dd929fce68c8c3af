package audio

import (
	"context"
	"log"
	"time"
)

// NopDevice 总是成功的空设备，供测试和无音频环境使用
type NopDevice struct{}

func (NopDevice) Activate() error   { return nil }
func (NopDevice) Deactivate() error { return nil }

// LogPlayer 仅打日志的播放器，按固定时长模拟播放。
// 服务端没有真实音频输出，资源的实际播放发生在设备端。
type LogPlayer struct {
	PlayDuration time.Duration
}

// Play 模拟播放：记录日志并等待模拟时长，可被上下文取消
func (p *LogPlayer) Play(ctx context.Context, assetRef string) error {
	log.Printf("🔊 播放音频资源: %s", assetRef)

	d := p.PlayDuration
	if d <= 0 {
		return nil
	}

	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
