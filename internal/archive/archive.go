package archive

import (
	"context"
	"sync"

	"GoRelaxSessionEngine/internal/session"
)

// Archiver 会话结果归档服务。
// 本引擎每个会话恰好调用一次Save，保存失败的重试策略由调用方负责。
type Archiver interface {
	Save(ctx context.Context, result *session.Result) error
}

// MemoryArchive 内存归档，供测试与演示使用
type MemoryArchive struct {
	mu      sync.Mutex
	results []*session.Result
}

// NewMemoryArchive 创建内存归档
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{}
}

// Save 追加结果记录
func (a *MemoryArchive) Save(ctx context.Context, result *session.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.results = append(a.results, result)
	return nil
}

// Results 返回已归档结果的副本
func (a *MemoryArchive) Results() []*session.Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]*session.Result{}, a.results...)
}
