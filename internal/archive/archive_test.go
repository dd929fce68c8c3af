package archive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoRelaxSessionEngine/internal/session"
)

// TestMemoryArchiveSave 测试内存归档的保存与读取
func TestMemoryArchiveSave(t *testing.T) {
	a := NewMemoryArchive()
	assert.Empty(t, a.Results())

	start := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	s := session.New(session.KindBasicBreathing, 300*time.Second, start)
	result := session.NewResult(s, start.Add(300*time.Second), true)

	require.NoError(t, a.Save(context.Background(), result))

	results := a.Results()
	require.Len(t, results, 1)
	assert.Equal(t, s.ID, results[0].SessionID)
	assert.True(t, results[0].CompletedFully)
}

// TestMemoryArchiveConcurrentSave 测试并发保存安全
func TestMemoryArchiveConcurrentSave(t *testing.T) {
	a := NewMemoryArchive()
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			s := session.New(session.KindGuided, 60*time.Second, start.Add(time.Duration(offset)*time.Second))
			a.Save(context.Background(), session.NewResult(s, time.Now(), false))
		}(i)
	}
	wg.Wait()

	assert.Len(t, a.Results(), 10)
}

// TestResultsReturnsCopy 测试Results返回副本
func TestResultsReturnsCopy(t *testing.T) {
	a := NewMemoryArchive()
	start := time.Now()
	s := session.New(session.KindBasicBreathing, 60*time.Second, start)
	require.NoError(t, a.Save(context.Background(), session.NewResult(s, start.Add(time.Minute), true)))

	got := a.Results()
	got[0] = nil

	assert.NotNil(t, a.Results()[0])
}

// TestDefaultPgxConfig 测试默认归档数据库配置
func TestDefaultPgxConfig(t *testing.T) {
	cfg := DefaultPgxConfig()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "relax_sessions", cfg.DBName)
	assert.Equal(t, "disable", cfg.SSLMode)
}
