package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoRelaxSessionEngine/internal/archive"
	"GoRelaxSessionEngine/internal/audio"
	"GoRelaxSessionEngine/internal/config"
	"GoRelaxSessionEngine/internal/engine"
	"GoRelaxSessionEngine/internal/logger"
	"GoRelaxSessionEngine/internal/snapshot"
)

func newTestServer(t *testing.T) *APIServer {
	t.Helper()

	cfg := config.Default()
	cfg.Snapshot.Dir = t.TempDir()

	store, err := snapshot.NewStore(cfg.Snapshot.Dir)
	require.NoError(t, err)

	sound := audio.NewEngine(&audio.LogPlayer{}, audio.NopDevice{}, nil)
	require.NoError(t, sound.Init(context.Background()))

	eng, err := engine.New(cfg, store, archive.NewMemoryArchive(), sound)
	require.NoError(t, err)

	return NewAPIServer(cfg, eng, logger.NewStateBroadcaster())
}

func doRequest(s *APIServer, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()

	var resp APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// TestSessionLifecycleOverHTTP 测试完整的会话控制流程
func TestSessionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	// 启动呼吸会话
	rec := doRequest(s, "POST", "/api/v1/sessions", `{
		"kind": "basic_breathing",
		"planned_seconds": 300,
		"cues": [{"offset_seconds": 30, "asset_ref": "chime.m4a"}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)

	// 查询当前状态
	rec = doRequest(s, "GET", "/api/v1/sessions/current", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// 暂停
	rec = doRequest(s, "POST", "/api/v1/sessions/current/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// 结束
	rec = doRequest(s, "POST", "/api/v1/sessions/current/end", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

// TestStartConflict 测试已有会话时启动返回409
func TestStartConflict(t *testing.T) {
	s := newTestServer(t)

	body := `{"kind": "basic_breathing", "planned_seconds": 300}`
	rec := doRequest(s, "POST", "/api/v1/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(s, "POST", "/api/v1/sessions", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

// TestStartValidationErrors 测试请求校验错误
func TestStartValidationErrors(t *testing.T) {
	s := newTestServer(t)

	// 未知会话类型
	rec := doRequest(s, "POST", "/api/v1/sessions", `{"kind": "yoga"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 非法请求体
	rec = doRequest(s, "POST", "/api/v1/sessions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 引导素材不连续：时间线装配失败映射到400
	rec = doRequest(s, "POST", "/api/v1/sessions", `{
		"kind": "guided",
		"planned_seconds": 300,
		"script_id": "s1",
		"segments": [{"offset_seconds": 10, "duration_seconds": 290, "asset_ref": "a"}]
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeResponse(t, rec).Message, "timeline")
}

// TestOperationsWithoutSession 测试无会话时的操作映射到404
func TestOperationsWithoutSession(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/v1/sessions/current/pause",
		"/api/v1/sessions/current/resume",
		"/api/v1/sessions/current/end",
	} {
		rec := doRequest(s, "POST", path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := doRequest(s, "GET", "/api/v1/sessions/current", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestRecoverWithoutSnapshot 测试无快照时恢复返回空候选
func TestRecoverWithoutSnapshot(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/v1/sessions/recover", `{"kind": "basic_breathing"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Data)
	assert.Contains(t, resp.Message, "no snapshot")
}

// TestHealthEndpoint 测试健康检查
func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "GET", "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, false, data["active_session"])
}

// TestBackgroundNotification 测试后台化通知总是成功
func TestBackgroundNotification(t *testing.T) {
	s := newTestServer(t)

	// 无会话时也安全
	rec := doRequest(s, "POST", "/api/v1/sessions/current/background", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, "POST", "/api/v1/sessions", `{"kind": "basic_breathing", "planned_seconds": 300}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(s, "POST", "/api/v1/sessions/current/background", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestWebSocketStatePush 测试显示状态的WebSocket实时推送
func TestWebSocketStatePush(t *testing.T) {
	s := newTestServer(t)
	go s.broadcaster.Run()

	httpSrv := httptest.NewServer(s.router)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/state"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// 等待注册完成
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, s.broadcaster.ClientCount())

	// 启动会话并手动推送一次投影
	rec := doRequest(s, "POST", "/api/v1/sessions", `{"kind": "basic_breathing", "planned_seconds": 300}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	s.broadcaster.PushState(s.engine.Display(time.Now()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg logger.StateMessage
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "state", msg.Type)
	require.NotNil(t, msg.State)
	assert.Equal(t, "ACTIVE", msg.State.Status)
}
