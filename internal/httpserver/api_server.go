package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"GoRelaxSessionEngine/internal/config"
	"GoRelaxSessionEngine/internal/cue"
	"GoRelaxSessionEngine/internal/engine"
	"GoRelaxSessionEngine/internal/logger"
	"GoRelaxSessionEngine/internal/timeline"
)

// APIServer 表现层HTTP适配器。
// 对外提供会话控制接口与显示状态轮询，并持有驱动引擎的周期tick循环——
// 引擎核心自身不携带任何调度原语。
type APIServer struct {
	router      *mux.Router
	server      *http.Server
	engine      *engine.Engine
	broadcaster *logger.StateBroadcaster
	upgrader    websocket.Upgrader
	tick        time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// APIResponse 统一响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// StartSessionRequest 启动会话请求体
type StartSessionRequest struct {
	Kind           string             `json:"kind"` // "basic_breathing" 或 "guided"
	PlannedSeconds int64              `json:"planned_seconds"`
	ScriptID       string             `json:"script_id,omitempty"`
	Cues           []CuePayload       `json:"cues,omitempty"`
	Segments       []SegmentPayload   `json:"segments,omitempty"`
	Interjections  []InterjectPayload `json:"interjections,omitempty"`
}

// CuePayload 提示音素材
type CuePayload struct {
	OffsetSeconds float64 `json:"offset_seconds"`
	AssetRef      string  `json:"asset_ref"`
}

// SegmentPayload 预渲染段素材
type SegmentPayload struct {
	OffsetSeconds   float64 `json:"offset_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
	AssetRef        string  `json:"asset_ref"`
}

// InterjectPayload 插入提示音素材
type InterjectPayload struct {
	OffsetSeconds float64 `json:"offset_seconds"`
	AssetRef      string  `json:"asset_ref"`
}

// NewAPIServer 创建表现层HTTP服务器
func NewAPIServer(cfg *config.Config, eng *engine.Engine, broadcaster *logger.StateBroadcaster) *APIServer {
	s := &APIServer{
		router:      mux.NewRouter(),
		engine:      eng,
		broadcaster: broadcaster,
		tick:        cfg.Engine.TickInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		stopChan: make(chan struct{}),
	}

	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s.server = &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      c.Handler(s.router),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes 设置路由
func (s *APIServer) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// 会话控制
	api.HandleFunc("/sessions", s.startSessionHandler).Methods("POST")
	api.HandleFunc("/sessions/recover", s.recoverSessionHandler).Methods("POST")
	api.HandleFunc("/sessions/current", s.getSessionHandler).Methods("GET")
	api.HandleFunc("/sessions/current/pause", s.pauseHandler).Methods("POST")
	api.HandleFunc("/sessions/current/resume", s.resumeHandler).Methods("POST")
	api.HandleFunc("/sessions/current/end", s.endHandler).Methods("POST")
	api.HandleFunc("/sessions/current/background", s.backgroundHandler).Methods("POST")

	// 健康检查
	api.HandleFunc("/health", s.healthHandler).Methods("GET")

	// 显示状态实时推送
	s.router.HandleFunc("/ws/state", s.wsStateHandler)
}

// Start 启动服务器与驱动tick循环
func (s *APIServer) Start() error {
	go s.broadcaster.Run()

	s.wg.Add(1)
	go s.driverLoop()

	go func() {
		log.Printf("🚀 表现层API服务器启动: %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("API服务器异常退出: %v", err)
		}
	}()

	return nil
}

// Shutdown 停止tick循环并优雅关闭服务器，重复调用安全
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	return s.server.Shutdown(ctx)
}

// driverLoop 单一协作式驱动循环：亚秒间隔tick引擎并推送投影
func (s *APIServer) driverLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			state := s.engine.Tick(time.Now())
			s.broadcaster.PushState(state)
		case <-s.stopChan:
			return
		}
	}
}

// ---- Handlers ----

func (s *APIServer) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	now := time.Now()

	switch req.Kind {
	case "basic_breathing":
		sess, err := s.engine.StartBreathing(now, secondsToDuration(float64(req.PlannedSeconds)), buildCues(req.Cues))
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: sess, Timestamp: now.UnixMilli()})

	case "guided":
		sess, err := s.engine.StartGuided(now, buildProgram(&req))
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: sess, Timestamp: now.UnixMilli()})

	default:
		s.writeError(w, http.StatusBadRequest, "unknown session kind: "+req.Kind)
	}
}

func (s *APIServer) recoverSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	now := time.Now()

	var program *engine.GuidedProgram
	if req.Kind == "guided" {
		program = buildProgram(&req)
	}

	sess, err := s.engine.Recover(now, buildCues(req.Cues), program)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if sess == nil {
		s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "no snapshot candidate", Timestamp: now.UnixMilli()})
		return
	}

	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: sess, Timestamp: now.UnixMilli()})
}

func (s *APIServer) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	state := s.engine.Display(now)
	if state == nil {
		s.writeError(w, http.StatusNotFound, "no active session")
		return
	}

	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: state, Timestamp: now.UnixMilli()})
}

func (s *APIServer) pauseHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, s.engine.Pause)
}

func (s *APIServer) resumeHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, s.engine.Resume)
}

func (s *APIServer) endHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, s.engine.End)
}

func (s *APIServer) backgroundHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	s.engine.NotifyBackground(now)
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Timestamp: now.UnixMilli()})
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":         "ok",
			"active_session": s.engine.Active(),
			"ws_clients":     s.broadcaster.ClientCount(),
		},
		Timestamp: time.Now().UnixMilli(),
	})
}

// wsStateHandler 升级WebSocket连接并交给推送器管理
func (s *APIServer) wsStateHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket升级失败: %v", err)
		return
	}

	s.broadcaster.Register(conn)

	// 读循环只为感知客户端断开
	go func() {
		defer s.broadcaster.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ---- 中间件与工具 ----

func (s *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)
		log.Printf("%s %s %s %v", r.Method, r.RequestURI, r.RemoteAddr, duration)
	})
}

func (s *APIServer) transition(w http.ResponseWriter, fn func(time.Time) error) {
	now := time.Now()
	if err := fn(now); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.engine.Display(now), Timestamp: now.UnixMilli()})
}

func (s *APIServer) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var tlErr *timeline.TimelineError
	switch {
	case errors.Is(err, engine.ErrSessionActive):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrNoActiveSession):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrSessionComplete):
		status = http.StatusGone
	case errors.As(err, &tlErr):
		status = http.StatusBadRequest
	}

	s.writeError(w, status, err.Error())
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, APIResponse{Success: false, Message: message, Timestamp: time.Now().UnixMilli()})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("响应编码失败: %v", err)
	}
}

func buildCues(payloads []CuePayload) []*cue.Cue {
	cues := make([]*cue.Cue, 0, len(payloads))
	for _, p := range payloads {
		cues = append(cues, &cue.Cue{
			Offset:   secondsToDuration(p.OffsetSeconds),
			AssetRef: p.AssetRef,
		})
	}
	return cues
}

func buildProgram(req *StartSessionRequest) *engine.GuidedProgram {
	segments := make([]timeline.Segment, 0, len(req.Segments))
	for _, p := range req.Segments {
		segments = append(segments, timeline.Segment{
			AssetRef: p.AssetRef,
			Offset:   secondsToDuration(p.OffsetSeconds),
			Duration: secondsToDuration(p.DurationSeconds),
		})
	}

	interjections := make([]timeline.Interjection, 0, len(req.Interjections))
	for _, p := range req.Interjections {
		interjections = append(interjections, timeline.Interjection{
			AssetRef: p.AssetRef,
			Offset:   secondsToDuration(p.OffsetSeconds),
		})
	}

	return &engine.GuidedProgram{
		ScriptID:      req.ScriptID,
		Segments:      segments,
		Interjections: interjections,
		Total:         secondsToDuration(float64(req.PlannedSeconds)),
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
