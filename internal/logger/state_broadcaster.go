package logger

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"GoRelaxSessionEngine/internal/session"
)

// StateMessage 推送给表现层客户端的消息
type StateMessage struct {
	Type      string                `json:"type"` // "state" 或 "log"
	State     *session.DisplayState `json:"state,omitempty"`
	Level     string                `json:"level,omitempty"`
	Message   string                `json:"message,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// StateBroadcaster 将显示状态与日志按tick推送到已连接的WebSocket客户端。
// 表现层只消费投影，不持有任何计时逻辑。
type StateBroadcaster struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan StateMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewStateBroadcaster 创建状态推送器
func NewStateBroadcaster() *StateBroadcaster {
	return &StateBroadcaster{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan StateMessage, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run 启动推送循环，应在独立协程中运行
func (sb *StateBroadcaster) Run() {
	for {
		select {
		case client := <-sb.register:
			sb.mu.Lock()
			sb.clients[client] = true
			count := len(sb.clients)
			sb.mu.Unlock()
			log.Printf("表现层客户端已连接，当前连接数: %d", count)

		case client := <-sb.unregister:
			sb.mu.Lock()
			if _, ok := sb.clients[client]; ok {
				delete(sb.clients, client)
				client.Close()
			}
			count := len(sb.clients)
			sb.mu.Unlock()
			log.Printf("表现层客户端已断开，当前连接数: %d", count)

		case message := <-sb.broadcast:
			sb.mu.Lock()
			for client := range sb.clients {
				if err := client.WriteJSON(message); err != nil {
					log.Printf("推送状态消息失败: %v", err)
					delete(sb.clients, client)
					client.Close()
				}
			}
			sb.mu.Unlock()
		}
	}
}

// Register 注册客户端连接
func (sb *StateBroadcaster) Register(conn *websocket.Conn) {
	sb.register <- conn
}

// Unregister 注销客户端连接
func (sb *StateBroadcaster) Unregister(conn *websocket.Conn) {
	sb.unregister <- conn
}

// PushState 推送显示状态。推送通道满时丢弃本tick，下个tick会带来更新的投影。
func (sb *StateBroadcaster) PushState(state *session.DisplayState) {
	if state == nil {
		return
	}

	msg := StateMessage{
		Type:      "state",
		State:     state,
		Timestamp: time.Now(),
	}

	select {
	case sb.broadcast <- msg:
	default:
	}
}

// PushLog 推送一条日志消息，同时输出到控制台
func (sb *StateBroadcaster) PushLog(level, message string) {
	log.Printf("[%s] %s", level, message)

	msg := StateMessage{
		Type:      "log",
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}

	select {
	case sb.broadcast <- msg:
	default:
	}
}

// ClientCount 当前连接的客户端数量
func (sb *StateBroadcaster) ClientCount() int {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return len(sb.clients)
}
