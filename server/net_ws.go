package server

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Spectator 观战连接：只接收状态广播，每个 Tick 一条文本帧
type Spectator struct {
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewSpectator(ws *websocket.Conn) *Spectator {
	return &Spectator{
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *Spectator) Enqueue(b []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- b:
	default:
	}
}

// Close 关闭底层连接并结束写协程
func (c *Spectator) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump 独立协程，负责从 send 队列写出到 WS；WS 自带分帧，去掉行分隔符
func (c *Spectator) writePump() {
	defer c.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(msg, []byte{'\n'})); err != nil {
				return
			}
		}
	}
}

// readPump 观战者不发送数据，只用读循环感知断开与处理控制帧
func (c *Spectator) readPump(room *Room) {
	defer room.Unspectate(c)
	c.ws.SetReadLimit(1024)
	for {
		if _, _, err := c.ws.NextReader(); err != nil {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 局域网调试工具：允许所有来源
		return true
	},
}

// handleSpectate WebSocket 观战接入：GET /ws
func (s *Server) handleSpectate(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("upgrade error", "error", err)
		return
	}

	spectator := NewSpectator(ws)
	s.room.Spectate(spectator)
	s.log.Debugw("spectator joined", "remote", r.RemoteAddr)

	go spectator.writePump()
	go spectator.readPump(s.room)
}
