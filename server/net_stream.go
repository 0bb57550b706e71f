package server

import (
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lanarena/protocol"
)

const (
	writeWait      = 5 * time.Second
	sendQueueSize  = 64
	readBufferSize = 4096
)

// ClientConn 负责发送（写）数据到客户端的轻量包装，底层是 TCP 或 KCP 流
type ClientConn struct {
	conn      net.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClientConn(conn net.Conn) *ClientConn {
	return &ClientConn{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- b:
	default:
		// 为了实时性，丢弃旧消息（防止阻塞 Tick）
	}
}

// Close 关闭底层连接并结束写协程，可重复调用
func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump 独立协程，负责从 send 队列写出
func (c *ClientConn) writePump() {
	defer c.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if _, err := c.conn.Write(msg); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端输入行，转换为 Input 注入房间
func (c *ClientConn) readPump(room *Room, playerID PlayerID, log *zap.SugaredLogger) {
	defer c.Close()
	// 读泵退出时，通知房间在 Tick 线程中移除该玩家
	defer room.RequestLeave(playerID)

	framer := protocol.NewFramer(protocol.MaxLineSize)
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			lines, ferr := framer.Feed(buf[:n])
			for _, line := range lines {
				if len(line) == 0 {
					continue
				}
				im, derr := protocol.DecodeInput(line)
				if derr != nil {
					room.metrics.IncMalformed()
					log.Debugw("malformed input", "player", playerID, "error", derr)
					continue
				}
				room.OnInput(Input{PlayerID: playerID, DX: im.DX, DY: im.DY})
			}
			if ferr != nil {
				log.Warnw("input stream desync", "player", playerID, "error", ferr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// newPlayerID 短 uuid，足够区分局域网内的玩家
func newPlayerID() PlayerID {
	return PlayerID(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// serveStream 接入循环：每个连接分配 id，先发 welcome 再加入房间
func serveStream(ln net.Listener, room *Room, log *zap.SugaredLogger) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		id := newPlayerID()
		client := NewClientConn(conn)
		welcome, err := protocol.EncodeWelcome(string(id))
		if err != nil {
			client.Close()
			continue
		}
		client.Enqueue(welcome)
		room.RequestJoin(id, client)
		log.Debugw("stream accepted", "player", id, "remote", conn.RemoteAddr().String())

		go client.writePump()
		go client.readPump(room, id, log)
	}
}
