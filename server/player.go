package server

import "lanarena/protocol"

// PlayerID 表示玩家唯一标识，由服务端在连接时分配
type PlayerID string

// Conn 房间向玩家或观战者推送数据的发送端（写协程）
type Conn interface {
	// Enqueue 非阻塞入队，满则丢弃
	Enqueue(b []byte)
	Close()
}

// Player 房间内的玩家实体（服务端权威状态）
type Player struct {
	ID PlayerID
	X  float64
	Y  float64

	// inputsThisTick 本 Tick 已接受的输入数，用于限流
	inputsThisTick int

	Conn Conn
}

// State 广播给客户端的轻量状态
func (p *Player) State() protocol.PlayerState {
	return protocol.PlayerState{ID: string(p.ID), X: p.X, Y: p.Y}
}
