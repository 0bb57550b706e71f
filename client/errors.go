package client

import (
	"errors"
	"fmt"
)

var (
	// ErrPeerClosed 对端正常关闭了连接
	ErrPeerClosed = errors.New("session: peer closed the connection")
	// ErrSessionClosed 会话已关闭，调用方应停止发送
	ErrSessionClosed = errors.New("session: closed")
	// ErrNotConnected 尚未连接
	ErrNotConnected = errors.New("session: not connected")
	// ErrInvalidState 当前状态不允许该操作
	ErrInvalidState = errors.New("session: invalid state for operation")
	// ErrInputDropped 本帧输入未能入队，下一帧重试即可
	ErrInputDropped = errors.New("session: input dropped")
	// ErrSendFailed 连续写失败导致会话关闭
	ErrSendFailed = errors.New("session: repeated send failures")
	// ErrUnknownTransport 不支持的传输方式
	ErrUnknownTransport = errors.New("unknown transport")
)

// ConnectionError 初次连接失败（拒绝、不可达、超时）
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IOError 会话期间的读写错误
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsTransient 调用方可以在下一帧直接重试的错误
func IsTransient(err error) bool {
	return errors.Is(err, ErrInputDropped)
}
