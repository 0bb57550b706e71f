package client

import (
	"time"

	"go.uber.org/zap"

	"lanarena/protocol"
)

// DiscoveryConfig 房间发现参数
type DiscoveryConfig struct {
	// BroadcastAddr 探测目标地址，局域网内通常为 255.255.255.255
	BroadcastAddr string
	Port          int

	// Timeout 整个发现窗口
	Timeout time.Duration
	// AttemptTimeout 每次探测后等待应答的时长，到期即重发探测
	AttemptTimeout time.Duration
	// MaxAttempts 最多探测次数，0 表示只受 Timeout 约束
	MaxAttempts int

	MaxDatagramSize int

	Logger *zap.SugaredLogger
}

// DefaultDiscoveryConfig 1.5 秒窗口，每 0.4 秒重发一次探测
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		BroadcastAddr:   "255.255.255.255",
		Port:            protocol.DiscoveryPort,
		Timeout:         1500 * time.Millisecond,
		AttemptTimeout:  400 * time.Millisecond,
		MaxDatagramSize: 1024,
	}
}

// SessionConfig 对局连接参数
type SessionConfig struct {
	// GamePort host 不带端口时使用
	GamePort int

	// Dialer 为 nil 时使用 TCP
	Dialer Dialer

	DialTimeout time.Duration
	// WriteTimeout 单次输入写出的期限，0 表示不设写期限；读方向不设超时
	WriteTimeout time.Duration

	ReadBufferSize int
	MaxLineSize    int
	// SendQueueSize 待写出输入的队列长度，满了就丢弃本帧输入
	SendQueueSize int
	// MaxSendFailures 连续写失败达到该次数后关闭会话，0 表示永不因写失败关闭
	MaxSendFailures int

	Logger *zap.SugaredLogger
}

// DefaultSessionConfig 默认参数
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		GamePort:        protocol.GamePort,
		DialTimeout:     3 * time.Second,
		WriteTimeout:    200 * time.Millisecond,
		ReadBufferSize:  4096,
		MaxLineSize:     protocol.MaxLineSize,
		SendQueueSize:   8,
		MaxSendFailures: 3,
	}
}

// withDefaults 补齐零值字段，调用方只需填关心的部分。
// WriteTimeout 与 MaxSendFailures 的零值有含义（关闭对应机制），保持原样。
func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.GamePort == 0 {
		c.GamePort = d.GamePort
	}
	if c.Dialer == nil {
		c.Dialer = TCPDialer{KeepAlive: DefaultKeepAlive}
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = d.MaxLineSize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = d.SendQueueSize
	}
	return c
}

func (c DiscoveryConfig) withDefaults() DiscoveryConfig {
	d := DefaultDiscoveryConfig()
	if c.BroadcastAddr == "" {
		c.BroadcastAddr = d.BroadcastAddr
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.MaxDatagramSize <= 0 {
		c.MaxDatagramSize = d.MaxDatagramSize
	}
	return c
}
