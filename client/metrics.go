package client

import "sync/atomic"

// SessionMetrics 记录会话运行期的关键指标（用于调试面板与日志）
type SessionMetrics struct {
	BytesRead        int64 // 读到的原始字节数
	MessagesDecoded  int64 // 成功解码的消息数
	StatesApplied    int64 // 发布的快照数
	MalformedDropped int64 // 因格式错误被丢弃的行数
	UnknownIgnored   int64 // 未知类型被忽略的消息数
	InputsSent       int64 // 成功写出的输入数
	InputsDropped    int64 // 因队列满被丢弃的输入数
	SendFailures     int64 // 写失败次数
}

func (m *SessionMetrics) AddBytesRead(n int) { atomic.AddInt64(&m.BytesRead, int64(n)) }
func (m *SessionMetrics) IncDecoded() { atomic.AddInt64(&m.MessagesDecoded, 1) }
func (m *SessionMetrics) IncStatesApplied() { atomic.AddInt64(&m.StatesApplied, 1) }
func (m *SessionMetrics) IncMalformed() { atomic.AddInt64(&m.MalformedDropped, 1) }
func (m *SessionMetrics) IncUnknown() { atomic.AddInt64(&m.UnknownIgnored, 1) }
func (m *SessionMetrics) IncInputsSent() { atomic.AddInt64(&m.InputsSent, 1) }
func (m *SessionMetrics) IncInputsDropped() { atomic.AddInt64(&m.InputsDropped, 1) }
func (m *SessionMetrics) IncSendFailures() { atomic.AddInt64(&m.SendFailures, 1) }

// Snapshot 返回只读副本，便于日志输出
func (m *SessionMetrics) Snapshot() map[string]any {
	return map[string]any{
		"bytes_read":        atomic.LoadInt64(&m.BytesRead),
		"messages_decoded":  atomic.LoadInt64(&m.MessagesDecoded),
		"states_applied":    atomic.LoadInt64(&m.StatesApplied),
		"malformed_dropped": atomic.LoadInt64(&m.MalformedDropped),
		"unknown_ignored":   atomic.LoadInt64(&m.UnknownIgnored),
		"inputs_sent":       atomic.LoadInt64(&m.InputsSent),
		"inputs_dropped":    atomic.LoadInt64(&m.InputsDropped),
		"send_failures":     atomic.LoadInt64(&m.SendFailures),
	}
}
