// Package protocol 定义房间发现与对局连接的线协议：
// UDP 探测/应答，以及以换行分隔的 JSON 消息流。
// 客户端与本地房间服务端共用这一个包，保证两端编码一致。
package protocol

import "errors"

const (
	// DiscoveryPort 房间发现使用的 UDP 端口
	DiscoveryPort = 50001
	// GamePort 对局连接使用的流端口
	GamePort = 50000

	// Probe 发现探测报文的固定内容
	Probe = "DISCOVER_ROOM"

	// Delimiter 消息分隔符
	Delimiter = '\n'

	// MaxLineSize 未出现分隔符时允许缓冲的最大字节数，超过即视为帧失步
	MaxLineSize = 1 << 20 // 1MB
)

// 入站消息类型
const (
	TypeWelcome = "welcome"
	TypeState   = "state"
)

var (
	ErrMalformedMessage = errors.New("protocol: malformed message")
	ErrMalformedRoom    = errors.New("protocol: malformed room reply")
	ErrFramingDesync    = errors.New("protocol: framing desync")
)

// RoomDescriptor 一条发现应答描述的房间
type RoomDescriptor struct {
	Host     string `json:"host"`
	RoomCode string `json:"room_code"`
}

// PlayerState 服务端权威的玩家位置，客户端只读镜像
type PlayerState struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// InputMessage 每帧的速度增量（不是位置）
type InputMessage struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// Message 解码后的入站消息
type Message interface {
	MessageType() string
}

// Welcome 一次性分配客户端身份
type Welcome struct {
	ID string
}

// State 完整的权威快照，整体替换客户端玩家列表
type State struct {
	Players []PlayerState
}

// Unknown 无法识别的类型，调用方忽略即可（向前兼容）
type Unknown struct {
	Type string
}

func (Welcome) MessageType() string   { return TypeWelcome }
func (State) MessageType() string     { return TypeState }
func (u Unknown) MessageType() string { return u.Type }
