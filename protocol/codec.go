package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
)

// wirePlayer 用指针区分“缺失”和“零值”
type wirePlayer struct {
	ID *string  `json:"id"`
	X  *float64 `json:"x"`
	Y  *float64 `json:"y"`
}

// envelope 入站消息的统一外壳，先看 type 再取字段
type envelope struct {
	Type    string        `json:"type"`
	ID      *string       `json:"id"`
	Players *[]wirePlayer `json:"players"`
}

// Decode 解码一行入站消息（不含分隔符）
func Decode(line []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	case TypeWelcome:
		if env.ID == nil || *env.ID == "" {
			return nil, fmt.Errorf("%w: welcome without id", ErrMalformedMessage)
		}
		return Welcome{ID: *env.ID}, nil
	case TypeState:
		if env.Players == nil {
			return nil, fmt.Errorf("%w: state without players", ErrMalformedMessage)
		}
		players := make([]PlayerState, 0, len(*env.Players))
		for i, p := range *env.Players {
			if p.ID == nil || p.X == nil || p.Y == nil {
				return nil, fmt.Errorf("%w: player %d missing id/x/y", ErrMalformedMessage, i)
			}
			players = append(players, PlayerState{ID: *p.ID, X: *p.X, Y: *p.Y})
		}
		return State{Players: players}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

// EncodeInput 编码一帧输入，带分隔符
func EncodeInput(dx, dy int) ([]byte, error) {
	return encodeLine(InputMessage{DX: dx, DY: dy})
}

// DecodeInput 服务端解析一行输入
func DecodeInput(line []byte) (InputMessage, error) {
	var in struct {
		DX *int `json:"dx"`
		DY *int `json:"dy"`
	}
	if err := json.Unmarshal(line, &in); err != nil {
		return InputMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if in.DX == nil || in.DY == nil {
		return InputMessage{}, fmt.Errorf("%w: input missing dx/dy", ErrMalformedMessage)
	}
	return InputMessage{DX: *in.DX, DY: *in.DY}, nil
}

// EncodeWelcome 服务端分配身份
func EncodeWelcome(id string) ([]byte, error) {
	return encodeLine(struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}{Type: TypeWelcome, ID: id})
}

// EncodeState 服务端广播完整快照；players 为 nil 时编码为空数组
func EncodeState(players []PlayerState) ([]byte, error) {
	if players == nil {
		players = []PlayerState{}
	}
	return encodeLine(struct {
		Type    string        `json:"type"`
		Players []PlayerState `json:"players"`
	}{Type: TypeState, Players: players})
}

func encodeLine(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, Delimiter), nil
}

// IsProbe 判断一个 UDP 报文是否为发现探测
func IsProbe(data []byte) bool {
	return string(bytes.TrimSpace(data)) == Probe
}

// EncodeRoom 发现应答，不带分隔符（一个报文一个对象）
func EncodeRoom(r RoomDescriptor) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRoom 解析发现应答；host 与 room_code 都必须存在
func DecodeRoom(data []byte) (RoomDescriptor, error) {
	var r RoomDescriptor
	if err := json.Unmarshal(data, &r); err != nil {
		return RoomDescriptor{}, fmt.Errorf("%w: %v", ErrMalformedRoom, err)
	}
	if r.Host == "" || r.RoomCode == "" {
		return RoomDescriptor{}, fmt.Errorf("%w: missing host or room_code", ErrMalformedRoom)
	}
	return r, nil
}

// IsUnspecifiedHost 应答里的 host 是通配地址（0.0.0.0、::），无法作为拨号目标
func IsUnspecifiedHost(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsUnspecified()
}
