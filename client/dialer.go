package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/xtaci/kcp-go/v5"
)

// DefaultKeepAlive TCP 保活周期，用于发现挂死的对端
const DefaultKeepAlive = 15 * time.Second

// Dialer 建立到房间的可靠有序字节流
type Dialer interface {
	DialContext(ctx context.Context, addr string) (net.Conn, error)
}

// TCPDialer 默认传输
type TCPDialer struct {
	KeepAlive time.Duration
}

func (d TCPDialer) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	nd := net.Dialer{KeepAlive: d.KeepAlive}
	return nd.DialContext(ctx, "tcp", addr)
}

// KCPDialer 基于 UDP 的可靠流，房间服务端需以 kcp 方式监听
type KCPDialer struct{}

func (KCPDialer) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// kcp 的 Dial 只是绑定本地 UDP 套接字，不会阻塞在握手上
	return kcp.Dial(addr)
}

// DialerFor 按名称选择传输方式
func DialerFor(transport string) (Dialer, error) {
	switch transport {
	case "", "tcp":
		return TCPDialer{KeepAlive: DefaultKeepAlive}, nil
	case "kcp":
		return KCPDialer{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownTransport, transport)
	}
}
