package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"lanarena/logging"
	"lanarena/protocol"
)

// Discover 在局域网内广播探测并收集房间应答。
// 尽力而为：丢失的探测或应答、格式错误的应答都只是少发现一个房间，不算错误；
// 一个房间都没找到时返回空切片。只有套接字无法建立时才返回 error。
func Discover(ctx context.Context, cfg DiscoveryConfig) ([]protocol.RoomDescriptor, error) {
	cfg = cfg.withDefaults()
	log := cfg.Logger
	if log == nil {
		log = logging.Named("discovery")
	}

	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.BroadcastAddr, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast address: %w", err)
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("open discovery socket: %w", err)
	}
	defer conn.Close()

	// 取消时立即打断阻塞中的读
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	deadline := time.Now().Add(cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	rooms := make([]protocol.RoomDescriptor, 0)
	buf := make([]byte, cfg.MaxDatagramSize)
	probe := []byte(protocol.Probe)

	for attempt := 0; cfg.MaxAttempts <= 0 || attempt < cfg.MaxAttempts; attempt++ {
		now := time.Now()
		if ctx.Err() != nil || !now.Before(deadline) {
			break
		}

		// 每轮都重发探测，容忍广播丢包
		if _, err := conn.WriteTo(probe, target); err != nil {
			log.Debugw("probe send failed", "target", target.String(), "error", err)
		}

		attemptDeadline := now.Add(cfg.AttemptTimeout)
		if attemptDeadline.After(deadline) {
			attemptDeadline = deadline
		}
		if err := conn.SetReadDeadline(attemptDeadline); err != nil {
			return rooms, fmt.Errorf("set read deadline: %w", err)
		}
		// AfterFunc 可能在上面设置期限之前触发，它设置的期限已被覆盖
		if ctx.Err() != nil {
			break
		}

		for {
			n, from, err := conn.ReadFrom(buf)
			if err != nil {
				var ne net.Error
				if !(errors.As(err, &ne) && ne.Timeout()) {
					// 非超时错误不会自行恢复，等到本轮结束再重试，避免空转
					log.Debugw("discovery read failed", "error", err)
					sleepUntil(ctx, attemptDeadline)
				}
				break
			}

			room, err := protocol.DecodeRoom(buf[:n])
			if err != nil {
				log.Debugw("dropping discovery reply", "from", from.String(), "error", err)
				continue
			}
			// 每个有效应答对应一个描述符，原样保留；去重由调用方决定
			rooms = append(rooms, room)
			log.Debugw("room discovered", "host", room.Host, "room_code", room.RoomCode)
		}
	}

	return rooms, nil
}

func sleepUntil(ctx context.Context, t time.Time) {
	timer := time.NewTimer(time.Until(t))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
