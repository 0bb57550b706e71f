package server

import (
	"errors"
	"net"

	"go.uber.org/zap"

	"lanarena/protocol"
)

// serveDiscovery 回应局域网内的 DISCOVER_ROOM 探测，其他报文忽略
func serveDiscovery(pc net.PacketConn, room protocol.RoomDescriptor, log *zap.SugaredLogger) error {
	reply, err := protocol.EncodeRoom(room)
	if err != nil {
		return err
	}

	buf := make([]byte, 1024)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !protocol.IsProbe(buf[:n]) {
			continue
		}
		if _, err := pc.WriteTo(reply, from); err != nil {
			log.Debugw("discovery reply failed", "to", from.String(), "error", err)
			continue
		}
		log.Debugw("discovery probe answered", "from", from.String())
	}
}
