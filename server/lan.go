package server

import (
	"errors"
	"net"
)

// LocalIP 第一个非回环的 IPv4 地址，作为发现应答里默认的 host
func LocalIP() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	for _, i := range ifaces {
		if i.Flags&net.FlagUp == 0 || i.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			switch v := a.(type) {
			case *net.IPNet:
				if v.IP.To4() == nil || v.IP.IsLoopback() {
					continue
				}
				return v.IP.String(), nil
			}
		}
	}

	return "", errors.New("no LAN interface found")
}
