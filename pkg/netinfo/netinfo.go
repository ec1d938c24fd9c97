// Package netinfo reports the address under which the device is reachable.
package netinfo

import (
	"net"
	"os"
)

type Identity interface {
	Address() string
}

// Static is a fixed address, configured with http.address or --address.
type Static string

func (s Static) Address() string { return string(s) }

// Host discovers the address from the local interfaces.
type Host struct{}

func (Host) Address() string { return DiscoverIP() }

// DiscoverIP prefers the first non-loopback IPv4 interface address, then the
// hostname lookup, and falls back to 127.0.0.1.
func DiscoverIP() string {
	if addrs, err := net.InterfaceAddrs(); err == nil {
		if ip := firstUsable(addrs); ip != "" {
			return ip
		}
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "127.0.0.1"
	}
	addrs, err := net.LookupHost(hostname)
	if err != nil || len(addrs) == 0 {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ip := net.ParseIP(addr)
		if ip != nil && !ip.IsLoopback() && ip.To4() != nil {
			return addr
		}
	}
	return addrs[0]
}

func firstUsable(addrs []net.Addr) string {
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipn.IP.To4(); ip4 != nil && !ip4.IsLoopback() && !ip4.IsLinkLocalUnicast() {
			return ip4.String()
		}
	}
	return ""
}
