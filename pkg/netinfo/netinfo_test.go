package netinfo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func cidr(t *testing.T, s string) net.Addr {
	t.Helper()
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	n.IP = ip
	return n
}

func TestFirstUsable(t *testing.T) {
	addrs := []net.Addr{
		cidr(t, "127.0.0.1/8"),
		cidr(t, "169.254.3.4/16"),
		cidr(t, "fe80::1/64"),
		cidr(t, "192.168.4.1/24"),
		cidr(t, "10.0.0.2/8"),
	}
	assert.Equal(t, "192.168.4.1", firstUsable(addrs))
	assert.Equal(t, "", firstUsable(addrs[:3]))
}

func TestStatic(t *testing.T) {
	var id Identity = Static("192.168.4.1")
	assert.Equal(t, "192.168.4.1", id.Address())
}

func TestDiscoverIPNeverEmpty(t *testing.T) {
	assert.NotEmpty(t, DiscoverIP())
}
