package discovery

import (
	"fmt"
	"net"
)

// LocalIP observes the OS-chosen source address for an outbound UDP socket
// "connected" to a non-local address — no packet is actually sent, since UDP
// connect only binds the kernel's route lookup. Falls back to the loopback
// address on failure (spec.md §4.5).
func LocalIP() string {
	conn, err := net.Dial("udp", "203.0.113.1:80") // TEST-NET-3, RFC 5737
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// subnet24 returns the /24 broadcast-domain prefix ("a.b.c.") and the host's
// own last octet, used by the TCP sweep (spec.md §4.5 strategy B).
func subnet24(ip string) (prefix string, lastOctet int, ok bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", 0, false
	}
	v4 := parsed.To4()
	if v4 == nil {
		return "", 0, false
	}
	prefix = fmt.Sprintf("%d.%d.%d.", v4[0], v4[1], v4[2])
	return prefix, int(v4[3]), true
}
