package discovery

import (
	"context"
	"net"
	"syscall"
)

// listenBroadcastSocket opens a UDP socket with SO_BROADCAST enabled so the
// announcer can write to the limited broadcast address (255.255.255.255).
// Plain net.Dial/net.ListenPacket sockets refuse broadcast writes on Linux
// without this option set.
func listenBroadcastSocket() (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			ctrlErr := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
			})
			if ctrlErr != nil {
				return ctrlErr
			}
			return sockErr
		},
	}
	return lc.ListenPacket(context.Background(), "udp4", ":0")
}
