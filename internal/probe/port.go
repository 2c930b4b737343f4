package probe

import (
	"net"
	"strconv"
	"time"
)

// portOpen reports whether something accepts TCP connections on the loopback
// port. No protocol handshake is attempted.
func portOpen(port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
