package transport

import (
	"fmt"
	"net"
)

// DialGuacd opens a TCP connection to the guacd daemon at addr
// (host:port), mirroring the teacher's internal/rdp/proxy.go net.Dial
// call.
func DialGuacd(addr string) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to guacd: %w", err)
	}
	return conn, nil
}
