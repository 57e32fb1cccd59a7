package cli

import (
	"fmt"
	"net"
)

// findAvailablePort scans [startPort, endPort] for the first port the
// loopback callback listener can bind, adapted from the teacher's
// FindAvailablePort helper.
func findAvailablePort(startPort, endPort int) (int, error) {
	for port := startPort; port <= endPort; port++ {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		listener, err := net.Listen("tcp", addr)
		if err == nil {
			listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port in range %d-%d", startPort, endPort)
}
