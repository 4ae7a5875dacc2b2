package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// TCPChecker checks that a service port accepts connections
type TCPChecker struct {
	// Address is the host:port to connect to
	Address string

	// Timeout is the connection timeout (default: 5 seconds)
	Timeout time.Duration
}

// NewTCPChecker creates a checker for host and port
func NewTCPChecker(host string, port int) *TCPChecker {
	return &TCPChecker{
		Address: net.JoinHostPort(host, strconv.Itoa(port)),
		Timeout: 5 * time.Second,
	}
}

// Check dials the address once
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return result(start, false, fmt.Sprintf("connection failed: %v", err))
	}
	_ = conn.Close()
	return result(start, true, fmt.Sprintf("%s accepts connections", t.Address))
}

// Type returns the health check type
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// WithTimeout sets the connection timeout; zero keeps the current one
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	if timeout > 0 {
		t.Timeout = timeout
	}
	return t
}
