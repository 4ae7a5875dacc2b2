package remote

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrNotReady marks a failure that means the host is not accepting sessions
// yet: sshd still starting, keys not installed, address not routable.
var ErrNotReady = errors.New("host not ready for remote execution")

// IsNotReady reports whether err is one of the failures a freshly booted host
// produces before it can take commands. Authentication failures, refused or
// reset connections, timeouts and TLS errors all qualify.
func IsNotReady(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotReady) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{"unable to authenticate", "handshake failed", "tls:", "x509:"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func notReady(err error) error {
	if err == nil || errors.Is(err, ErrNotReady) || !IsNotReady(err) {
		return err
	}
	return errors.Join(ErrNotReady, err)
}
