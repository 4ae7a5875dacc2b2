package health

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/hcluster/pkg/remote"
)

// RemoteChecker runs a command on a node and passes when it exits zero
type RemoteChecker struct {
	Channel remote.Channel
	Host    string
	Command string

	// Timeout is the command execution timeout (default: 10 seconds)
	Timeout time.Duration
}

// NewRemoteChecker creates a checker running command on host
func NewRemoteChecker(ch remote.Channel, host, command string) *RemoteChecker {
	return &RemoteChecker{
		Channel: ch,
		Host:    host,
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// Check runs the command once
func (r *RemoteChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if r.Command == "" {
		return result(start, false, "no command specified")
	}

	execCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var out bytes.Buffer
	err := remote.Run(execCtx, r.Channel, r.Host, r.Command, remote.Collect(&out))
	if err != nil {
		var exit *remote.ExitError
		if errors.As(err, &exit) {
			return result(start, false, fmt.Sprintf("exit %d: %s", exit.Code, truncate(out.String())))
		}
		return result(start, false, fmt.Sprintf("command failed: %v", err))
	}
	return result(start, true, "command succeeded")
}

// Type returns the health check type
func (r *RemoteChecker) Type() CheckType {
	return CheckTypeRemote
}

// WithTimeout sets the execution timeout; zero keeps the current one
func (r *RemoteChecker) WithTimeout(timeout time.Duration) *RemoteChecker {
	if timeout > 0 {
		r.Timeout = timeout
	}
	return r
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
