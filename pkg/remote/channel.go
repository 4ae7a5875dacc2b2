package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Channel runs commands on, and copies files to, cluster hosts.
// Implementations hold no per-cluster state and are safe for concurrent use.
type Channel interface {
	Execute(ctx context.Context, host, command string) (*Session, error)
	CopyFile(ctx context.Context, host, localPath, remotePath string) error
}

// ExitError is returned by Run when a command exits non-zero
type ExitError struct {
	Host    string
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command on %s exited with status %d: %s", e.Host, e.Code, e.Command)
}

// Consumer receives each output chunk of a session
type Consumer func(Chunk)

// Discard drops all output
func Discard(Chunk) {}

// Summarize writes one dot per chunk to w, for progress display
func Summarize(w io.Writer) Consumer {
	return func(Chunk) {
		_, _ = w.Write([]byte{'.'})
	}
}

// Echo logs every output line at debug level, stderr lines tagged as such
func Echo(logger zerolog.Logger, host string) Consumer {
	return func(c Chunk) {
		for _, line := range bytes.Split(bytes.TrimRight(c.Data, "\n"), []byte{'\n'}) {
			if len(line) == 0 {
				continue
			}
			logger.Debug().
				Str("host", host).
				Str("stream", c.Stream.String()).
				Msg(string(line))
		}
	}
}

// Collect appends all output to buf, for callers that need it whole
func Collect(buf *bytes.Buffer) Consumer {
	return func(c Chunk) {
		buf.Write(c.Data)
	}
}

// Run executes command on host, feeds its output to consume, and returns an
// *ExitError for a non-zero status.
func Run(ctx context.Context, ch Channel, host, command string, consume Consumer) error {
	if consume == nil {
		consume = Discard
	}

	sess, err := ch.Execute(ctx, host, command)
	if err != nil {
		return err
	}
	for c := range sess.All() {
		consume(c)
	}
	code, err := sess.Wait()
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Host: host, Command: command, Code: code}
	}
	return nil
}

// Quote wraps s in single quotes for a POSIX shell
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
