package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/cuemby/hcluster/pkg/log"
)

// SSHConfig configures an SSHChannel
type SSHConfig struct {
	User        string
	KeyFile     string
	Port        int
	DialTimeout time.Duration
}

// SSHChannel runs commands over SSH with public key authentication. Host
// keys are not verified: provider addresses are recycled between instances
// and every new node presents a fresh key.
type SSHChannel struct {
	cfg    SSHConfig
	signer ssh.Signer
}

// NewSSHChannel loads the private key and returns a channel
func NewSSHChannel(cfg SSHConfig) (*SSHChannel, error) {
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	pem, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh key %s: %w", cfg.KeyFile, err)
	}
	return &SSHChannel{cfg: cfg, signer: signer}, nil
}

func (c *SSHChannel) dial(ctx context.Context, host string) (*ssh.Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(c.cfg.Port))
	clientCfg := &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.cfg.DialTimeout,
	}

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, notReady(fmt.Errorf("dial %s: %w", addr, err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, notReady(fmt.Errorf("ssh %s: %w", addr, err))
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Execute starts command on host and streams its output
func (c *SSHChannel) Execute(ctx context.Context, host, command string) (*Session, error) {
	client, err := c.dial(ctx, host)
	if err != nil {
		return nil, err
	}
	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, notReady(fmt.Errorf("open session on %s: %w", host, err))
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		client.Close()
		return nil, err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := sess.Start(command); err != nil {
		client.Close()
		return nil, notReady(fmt.Errorf("start command on %s: %w", host, err))
	}

	out, feed := Pipe(16)
	go func() {
		defer client.Close()

		stop := context.AfterFunc(ctx, func() { client.Close() })
		defer stop()

		var wg sync.WaitGroup
		wg.Add(2)
		go pump(ctx, &wg, feed, Stdout, stdout)
		go pump(ctx, &wg, feed, Stderr, stderr)
		wg.Wait()

		err := sess.Wait()
		var exitErr *ssh.ExitError
		switch {
		case err == nil:
			feed.Close(0, nil)
		case errors.As(err, &exitErr):
			feed.Close(exitErr.ExitStatus(), nil)
		case ctx.Err() != nil:
			feed.Close(-1, ctx.Err())
		default:
			feed.Close(-1, fmt.Errorf("command on %s: %w", host, err))
		}
	}()
	return out, nil
}

func pump(ctx context.Context, wg *sync.WaitGroup, feed *Feed, stream Stream, r io.Reader) {
	defer wg.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 && !feed.Send(ctx, stream, buf[:n]) {
			_, _ = io.Copy(io.Discard, r)
			return
		}
		if err != nil {
			return
		}
	}
}

// CopyFile streams localPath to remotePath on host. A remotePath ending in a
// slash names a directory and keeps the local file name.
func (c *SSHChannel) CopyFile(ctx context.Context, host, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	if strings.HasSuffix(remotePath, "/") {
		remotePath = path.Join(remotePath, filepath.Base(localPath))
	}

	client, err := c.dial(ctx, host)
	if err != nil {
		return err
	}
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return notReady(fmt.Errorf("open session on %s: %w", host, err))
	}
	defer sess.Close()

	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	sess.Stdin = f
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s", Quote(path.Dir(remotePath)), Quote(remotePath))
	if err := sess.Run(cmd); err != nil {
		return fmt.Errorf("failed to copy %s to %s:%s: %w", localPath, host, remotePath, err)
	}

	log.Logger.Debug().
		Str("component", "remote").
		Str("host", host).
		Str("path", remotePath).
		Msg("Copied file")
	return nil
}
