// Package remotetest provides a recording remote.Channel for tests.
package remotetest

import (
	"context"
	"strings"
	"sync"

	"github.com/cuemby/hcluster/pkg/remote"
)

// Call is one recorded Execute or CopyFile
type Call struct {
	Seq     int
	Host    string
	Command string
	Local   string
	Remote  string
	Copy    bool
	Err     error
}

type rule struct {
	host     string
	contains string
	copy     bool
	err      error
	code     int
	times    int
}

func (r *rule) matches(host, subject string, copy bool) bool {
	return r.copy == copy &&
		(r.host == "" || r.host == host) &&
		strings.Contains(subject, r.contains)
}

// Recorder records every call in order and replays injected failures. Any
// call without a matching rule succeeds with a line of output.
type Recorder struct {
	mu    sync.Mutex
	seq   int
	calls []Call
	rules []*rule

	// Hook, if set, runs before each Execute is recorded
	Hook func(host, command string)
}

// New returns an empty recorder
func New() *Recorder {
	return &Recorder{}
}

// FailExec makes the next times Execute calls on host whose command contains
// substr fail with err. An empty host matches every host.
func (r *Recorder) FailExec(host, substr string, err error, times int) {
	r.addRule(&rule{host: host, contains: substr, err: err, times: times})
}

// ExitWith makes matching commands exit with code instead of failing to run
func (r *Recorder) ExitWith(host, substr string, code, times int) {
	r.addRule(&rule{host: host, contains: substr, code: code, times: times})
}

// FailCopy makes the next times copies to host whose remote path contains
// substr fail with err.
func (r *Recorder) FailCopy(host, substr string, err error, times int) {
	r.addRule(&rule{host: host, contains: substr, copy: true, err: err, times: times})
}

func (r *Recorder) addRule(rl *rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rl)
}

func (r *Recorder) take(host, subject string, copy bool) *rule {
	for i, rl := range r.rules {
		if !rl.matches(host, subject, copy) {
			continue
		}
		rl.times--
		if rl.times <= 0 {
			r.rules = append(r.rules[:i:i], r.rules[i+1:]...)
		}
		return rl
	}
	return nil
}

func (r *Recorder) Execute(ctx context.Context, host, command string) (*remote.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Hook != nil {
		r.Hook(host, command)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	call := Call{Seq: r.seq, Host: host, Command: command}
	rl := r.take(host, command, false)
	if rl != nil && rl.err != nil {
		call.Err = rl.err
		r.calls = append(r.calls, call)
		return nil, rl.err
	}
	r.calls = append(r.calls, call)

	code := 0
	if rl != nil {
		code = rl.code
	}
	return remote.Completed(code, nil,
		remote.Chunk{Stream: remote.Stdout, Data: []byte("ok\n")},
	), nil
}

func (r *Recorder) CopyFile(ctx context.Context, host, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	call := Call{Seq: r.seq, Host: host, Local: localPath, Remote: remotePath, Copy: true}
	if rl := r.take(host, remotePath, true); rl != nil {
		call.Err = rl.err
	}
	r.calls = append(r.calls, call)
	return call.Err
}

// Calls returns every recorded call in order
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Commands returns the successful commands run on host, in order
func (r *Recorder) Commands(host string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		if !c.Copy && c.Host == host && c.Err == nil {
			out = append(out, c.Command)
		}
	}
	return out
}

// Find returns successful calls whose command or remote path contains substr
func (r *Recorder) Find(substr string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.Err != nil {
			continue
		}
		if strings.Contains(c.Command, substr) || (c.Copy && strings.Contains(c.Remote, substr)) {
			out = append(out, c)
		}
	}
	return out
}

var _ remote.Channel = (*Recorder)(nil)
