package remote

import (
	"context"
	"iter"
	"sync"
)

// Stream identifies which output stream a chunk came from
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Chunk is one piece of command output as it arrived from the host
type Chunk struct {
	Stream Stream
	Data   []byte
}

// Session is the output of one remote command. Chunks are produced lazily
// and can be consumed once, through Next or All; the sequence ends when the
// command exits. Wait must always be called to release the producer.
type Session struct {
	chunks <-chan Chunk
	done   <-chan struct{}

	mu   sync.Mutex
	code int
	err  error
}

// Next returns the next chunk, or false when the command has finished
func (s *Session) Next() (Chunk, bool) {
	c, ok := <-s.chunks
	return c, ok
}

// All ranges over the remaining chunks. Breaking out of the loop leaves the
// rest for Wait to discard.
func (s *Session) All() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for c := range s.chunks {
			if !yield(c) {
				return
			}
		}
	}
}

// Wait discards unread output and returns the exit status. A non-nil error
// means the command could not be run or the connection dropped; a command
// that ran and failed reports a non-zero code with a nil error.
func (s *Session) Wait() (int, error) {
	for range s.chunks {
	}
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.err
}

// Feed is the producing end of a Session
type Feed struct {
	chunks  chan Chunk
	done    chan struct{}
	session *Session
	once    sync.Once
}

// Pipe returns a connected Session and Feed. buffer bounds how far the
// producer may run ahead of the consumer.
func Pipe(buffer int) (*Session, *Feed) {
	chunks := make(chan Chunk, buffer)
	done := make(chan struct{})
	s := &Session{chunks: chunks, done: done}
	return s, &Feed{chunks: chunks, done: done, session: s}
}

// Send delivers a copy of data. It returns false if ctx ended first.
func (f *Feed) Send(ctx context.Context, stream Stream, data []byte) bool {
	if len(data) == 0 {
		return true
	}
	c := Chunk{Stream: stream, Data: append([]byte(nil), data...)}
	select {
	case f.chunks <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close ends the session with the given exit status. Only the first call has
// any effect, and no Send may follow it.
func (f *Feed) Close(code int, err error) {
	f.once.Do(func() {
		f.session.mu.Lock()
		f.session.code = code
		f.session.err = err
		f.session.mu.Unlock()
		close(f.chunks)
		close(f.done)
	})
}

// Completed returns an already finished session holding chunks
func Completed(code int, err error, chunks ...Chunk) *Session {
	s, f := Pipe(len(chunks))
	for _, c := range chunks {
		f.chunks <- c
	}
	f.Close(code, err)
	return s
}
