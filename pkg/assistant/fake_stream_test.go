package assistant

import (
	"context"
	"io"
	"sync"
)

// fakeStream is an in-memory Stream. Responses are replayed in order, then
// Recv returns final (io.EOF when nil).
type fakeStream struct {
	mu        sync.Mutex
	requests  []Request
	responses []*Response
	next      int
	final     error

	configErr error
	sendErr   error
	failAfter int

	awaitHalfClose bool
	// awaitFrames delays the first response until that many audio frames
	// were accepted, so the server answers while the upload is running.
	awaitFrames int
	block       bool
	frames      chan struct{}

	halfClosed chan struct{}
	closed     chan struct{}
	halfOnce   sync.Once
	closeOnce  sync.Once
}

func newFakeStream(responses ...*Response) *fakeStream {
	return &fakeStream{
		responses:  responses,
		failAfter:  -1,
		frames:     make(chan struct{}, 1024),
		halfClosed: make(chan struct{}),
		closed:     make(chan struct{}),
	}
}

func (f *fakeStream) dialer() Dialer {
	return DialerFunc(func(ctx context.Context) (Stream, error) {
		go func() {
			select {
			case <-ctx.Done():
				_ = f.Close()
			case <-f.closed:
			}
		}()
		return f, nil
	})
}

func (f *fakeStream) Send(ctx context.Context, req *Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.halfClosed:
		return ErrStreamClosed
	case <-f.closed:
		return ErrStreamClosed
	default:
	}
	if req.Config != nil {
		if f.configErr != nil {
			return f.configErr
		}
		cfg := *req.Config
		cfg.ConversationState = cloneBytes(cfg.ConversationState)
		f.requests = append(f.requests, Request{Config: &cfg})
		return nil
	}
	if f.failAfter >= 0 && f.audioFramesLocked() >= f.failAfter {
		return f.sendErr
	}
	f.requests = append(f.requests, Request{AudioIn: cloneBytes(req.AudioIn)})
	select {
	case f.frames <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeStream) CloseSend() error {
	f.halfOnce.Do(func() { close(f.halfClosed) })
	return nil
}

func (f *fakeStream) Recv() (*Response, error) {
	for f.awaitFrames > 0 {
		select {
		case <-f.frames:
			f.awaitFrames--
		case <-f.closed:
			return nil, ErrStreamClosed
		}
	}
	if f.awaitHalfClose {
		select {
		case <-f.halfClosed:
		case <-f.closed:
			return nil, ErrStreamClosed
		}
	}
	f.mu.Lock()
	if f.next < len(f.responses) {
		resp := f.responses[f.next]
		f.next++
		f.mu.Unlock()
		return resp, nil
	}
	f.mu.Unlock()
	if f.block {
		<-f.closed
		return nil, ErrStreamClosed
	}
	if f.final != nil {
		return nil, f.final
	}
	return nil, io.EOF
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) sent() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

func (f *fakeStream) audioFramesLocked() int {
	n := 0
	for _, req := range f.requests {
		if req.Config == nil {
			n++
		}
	}
	return n
}

type recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *recorder) emit(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

func (r *recorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

func countTerminal(items []Notification) int {
	n := 0
	for _, item := range items {
		if IsTerminal(item) {
			n++
		}
	}
	return n
}
