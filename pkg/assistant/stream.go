package assistant

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned when writing to a stream whose outbound
// direction was already closed.
var ErrStreamClosed = errors.New("assistant stream closed")

// Stream is one duplex conversation channel. Send and CloseSend are called
// from a single writer goroutine while Recv is called from a single reader
// goroutine. Send blocks until the write was accepted and must not retain
// req.AudioIn after returning; it must return once ctx is done or Close was
// called. Recv returns io.EOF when the server closed its side cleanly.
type Stream interface {
	Send(ctx context.Context, req *Request) error
	// CloseSend half-closes the outbound direction; Recv keeps working.
	CloseSend() error
	Recv() (*Response, error)
	// Close tears down both directions. It is safe to call more than once.
	Close() error
}

// Dialer opens streams.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Stream, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Stream, error) {
	return f(ctx)
}

// CredentialProvider supplies the bearer token sent when a stream is
// opened. Tokens are passed through untouched.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialProvider returning a fixed token. An empty
// token disables the Authorization header.
type StaticToken string

// Token returns t.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}
