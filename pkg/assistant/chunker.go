package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/saker-ai/assistant-bridge/pkg/audio"
)

// DefaultChunkSize is the default outbound audio frame size in bytes.
const DefaultChunkSize = 6400

// SendFunc writes one audio frame and blocks until the stream accepted it.
// It must not retain frame after returning.
type SendFunc func(ctx context.Context, frame []byte) error

// ChunkStats summarizes a chunking run.
type ChunkStats struct {
	Frames int
	Bytes  int64
}

// FrameWriteError reports that frame number Frame could not be written.
type FrameWriteError struct {
	Frame int
	Err   error
}

func (e *FrameWriteError) Error() string {
	return fmt.Sprintf("write audio frame %d: %v", e.Frame, e.Err)
}

func (e *FrameWriteError) Unwrap() error { return e.Err }

// FrameChunker splits an audio byte stream into frames of a fixed size.
// Every frame except possibly the last is exactly Size bytes.
type FrameChunker struct {
	size int
}

// NewFrameChunker returns a chunker for frames of size bytes. A size of zero
// or less selects DefaultChunkSize.
func NewFrameChunker(size int) *FrameChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &FrameChunker{size: size}
}

// Size returns the frame size in bytes.
func (c *FrameChunker) Size() int {
	return c.size
}

// Split returns the frames of data as sub-slices of it. Empty input yields
// no frames.
func (c *FrameChunker) Split(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(data)+c.size-1)/c.size)
	for start := 0; start < len(data); start += c.size {
		end := min(start+c.size, len(data))
		frames = append(frames, data[start:end])
	}
	return frames
}

// Stream reads src until end of input and hands each frame to send. Only one
// frame is buffered at a time, so reading never runs ahead of the writes
// send accepts. A send failure is returned as *FrameWriteError; a source
// failure is returned wrapped. Frames written before either failure are
// counted in the returned stats.
//
// Cancelling ctx returns ctx.Err() even while a read of src is blocked. The
// blocked read is abandoned and its data discarded.
func (c *FrameChunker) Stream(ctx context.Context, src io.Reader, send SendFunc) (ChunkStats, error) {
	var stats ChunkStats
	if src == nil {
		return stats, nil
	}
	if ctx.Done() != nil {
		src = &cancelableReader{ctx: ctx, src: src}
	}

	buf := audio.AcquireFrame(c.size)
	defer audio.ReleaseFrame(buf)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		n, readErr := io.ReadFull(src, buf)
		if err := ctx.Err(); err != nil && errors.Is(readErr, err) {
			return stats, err
		}
		if n > 0 {
			if err := send(ctx, buf[:n]); err != nil {
				return stats, &FrameWriteError{Frame: stats.Frames, Err: err}
			}
			stats.Frames++
			stats.Bytes += int64(n)
		}
		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF), errors.Is(readErr, io.ErrUnexpectedEOF):
			return stats, nil
		default:
			return stats, fmt.Errorf("read audio source: %w", readErr)
		}
	}
}

// cancelableReader reads src on a helper goroutine so Read can return when
// ctx is done. Reads land in a private buffer; once a read is abandoned the
// buffer belongs to it and every later Read fails with ctx.Err().
type cancelableReader struct {
	ctx context.Context
	src io.Reader
	buf []byte
}

type readResult struct {
	n   int
	err error
}

func (r *cancelableReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	if cap(r.buf) < len(p) {
		r.buf = make([]byte, len(p))
	}
	buf := r.buf[:len(p)]
	done := make(chan readResult, 1)
	go func() {
		n, err := r.src.Read(buf)
		done <- readResult{n: n, err: err}
	}()
	select {
	case res := <-done:
		return copy(p, buf[:res.n]), res.err
	case <-r.ctx.Done():
		r.buf = nil
		return 0, r.ctx.Err()
	}
}
