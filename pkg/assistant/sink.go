package assistant

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// AudioSink is the append-only destination for a turn's synthesized audio.
// A session owns its sink until Finalize or Discard returns.
type AudioSink interface {
	Write(p []byte) (int, error)
	// Finalize flushes and closes the sink and returns its location.
	Finalize() (string, error)
	// Discard closes the sink and drops whatever was written.
	Discard() error
}

// SinkFactory creates the sink for one turn.
type SinkFactory func(encoding AudioOutEncoding) (AudioSink, error)

var errSinkClosed = errors.New("audio sink already closed")

// FileSink writes audio to a uniquely named file.
type FileSink struct {
	file   *os.File
	writer *bufio.Writer
	path   string
	closed bool
}

// NewFileSink creates an empty audio file in dir. An empty dir selects the
// system temp directory.
func NewFileSink(dir string, encoding AudioOutEncoding) (*FileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio directory %s: %w", dir, err)
	}
	name := "assistant-" + strings.ReplaceAll(uuid.NewString(), "-", "") + encoding.FileSuffix()
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}
	return &FileSink{file: file, writer: bufio.NewWriter(file), path: path}, nil
}

// FileSinkFactory returns a SinkFactory writing into dir.
func FileSinkFactory(dir string) SinkFactory {
	return func(encoding AudioOutEncoding) (AudioSink, error) {
		return NewFileSink(dir, encoding)
	}
}

// Path returns the file location.
func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errSinkClosed
	}
	return s.writer.Write(p)
}

// Finalize flushes buffered audio and closes the file.
func (s *FileSink) Finalize() (string, error) {
	if s.closed {
		return "", errSinkClosed
	}
	s.closed = true
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return "", fmt.Errorf("finalize audio file %s: %w", s.path, err)
	}
	return s.path, nil
}

// Discard closes and removes the file.
func (s *FileSink) Discard() error {
	if s.closed {
		return nil
	}
	s.closed = true
	closeErr := s.file.Close()
	removeErr := os.Remove(s.path)
	if errors.Is(removeErr, os.ErrNotExist) {
		removeErr = nil
	}
	return errors.Join(closeErr, removeErr)
}

// MemorySink keeps audio in memory. Finalize returns its name.
type MemorySink struct {
	name   string
	buf    bytes.Buffer
	closed bool
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink(name string) *MemorySink {
	return &MemorySink{name: name}
}

func (s *MemorySink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errSinkClosed
	}
	return s.buf.Write(p)
}

// Bytes returns everything written so far. It is nil after Discard.
func (s *MemorySink) Bytes() []byte {
	return s.buf.Bytes()
}

func (s *MemorySink) Finalize() (string, error) {
	if s.closed {
		return "", errSinkClosed
	}
	s.closed = true
	return s.name, nil
}

func (s *MemorySink) Discard() error {
	s.closed = true
	s.buf = bytes.Buffer{}
	return nil
}
