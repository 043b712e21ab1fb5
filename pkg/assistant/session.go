package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saker-ai/assistant-bridge/internal/session/fsm"
)

// State is the lifecycle state of a session.
type State = fsm.State

const (
	StateOpen      = fsm.StateOpen
	StateStreaming = fsm.StateStreaming
	StateClosing   = fsm.StateClosing
	StateEnded     = fsm.StateEnded
	StateFailed    = fsm.StateFailed
)

// SessionConfig configures one turn.
type SessionConfig struct {
	// ID identifies the session in logs. Generated when empty.
	ID        string
	Converse  ConverseConfig
	ChunkSize int
	// Sink receives synthesized audio. Required.
	Sink   AudioSink
	Logger *zap.Logger
	// Emit receives notifications in order. It is called from one goroutine
	// at a time.
	Emit func(Notification)
}

// Outcome summarizes a finished session.
type Outcome struct {
	SessionID string
	State     State
	// AudioPath is the finalized artifact location. Empty unless ENDED.
	AudioPath string
	// ConversationState is the latest non-empty state from a result, to be
	// replayed on the next turn. Nil when no result carried one.
	ConversationState []byte
	Result            *ConverseResult
	ProtocolErrors    []ErrorDetail
	// Err is the failure cause when State is FAILED. It unwraps to
	// *ErrorDetail when the server ended the turn with an error.
	Err error
	// SourceErr is set when reading the audio source failed before end of
	// input. The turn still completes on the audio sent so far.
	SourceErr     error
	FramesSent    int
	BytesSent     int64
	BytesReceived int64
	StartedAt     time.Time
	EndedAt       time.Time
}

// Duration returns how long the session ran.
func (o Outcome) Duration() time.Duration {
	return o.EndedAt.Sub(o.StartedAt)
}

// Session runs one request/response exchange over a single stream.
type Session struct {
	id       string
	converse ConverseConfig
	chunker  *FrameChunker
	sink     AudioSink
	logger   *zap.Logger
	emit     func(Notification)
	machine  *fsm.Machine
}

// NewSession returns a session in the OPEN state.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Sink == nil {
		return nil, errors.New("assistant session requires an audio sink")
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emit := cfg.Emit
	if emit == nil {
		emit = func(Notification) {}
	}
	return &Session{
		id:       id,
		converse: cfg.Converse,
		chunker:  NewFrameChunker(cfg.ChunkSize),
		sink:     cfg.Sink,
		logger:   logger.With(zap.String("session_id", id)),
		emit:     emit,
		machine:  fsm.New(),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.machine.State()
}

// Run dials a stream, sends the config followed by src in frames, and
// dispatches inbound messages until the server closes its side. Exactly one
// terminal notification (EndNotification or FailureNotification) is emitted
// before Run returns.
//
// The inbound close alone ends the turn: the audio writer is cancelled then,
// even when src has not reached end of input.
func (s *Session) Run(ctx context.Context, dialer Dialer, src io.Reader) Outcome {
	out := Outcome{SessionID: s.id, StartedAt: time.Now()}

	stream, err := dialer.Dial(ctx)
	if err != nil {
		return s.fail(out, fmt.Errorf("open assistant stream: %w", err), false)
	}
	defer stream.Close()

	config := s.converse
	config.ConversationState = cloneBytes(config.ConversationState)
	if err := stream.Send(ctx, &Request{Config: &config}); err != nil {
		return s.fail(out, fmt.Errorf("send converse config: %w", err), false)
	}
	s.machine.OnConfigSent()
	s.logger.Debug("assistant session streaming",
		zap.Int("chunk_size", s.chunker.Size()),
		zap.Bool("has_state", len(config.ConversationState) > 0),
	)

	writeCtx, cancelWrite := context.WithCancel(ctx)
	defer cancelWrite()

	demux := NewResponseDemuxer(s.sink, s.emit, s.logger)
	var (
		g         errgroup.Group
		stats     ChunkStats
		sourceErr error
	)
	g.Go(func() error {
		stats, sourceErr = s.writeAudio(writeCtx, stream, src)
		return nil
	})
	g.Go(func() error {
		defer func() {
			cancelWrite()
			_ = stream.Close()
		}()
		return s.readResponses(stream, demux)
	})
	readErr := g.Wait()

	out.FramesSent = stats.Frames
	out.BytesSent = stats.Bytes
	out.SourceErr = sourceErr
	out.BytesReceived = demux.AudioBytes()
	out.Result = demux.Result()
	out.ProtocolErrors = demux.Errors()

	if readErr != nil {
		return s.fail(out, readErr, false)
	}
	if terminal := demux.TerminalError(); terminal != nil {
		return s.fail(out, terminal, true)
	}

	path, err := s.sink.Finalize()
	if err != nil {
		return s.fail(out, err, false)
	}
	s.machine.OnEnded()
	out.State = s.machine.State()
	out.AudioPath = path
	out.ConversationState = demux.ConversationState()
	out.EndedAt = time.Now()
	s.logger.Info("assistant session ended",
		zap.String("state", string(out.State)),
		zap.Int("frames", out.FramesSent),
		zap.Int64("bytes", out.BytesSent),
		zap.Int64("audio_bytes", out.BytesReceived),
		zap.Duration("duration", out.Duration()),
	)
	s.emit(AudioFileNotification{Path: path})
	s.emit(EndNotification{})
	return out
}

// writeAudio streams src and half-closes. It returns the source read error,
// if any; send failures are only logged.
func (s *Session) writeAudio(ctx context.Context, stream Stream, src io.Reader) (ChunkStats, error) {
	stats, err := s.chunker.Stream(ctx, src, func(ctx context.Context, frame []byte) error {
		return stream.Send(ctx, &Request{AudioIn: frame})
	})
	var sourceErr error
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("assistant audio write stopped", zap.Error(err), zap.Int("frames", stats.Frames))
		var writeErr *FrameWriteError
		if !errors.As(err, &writeErr) {
			sourceErr = err
		}
	}
	if err := stream.CloseSend(); err != nil && ctx.Err() == nil {
		s.logger.Warn("assistant half-close failed", zap.Error(err))
	}
	if s.machine.OnSendClosed() {
		s.logger.Debug("assistant session closing", zap.Int("frames", stats.Frames), zap.Int64("bytes", stats.Bytes))
	}
	return stats, sourceErr
}

func (s *Session) readResponses(stream Stream, demux *ResponseDemuxer) error {
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if _, err := demux.Dispatch(resp); err != nil {
			return err
		}
	}
}

func (s *Session) fail(out Outcome, cause error, protocol bool) Outcome {
	if err := s.sink.Discard(); err != nil {
		s.logger.Warn("assistant audio discard failed", zap.Error(err))
	}
	s.machine.OnFailed()
	out.State = s.machine.State()
	out.Err = cause
	out.EndedAt = time.Now()
	s.logger.Warn("assistant session failed",
		zap.Error(cause),
		zap.Bool("protocol", protocol),
		zap.Int("frames", out.FramesSent),
		zap.Duration("duration", out.Duration()),
	)
	s.emit(FailureNotification{Err: cause, Protocol: protocol})
	return out
}
