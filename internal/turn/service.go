// Package turn runs conversation turns on behalf of stored conversations.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/saker-ai/assistant-bridge/internal/metrics"
	"github.com/saker-ai/assistant-bridge/internal/storage"
	"github.com/saker-ai/assistant-bridge/pkg/assistant"
)

var (
	// ErrTurnFailed wraps the cause of a turn that ended in FAILED.
	ErrTurnFailed = errors.New("conversation turn failed")
	// ErrEmptyAudio reports a turn request without audio.
	ErrEmptyAudio = errors.New("turn audio is empty")
	// ErrAudioNotFound is returned for an unknown audio artifact.
	ErrAudioNotFound = errors.New("audio artifact not found")
	// ErrIncompleteAudio wraps the source error of a turn whose audio could
	// not be read to the end. The turn is not recorded.
	ErrIncompleteAudio = errors.New("turn audio incomplete")
)

var audioNamePattern = regexp.MustCompile(`^assistant-[a-f0-9]{32}\.(mp3|pcm|ogg)$`)

// Reply is the caller-facing summary of one turn.
type Reply struct {
	ConversationID string                  `json:"conversation_id"`
	TurnID         string                  `json:"turn_id"`
	State          string                  `json:"state"`
	RequestText    string                  `json:"request_text"`
	ResponseText   string                  `json:"response_text"`
	FollowOn       bool                    `json:"follow_on"`
	Events         []string                `json:"events,omitempty"`
	Errors         []assistant.ErrorDetail `json:"errors,omitempty"`
	AudioFile      string                  `json:"audio_file,omitempty"`
	AudioBytes     int64                   `json:"audio_bytes"`
	Turns          int                     `json:"turns"`
}

// Service maps stored conversations to assistant clients. Each conversation
// has its own client, so turns of one conversation are serialized while
// different conversations run in parallel.
type Service struct {
	cfg     assistant.Config
	dialer  assistant.Dialer
	store   storage.StateStore
	metrics *metrics.Metrics
	logger  *zap.Logger
	opts    []assistant.Option

	mu      sync.Mutex
	clients map[string]*assistant.Client
}

// NewService returns a service. metrics may be nil.
func NewService(cfg assistant.Config, dialer assistant.Dialer, store storage.StateStore, m *metrics.Metrics, logger *zap.Logger, opts ...assistant.Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:     cfg.Normalize(),
		dialer:  dialer,
		store:   store,
		metrics: m,
		logger:  logger,
		opts:    opts,
		clients: make(map[string]*assistant.Client),
	}
}

// Start creates a new conversation.
func (s *Service) Start(ctx context.Context) (storage.Conversation, error) {
	conv, err := s.store.Create(ctx)
	if err != nil {
		return storage.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Info("conversation started", zap.String("conversation_id", conv.ID))
	return conv, nil
}

// End forgets a conversation and its carried state.
func (s *Service) End(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	client := s.clients[id]
	delete(s.clients, id)
	s.mu.Unlock()
	if client != nil {
		client.ResetConversation()
	}
	s.logger.Info("conversation ended", zap.String("conversation_id", id))
	return nil
}

// Converse streams audio as the next turn of conversation id and waits for
// the turn to finish. A failed turn returns its partial reply together with
// an error wrapping ErrTurnFailed.
func (s *Service) Converse(ctx context.Context, id string, audio io.Reader) (Reply, error) {
	return s.Stream(ctx, id, audio, nil)
}

// Stream is Converse with every notification also passed to observe, in
// order, as it arrives.
func (s *Service) Stream(ctx context.Context, id string, audio io.Reader, observe func(assistant.Notification)) (Reply, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	client := s.clientFor(conv)

	turn, err := client.RequestAssistant(ctx, audio)
	if err != nil {
		return Reply{}, err
	}
	if s.metrics != nil {
		s.metrics.ActiveTurns.Inc()
		defer s.metrics.ActiveTurns.Dec()
	}

	reply := Reply{ConversationID: conv.ID, TurnID: turn.ID()}
	for n := range turn.Notifications() {
		if observe != nil {
			observe(n)
		}
		switch v := n.(type) {
		case assistant.EventNotification:
			reply.Events = append(reply.Events, v.Type.String())
		case assistant.TextNotification:
			reply.RequestText = v.Text
		case assistant.ResultNotification:
			reply.ResponseText = v.Result.SpokenResponseText
			reply.FollowOn = v.Result.ExpectsFollowOn()
		case assistant.ErrorNotification:
			reply.Errors = append(reply.Errors, v.Detail)
			if s.metrics != nil {
				s.metrics.ObserveProtocolError(v.Detail.Code)
			}
		case assistant.AudioFileNotification:
			reply.AudioFile = filepath.Base(v.Path)
		}
	}
	outcome := turn.Outcome()
	reply.State = string(outcome.State)
	reply.AudioBytes = outcome.BytesReceived
	if s.metrics != nil {
		s.metrics.ObserveTurn(reply.State, outcome.BytesSent, outcome.BytesReceived, outcome.Duration())
	}

	logger := s.logger.With(zap.String("conversation_id", conv.ID), zap.String("session_id", turn.ID()))
	if outcome.State != assistant.StateEnded {
		logger.Warn("conversation turn failed", zap.Error(outcome.Err))
		reply.Turns = conv.Turns
		return reply, fmt.Errorf("%w: %w", ErrTurnFailed, outcome.Err)
	}
	if outcome.SourceErr != nil {
		client.SetConversationState(conv.State)
		if outcome.AudioPath != "" {
			_ = os.Remove(outcome.AudioPath)
		}
		reply.AudioFile = ""
		logger.Warn("conversation turn discarded", zap.Error(outcome.SourceErr), zap.Int64("bytes", outcome.BytesSent))
		reply.Turns = conv.Turns
		return reply, fmt.Errorf("%w: %w", ErrIncompleteAudio, outcome.SourceErr)
	}
	if outcome.FramesSent == 0 {
		logger.Debug("conversation turn had no audio")
	}

	conv.State = client.ConversationState()
	conv.Turns++
	conv.LastRequestText = reply.RequestText
	conv.LastResponseText = reply.ResponseText
	if err := s.store.Save(ctx, conv); err != nil {
		return reply, fmt.Errorf("save conversation %s: %w", conv.ID, err)
	}
	reply.Turns = conv.Turns
	logger.Info("conversation turn ended",
		zap.Int("turns", conv.Turns),
		zap.Int64("audio_bytes", outcome.BytesReceived),
		zap.Bool("follow_on", reply.FollowOn),
	)
	return reply, nil
}

// AudioPath resolves an artifact name from a Reply to its file.
func (s *Service) AudioPath(name string) (string, error) {
	if !audioNamePattern.MatchString(name) {
		return "", ErrAudioNotFound
	}
	dir := s.cfg.AudioDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrAudioNotFound
	}
	return path, nil
}

func (s *Service) clientFor(conv storage.Conversation) *assistant.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if client, ok := s.clients[conv.ID]; ok {
		return client
	}
	opts := append([]assistant.Option{assistant.WithConversationState(conv.State)}, s.opts...)
	client := assistant.NewClient(s.cfg, s.dialer, s.logger.With(zap.String("conversation_id", conv.ID)), opts...)
	s.clients[conv.ID] = client
	return client
}
