// Package ws relays live conversation turns between a browser and the
// assistant. Binary frames carry LINEAR16 audio; text frames carry JSON
// control messages.
package ws

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saker-ai/assistant-bridge/internal/turn"
	"github.com/saker-ai/assistant-bridge/pkg/assistant"
)

// Streamer runs one turn while reporting notifications.
type Streamer interface {
	Stream(ctx context.Context, id string, audio io.Reader, observe func(assistant.Notification)) (turn.Reply, error)
}

// Handler upgrades browser connections.
type Handler struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	svc      Streamer
}

// NewHandler returns a handler running turns through svc.
func NewHandler(svc Streamer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger: logger,
		svc:    svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handle serves one browser connection for conversation id until it closes.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request, conversationID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:           conn,
		logger:         h.logger.With(zap.String("conversation_id", conversationID)),
		svc:            h.svc,
		conversationID: conversationID,
		ctx:            ctx,
	}
	s.logger.Info("ws connected", zap.String("remote", r.RemoteAddr))
	s.readLoop()
	cancel()
	s.waitTurn()
	_ = conn.Close()
	s.logger.Info("ws disconnected")
}

type session struct {
	conn           *websocket.Conn
	sendMu         sync.Mutex
	logger         *zap.Logger
	svc            Streamer
	conversationID string
	ctx            context.Context

	mu     sync.Mutex
	audio  *io.PipeWriter
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *session) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("ws read ended", zap.Error(err))
			}
			s.abortTurn()
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			s.onAudio(data)
		case websocket.TextMessage:
			var msg incomingMessage
			if err := sonic.ConfigStd.Unmarshal(data, &msg); err != nil {
				s.sendJSON(Message{Type: "error", Payload: textPayload{Text: "invalid message"}})
				continue
			}
			s.dispatchIncoming(msg)
		}
	}
}

func (s *session) dispatchIncoming(msg incomingMessage) {
	switch msg.Type {
	case "mic-audio-end":
		s.endAudio()
	case "interrupt-signal":
		s.abortTurn()
	case "heartbeat":
	default:
		s.logger.Debug("ws unknown message type", zap.String("type", msg.Type))
	}
}

func (s *session) onAudio(data []byte) {
	s.mu.Lock()
	if s.audio == nil {
		s.startTurnLocked()
	}
	pw := s.audio
	s.mu.Unlock()

	if _, err := pw.Write(data); err != nil {
		s.logger.Debug("ws audio dropped", zap.Error(err), zap.Int("bytes", len(data)))
	}
}

func (s *session) startTurnLocked() {
	if s.done != nil {
		// Wait for the previous turn to drain.
		done := s.done
		s.mu.Unlock()
		<-done
		s.mu.Lock()
	}
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.audio, s.cancel, s.done = pw, cancel, done

	go func() {
		defer close(done)
		defer cancel()
		reply, err := s.svc.Stream(ctx, s.conversationID, pr, s.notify)
		_ = pr.CloseWithError(io.ErrClosedPipe)

		s.mu.Lock()
		if s.audio == pw {
			s.audio = nil
		}
		if s.done == done {
			s.done, s.cancel = nil, nil
		}
		s.mu.Unlock()

		if err != nil && !errors.Is(err, turn.ErrTurnFailed) {
			s.sendJSON(Message{Type: "error", Payload: textPayload{Text: err.Error()}})
			return
		}
		s.sendJSON(Message{Type: "reply", Payload: reply})
	}()
}

func (s *session) endAudio() {
	s.mu.Lock()
	pw := s.audio
	s.audio = nil
	s.mu.Unlock()
	if pw != nil {
		_ = pw.Close()
	}
}

func (s *session) abortTurn() {
	s.mu.Lock()
	pw, cancel := s.audio, s.cancel
	s.audio = nil
	s.mu.Unlock()
	if pw != nil {
		_ = pw.CloseWithError(context.Canceled)
	}
	if cancel != nil {
		cancel()
	}
}

func (s *session) waitTurn() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *session) notify(n assistant.Notification) {
	switch v := n.(type) {
	case assistant.EventNotification:
		s.sendJSON(Message{Type: "event", Payload: eventPayload{Event: v.Type.String()}})
	case assistant.AudioChunkNotification:
		s.sendJSON(Message{Type: "audio-chunk", Payload: sizePayload{Size: v.Size}})
	case assistant.TextNotification:
		s.sendJSON(Message{Type: "request-text", Payload: textPayload{Text: v.Text}})
	case assistant.ResultNotification:
		s.sendJSON(Message{Type: "result", Payload: resultPayload{
			RequestText:    v.Result.SpokenRequestText,
			ResponseText:   v.Result.SpokenResponseText,
			MicrophoneMode: string(v.Result.MicrophoneMode),
			FollowOn:       v.Result.ExpectsFollowOn(),
		}})
	case assistant.ErrorNotification:
		s.sendJSON(Message{Type: "error", Payload: v.Detail})
	case assistant.AudioFileNotification:
		s.sendJSON(Message{Type: "audio-file", Payload: audioFilePayload{Name: filepath.Base(v.Path)}})
	case assistant.EndNotification:
		s.sendJSON(Message{Type: "end"})
	case assistant.FailureNotification:
		s.sendJSON(Message{Type: "failure", Payload: failurePayload{Error: v.Err.Error(), Protocol: v.Protocol}})
	}
}

func (s *session) sendJSON(msg Message) {
	data, err := sonic.ConfigStd.Marshal(msg)
	if err != nil {
		s.logger.Warn("ws encode failed", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("ws write failed", zap.String("type", msg.Type), zap.Error(err))
	}
}
