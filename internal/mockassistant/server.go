// Package mockassistant serves a scripted assistant stream for local
// development and tests.
package mockassistant

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/saker-ai/assistant-bridge/pkg/assistant"
)

// Received is what the client sent during one turn.
type Received struct {
	Config *assistant.ConverseConfig
	Audio  []byte
	Header http.Header
}

// Script returns the responses for a turn, in send order.
type Script func(Received) []*assistant.Response

// Server answers every stream with the responses of its script and then
// closes the stream normally.
type Server struct {
	script Script
	logger *zap.Logger
}

// New returns a server running script. A nil script selects Echo.
func New(script Script, logger *zap.Logger) *Server {
	if script == nil {
		script = Echo
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{script: script, logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := assistant.AcceptStream(w, r)
	if err != nil {
		s.logger.Warn("mock assistant upgrade failed", zap.Error(err))
		return
	}

	received := Received{Header: r.Header.Clone()}
	for {
		req, err := conn.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Warn("mock assistant read failed", zap.Error(err))
			_ = conn.Abort()
			return
		}
		if req.Config != nil {
			received.Config = req.Config
			continue
		}
		received.Audio = append(received.Audio, req.AudioIn...)
	}
	s.logger.Debug("mock assistant turn received", zap.Int("bytes", len(received.Audio)))

	for _, resp := range s.script(received) {
		if err := conn.Send(resp); err != nil {
			s.logger.Warn("mock assistant write failed", zap.Error(err))
			_ = conn.Abort()
			return
		}
	}
	_ = conn.Close("")
}

const echoChunk = 3200

// Echo replies with an end-of-utterance event, the received audio in
// chunks, and a result whose conversation state counts turns.
func Echo(in Received) []*assistant.Response {
	turn := 1
	if in.Config != nil {
		turn = TurnFromState(in.Config.ConversationState) + 1
	}

	out := []*assistant.Response{{EventType: assistant.EventEndOfUtterance}}
	for start := 0; start < len(in.Audio); start += echoChunk {
		end := min(start+echoChunk, len(in.Audio))
		out = append(out, &assistant.Response{AudioOut: &assistant.AudioOut{AudioData: in.Audio[start:end]}})
	}
	out = append(out, &assistant.Response{Result: &assistant.ConverseResult{
		SpokenRequestText:  fmt.Sprintf("%d bytes of audio", len(in.Audio)),
		SpokenResponseText: fmt.Sprintf("turn %d", turn),
		ConversationState:  []byte("turn-" + strconv.Itoa(turn)),
		MicrophoneMode:     assistant.MicrophoneModeFollowOn,
	}})
	return out
}

// Reject replies with a single error, which fails the turn.
func Reject(code int, message string) Script {
	return func(Received) []*assistant.Response {
		return []*assistant.Response{{Error: &assistant.ErrorDetail{Code: code, Message: message}}}
	}
}

// TurnFromState parses the counter Echo stores in the conversation state.
func TurnFromState(state []byte) int {
	n, err := strconv.Atoi(strings.TrimPrefix(string(state), "turn-"))
	if err != nil {
		return 0
	}
	return n
}
