package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saker-ai/assistant-bridge/internal/transport/assistant/codec"
)

const controlWriteTimeout = 5 * time.Second

// WebsocketDialer opens assistant streams over websocket.
type WebsocketDialer struct {
	url             string
	protocolVersion int
	credentials     CredentialProvider
	dialer          websocket.Dialer
	logger          *zap.Logger
}

// NewWebsocketDialer returns a dialer for cfg's stream URL.
func NewWebsocketDialer(cfg Config, credentials CredentialProvider, logger *zap.Logger) *WebsocketDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.Normalize()
	return &WebsocketDialer{
		url:             cfg.StreamURL(),
		protocolVersion: cfg.ProtocolVersion,
		credentials:     credentials,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
		logger: logger,
	}
}

// Dial opens a stream. The stream is torn down when ctx is done.
func (d *WebsocketDialer) Dial(ctx context.Context) (Stream, error) {
	headers := http.Header{}
	headers.Set("Protocol-Version", strconv.Itoa(d.protocolVersion))
	if d.credentials != nil {
		token, err := d.credentials.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("assistant credentials: %w", err)
		}
		if token != "" {
			headers.Set("Authorization", "Bearer "+token)
		}
	}

	conn, _, err := d.dialer.DialContext(ctx, d.url, headers)
	if err != nil {
		return nil, fmt.Errorf("dial assistant stream %s: %w", d.url, err)
	}
	d.logger.Debug("assistant stream connected", zap.String("url", d.url), zap.Int("protocol_version", d.protocolVersion))
	return newWebsocketStream(ctx, conn, d.protocolVersion, d.logger), nil
}

type websocketStream struct {
	ctx     context.Context
	conn    *websocket.Conn
	version int
	logger  *zap.Logger

	writeMu    sync.Mutex
	sendClosed bool

	closeOnce sync.Once
	done      chan struct{}
}

func newWebsocketStream(ctx context.Context, conn *websocket.Conn, version int, logger *zap.Logger) *websocketStream {
	s := &websocketStream{
		ctx:     ctx,
		conn:    conn,
		version: codec.NormalizeVersion(version),
		logger:  logger,
		done:    make(chan struct{}),
	}
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteTimeout))
	})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-s.done:
		}
	}()
	return s
}

func (s *websocketStream) Send(ctx context.Context, req *Request) error {
	if req == nil {
		return errors.New("assistant request is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgType := websocket.BinaryMessage
	var payload []byte
	switch {
	case req.Config != nil:
		data, err := codec.EncodeEnvelope(configEnvelope(req.Config))
		if err != nil {
			return fmt.Errorf("encode converse config: %w", err)
		}
		msgType, payload = websocket.TextMessage, data
	default:
		frame, err := codec.Pack(s.version, codec.PayloadKindAudio, req.AudioIn)
		if err != nil {
			return err
		}
		payload = frame
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.sendClosed {
		return ErrStreamClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	}
	return s.conn.WriteMessage(msgType, payload)
}

func (s *websocketStream) CloseSend() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.sendClosed {
		return nil
	}
	s.sendClosed = true
	data, err := codec.EncodeEnvelope(&codec.Envelope{Type: codec.TypeAudioEnd})
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *websocketStream) Recv() (*Response, error) {
	msgType, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return nil, io.EOF
		}
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("assistant stream: %w", ctxErr)
		}
		return nil, fmt.Errorf("read assistant stream: %w", err)
	}

	switch msgType {
	case websocket.TextMessage:
		return s.decodeEnvelope(data), nil
	case websocket.BinaryMessage:
		payload, kind, decodeErr := codec.Decode(s.version, data)
		if decodeErr != nil {
			s.logger.Warn("assistant binary frame dropped", zap.Error(decodeErr), zap.Int("bytes", len(data)))
			return &Response{}, nil
		}
		if kind == codec.PayloadKindCommand {
			return s.decodeEnvelope(payload), nil
		}
		return &Response{AudioOut: &AudioOut{AudioData: payload}}, nil
	default:
		return &Response{}, nil
	}
}

func (s *websocketStream) decodeEnvelope(data []byte) *Response {
	env, err := codec.DecodeEnvelope(data)
	if err != nil {
		s.logger.Warn("assistant envelope dropped", zap.Error(err), zap.Int("bytes", len(data)))
		return &Response{}
	}
	return responseFromEnvelope(env)
}

func (s *websocketStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(controlWriteTimeout))
		err = s.conn.Close()
	})
	return err
}

// ServerConn is the service side of an assistant stream. It backs the mock
// assistant and transport tests.
type ServerConn struct {
	conn    *websocket.Conn
	version int
	writeMu sync.Mutex
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// AcceptStream upgrades r to a server-side assistant stream. The protocol
// version is taken from the Protocol-Version request header.
func AcceptStream(w http.ResponseWriter, r *http.Request) (*ServerConn, error) {
	version, _ := strconv.Atoi(r.Header.Get("Protocol-Version"))
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &ServerConn{conn: conn, version: codec.NormalizeVersion(version)}, nil
}

// Recv returns the next client request. It returns io.EOF once the client
// half-closed its side.
func (c *ServerConn) Recv() (*Request, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.BinaryMessage {
			payload, kind, err := codec.Decode(c.version, data)
			if err != nil {
				return nil, err
			}
			if kind == codec.PayloadKindAudio {
				return &Request{AudioIn: payload}, nil
			}
			data = payload
		}
		env, err := codec.DecodeEnvelope(data)
		if err != nil {
			return nil, err
		}
		switch env.Type {
		case codec.TypeAudioEnd:
			return nil, io.EOF
		case codec.TypeConfig:
			if req := requestFromEnvelope(env); req != nil {
				return req, nil
			}
		}
	}
}

// Send writes resp. Audio-only responses go out as binary frames, anything
// else as a JSON envelope.
func (c *ServerConn) Send(resp *Response) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if resp != nil && resp.AudioOut != nil && resp.EventType == EventTypeUnspecified && resp.Error == nil && resp.Result == nil {
		frame, err := codec.Pack(c.version, codec.PayloadKindAudio, resp.AudioOut.AudioData)
		if err != nil {
			return err
		}
		return c.conn.WriteMessage(websocket.BinaryMessage, frame)
	}
	data, err := codec.EncodeEnvelope(envelopeFromResponse(resp))
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SendRaw writes a raw message, for exercising malformed input.
func (c *ServerConn) SendRaw(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// Close sends a normal close frame with reason and closes the connection.
func (c *ServerConn) Close(reason string) error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(controlWriteTimeout))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Abort drops the connection without a close frame.
func (c *ServerConn) Abort() error {
	return c.conn.Close()
}
