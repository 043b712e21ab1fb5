package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saker-ai/assistant-bridge/internal/transport/assistant/codec"
)

const (
	DefaultEndpoint           = "embeddedassistant.googleapis.com"
	DefaultPath               = "/v1alpha2/converse"
	DefaultSampleRate         = 16000
	DefaultVolumePercent      = 80
	DefaultAudioOutSampleRate = 24000

	notificationBuffer = 64
)

var (
	// ErrSessionActive is returned when a turn is requested while another
	// turn of the same client is still running.
	ErrSessionActive = errors.New("assistant session already active")
	// ErrNoAudioSource is returned when RequestAssistant gets a nil reader.
	ErrNoAudioSource = errors.New("assistant audio source is nil")
)

// Config holds the deployment settings of a client. Zero values select
// defaults.
type Config struct {
	// Endpoint is a host name or a ws/wss URL.
	Endpoint           string
	Path               string
	ProtocolVersion    int
	AudioSampleRate    int
	ChunkSize          int
	VolumePercent      int
	AudioOutEncoding   AudioOutEncoding
	AudioOutSampleRate int
	DialTimeout        time.Duration
	// StreamTimeout bounds a whole turn. Zero disables the limit.
	StreamTimeout time.Duration
	// AudioDir receives audio artifacts. Empty selects the temp directory.
	AudioDir string
}

// Normalize fills unset fields with defaults. It clamps the volume, and the
// chunk size to what a frame of the protocol version can carry.
func (c Config) Normalize() Config {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(c.Path) == "" {
		c.Path = DefaultPath
	}
	if !strings.HasPrefix(c.Path, "/") {
		c.Path = "/" + c.Path
	}
	c.ProtocolVersion = codec.NormalizeVersion(c.ProtocolVersion)
	if c.AudioSampleRate <= 0 {
		c.AudioSampleRate = DefaultSampleRate
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	c.ChunkSize = min(c.ChunkSize, codec.MaxPayload(c.ProtocolVersion))
	switch {
	case c.VolumePercent <= 0:
		c.VolumePercent = DefaultVolumePercent
	case c.VolumePercent > 100:
		c.VolumePercent = 100
	}
	switch AudioOutEncoding(strings.ToUpper(string(c.AudioOutEncoding))) {
	case OutputLinear16, OutputOpusInOgg:
		c.AudioOutEncoding = AudioOutEncoding(strings.ToUpper(string(c.AudioOutEncoding)))
	default:
		c.AudioOutEncoding = OutputMP3
	}
	if c.AudioOutSampleRate <= 0 {
		c.AudioOutSampleRate = DefaultAudioOutSampleRate
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.StreamTimeout < 0 {
		c.StreamTimeout = 0
	}
	return c
}

// StreamURL returns the websocket URL of the converse stream.
func (c Config) StreamURL() string {
	endpoint := c.Endpoint
	if !strings.Contains(endpoint, "://") {
		return "wss://" + strings.TrimRight(endpoint, "/") + c.Path
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = c.Path
	}
	return u.String()
}

// ConverseConfig builds the per-turn config replaying state.
func (c Config) ConverseConfig(state []byte) ConverseConfig {
	return ConverseConfig{
		AudioIn: AudioInConfig{
			Encoding:        EncodingLinear16,
			SampleRateHertz: c.AudioSampleRate,
		},
		AudioOut: AudioOutConfig{
			Encoding:         c.AudioOutEncoding,
			SampleRateHertz:  c.AudioOutSampleRate,
			VolumePercentage: c.VolumePercent,
		},
		ConversationState: state,
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithSinkFactory replaces the file sink used for audio artifacts.
func WithSinkFactory(factory SinkFactory) Option {
	return func(c *Client) {
		if factory != nil {
			c.sinks = factory
		}
	}
}

// WithConversationState seeds the state replayed on the first turn.
func WithConversationState(state []byte) Option {
	return func(c *Client) {
		c.state = cloneBytes(state)
	}
}

// Client runs conversation turns against the assistant service, one at a
// time, and carries the conversation state between them.
type Client struct {
	cfg    Config
	dialer Dialer
	sinks  SinkFactory
	logger *zap.Logger

	mu     sync.Mutex
	state  []byte
	active *Turn
}

// NewClient returns a client using dialer for every turn.
func NewClient(cfg Config, dialer Dialer, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.Normalize()
	c := &Client{
		cfg:    cfg,
		dialer: dialer,
		sinks:  FileSinkFactory(cfg.AudioDir),
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the normalized configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// RequestAssistant starts a turn streaming src to the service. The turn
// runs in the background; its notifications arrive on Turn.Notifications.
// Cancelling ctx aborts the turn.
func (c *Client) RequestAssistant(ctx context.Context, src io.Reader) (*Turn, error) {
	if src == nil {
		return nil, ErrNoAudioSource
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}
	sink, err := c.sinks(c.cfg.AudioOutEncoding)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("create audio sink: %w", err)
	}
	turn := newTurn(uuid.NewString())
	session, err := NewSession(SessionConfig{
		ID:        turn.id,
		Converse:  c.cfg.ConverseConfig(cloneBytes(c.state)),
		ChunkSize: c.cfg.ChunkSize,
		Sink:      sink,
		Logger:    c.logger,
		Emit:      turn.emitter(ctx),
	})
	if err != nil {
		c.mu.Unlock()
		_ = sink.Discard()
		return nil, err
	}
	c.active = turn
	c.mu.Unlock()

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.cfg.StreamTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.StreamTimeout)
	}
	go func() {
		defer cancel()
		outcome := session.Run(runCtx, c.dialer, src)
		c.finish(turn, outcome)
	}()
	return turn, nil
}

func (c *Client) finish(turn *Turn, outcome Outcome) {
	c.mu.Lock()
	if outcome.State == StateEnded && len(outcome.ConversationState) > 0 {
		c.state = cloneBytes(outcome.ConversationState)
	}
	if c.active == turn {
		c.active = nil
	}
	c.mu.Unlock()

	turn.outcome = outcome
	close(turn.done)
	close(turn.notifications)
}

// Active reports whether a turn is running.
func (c *Client) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// ConversationState returns a copy of the state the next turn will replay.
func (c *Client) ConversationState() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneBytes(c.state)
}

// SetConversationState replaces the state the next turn will replay.
func (c *Client) SetConversationState(state []byte) {
	c.mu.Lock()
	c.state = cloneBytes(state)
	c.mu.Unlock()
}

// ResetConversation drops the carried state so the next turn starts a new
// conversation.
func (c *Client) ResetConversation() {
	c.SetConversationState(nil)
}

// Turn is one running or finished conversation turn.
type Turn struct {
	id            string
	notifications chan Notification
	done          chan struct{}
	outcome       Outcome
}

func newTurn(id string) *Turn {
	return &Turn{
		id:            id,
		notifications: make(chan Notification, notificationBuffer),
		done:          make(chan struct{}),
	}
}

// ID returns the turn's session identifier.
func (t *Turn) ID() string {
	return t.id
}

// Notifications returns the ordered notification channel. It is closed after
// the terminal notification. Notifications are dropped once the context
// passed to RequestAssistant is done and nobody is reading.
func (t *Turn) Notifications() <-chan Notification {
	return t.notifications
}

// Done is closed when the turn reached a terminal state.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Outcome blocks until the turn finished and returns its summary.
func (t *Turn) Outcome() Outcome {
	<-t.done
	return t.outcome
}

// Collect drains every notification and returns them with the outcome.
func (t *Turn) Collect() ([]Notification, Outcome) {
	var all []Notification
	for n := range t.notifications {
		all = append(all, n)
	}
	return all, t.Outcome()
}

func (t *Turn) emitter(ctx context.Context) func(Notification) {
	return func(n Notification) {
		select {
		case t.notifications <- n:
			return
		default:
		}
		select {
		case t.notifications <- n:
		case <-ctx.Done():
		}
	}
}
