package assistant

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type scriptedDialer struct {
	mu      sync.Mutex
	streams []*fakeStream
	dialed  []*fakeStream
}

func (d *scriptedDialer) Dial(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	if len(d.streams) == 0 {
		d.mu.Unlock()
		return nil, errors.New("no scripted stream")
	}
	stream := d.streams[0]
	d.streams = d.streams[1:]
	d.dialed = append(d.dialed, stream)
	d.mu.Unlock()
	return stream.dialer().Dial(ctx)
}

func memorySinks() SinkFactory {
	return func(AudioOutEncoding) (AudioSink, error) {
		return NewMemorySink("mem"), nil
	}
}

func finishedStream(responses ...*Response) *fakeStream {
	stream := newFakeStream(responses...)
	stream.awaitHalfClose = true
	return stream
}

func TestClientRejectsNilSource(t *testing.T) {
	client := NewClient(Config{}, &scriptedDialer{}, nil, WithSinkFactory(memorySinks()))
	if _, err := client.RequestAssistant(context.Background(), nil); !errors.Is(err, ErrNoAudioSource) {
		t.Fatalf("err=%v, want ErrNoAudioSource", err)
	}
}

func TestClientSerializesTurns(t *testing.T) {
	dialer := &scriptedDialer{streams: []*fakeStream{finishedStream(), finishedStream()}}
	client := NewClient(Config{}, dialer, nil, WithSinkFactory(memorySinks()))

	pr, pw := io.Pipe()
	first, err := client.RequestAssistant(context.Background(), pr)
	if err != nil {
		t.Fatalf("first turn error: %v", err)
	}
	if !client.Active() {
		t.Fatalf("client not active during turn")
	}
	if _, err := client.RequestAssistant(context.Background(), bytes.NewReader(nil)); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("err=%v, want ErrSessionActive", err)
	}

	_ = pw.Close()
	if out := first.Outcome(); out.State != StateEnded {
		t.Fatalf("first state=%s err=%v, want ended", out.State, out.Err)
	}
	if client.Active() {
		t.Fatalf("client still active after turn")
	}

	second, err := client.RequestAssistant(context.Background(), bytes.NewReader(patterned(10)))
	if err != nil {
		t.Fatalf("second turn error: %v", err)
	}
	notes, out := second.Collect()
	if out.State != StateEnded || countTerminal(notes) != 1 {
		t.Fatalf("second state=%s terminal=%d", out.State, countTerminal(notes))
	}
}

func TestClientCarriesConversationState(t *testing.T) {
	dialer := &scriptedDialer{streams: []*fakeStream{
		finishedStream(&Response{Result: &ConverseResult{ConversationState: []byte{1, 2}}}),
		finishedStream(&Response{Error: &ErrorDetail{Code: 7, Message: "denied"}}),
		finishedStream(),
	}}
	client := NewClient(Config{}, dialer, nil, WithSinkFactory(memorySinks()))

	for i := 0; i < 3; i++ {
		turn, err := client.RequestAssistant(context.Background(), bytes.NewReader(patterned(10)))
		if err != nil {
			t.Fatalf("turn %d error: %v", i, err)
		}
		_, _ = turn.Collect()
	}

	if sent := dialer.dialed[0].sent(); len(sent[0].Config.ConversationState) != 0 {
		t.Fatalf("first turn state=%v, want none", sent[0].Config.ConversationState)
	}
	for i := 1; i < 3; i++ {
		sent := dialer.dialed[i].sent()
		if !bytes.Equal(sent[0].Config.ConversationState, []byte{1, 2}) {
			t.Fatalf("turn %d state=%v, want [1 2]", i, sent[0].Config.ConversationState)
		}
	}
	if !bytes.Equal(client.ConversationState(), []byte{1, 2}) {
		t.Fatalf("client state=%v, want [1 2]", client.ConversationState())
	}

	client.ResetConversation()
	if client.ConversationState() != nil {
		t.Fatalf("state after reset=%v, want nil", client.ConversationState())
	}
}

func TestClientSeedsConversationState(t *testing.T) {
	dialer := &scriptedDialer{streams: []*fakeStream{finishedStream()}}
	client := NewClient(Config{}, dialer, nil, WithSinkFactory(memorySinks()), WithConversationState([]byte{0xDE, 0xAD}))
	turn, err := client.RequestAssistant(context.Background(), bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("RequestAssistant error: %v", err)
	}
	_ = turn.Outcome()
	if sent := dialer.dialed[0].sent(); !bytes.Equal(sent[0].Config.ConversationState, []byte{0xDE, 0xAD}) {
		t.Fatalf("state=%x, want dead", sent[0].Config.ConversationState)
	}
}

func TestClientStreamTimeout(t *testing.T) {
	stream := newFakeStream()
	stream.block = true
	dialer := &scriptedDialer{streams: []*fakeStream{stream}}
	client := NewClient(Config{StreamTimeout: 50 * time.Millisecond}, dialer, nil, WithSinkFactory(memorySinks()))

	turn, err := client.RequestAssistant(context.Background(), bytes.NewReader(patterned(10)))
	if err != nil {
		t.Fatalf("RequestAssistant error: %v", err)
	}
	select {
	case <-turn.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("turn did not time out")
	}
	notes, out := turn.Collect()
	if out.State != StateFailed {
		t.Fatalf("state=%s, want failed", out.State)
	}
	if _, ok := notes[len(notes)-1].(FailureNotification); !ok {
		t.Fatalf("last notification=%T, want FailureNotification", notes[len(notes)-1])
	}
}

func TestClientSinkFactoryError(t *testing.T) {
	boom := errors.New("read-only filesystem")
	client := NewClient(Config{}, &scriptedDialer{}, nil, WithSinkFactory(func(AudioOutEncoding) (AudioSink, error) {
		return nil, boom
	}))
	if _, err := client.RequestAssistant(context.Background(), bytes.NewReader(nil)); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want %v", err, boom)
	}
	if client.Active() {
		t.Fatalf("client active after failed start")
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{VolumePercent: 150, AudioOutEncoding: "opus_in_ogg", ProtocolVersion: 9}.Normalize()
	if cfg.Endpoint != DefaultEndpoint || cfg.AudioSampleRate != 16000 || cfg.ChunkSize != 6400 {
		t.Fatalf("cfg=%+v, want defaults", cfg)
	}
	if cfg.VolumePercent != 100 {
		t.Fatalf("volume=%d, want 100", cfg.VolumePercent)
	}
	if cfg.AudioOutEncoding != OutputOpusInOgg {
		t.Fatalf("encoding=%s, want %s", cfg.AudioOutEncoding, OutputOpusInOgg)
	}
	if cfg.ProtocolVersion != 1 {
		t.Fatalf("protocol=%d, want 1", cfg.ProtocolVersion)
	}
	if got := (Config{}).Normalize().VolumePercent; got != 80 {
		t.Fatalf("default volume=%d, want 80", got)
	}
	if got := (Config{ProtocolVersion: 3, ChunkSize: 70000}).Normalize().ChunkSize; got != 65535 {
		t.Fatalf("v3 chunk size=%d, want 65535", got)
	}
	if got := (Config{ProtocolVersion: 2, ChunkSize: 70000}).Normalize().ChunkSize; got != 70000 {
		t.Fatalf("v2 chunk size=%d, want 70000", got)
	}
}

func TestConfigStreamURL(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{endpoint: "", want: "wss://embeddedassistant.googleapis.com/v1alpha2/converse"},
		{endpoint: "assistant.local:8443", want: "wss://assistant.local:8443/v1alpha2/converse"},
		{endpoint: "ws://127.0.0.1:9000", want: "ws://127.0.0.1:9000/v1alpha2/converse"},
		{endpoint: "https://example.com/custom", want: "wss://example.com/custom"},
	}
	for _, tc := range tests {
		if got := (Config{Endpoint: tc.endpoint}).Normalize().StreamURL(); got != tc.want {
			t.Fatalf("StreamURL(%q)=%q, want %q", tc.endpoint, got, tc.want)
		}
	}
}

func TestClientTurnEndsWhileSourceOpen(t *testing.T) {
	early := newFakeStream(&Response{Result: &ConverseResult{ConversationState: []byte{4}}})
	early.awaitFrames = 1
	dialer := &scriptedDialer{streams: []*fakeStream{early, finishedStream()}}
	client := NewClient(Config{ChunkSize: 10}, dialer, nil, WithSinkFactory(memorySinks()))

	pr, pw := io.Pipe()
	defer pw.Close()
	go func() { _, _ = pw.Write(patterned(10)) }()

	turn, err := client.RequestAssistant(context.Background(), pr)
	if err != nil {
		t.Fatalf("RequestAssistant error: %v", err)
	}
	select {
	case <-turn.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("turn still running after the server closed")
	}
	notes, out := turn.Collect()
	if out.State != StateEnded {
		t.Fatalf("state=%s err=%v, want ended", out.State, out.Err)
	}
	if countTerminal(notes) != 1 {
		t.Fatalf("terminal notifications=%d, want 1", countTerminal(notes))
	}
	if client.Active() {
		t.Fatalf("client still active after the turn ended")
	}
	if got := client.ConversationState(); !bytes.Equal(got, []byte{4}) {
		t.Fatalf("state=%v, want [4]", got)
	}

	next, err := client.RequestAssistant(context.Background(), bytes.NewReader(patterned(10)))
	if err != nil {
		t.Fatalf("second turn error: %v", err)
	}
	if _, out := next.Collect(); out.State != StateEnded {
		t.Fatalf("second turn state=%s err=%v, want ended", out.State, out.Err)
	}
}
