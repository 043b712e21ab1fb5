package assistant

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Kind is the category an inbound message was dispatched as.
type Kind int

const (
	KindUnknown Kind = iota
	KindEvent
	KindAudio
	KindError
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindAudio:
		return "audio"
	case KindError:
		return "error"
	case KindResult:
		return "result"
	default:
		return "unknown"
	}
}

// Classify returns the category of resp. When several fields are set the
// first match in event, audio, error, result order wins.
func Classify(resp *Response) Kind {
	switch {
	case resp == nil:
		return KindUnknown
	case resp.EventType != EventTypeUnspecified:
		return KindEvent
	case resp.AudioOut != nil:
		return KindAudio
	case resp.Error != nil:
		return KindError
	case resp.Result != nil:
		return KindResult
	default:
		return KindUnknown
	}
}

// ResponseDemuxer dispatches inbound messages of one turn, in arrival order,
// to the audio sink and the notification handler. It is not safe for
// concurrent use; a session drives it from its reader goroutine.
type ResponseDemuxer struct {
	sink   io.Writer
	emit   func(Notification)
	logger *zap.Logger

	lastKind      Kind
	lastError     *ErrorDetail
	errors        []ErrorDetail
	result        *ConverseResult
	state         []byte
	audioBytes    int64
	audioMessages int
	unknown       int
}

// NewResponseDemuxer returns a demuxer appending audio to sink and passing
// notifications to emit.
func NewResponseDemuxer(sink io.Writer, emit func(Notification), logger *zap.Logger) *ResponseDemuxer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emit == nil {
		emit = func(Notification) {}
	}
	return &ResponseDemuxer{sink: sink, emit: emit, logger: logger}
}

// Dispatch handles one message and returns its category. The only error is
// a failed sink write.
func (d *ResponseDemuxer) Dispatch(resp *Response) (Kind, error) {
	kind := Classify(resp)
	switch kind {
	case KindEvent:
		if resp.EventType == EventEndOfUtterance {
			d.logger.Debug("assistant end of utterance")
		}
		d.emit(EventNotification{Type: resp.EventType})
	case KindAudio:
		data := resp.AudioOut.AudioData
		if len(data) > 0 {
			if _, err := d.sink.Write(data); err != nil {
				return kind, fmt.Errorf("append assistant audio: %w", err)
			}
		}
		d.audioBytes += int64(len(data))
		d.audioMessages++
		d.emit(AudioChunkNotification{Size: len(data)})
	case KindError:
		detail := cloneErrorDetail(*resp.Error)
		d.logger.Warn("assistant reported error",
			zap.Int("code", detail.Code),
			zap.String("message", detail.Message),
			zap.Strings("details", detail.Details),
		)
		d.lastError = &detail
		d.errors = append(d.errors, detail)
		d.emit(ErrorNotification{Detail: detail})
	case KindResult:
		result := *resp.Result
		result.ConversationState = cloneBytes(result.ConversationState)
		if len(result.ConversationState) > 0 {
			d.state = result.ConversationState
		}
		d.result = &result
		d.logger.Debug("assistant result",
			zap.String("request_text", result.SpokenRequestText),
			zap.String("microphone_mode", string(result.MicrophoneMode)),
		)
		d.emit(TextNotification{Text: result.SpokenRequestText})
		d.emit(ResultNotification{Result: result})
	default:
		d.unknown++
		d.logger.Warn("assistant unrecognized message", zap.Int("unknown_count", d.unknown))
	}
	if kind != KindUnknown {
		d.lastKind = kind
	}
	return kind, nil
}

// TerminalError returns the error carried by the last recognized message,
// or nil when the last message was something else.
func (d *ResponseDemuxer) TerminalError() *ErrorDetail {
	if d.lastKind != KindError {
		return nil
	}
	return d.lastError
}

// ConversationState returns the most recent non-empty state reported in a
// result, or nil.
func (d *ResponseDemuxer) ConversationState() []byte {
	return d.state
}

// Result returns the last result, or nil.
func (d *ResponseDemuxer) Result() *ConverseResult {
	return d.result
}

// Errors returns every protocol error seen so far.
func (d *ResponseDemuxer) Errors() []ErrorDetail {
	return d.errors
}

// AudioBytes returns the number of audio bytes appended to the sink.
func (d *ResponseDemuxer) AudioBytes() int64 {
	return d.audioBytes
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneErrorDetail(detail ErrorDetail) ErrorDetail {
	if detail.Details != nil {
		detail.Details = append([]string(nil), detail.Details...)
	}
	return detail
}
