package assistant

import (
	"fmt"
	"strings"
)

// AudioInEncoding is the encoding of audio sent to the service.
type AudioInEncoding string

// AudioOutEncoding is the encoding of audio synthesized by the service.
type AudioOutEncoding string

const (
	EncodingLinear16 AudioInEncoding = "LINEAR16"

	OutputLinear16  AudioOutEncoding = "LINEAR16"
	OutputMP3       AudioOutEncoding = "MP3"
	OutputOpusInOgg AudioOutEncoding = "OPUS_IN_OGG"
)

// FileSuffix returns the extension used for stored audio of this encoding.
func (e AudioOutEncoding) FileSuffix() string {
	switch e {
	case OutputLinear16:
		return ".pcm"
	case OutputOpusInOgg:
		return ".ogg"
	default:
		return ".mp3"
	}
}

// AudioInConfig describes the audio the client streams.
type AudioInConfig struct {
	Encoding        AudioInEncoding
	SampleRateHertz int
}

// AudioOutConfig describes the audio the service returns.
type AudioOutConfig struct {
	Encoding         AudioOutEncoding
	SampleRateHertz  int
	VolumePercentage int
}

// ConverseConfig is the first message of every turn.
type ConverseConfig struct {
	AudioIn  AudioInConfig
	AudioOut AudioOutConfig
	// ConversationState is replayed verbatim from the previous turn. Nil on
	// the first turn of a conversation.
	ConversationState []byte
}

// Request is one outbound message: either the config or an audio frame.
type Request struct {
	Config  *ConverseConfig
	AudioIn []byte
}

// EventType is an informational server event.
type EventType int

const (
	EventTypeUnspecified EventType = iota
	EventEndOfUtterance
)

func (e EventType) String() string {
	switch e {
	case EventTypeUnspecified:
		return "EVENT_TYPE_UNSPECIFIED"
	case EventEndOfUtterance:
		return "END_OF_UTTERANCE"
	default:
		return fmt.Sprintf("EVENT_TYPE_%d", int(e))
	}
}

// ParseEventType maps a wire name to an EventType. Unknown names map to
// EventTypeUnspecified.
func ParseEventType(name string) EventType {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "END_OF_UTTERANCE":
		return EventEndOfUtterance
	default:
		return EventTypeUnspecified
	}
}

// MicrophoneMode tells the caller whether the assistant expects a follow-on
// utterance.
type MicrophoneMode string

const (
	MicrophoneModeUnspecified MicrophoneMode = "MICROPHONE_MODE_UNSPECIFIED"
	MicrophoneModeClose       MicrophoneMode = "CLOSE_MICROPHONE"
	MicrophoneModeFollowOn    MicrophoneMode = "DIALOG_FOLLOW_ON"
)

// ConverseResult is the recognition and dialog result of a turn.
type ConverseResult struct {
	SpokenRequestText  string
	SpokenResponseText string
	ConversationState  []byte
	MicrophoneMode     MicrophoneMode
	VolumePercentage   int
}

// ExpectsFollowOn reports whether more dialog is expected.
func (r ConverseResult) ExpectsFollowOn() bool {
	return r.MicrophoneMode == MicrophoneModeFollowOn
}

// AudioOut carries one chunk of synthesized audio.
type AudioOut struct {
	AudioData []byte
}

// ErrorDetail is a structured error reported by the service.
type ErrorDetail struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *ErrorDetail) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("assistant error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("assistant error %d: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
}

// Response is one inbound message. A well-formed message sets exactly one
// of EventType, AudioOut, Result or Error; EventTypeUnspecified means no
// event.
type Response struct {
	EventType EventType
	AudioOut  *AudioOut
	Result    *ConverseResult
	Error     *ErrorDetail
}
