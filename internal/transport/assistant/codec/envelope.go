package codec

import (
	"errors"

	"github.com/bytedance/sonic"
)

// Envelope types sent by the client.
const (
	TypeConfig   = "config"
	TypeAudioEnd = "audio_end"
)

// Envelope is the JSON control message exchanged on the stream. Outbound
// envelopes set Type; inbound envelopes set at most one of the payload
// fields.
type Envelope struct {
	Type      string           `json:"type,omitempty"`
	Config    *ConfigPayload   `json:"config,omitempty"`
	EventType string           `json:"event_type,omitempty"`
	AudioOut  *AudioOutPayload `json:"audio_out,omitempty"`
	Result    *ResultPayload   `json:"result,omitempty"`
	Error     *ErrorPayload    `json:"error,omitempty"`
}

// ConfigPayload is the first message of every stream.
type ConfigPayload struct {
	AudioIn       AudioInPayload `json:"audio_in_config"`
	AudioOut      AudioOutConfig `json:"audio_out_config"`
	ConverseState *ConverseState `json:"converse_state,omitempty"`
}

// AudioInPayload describes the audio the client streams.
type AudioInPayload struct {
	Encoding        string `json:"encoding"`
	SampleRateHertz int    `json:"sample_rate_hertz"`
}

// AudioOutConfig describes the audio the server should synthesize.
type AudioOutConfig struct {
	Encoding         string `json:"encoding"`
	SampleRateHertz  int    `json:"sample_rate_hertz"`
	VolumePercentage int    `json:"volume_percentage"`
}

// ConverseState carries the opaque dialog state between turns.
type ConverseState struct {
	ConversationState []byte `json:"conversation_state"`
}

// AudioOutPayload carries synthesized audio inside a JSON envelope.
type AudioOutPayload struct {
	AudioData []byte `json:"audio_data"`
}

// ResultPayload is the semantic result of a turn.
type ResultPayload struct {
	SpokenRequestText  string `json:"spoken_request_text,omitempty"`
	SpokenResponseText string `json:"spoken_response_text,omitempty"`
	ConversationState  []byte `json:"conversation_state,omitempty"`
	MicrophoneMode     string `json:"microphone_mode,omitempty"`
	VolumePercentage   int    `json:"volume_percentage,omitempty"`
}

// ErrorPayload is a structured server error.
type ErrorPayload struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

var errNilEnvelope = errors.New("assistant envelope is nil")

// EncodeEnvelope marshals env with encoding/json compatible output.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, errNilEnvelope
	}
	return sonic.ConfigStd.Marshal(env)
}

// DecodeEnvelope unmarshals a JSON envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := sonic.ConfigStd.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
