package assistant

import (
	"strings"

	"github.com/saker-ai/assistant-bridge/internal/transport/assistant/codec"
)

func configEnvelope(cfg *ConverseConfig) *codec.Envelope {
	payload := &codec.ConfigPayload{
		AudioIn: codec.AudioInPayload{
			Encoding:        string(cfg.AudioIn.Encoding),
			SampleRateHertz: cfg.AudioIn.SampleRateHertz,
		},
		AudioOut: codec.AudioOutConfig{
			Encoding:         string(cfg.AudioOut.Encoding),
			SampleRateHertz:  cfg.AudioOut.SampleRateHertz,
			VolumePercentage: cfg.AudioOut.VolumePercentage,
		},
	}
	if len(cfg.ConversationState) > 0 {
		payload.ConverseState = &codec.ConverseState{ConversationState: cfg.ConversationState}
	}
	return &codec.Envelope{Type: codec.TypeConfig, Config: payload}
}

func requestFromEnvelope(env *codec.Envelope) *Request {
	if env == nil || env.Config == nil {
		return nil
	}
	cfg := &ConverseConfig{
		AudioIn: AudioInConfig{
			Encoding:        AudioInEncoding(env.Config.AudioIn.Encoding),
			SampleRateHertz: env.Config.AudioIn.SampleRateHertz,
		},
		AudioOut: AudioOutConfig{
			Encoding:         AudioOutEncoding(env.Config.AudioOut.Encoding),
			SampleRateHertz:  env.Config.AudioOut.SampleRateHertz,
			VolumePercentage: env.Config.AudioOut.VolumePercentage,
		},
	}
	if env.Config.ConverseState != nil {
		cfg.ConversationState = env.Config.ConverseState.ConversationState
	}
	return &Request{Config: cfg}
}

func responseFromEnvelope(env *codec.Envelope) *Response {
	resp := &Response{}
	if env == nil {
		return resp
	}
	if env.EventType != "" {
		resp.EventType = ParseEventType(env.EventType)
	}
	if env.AudioOut != nil {
		resp.AudioOut = &AudioOut{AudioData: env.AudioOut.AudioData}
	}
	if env.Error != nil {
		resp.Error = &ErrorDetail{
			Code:    env.Error.Code,
			Message: env.Error.Message,
			Details: env.Error.Details,
		}
	}
	if env.Result != nil {
		resp.Result = &ConverseResult{
			SpokenRequestText:  env.Result.SpokenRequestText,
			SpokenResponseText: env.Result.SpokenResponseText,
			ConversationState:  env.Result.ConversationState,
			MicrophoneMode:     parseMicrophoneMode(env.Result.MicrophoneMode),
			VolumePercentage:   env.Result.VolumePercentage,
		}
	}
	return resp
}

func envelopeFromResponse(resp *Response) *codec.Envelope {
	env := &codec.Envelope{}
	if resp == nil {
		return env
	}
	if resp.EventType != EventTypeUnspecified {
		env.EventType = resp.EventType.String()
	}
	if resp.AudioOut != nil {
		env.AudioOut = &codec.AudioOutPayload{AudioData: resp.AudioOut.AudioData}
	}
	if resp.Error != nil {
		env.Error = &codec.ErrorPayload{
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Details: resp.Error.Details,
		}
	}
	if resp.Result != nil {
		env.Result = &codec.ResultPayload{
			SpokenRequestText:  resp.Result.SpokenRequestText,
			SpokenResponseText: resp.Result.SpokenResponseText,
			ConversationState:  resp.Result.ConversationState,
			MicrophoneMode:     string(resp.Result.MicrophoneMode),
			VolumePercentage:   resp.Result.VolumePercentage,
		}
	}
	return env
}

func parseMicrophoneMode(raw string) MicrophoneMode {
	switch MicrophoneMode(strings.ToUpper(strings.TrimSpace(raw))) {
	case MicrophoneModeClose:
		return MicrophoneModeClose
	case MicrophoneModeFollowOn:
		return MicrophoneModeFollowOn
	default:
		return MicrophoneModeUnspecified
	}
}
