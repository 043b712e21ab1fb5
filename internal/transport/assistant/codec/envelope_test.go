package codec

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeConfigEnvelopeCarriesState(t *testing.T) {
	env := &Envelope{
		Type: TypeConfig,
		Config: &ConfigPayload{
			AudioIn:       AudioInPayload{Encoding: "LINEAR16", SampleRateHertz: 16000},
			AudioOut:      AudioOutConfig{Encoding: "MP3", SampleRateHertz: 24000, VolumePercentage: 80},
			ConverseState: &ConverseState{ConversationState: []byte{0xDE, 0xAD}},
		},
	}
	data, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope returned error: %v", err)
	}
	if !strings.Contains(string(data), `"conversation_state":"3q0="`) {
		t.Fatalf("encoded config=%s, want base64 conversation_state 3q0=", data)
	}

	decoded, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope returned error: %v", err)
	}
	if decoded.Config == nil || decoded.Config.ConverseState == nil {
		t.Fatalf("decoded config=%+v, want converse state", decoded.Config)
	}
	if !bytes.Equal(decoded.Config.ConverseState.ConversationState, []byte{0xDE, 0xAD}) {
		t.Fatalf("conversation_state=%x, want dead", decoded.Config.ConverseState.ConversationState)
	}
}

func TestDecodeInboundEnvelopes(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"error":{"code":7,"message":"denied","details":["quota"]}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope returned error: %v", err)
	}
	if env.Error == nil || env.Error.Code != 7 || env.Error.Message != "denied" || len(env.Error.Details) != 1 {
		t.Fatalf("error payload=%+v, want code 7 denied with one detail", env.Error)
	}

	env, err = DecodeEnvelope([]byte(`{"result":{"spoken_request_text":"hello","microphone_mode":"DIALOG_FOLLOW_ON"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope returned error: %v", err)
	}
	if env.Result == nil || env.Result.SpokenRequestText != "hello" || env.Result.MicrophoneMode != "DIALOG_FOLLOW_ON" {
		t.Fatalf("result payload=%+v, want hello / DIALOG_FOLLOW_ON", env.Result)
	}
}

func TestDecodeEnvelopeInvalidJSON(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"event_type":`)); err == nil {
		t.Fatal("DecodeEnvelope error=nil, want non-nil")
	}
}

func TestEncodeNilEnvelope(t *testing.T) {
	if _, err := EncodeEnvelope(nil); err == nil {
		t.Fatal("EncodeEnvelope(nil) error=nil, want non-nil")
	}
}
