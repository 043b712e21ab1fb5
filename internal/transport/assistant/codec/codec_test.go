package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestPackDecodeAudioAllVersions(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	for _, version := range []int{Version1, Version2, Version3} {
		frame, err := Pack(version, PayloadKindAudio, payload)
		if err != nil {
			t.Fatalf("Pack(v%d) returned error: %v", version, err)
		}
		got, kind, err := Decode(version, frame)
		if err != nil {
			t.Fatalf("Decode(v%d) returned error: %v", version, err)
		}
		if kind != PayloadKindAudio {
			t.Fatalf("Decode(v%d) kind=%v, want %v", version, kind, PayloadKindAudio)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("Decode(v%d) payload=%v, want %v", version, got, payload)
		}
	}
}

func TestPackCommandV3(t *testing.T) {
	payload := []byte(`{"type":"audio_end"}`)
	frame, err := Pack(Version3, PayloadKindCommand, payload)
	if err != nil {
		t.Fatalf("Pack(v3 cmd) returned error: %v", err)
	}
	got, kind, err := Decode(Version3, frame)
	if err != nil {
		t.Fatalf("Decode(v3 cmd) returned error: %v", err)
	}
	if kind != PayloadKindCommand {
		t.Fatalf("Decode(v3 cmd) kind=%v, want %v", kind, PayloadKindCommand)
	}
	if string(got) != string(payload) {
		t.Fatalf("Decode(v3 cmd) payload=%q, want %q", got, payload)
	}
}

func TestPackCommandV1Unsupported(t *testing.T) {
	if _, err := Pack(Version1, PayloadKindCommand, []byte("{}")); !errors.Is(err, ErrUnsupportedPayload) {
		t.Fatalf("Pack(v1 cmd) error=%v, want %v", err, ErrUnsupportedPayload)
	}
}

func TestPackV3PayloadTooLarge(t *testing.T) {
	if _, err := Pack(Version3, PayloadKindAudio, make([]byte, 1<<16)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Pack(v3) error=%v, want %v", err, ErrPayloadTooLarge)
	}
}

func TestDecodeV2CommandPayload(t *testing.T) {
	payload := []byte(`{"event_type":"END_OF_UTTERANCE"}`)
	frame := make([]byte, 16+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], Version2)
	binary.BigEndian.PutUint16(frame[2:4], payloadTypeCommand)
	binary.BigEndian.PutUint32(frame[12:16], uint32(len(payload)))
	copy(frame[16:], payload)

	got, kind, err := Decode(Version2, frame)
	if err != nil {
		t.Fatalf("Decode(v2 cmd) returned error: %v", err)
	}
	if kind != PayloadKindCommand {
		t.Fatalf("Decode(v2 cmd) kind=%v, want %v", kind, PayloadKindCommand)
	}
	if string(got) != string(payload) {
		t.Fatalf("Decode(v2 cmd) payload=%q, want %q", got, payload)
	}
}

func TestDecodeMalformedFrames(t *testing.T) {
	oversized := make([]byte, 16)
	binary.BigEndian.PutUint16(oversized[0:2], Version2)
	binary.BigEndian.PutUint32(oversized[12:16], 10)

	unknownType := []byte{0x07, 0x00, 0x00, 0x00}

	tests := []struct {
		name    string
		version int
		frame   []byte
		want    error
	}{
		{name: "v2 short", version: Version2, frame: []byte{0x00}, want: ErrFrameTooShort},
		{name: "v2 oversized", version: Version2, frame: oversized, want: ErrInvalidPayloadSize},
		{name: "v3 short", version: Version3, frame: []byte{0x00, 0x00}, want: ErrFrameTooShort},
		{name: "v3 unknown type", version: Version3, frame: unknownType, want: ErrUnsupportedPayload},
	}
	for _, tt := range tests {
		if _, _, err := Decode(tt.version, tt.frame); !errors.Is(err, tt.want) {
			t.Fatalf("%s: Decode error=%v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: Version1},
		{in: 1, want: Version1},
		{in: 2, want: Version2},
		{in: 3, want: Version3},
		{in: 9, want: Version1},
	}
	for _, tt := range tests {
		if got := NormalizeVersion(tt.in); got != tt.want {
			t.Fatalf("NormalizeVersion(%d)=%d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMaxPayloadMatchesPack(t *testing.T) {
	if got := MaxPayload(Version3); got != 65535 {
		t.Fatalf("MaxPayload(v3)=%d, want 65535", got)
	}
	if _, err := Pack(Version3, PayloadKindAudio, make([]byte, MaxPayload(Version3))); err != nil {
		t.Fatalf("Pack at v3 limit error: %v", err)
	}
	if MaxPayload(Version2) <= MaxPayload(Version3) || MaxPayload(Version1) <= MaxPayload(Version3) {
		t.Fatalf("v1/v2 limits must exceed the v3 header limit")
	}
}
