// Package codec implements the assistant stream wire format: versioned
// binary frames for audio and JSON envelopes for control messages.
package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

const (
	// Version1 sends audio as raw binary messages with no header.
	Version1 = 1
	// Version2 prefixes every binary message with a 16 byte header.
	Version2 = 2
	// Version3 prefixes every binary message with a 4 byte header.
	Version3 = 3

	payloadTypeAudio   = 0
	payloadTypeCommand = 1

	headerSizeV2 = 16
	headerSizeV3 = 4
)

// PayloadKind describes what a binary message carries.
type PayloadKind int

const (
	// PayloadKindAudio indicates raw audio bytes.
	PayloadKindAudio PayloadKind = iota
	// PayloadKindCommand indicates a JSON envelope.
	PayloadKindCommand
)

var (
	ErrFrameTooShort      = errors.New("assistant binary frame too short")
	ErrInvalidPayloadSize = errors.New("assistant binary frame has invalid payload size")
	ErrUnsupportedPayload = errors.New("assistant binary frame has unsupported payload type")
	ErrPayloadTooLarge    = errors.New("assistant binary payload too large for protocol version")
)

// NormalizeVersion maps unknown versions to Version1.
func NormalizeVersion(version int) int {
	switch version {
	case Version2, Version3:
		return version
	default:
		return Version1
	}
}

// MaxPayload returns the largest payload a binary frame of version can carry.
func MaxPayload(version int) int {
	switch NormalizeVersion(version) {
	case Version2:
		return int(min(uint64(math.MaxUint32), uint64(math.MaxInt)))
	case Version3:
		return math.MaxUint16
	default:
		return math.MaxInt
	}
}

// Pack wraps payload in a binary frame for the given protocol version.
// Version1 cannot carry commands; callers send those as text messages.
func Pack(version int, kind PayloadKind, payload []byte) ([]byte, error) {
	switch NormalizeVersion(version) {
	case Version2:
		return packV2(kind, payload)
	case Version3:
		return packV3(kind, payload)
	default:
		if kind != PayloadKindAudio {
			return nil, ErrUnsupportedPayload
		}
		return payload, nil
	}
}

// Decode unwraps a binary frame. Version1 frames are always audio.
func Decode(version int, frame []byte) ([]byte, PayloadKind, error) {
	switch NormalizeVersion(version) {
	case Version2:
		return decodeV2(frame)
	case Version3:
		return decodeV3(frame)
	default:
		return frame, PayloadKindAudio, nil
	}
}

func decodeV2(frame []byte) ([]byte, PayloadKind, error) {
	if len(frame) < headerSizeV2 {
		return nil, PayloadKindAudio, ErrFrameTooShort
	}
	msgType := binary.BigEndian.Uint16(frame[2:4])
	payloadSize := binary.BigEndian.Uint32(frame[12:16])
	if uint64(payloadSize) > uint64(len(frame)-headerSizeV2) {
		return nil, PayloadKindAudio, ErrInvalidPayloadSize
	}
	if msgType > math.MaxUint8 {
		return nil, PayloadKindAudio, ErrUnsupportedPayload
	}
	kind, err := kindOf(uint8(msgType))
	if err != nil {
		return nil, PayloadKindAudio, err
	}
	return frame[headerSizeV2 : headerSizeV2+int(payloadSize)], kind, nil
}

func decodeV3(frame []byte) ([]byte, PayloadKind, error) {
	if len(frame) < headerSizeV3 {
		return nil, PayloadKindAudio, ErrFrameTooShort
	}
	payloadSize := binary.BigEndian.Uint16(frame[2:4])
	if int(payloadSize) > len(frame)-headerSizeV3 {
		return nil, PayloadKindAudio, ErrInvalidPayloadSize
	}
	kind, err := kindOf(frame[0])
	if err != nil {
		return nil, PayloadKindAudio, err
	}
	return frame[headerSizeV3 : headerSizeV3+int(payloadSize)], kind, nil
}

func packV2(kind PayloadKind, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, ErrPayloadTooLarge
	}
	frame := make([]byte, headerSizeV2, headerSizeV2+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], Version2)
	binary.BigEndian.PutUint16(frame[2:4], uint16(typeOf(kind)))
	binary.BigEndian.PutUint32(frame[8:12], uint32(time.Now().UnixMilli()))
	binary.BigEndian.PutUint32(frame[12:16], uint32(len(payload)))
	return append(frame, payload...), nil
}

func packV3(kind PayloadKind, payload []byte) ([]byte, error) {
	if len(payload) > math.MaxUint16 {
		return nil, ErrPayloadTooLarge
	}
	frame := make([]byte, headerSizeV3, headerSizeV3+len(payload))
	frame[0] = typeOf(kind)
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)))
	return append(frame, payload...), nil
}

func typeOf(kind PayloadKind) uint8 {
	if kind == PayloadKindCommand {
		return payloadTypeCommand
	}
	return payloadTypeAudio
}

func kindOf(msgType uint8) (PayloadKind, error) {
	switch msgType {
	case payloadTypeAudio:
		return PayloadKindAudio, nil
	case payloadTypeCommand:
		return PayloadKindCommand, nil
	default:
		return PayloadKindAudio, ErrUnsupportedPayload
	}
}
