// Package frame implements cok's on-wire binary frame: a versioned,
// length-prefixed header followed by a JSON payload. Every control-plane
// message — connect handshakes, proxied HTTP requests and responses, pings,
// errors — is carried inside one of these frames.
package frame

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/annurdien/cok/cokerr"
)

// Type identifies the payload carried by a Frame.
type Type uint8

const (
	TypeConnectRequest  Type = 0x01
	TypeConnectResponse Type = 0x02
	TypeHTTPRequest     Type = 0x10
	TypeHTTPResponse    Type = 0x11
	TypePing            Type = 0x20
	TypePong            Type = 0x21
	TypeDisconnect      Type = 0x30
	TypeError           Type = 0xFF
)

// knownTypes is consulted during Decode to classify unrecognised message
// types as ErrUnknownMessageType rather than silently accepting garbage.
var knownTypes = map[Type]struct{}{
	TypeConnectRequest:  {},
	TypeConnectResponse: {},
	TypeHTTPRequest:     {},
	TypeHTTPResponse:    {},
	TypePing:            {},
	TypePong:            {},
	TypeDisconnect:      {},
	TypeError:           {},
}

const (
	// headerSize is the fixed 8-byte header preceding every payload.
	headerSize = 8

	// MaxFrameSize bounds payload_len; larger values are rejected as
	// ErrFrameTooLarge before any allocation happens.
	MaxFrameSize = 16 << 20 // 16 MiB

	// versionMajor1 is the only major version this codec understands.
	// version = (major<<4)|minor; 1.0 encodes as 0x10.
	versionMajor1 = 1
	Version1_0    = byte(1<<4) | 0
)

// Frame is the decoded on-wire unit. Version/Flags are carried through for
// round-tripping but callers rarely need to inspect them directly.
type Frame struct {
	Version byte
	Type    Type
	Flags   byte
	Payload []byte
}

// Encode serialises f into its wire representation: the 8-byte header
// followed by the raw payload bytes.
func Encode(f Frame) []byte {
	out := make([]byte, headerSize+len(f.Payload))
	out[0] = f.Version
	out[1] = byte(f.Type)
	out[2] = f.Flags
	out[3] = 0 // reserved
	binary.BigEndian.PutUint32(out[4:8], uint32(len(f.Payload)))
	copy(out[8:], f.Payload)
	return out
}

// New builds a Frame with the current protocol version and a JSON-encoded
// payload.
func New(typ Type, payload any) (Frame, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("frame: marshal %v payload: %w", typ, err)
	}
	return Frame{Version: Version1_0, Type: typ, Payload: body}, nil
}

// Decode peeks the header of buf without consuming it. If buf holds fewer
// than 8+payload_len bytes it returns cokerr.ErrInsufficientData and n==0,
// telling the transport layer to read more before trying again. It never
// mutates or advances past buf — callers own cursor management.
//
// On success it returns the decoded Frame and n, the number of bytes
// consumed from buf.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < headerSize {
		return Frame{}, 0, cokerr.ErrInsufficientData
	}

	version := buf[0]
	typ := Type(buf[1])
	flags := buf[2]
	payloadLen := binary.BigEndian.Uint32(buf[4:8])

	if payloadLen > MaxFrameSize {
		return Frame{}, 0, fmt.Errorf("frame: payload_len %d exceeds %d: %w", payloadLen, MaxFrameSize, cokerr.ErrFrameTooLarge)
	}

	total := headerSize + int(payloadLen)
	if len(buf) < total {
		return Frame{}, 0, cokerr.ErrInsufficientData
	}

	if version>>4 != versionMajor1 {
		return Frame{}, 0, fmt.Errorf("frame: version %#x: %w", version, cokerr.ErrUnsupportedVersion)
	}

	if _, ok := knownTypes[typ]; !ok {
		return Frame{}, total, fmt.Errorf("frame: type %#x: %w", typ, cokerr.ErrUnknownMessageType)
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[headerSize:total])

	return Frame{Version: version, Type: typ, Flags: flags, Payload: payload}, total, nil
}

// DecodePayload JSON-decodes f.Payload into v. Kept separate from Decode so
// the dispatch loop can pick the right destination type from f.Type first.
func DecodePayload(f Frame, v any) error {
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("frame: unmarshal %v payload: %w", f.Type, err)
	}
	return nil
}
