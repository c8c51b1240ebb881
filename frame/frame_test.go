package frame_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/annurdien/cok/cokerr"
	"github.com/annurdien/cok/frame"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	f, err := frame.New(frame.TypeHTTPRequest, frame.HTTPRequestMessage{
		RequestID: "req-1",
		Method:    "GET",
		Path:      "/ping",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wire := frame.Encode(f)

	decoded, n, err := frame.Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(wire) {
		t.Errorf("expected to consume %d bytes, consumed %d", len(wire), n)
	}
	if decoded.Version != f.Version || decoded.Type != f.Type {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, f)
	}
	if !bytes.Equal(decoded.Payload, f.Payload) {
		t.Errorf("payload mismatch: got %s, want %s", decoded.Payload, f.Payload)
	}

	var msg frame.HTTPRequestMessage
	if err := frame.DecodePayload(decoded, &msg); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if msg.RequestID != "req-1" || msg.Method != "GET" || msg.Path != "/ping" {
		t.Errorf("unexpected payload: %+v", msg)
	}
}

func TestDecode_PartialReadAlwaysInsufficientData(t *testing.T) {
	f, err := frame.New(frame.TypePing, frame.PingMessage{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wire := frame.Encode(f)

	for k := 0; k < len(wire); k++ {
		_, n, err := frame.Decode(wire[:k])
		if !errors.Is(err, cokerr.ErrInsufficientData) {
			t.Fatalf("k=%d: expected ErrInsufficientData, got %v", k, err)
		}
		if n != 0 {
			t.Fatalf("k=%d: expected cursor to stay at 0, got %d", k, n)
		}
	}
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	f, err := frame.New(frame.TypePing, frame.PingMessage{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wire := frame.Encode(f)
	wire[0] = 0x20 // major version 2

	_, _, err = frame.Decode(wire)
	if !errors.Is(err, cokerr.ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestDecode_UnknownMessageTypeStillAdvancesCursor(t *testing.T) {
	f, err := frame.New(frame.TypePing, frame.PingMessage{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wire := frame.Encode(f)
	wire[1] = 0x99 // not in knownTypes

	_, n, err := frame.Decode(wire)
	if !errors.Is(err, cokerr.ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
	if n != len(wire) {
		t.Errorf("expected cursor to advance past the unknown frame, got n=%d want %d", n, len(wire))
	}
}

func TestDecode_FrameTooLarge(t *testing.T) {
	header := make([]byte, 8)
	header[0] = frame.Version1_0
	header[1] = byte(frame.TypeHTTPRequest)
	header[4] = 0xFF
	header[5] = 0xFF
	header[6] = 0xFF
	header[7] = 0xFF // payload_len = max uint32, far past MaxFrameSize

	_, _, err := frame.Decode(header)
	if !errors.Is(err, cokerr.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecode_MultipleFramesBackToBack(t *testing.T) {
	f1, _ := frame.New(frame.TypePing, frame.PingMessage{})
	f2, _ := frame.New(frame.TypePong, frame.PongMessage{})

	buf := append(frame.Encode(f1), frame.Encode(f2)...)

	got1, n1, err := frame.Decode(buf)
	if err != nil {
		t.Fatalf("decode first frame: %v", err)
	}
	if got1.Type != frame.TypePing {
		t.Errorf("expected first frame to be Ping, got %v", got1.Type)
	}

	got2, n2, err := frame.Decode(buf[n1:])
	if err != nil {
		t.Fatalf("decode second frame: %v", err)
	}
	if got2.Type != frame.TypePong {
		t.Errorf("expected second frame to be Pong, got %v", got2.Type)
	}
	if n1+n2 != len(buf) {
		t.Errorf("expected to consume all bytes, consumed %d of %d", n1+n2, len(buf))
	}
}
